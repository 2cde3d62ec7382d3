package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/remote"
	"github.com/vietddude/resync/internal/infra/storage"
)

// =============================================================================
// Helpers
// =============================================================================

type recorded struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.RawQuery,
		header: r.Header.Clone(),
		body:   strings.TrimSpace(string(body)),
	})
	f.mu.Unlock()
	f.handle(w, r)
}

func (f *fakeAPI) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{handle: handle}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "anon", Token: "jwt", Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, api
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// =============================================================================
// Errors
// =============================================================================

func TestErrorsClassify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		wantCode   string
		wantKind   remote.Kind
		wantDelay  time.Duration
	}{
		{
			name:     "no rows",
			status:   http.StatusNotAcceptable,
			body:     `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`,
			wantCode: storage.NotFoundCode,
			wantKind: remote.KindTerminal,
		},
		{
			name:     "unique violation",
			status:   http.StatusConflict,
			body:     `{"code":"23505","message":"duplicate key value violates unique constraint"}`,
			wantCode: storage.CodeUniqueViolation,
			wantKind: remote.KindTerminal,
		},
		{
			name:       "unavailable with retry hint",
			status:     http.StatusServiceUnavailable,
			body:       `upstream unavailable`,
			retryAfter: "2",
			wantCode:   "HTTP_503",
			wantKind:   remote.KindRetryable,
			wantDelay:  2 * time.Second,
		},
		{
			name:     "gateway timeout",
			status:   http.StatusGatewayTimeout,
			wantCode: "HTTP_504",
			wantKind: remote.KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := NewProfileRepo(c).GetByID(context.Background(), "u1")
			ce := remote.Classify(err)
			if ce == nil || ce.Code != tt.wantCode || ce.Kind != tt.wantKind {
				t.Fatalf("Classify = %+v, want %s/%s", ce, tt.wantCode, tt.wantKind)
			}
			if ce.RetryAfter != tt.wantDelay {
				t.Errorf("RetryAfter = %v, want %v", ce.RetryAfter, tt.wantDelay)
			}
		})
	}
}

func TestNoRowsIsErrNotFound(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotAcceptable, `{"code":"PGRST116","message":"no rows"}`)
	})

	_, err := NewDraftRepo(c).Get(context.Background(), "d1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	req := api.last()
	if req.header.Get("Accept") != mediaSingleObject {
		t.Errorf("Accept = %q", req.header.Get("Accept"))
	}
	if req.header.Get("apikey") != "anon" || req.header.Get("Authorization") != "Bearer jwt" {
		t.Errorf("auth headers = %v", req.header)
	}
}

// =============================================================================
// Repositories
// =============================================================================

func TestListByIDsUsesInFilter(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"id":"a","username":"alice"},{"id":"b","username":"bob"}]`)
	})

	got, err := NewProfileRepo(c).ListByIDs(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("ListByIDs: %v", err)
	}
	if len(got) != 2 || got[1].Username != "bob" {
		t.Errorf("profiles = %+v", got)
	}
	if q := api.last().query; !strings.Contains(q, "id=in.%28%22a%22%2C%22b%22%29") {
		t.Errorf("query = %s", q)
	}
}

func TestReactionCountsFromContentRange(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.Header.Get("Prefer") != preferCountExact {
			t.Errorf("unexpected request %s prefer=%q", r.Method, r.Header.Get("Prefer"))
		}
		switch r.URL.Query().Get("type") {
		case "eq.like":
			w.Header().Set("Content-Range", "0-4/5")
		default:
			w.Header().Set("Content-Range", "*/0")
		}
		w.WriteHeader(http.StatusOK)
	})

	counts, err := NewReactionRepo(c).Counts(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts != (domain.ReactionCounts{Positive: 5}) {
		t.Errorf("counts = %+v", counts)
	}
}

func TestUpdateWithNoRowsIsNotFound(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[]`)
	})

	err := NewReactionRepo(c).UpdateType(context.Background(), "post-1", "u1", domain.ReactionNegative)
	if ce := remote.Classify(err); ce == nil || ce.Code != storage.NotFoundCode {
		t.Fatalf("Classify = %+v, want PGRST116", ce)
	}
	req := api.last()
	if req.method != http.MethodPatch || req.header.Get("Prefer") != preferReturnRows {
		t.Errorf("request = %s prefer=%q", req.method, req.header.Get("Prefer"))
	}
	if req.body != `{"type":"dislike"}` {
		t.Errorf("body = %s", req.body)
	}
}

func TestInsertReactionPayload(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	id := uuid.MustParse("7f1d3c6e-0d5a-4a57-9a44-0e8f9b0f2f11")
	err := NewReactionRepo(c).Insert(context.Background(), &domain.Reaction{
		ID: id, TargetID: "post-1", UserID: "u1", Type: domain.ReactionPositive,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	want := `{"id":"7f1d3c6e-0d5a-4a57-9a44-0e8f9b0f2f11","target_id":"post-1","user_id":"u1","type":"like"}`
	if got := api.last().body; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

func TestDraftUpdateFiltersByOwner(t *testing.T) {
	c, api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[{"id":"d1","owner_id":"u1","title":"t","body":"b","tags":[]}]`)
	})

	err := NewDraftRepo(c).Update(context.Background(), &domain.Draft{ID: "d1", OwnerID: "u1", Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	req := api.last()
	if !strings.Contains(req.query, "owner_id=eq.u1") || !strings.Contains(req.query, "id=eq.d1") {
		t.Errorf("query = %s", req.query)
	}
	if req.body != `{"title":"t","body":"b","tags":[]}` {
		t.Errorf("body = %s", req.body)
	}
}
