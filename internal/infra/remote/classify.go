package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/resync/internal/infra/storage"
)

// Kind tells the executor what to do with a failed attempt.
type Kind int

const (
	// KindTerminal errors are never retried.
	KindTerminal Kind = iota
	// KindRetryable errors are transient network or server failures.
	KindRetryable
	// KindTimeout errors mean the attempt did not finish in time. They are retried.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindTerminal:
		return "terminal"
	case KindRetryable:
		return "retryable"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Codes produced by the executor itself.
const (
	CodeTimeout  = "timeout"
	CodeCanceled = "canceled"
	CodePanic    = "panic"
)

// ClassifiedError is a failed remote call with its retry decision attached.
type ClassifiedError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
	// RetryAfter is a server hint for the next attempt. Zero when absent.
	RetryAfter time.Duration
}

func (e *ClassifiedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed.
func (e *ClassifiedError) Retryable() bool {
	return e.Kind == KindRetryable || e.Kind == KindTimeout
}

// UserMessage is the text shown to an end user for this failure.
func (e *ClassifiedError) UserMessage() string {
	switch e.Code {
	case storage.NotFoundCode, "not_found", codes.NotFound.String():
		return "not found"
	case storage.CodePermissionDenied, codes.PermissionDenied.String():
		return "you don't have permission to do that"
	case codeJWTExpired, codes.Unauthenticated.String():
		return "session expired, reload to sign in again"
	case storage.CodeUniqueViolation, codes.AlreadyExists.String():
		return "this already exists"
	case storage.CodeForeignKeyViolation:
		return "a related item no longer exists"
	case CodeCanceled:
		return "request cancelled"
	}

	switch e.Kind {
	case KindTimeout:
		return "this is taking too long, please retry"
	case KindRetryable:
		return "connection problem, please retry"
	default:
		return "something went wrong"
	}
}

const codeJWTExpired = "PGRST301"

var terminalCodes = map[string]bool{
	storage.NotFoundCode:            true,
	"not_found":                     true,
	storage.CodeUniqueViolation:     true,
	storage.CodePermissionDenied:    true,
	storage.CodeForeignKeyViolation: true,
	codeJWTExpired:                  true,
	"22P02":                         true, // invalid text representation
	"HTTP_400":                      true,
	"HTTP_401":                      true,
	"HTTP_403":                      true,
	"HTTP_404":                      true,
	"HTTP_409":                      true,
}

var transientCodes = map[string]Kind{
	"40001":    KindRetryable, // serialization_failure
	"40P01":    KindRetryable, // deadlock_detected
	"57P01":    KindRetryable, // admin_shutdown
	"53300":    KindRetryable, // too_many_connections
	"08006":    KindRetryable, // connection_failure
	"57014":    KindTimeout,   // query_canceled (statement_timeout)
	"HTTP_429": KindRetryable,
	"HTTP_502": KindRetryable,
	"HTTP_503": KindRetryable,
	"HTTP_504": KindTimeout,
}

var grpcKinds = map[codes.Code]Kind{
	codes.NotFound:           KindTerminal,
	codes.AlreadyExists:      KindTerminal,
	codes.PermissionDenied:   KindTerminal,
	codes.Unauthenticated:    KindTerminal,
	codes.InvalidArgument:    KindTerminal,
	codes.FailedPrecondition: KindTerminal,
	codes.Unimplemented:      KindTerminal,
	codes.Canceled:           KindTerminal,
	codes.Unavailable:        KindRetryable,
	codes.ResourceExhausted:  KindRetryable,
	codes.Aborted:            KindRetryable,
	codes.DeadlineExceeded:   KindTimeout,
}

var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"aborted",
	"etimedout",
}

var networkMarkers = []string{
	"failed to fetch",
	"network",
	"connection reset",
	"connection refused",
	"econnreset",
	"econnrefused",
	"broken pipe",
	"no such host",
	"unexpected eof",
}

// Classify maps an error from any remote store to a ClassifiedError.
// Unknown errors are terminal.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	out := &ClassifiedError{Kind: KindTerminal, Message: err.Error(), Cause: err}

	// 1. Structured codes
	if code, msg, ok := driverCode(err); ok {
		out.Code = code
		if msg != "" {
			out.Message = msg
		}
		out.RetryAfter = retryHint(err)
		if terminalCodes[code] {
			return out
		}
		if kind, ok := transientCodes[code]; ok {
			out.Kind = kind
			return out
		}
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		out.Code = st.Code().String()
		out.Message = st.Message()
		out.RetryAfter = grpcRetryDelay(st)
		if kind, ok := grpcKinds[st.Code()]; ok {
			out.Kind = kind
			return out
		}
	}

	if errors.Is(err, storage.ErrNotFound) {
		out.Code = storage.NotFoundCode
		return out
	}

	// 2. Context and transport errors
	if errors.Is(err, context.Canceled) {
		out.Code = CodeCanceled
		return out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Kind = KindTimeout
		if out.Code == "" {
			out.Code = CodeTimeout
		}
		return out
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		out.Kind = KindTimeout
		return out
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		out.Kind = KindRetryable
		return out
	}

	// 3. Message text
	msg := strings.ToLower(err.Error())
	for _, m := range timeoutMarkers {
		if strings.Contains(msg, m) {
			out.Kind = KindTimeout
			return out
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			out.Kind = KindRetryable
			return out
		}
	}

	return out
}

// driverCode pulls a SQLSTATE or API error code out of err.
func driverCode(err error) (code, msg string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Message, true
	}

	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) && coded.ErrorCode() != "" {
		return coded.ErrorCode(), "", true
	}

	return "", "", false
}

func retryHint(err error) time.Duration {
	var hinted interface{ RetryDelay() time.Duration }
	if errors.As(err, &hinted) {
		return hinted.RetryDelay()
	}
	return 0
}

func grpcRetryDelay(st *status.Status) time.Duration {
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			return info.GetRetryDelay().AsDuration()
		}
	}
	return 0
}

func timeoutError(after time.Duration) *ClassifiedError {
	return &ClassifiedError{
		Kind:    KindTimeout,
		Code:    CodeTimeout,
		Message: fmt.Sprintf("attempt timed out after %s", after),
		Cause:   context.DeadlineExceeded,
	}
}
