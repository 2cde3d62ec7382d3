package autosave

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/vietddude/resync/internal/core/domain"
)

// snapshotAPI encodes with sorted keys so equal drafts always produce equal bytes.
var snapshotAPI = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// editable is the part of a draft that autosave compares. Timestamps and ids
// are left out so they never produce a false diff.
type editable struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

// Snapshot returns the canonical serialization of the editable fields of d.
func Snapshot(d domain.Draft) []byte {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := snapshotAPI.Marshal(editable{Title: d.Title, Body: d.Body, Tags: tags})
	if err != nil {
		// Only strings are encoded; this cannot fail
		panic(err)
	}
	return b
}
