package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suptia/contentsync/internal/document"
)

func TestDiffCreate(t *testing.T) {
	r := Diff(nil, document.Document{"name": "Zinc"})
	assert.Equal(t, StatusCreate, r.Status)
	assert.Empty(t, r.ChangedFields)
	assert.Equal(t, "new document", Summarize(r))
}

func TestDiffUnchanged(t *testing.T) {
	existing := document.Document{
		"_id":   "doc1",
		"_rev":  "r9",
		"name":  "Zinc",
		"tags":  []any{"mineral", "immune"},
		"extra": "remote-only fields are not compared",
	}
	candidate := document.Document{
		"name": "Zinc",
		"tags": []any{"mineral", "immune"},
	}
	r := Diff(existing, candidate)
	assert.Equal(t, StatusUnchanged, r.Status)
	assert.Equal(t, "no changes", Summarize(r))
}

func TestDiffUpdate(t *testing.T) {
	existing := document.Document{
		"name":        "Zinc",
		"description": "old text",
		"category":    "mineral",
	}
	candidate := document.Document{
		"name":        "Zinc",
		"description": "new text",
		"category":    "minerals",
	}
	r := Diff(existing, candidate)
	assert.Equal(t, StatusUpdate, r.Status)
	assert.Equal(t, []string{"category", "description"}, r.ChangedFields)
	assert.Equal(t, "2 fields changed: category, description", Summarize(r))
}

func TestDiffSingleFieldSummary(t *testing.T) {
	r := Diff(document.Document{"name": "a"}, document.Document{"name": "b"})
	assert.Equal(t, "1 field changed: name", Summarize(r))
}

func TestDiffDeterministic(t *testing.T) {
	existing := document.Document{"a": 1.0, "b": 2.0, "c": 3.0, "d": 4.0}
	candidate := document.Document{"a": 9.0, "b": 2.0, "c": 9.0, "d": 9.0}
	first := Diff(existing, candidate)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Diff(existing, candidate))
	}
}

func TestDiffIgnoresFieldAbsentFromRemote(t *testing.T) {
	// A candidate field the remote lacks entirely still counts as a change.
	r := Diff(document.Document{"name": "Zinc"}, document.Document{"name": "Zinc", "evidenceLevel": "A"})
	assert.Equal(t, StatusUpdate, r.Status)
	assert.Equal(t, []string{"evidenceLevel"}, r.ChangedFields)
}
