// Package differ classifies a candidate document against its remote
// counterpart so the importer can skip no-op writes.
package differ

import (
	"fmt"
	"sort"
	"strings"

	"github.com/suptia/contentsync/internal/document"
)

// Status is the outcome of comparing a candidate with the remote dataset.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusCreate    Status = "create"
	StatusUpdate    Status = "update"
)

// Result describes the comparison. ChangedFields is populated only for
// updates and is sorted so results are stable regardless of map iteration.
type Result struct {
	Status        Status
	ChangedFields []string
}

// Diff compares candidate against existing. A nil existing document means the
// slug is unknown to the dataset and the candidate must be created. Only
// fields present in the candidate participate; dataset-managed system fields
// on the remote side are ignored.
func Diff(existing, candidate document.Document) Result {
	if existing == nil {
		return Result{Status: StatusCreate}
	}
	var changed []string
	for k, v := range document.Payload(candidate) {
		if !document.Equal(v, existing[k]) {
			changed = append(changed, k)
		}
	}
	if len(changed) == 0 {
		return Result{Status: StatusUnchanged}
	}
	sort.Strings(changed)
	return Result{Status: StatusUpdate, ChangedFields: changed}
}

// Summarize renders a short human description of a Result for log lines.
func Summarize(r Result) string {
	switch r.Status {
	case StatusCreate:
		return "new document"
	case StatusUnchanged:
		return "no changes"
	case StatusUpdate:
		n := len(r.ChangedFields)
		noun := "fields"
		if n == 1 {
			noun = "field"
		}
		return fmt.Sprintf("%d %s changed: %s", n, noun, strings.Join(r.ChangedFields, ", "))
	}
	return string(r.Status)
}
