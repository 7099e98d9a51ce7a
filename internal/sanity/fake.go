package sanity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/suptia/contentsync/internal/document"
)

// Fake is an in-memory Store for tests and local rehearsals. It records call
// counts so tests can assert which remote operations a run performed, and its
// error knobs simulate a flaky API.
type Fake struct {
	mu   sync.Mutex
	docs map[string]document.Document

	FetchCalls  int
	CreateCalls int
	PatchCalls  int
	DeleteCalls int
	ExportCalls int

	// When set, the corresponding operation fails with this error.
	FetchErr  error
	CreateErr error
	PatchErr  error
	DeleteErr error
	ExportErr error
}

// NewFake builds an empty Fake store.
func NewFake() *Fake {
	return &Fake{docs: map[string]document.Document{}}
}

// Seed inserts a document directly, assigning an id when absent. Returns the
// id. Intended for test setup; does not bump counters.
func (f *Fake) Seed(doc document.Document) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := doc["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}
	f.docs[id] = doc
	return id
}

// Get returns the stored document by id, or nil.
func (f *Fake) Get(id string) document.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

// Len returns the number of stored documents.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// Mutations returns the total count of create+patch+delete calls.
func (f *Fake) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CreateCalls + f.PatchCalls + f.DeleteCalls
}

// FetchBySlug implements Store.
func (f *Fake) FetchBySlug(_ context.Context, docType, slug string) (document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	for _, doc := range f.docs {
		if t, _ := doc["_type"].(string); t != docType {
			continue
		}
		if document.Slug(doc) == slug {
			return doc, nil
		}
	}
	return nil, nil
}

// FetchByType implements Store.
func (f *Fake) FetchByType(_ context.Context, docType string) ([]document.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []document.Document
	for _, doc := range f.docs {
		if t, _ := doc["_type"].(string); t == docType {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Create implements Store.
func (f *Fake) Create(_ context.Context, doc document.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	id := uuid.NewString()
	stored := make(document.Document, len(doc)+1)
	for k, v := range doc {
		stored[k] = v
	}
	stored["_id"] = id
	f.docs[id] = stored
	return id, nil
}

// Patch implements Store.
func (f *Fake) Patch(_ context.Context, id string, fields document.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PatchCalls++
	if f.PatchErr != nil {
		return f.PatchErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("fake: no document %s", id)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// Delete implements Store.
func (f *Fake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.docs[id]; !ok {
		return fmt.Errorf("fake: no document %s", id)
	}
	delete(f.docs, id)
	return nil
}

// ExportDataset implements Store.
func (f *Fake) ExportDataset(_ context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExportCalls++
	if f.ExportErr != nil {
		return nil, f.ExportErr
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range f.docs {
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}
	return io.NopCloser(&buf), nil
}
