// Package sanity adapts the remote content dataset (a Sanity project) to the
// narrow capability the pipeline needs: look up by slug, create, patch,
// delete, and stream a full export. The wrapper is deliberately small so it
// can be faked in tests.
package sanity

import (
	"context"
	"errors"
	"io"

	"github.com/suptia/contentsync/internal/document"
)

// ErrMissingToken is returned when a live client is constructed without an
// API token.
var ErrMissingToken = errors.New("sanity: missing API token")

// Store is the document-store capability used by the importer, backup taker,
// and merge command.
type Store interface {
	// FetchBySlug returns the document of the given type whose slug.current
	// matches, or nil when no document matches.
	FetchBySlug(ctx context.Context, docType, slug string) (document.Document, error)

	// FetchByType returns every document of the given type.
	FetchByType(ctx context.Context, docType string) ([]document.Document, error)

	// Create inserts a new document and returns its assigned id.
	Create(ctx context.Context, doc document.Document) (string, error)

	// Patch sets the given fields on an existing document.
	Patch(ctx context.Context, id string, fields document.Document) error

	// Delete removes a document by id.
	Delete(ctx context.Context, id string) error

	// ExportDataset streams the full dataset as NDJSON, one document per line.
	ExportDataset(ctx context.Context) (io.ReadCloser, error)
}
