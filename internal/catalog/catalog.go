package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kalambet/finchat/internal/storage"
)

// DocumentLister is the storage surface the accessor needs.
type DocumentLister interface {
	ListDocuments(userID, sessionID string) ([]storage.Document, error)
}

// Accessor reads the table descriptors ingested for a (user, session).
type Accessor struct {
	store DocumentLister
}

// NewAccessor creates an Accessor over the given store.
func NewAccessor(store DocumentLister) *Accessor {
	return &Accessor{store: store}
}

// FetchTables returns the descriptors of every tabular upload in the
// (user, session), in upload order. Unstructured uploads (no table name)
// are skipped. An empty slice when nothing tabular was ingested.
func (a *Accessor) FetchTables(ctx context.Context, userID, sessionID string) ([]TableDescriptor, error) {
	docs, err := a.store.ListDocuments(userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	tables := []TableDescriptor{}
	for _, d := range docs {
		if d.TableName == "" {
			continue
		}
		var td TableDescriptor
		if err := json.Unmarshal([]byte(d.DescriptorJSON), &td); err != nil {
			// One corrupt descriptor must not hide the rest of the catalog.
			slog.Warn("skipping unparseable table descriptor", "document_id", d.ID, "error", err)
			continue
		}
		td.TableName = d.TableName
		td.Filename = d.Filename
		tables = append(tables, td)
	}
	return tables, nil
}

// EncodeDescriptor serializes a descriptor for the documents table.
func EncodeDescriptor(td TableDescriptor) (string, error) {
	b, err := json.Marshal(td)
	if err != nil {
		return "", fmt.Errorf("encoding descriptor: %w", err)
	}
	return string(b), nil
}
