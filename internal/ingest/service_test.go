package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalambet/finchat/internal/catalog"
	"github.com/kalambet/finchat/internal/storage"
)

const sampleCSV = `date,category,amount
2024-01-05,groceries,120.50
2024-01-12,rent,1800
`

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	meta, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening meta store: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	data, err := storage.OpenData(":memory:")
	if err != nil {
		t.Fatalf("opening data store: %v", err)
	}
	t.Cleanup(func() { data.Close() })

	return NewService(meta, data), meta
}

func TestUploadCSV(t *testing.T) {
	svc, meta := newTestService(t)

	res, err := svc.Upload(context.Background(), "alice", "s1", "expenses.csv", []byte(sampleCSV))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Kind != KindTabular {
		t.Errorf("Kind = %q, want tabular", res.Kind)
	}
	if res.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", res.RowCount)
	}
	if !strings.HasPrefix(res.TableName, "user_alice_file_") {
		t.Errorf("TableName = %q", res.TableName)
	}

	// The materialized table answers SQL.
	var total float64
	err = svc.data.QueryRow(`SELECT SUM(amount) FROM ` + res.TableName).Scan(&total)
	if err != nil {
		t.Fatalf("querying materialized table: %v", err)
	}
	if total != 1920.50 {
		t.Errorf("SUM(amount) = %v, want 1920.50", total)
	}

	// The catalog entry carries a usable descriptor.
	docs, err := meta.ListDocuments("alice", "s1")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].TableName != res.TableName {
		t.Fatalf("catalog = %+v", docs)
	}
	tables, err := catalog.NewAccessor(meta).FetchTables(context.Background(), "alice", "s1")
	if err != nil {
		t.Fatalf("FetchTables: %v", err)
	}
	if len(tables) != 1 || len(tables[0].Columns) != 3 {
		t.Fatalf("descriptor = %+v", tables)
	}
}

func TestUploadDuplicateRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, "alice", "s1", "expenses.csv", []byte(sampleCSV)); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	_, err := svc.Upload(ctx, "alice", "s1", "expenses.csv", []byte(sampleCSV))
	if !errors.Is(err, storage.ErrDuplicateFile) {
		t.Errorf("got %v, want ErrDuplicateFile", err)
	}

	// Same filename in another session is fine.
	if _, err := svc.Upload(ctx, "alice", "s2", "expenses.csv", []byte(sampleCSV)); err != nil {
		t.Errorf("cross-session upload: %v", err)
	}
}

func TestUploadTextDocumentQueuesEmbedding(t *testing.T) {
	svc, meta := newTestService(t)

	res, err := svc.Upload(context.Background(), "alice", "s1", "notes.txt",
		[]byte("Revenue grew 12% year over year. Costs were flat."))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Kind != KindDocument || !res.Queued {
		t.Errorf("result = %+v", res)
	}

	text, err := meta.GetDocumentText(res.FileID)
	if err != nil {
		t.Fatalf("GetDocumentText: %v", err)
	}
	if !strings.Contains(text.Content, "Revenue grew 12%") {
		t.Errorf("stored text = %q", text.Content)
	}

	job, err := meta.ClaimNextJob([]string{jobTypeEmbed})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no embed job enqueued")
	}
	if !strings.Contains(job.PayloadJSON, res.FileID) {
		t.Errorf("payload = %q", job.PayloadJSON)
	}
}

func TestUploadRejectsLegacyXLS(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Upload(context.Background(), "alice", "s1", "old.xls", []byte("x"))
	if err == nil || !strings.Contains(err.Error(), ".xls") {
		t.Errorf("got %v, want legacy .xls rejection", err)
	}
}

func TestUploadRejectsUnknownType(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Upload(context.Background(), "alice", "s1", "model.pkl", []byte("x")); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestUploadCorruptCSVDoesNotCatalog(t *testing.T) {
	svc, meta := newTestService(t)

	_, err := svc.Upload(context.Background(), "alice", "s1", "broken.csv", []byte(`a,"b`))
	if err == nil {
		t.Fatal("expected parse error")
	}

	docs, err := meta.ListDocuments("alice", "s1")
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("catalog has %d entries after failed upload", len(docs))
	}
}
