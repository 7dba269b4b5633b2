package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ingest/internal/batch"
	"ingest/internal/importer"
	"ingest/internal/schema"
)

var writerCols = []schema.Column{
	{Name: "Car ID", Type: schema.TypeInt},
	{Name: "tags", Type: schema.TypeMultiple},
	{Name: "seen", Type: schema.TypeDatetime},
}

func TestWriter_ConvertsRowsInColumnOrder(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	w := NewWriter(repo, WriterOptions{Table: "cars", Job: "test"})
	seen := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	res := importer.Results{
		Success: true,
		Columns: writerCols,
		Data: []importer.Row{
			{"Car ID": int64(1), "tags": []string{"a", "b"}, "seen": seen},
			{"Car ID": nil, "tags": nil, "seen": nil},
		},
	}
	if _, err := w.Write(context.Background(), res, importer.Meta{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := strings.Join(repo.columns, ","); got != "car_id,tags,seen" {
		t.Fatalf("columns = %s", got)
	}
	if len(repo.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(repo.rows))
	}
	r0 := repo.rows[0]
	if r0[0] != int64(1) || r0[1] != `["a","b"]` || r0[2] != seen {
		t.Fatalf("row 0 = %#v", r0)
	}
	for i, v := range repo.rows[1] {
		if v != nil {
			t.Fatalf("row 1 col %d = %#v, want nil", i, v)
		}
	}
	if w.Total() != 2 || len(repo.execs) != 0 {
		t.Fatalf("total = %d, execs = %v", w.Total(), repo.execs)
	}
}

func TestWriter_AutoCreateRunsOnce(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	RegisterDDL("fake-ddl", func(ctx context.Context, repo Repository, table string, cols []schema.Column) ([]string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if err := repo.Exec(ctx, "CREATE TABLE "+table); err != nil {
			return nil, err
		}
		return []string{"a", "b", "c"}, nil
	})

	repo := &fakeRepo{}
	w := NewWriter(repo, WriterOptions{Kind: "fake-ddl", Table: "t", AutoCreate: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := importer.Results{Success: true, Columns: writerCols, Data: []importer.Row{{"Car ID": int64(1)}}}
			if _, err := w.Write(context.Background(), res, importer.Meta{}); err != nil {
				t.Errorf("Write: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls != 1 || len(repo.execs) != 1 {
		t.Fatalf("bootstrap calls = %d, execs = %v; want once", calls, repo.execs)
	}
	if strings.Join(w.Columns(), ",") != "a,b,c" || w.Total() != 8 {
		t.Fatalf("columns = %v, total = %d", w.Columns(), w.Total())
	}
}

func TestWriter_CopyErrorIsReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	w := NewWriter(&fakeRepo{copyErr: boom}, WriterOptions{Table: "t"})
	res := importer.Results{Success: true, Columns: writerCols, Data: []importer.Row{{"Car ID": int64(1)}}}
	if _, err := w.Write(context.Background(), res, importer.Meta{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestWriter_NoColumns(t *testing.T) {
	t.Parallel()

	w := NewWriter(&fakeRepo{}, WriterOptions{Table: "t"})
	if _, err := w.Write(context.Background(), importer.Results{Success: true}, importer.Meta{}); err == nil {
		t.Fatalf("expected error for a batch without columns")
	}
}

func TestWriter_AsBatchHandler(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("id;name\n")
	for i := 0; i < 250; i++ {
		sb.WriteString("1;x\n")
	}
	repo := &fakeRepo{}
	w := NewWriter(repo, WriterOptions{Table: "t"})

	warnings, err := importer.ParseBatched(context.Background(), strings.NewReader(sb.String()), int64(sb.Len()),
		batch.Options{RowCount: 100, ConcurrentMax: 2}, w.Write, importer.Options{})
	if err != nil {
		t.Fatalf("ParseBatched: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
	if w.Total() != 250 || repo.copies != 3 {
		t.Fatalf("total = %d copies = %d, want 250 in 3 batches", w.Total(), repo.copies)
	}
	if strings.Join(repo.columns, ",") != "id,name" {
		t.Fatalf("columns = %v", repo.columns)
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/data/RSV Vozidla.csv.gz":     "rsv_vozidla",
		`C:\exports\Owners.NDJSON.zst`: "owners",
		"2024-data.csv":                "c_2024_data",
		"upload":                       "upload",
		"archive.tar":                  "archive_tar",
		".csv":                         "csv",
	}
	for in, want := range cases {
		if got := TableName(in); got != want {
			t.Fatalf("TableName(%q) = %q, want %q", in, got, want)
		}
	}
}
