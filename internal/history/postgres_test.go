package history

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

func TestPostgresStore_InvalidIDs(t *testing.T) {
	s := NewPostgresStore(nil)

	if _, err := s.Get(context.Background(), "not-a-uuid"); !errors.Is(err, batch.ErrRunNotFound) {
		t.Errorf("Get() error = %v, want ErrRunNotFound", err)
	}
	if err := s.Record(context.Background(), batch.RunRecord{ID: "not-a-uuid"}); err == nil {
		t.Error("Record() expected error for invalid id")
	}
}

// TestPostgresStore_RoundTrip needs a disposable database:
//
//	ROSTERBATCH_TEST_DATABASE_URL=postgres://localhost/rosterbatch_test go test ./internal/history
//
// All writes happen in a transaction that is rolled back.
func TestPostgresStore_RoundTrip(t *testing.T) {
	url := os.Getenv("ROSTERBATCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("ROSTERBATCH_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback(ctx)

	s := NewPostgresStore(tx)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	older := batch.RunRecord{
		ID:         uuid.NewString(),
		FileName:   "feb.xlsx",
		OutputName: "feb",
		Strategy:   batch.StrategyFixed,
		Records:    3,
		Accepted:   3,
		Files:      []batch.FileCount{{Name: "output_1.xlsx", Count: 3}},
		Duration:   1500 * time.Millisecond,
		CreatedAt:  base,
	}
	newer := batch.RunRecord{
		ID:          uuid.NewString(),
		FileName:    "mar.xlsx",
		OutputName:  "mar",
		Strategy:    batch.StrategyGroup,
		Records:     9,
		Accepted:    8,
		Duplicates:  1,
		Files:       []batch.FileCount{{Name: "X.xlsx", Count: 5}, {Name: "Y.xlsx", Count: 3}},
		ArchiveKey:  "runs/x/mar.zip",
		ArchiveSize: 2048,
		Duration:    2 * time.Second,
		CreatedAt:   base.Add(time.Hour),
	}
	for _, run := range []batch.RunRecord{older, newer} {
		if err := s.Record(ctx, run); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := s.Get(ctx, newer.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.CreatedAt = got.CreatedAt.UTC()
	if diff := cmp.Diff(newer, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	runs, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) < 2 || runs[0].ID != newer.ID {
		t.Errorf("List() first = %v, want newest run first", ids(runs))
	}

	if _, err := s.Get(ctx, uuid.NewString()); !errors.Is(err, batch.ErrRunNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrRunNotFound", err)
	}
}
