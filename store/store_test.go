package store

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("badger.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}
}

func TestPutBatchAndGetPrimary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := []byte("patienthash0001")
	if err := s.PutBatch(ctx, []Row{PrimaryRow(key, []byte(`{"resourceType":"Patient"}`))}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	got, err := s.GetPrimary(ctx, key)
	if err != nil {
		t.Fatalf("GetPrimary: %v", err)
	}
	if string(got) != `{"resourceType":"Patient"}` {
		t.Fatalf("unexpected value: %s", got)
	}
}

func TestGetPrimaryMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetPrimary(context.Background(), []byte("nope")); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestPrefixIteratorIndexOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []Row{
		IndexRow([]byte("paramAAA"), []byte("1")),
		IndexRow([]byte("paramAAB"), []byte("2")),
		IndexRow([]byte("paramZZZ"), []byte("3")),
	}
	if err := s.PutBatch(ctx, rows); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}

	var seen []string
	err := s.PrefixIteratorIndex(ctx, []byte("param"), func(e Entry) (bool, error) {
		seen = append(seen, string(e.Value))
		return true, nil
	})
	if err != nil {
		t.Fatalf("PrefixIteratorIndex: %v", err)
	}
	if len(seen) != 3 || seen[0] != "1" || seen[1] != "2" || seen[2] != "3" {
		t.Fatalf("unexpected scan order: %v", seen)
	}
}

func TestPrefixIteratorIndexStopsEarly(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rows := []Row{
		IndexRow([]byte("x1"), []byte("a")),
		IndexRow([]byte("x2"), []byte("b")),
	}
	if err := s.PutBatch(ctx, rows); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	count := 0
	err := s.PrefixIteratorIndex(ctx, []byte("x"), func(e Entry) (bool, error) {
		count++
		return false, nil
	})
	if err != nil {
		t.Fatalf("PrefixIteratorIndex: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected early stop after 1 row, got %d", count)
	}
}
