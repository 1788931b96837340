package embercask

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iamNilotpal/embercask/pkg/errors"
	"github.com/iamNilotpal/embercask/pkg/options"
)

func TestOpenPutGetDeleteClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, filepath.Join(dir, "test.db"), options.WithCompressValue(false))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := db.Put(ctx, []byte("foo"), []byte("bar")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := db.Get(ctx, []byte("foo"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "bar" {
		t.Errorf("Get = %q, want %q", got, "bar")
	}

	if err := db.Delete(ctx, []byte("foo")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get(ctx, []byte("foo")); !errors.IsNotFound(err) {
		t.Errorf("Get after Delete err = %v, want not-found", err)
	}

	if err := db.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPut_rejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close(ctx)

	if err := db.Put(ctx, nil, []byte("v")); err == nil {
		t.Error("Put with empty key succeeded, want an error")
	}
	if _, err := db.Get(ctx, nil); err == nil {
		t.Error("Get with empty key succeeded, want an error")
	}
	if err := db.Delete(ctx, nil); err == nil {
		t.Error("Delete with empty key succeeded, want an error")
	}
}

func TestIterator_surfacesAllLiveKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close(ctx)

	want := map[string]string{"a": "1", "b": "2", "c": "3"}
	for k, v := range want {
		if err := db.Put(ctx, []byte(k), []byte(v)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	if err := db.Delete(ctx, []byte("b")); err != nil {
		t.Fatalf("Delete(b): %v", err)
	}
	delete(want, "b")

	it := db.Iterator(ctx)
	got := map[string]string{}
	for {
		view, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got[string(view.Key)] = string(view.Value)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d keys, want %d (got=%v)", len(got), len(want), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("key %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestFlushAndCompact_areNoOpSafe(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := Open(ctx, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close(ctx)

	if err := db.Put(ctx, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db.Flush(ctx); err != nil {
		t.Errorf("Flush: %v", err)
	}
	if err := db.Compact(ctx); err != nil {
		t.Errorf("Compact on an idle database: %v", err)
	}
}
