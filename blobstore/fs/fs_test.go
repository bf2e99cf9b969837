package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cratery/registry/blobstore"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	const key = "crates/se/serde/serde-1.0.0.crate"
	const body = "crate tarball bytes"

	if err := store.Put(ctx, key, strings.NewReader(body), int64(len(body))); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v, want true, nil", ok, err)
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != body {
		t.Fatalf("got %q, want %q", got, body)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, key); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestGetMissing(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.Get(context.Background(), "crates/no/such/no-such-1.0.0.crate")
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteMissingIsNotAnError(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Delete(context.Background(), "crates/no/such/no-such-1.0.0.crate"); err != nil {
		t.Fatalf("Delete of missing key: %v", err)
	}
}
