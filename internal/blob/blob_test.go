package blob_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"clinic-admin-api/internal/blob"
)

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "clinic_backup_2026-01-02.json", strings.NewReader(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "other/x.json", strings.NewReader(`{}`), ""); err != nil {
		t.Fatalf("put nested: %v", err)
	}

	rc, err := s.Get(ctx, "clinic_backup_2026-01-02.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `{"a":1}` {
		t.Fatalf("body = %s", b)
	}

	keys, err := s.List(ctx, "clinic_backup_")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"clinic_backup_2026-01-02.json"}, keys); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}

	if _, err := s.Get(ctx, "missing.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	if err := s.Put(ctx, "../escape", strings.NewReader("x"), ""); err == nil {
		t.Fatal("traversal key accepted")
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := blob.NewS3(context.Background(), blob.S3Config{}); err == nil {
		t.Fatal("want error without bucket")
	}
}
