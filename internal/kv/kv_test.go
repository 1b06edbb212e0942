package kv_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"clinic-admin-api/internal/kv"
)

func backends(t *testing.T) map[string]kv.Backend {
	t.Helper()
	ctx := context.Background()
	out := map[string]kv.Backend{"memory": kv.NewMemory()}

	dir, err := kv.NewDir(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("dir: %v", err)
	}
	out["dir"] = dir

	sq, err := kv.NewSQLite(ctx, filepath.Join(t.TempDir(), "clinic.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	out["sqlite"] = sq

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := kv.NewPostgres(ctx, dsn)
		if err != nil {
			t.Fatalf("postgres: %v", err)
		}
		out["postgres"] = pg
	}
	for _, b := range out {
		b := b
		t.Cleanup(func() { _ = b.Close() })
	}
	return out
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := "clinic_kvtest_" + name
			_ = b.Delete(ctx, key)

			if _, err := b.Get(ctx, key); !errors.Is(err, kv.ErrNotExist) {
				t.Fatalf("get missing: want ErrNotExist, got %v", err)
			}
			if err := b.Set(ctx, key, []byte(`[{"id":1}]`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := b.Set(ctx, key, []byte(`[{"id":2}]`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := b.Get(ctx, key)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if name == "postgres" {
				// jsonb normalizes whitespace
				if string(got) != `[{"id": 2}]` && string(got) != `[{"id":2}]` {
					t.Fatalf("get = %s", got)
				}
			} else if string(got) != `[{"id":2}]` {
				t.Fatalf("get = %s", got)
			}

			keys, err := b.Keys(ctx)
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			found := false
			for _, k := range keys {
				if k == key {
					found = true
				}
			}
			if !found {
				t.Fatalf("keys %v missing %s", keys, key)
			}

			if err := b.Delete(ctx, key); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := b.Get(ctx, key); !errors.Is(err, kv.ErrNotExist) {
				t.Fatalf("get after delete: %v", err)
			}
			if err := b.Delete(ctx, key); err != nil {
				t.Fatalf("delete twice: %v", err)
			}
		})
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := kv.NewMemory()
	v := []byte("abc")
	_ = m.Set(ctx, "k", v)
	v[0] = 'x'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller slice: %s", got)
	}
	got[1] = 'y'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased storage: %s", again)
	}
}

func TestDirRejectsTraversal(t *testing.T) {
	d, err := kv.NewDir(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"", "../x", "a/b", `a\b`} {
		if err := d.Set(context.Background(), key, []byte("1")); err == nil {
			t.Errorf("set %q: want error", key)
		}
	}
}

func TestDirKeysSkipTempFiles(t *testing.T) {
	root := t.TempDir()
	d, err := kv.NewDir(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = d.Set(ctx, "clinic_users", []byte("[]"))
	_ = os.WriteFile(filepath.Join(root, ".clinic_users.123.tmp"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)

	keys, err := d.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"clinic_users"}, keys); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
}

func TestDirWatchReportsForeignWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	d, err := kv.NewDir(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	if err := d.Watch(ctx, func(key string) { changed <- key }); err != nil {
		t.Fatalf("watch: %v", err)
	}

	// our own write is not reported
	if err := d.Set(ctx, "clinic_doctors", []byte("[]")); err != nil {
		t.Fatal(err)
	}
	// another process writing the same layout is
	if err := os.WriteFile(filepath.Join(root, "clinic_patients.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case key := <-changed:
		if key != "clinic_patients" {
			t.Fatalf("changed key = %q, want clinic_patients", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
