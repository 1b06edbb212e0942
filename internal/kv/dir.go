package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	dirExt = ".json"
	// writes of our own show up as fsnotify events; ignore them for this long.
	selfWriteWindow = 2 * time.Second
)

// Dir stores each key as <root>/<key>.json, the closest analogue to one
// browser profile's local storage. Other processes may write the same files;
// Watch reports those writes but nothing merges them.
type Dir struct {
	root   string
	logger *slog.Logger

	mu       sync.Mutex
	lastSelf map[string]time.Time
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func NewDir(root string, logger *slog.Logger) (*Dir, error) {
	if root == "" {
		root = "./data"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{root: root, logger: logger, lastSelf: make(map[string]time.Time)}, nil
}

func (d *Dir) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(d.root, key+dirExt), nil
}

func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	return b, err
}

// Set writes to a temp file and renames it so readers never see a torn value.
func (d *Dir) Set(_ context.Context, key string, value []byte) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(d.root, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", key, err)
	}
	d.markSelf(key)
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	d.markSelf(key)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Dir) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, dirExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, dirExt))
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Dir) markSelf(key string) {
	d.mu.Lock()
	d.lastSelf[key] = time.Now()
	d.mu.Unlock()
}

func (d *Dir) isSelf(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.lastSelf[key]
	return ok && time.Since(t) < selfWriteWindow
}

// Watch calls fn with the key of every value changed by another process until
// ctx is done or Close is called.
func (d *Dir) Watch(ctx context.Context, fn func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(d.root); err != nil {
		_ = w.Close()
		return err
	}
	d.mu.Lock()
	if d.watcher != nil {
		d.mu.Unlock()
		_ = w.Close()
		return errors.New("already watching")
	}
	d.watcher = w
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, dirExt) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				key := strings.TrimSuffix(name, dirExt)
				if d.isSelf(key) {
					continue
				}
				d.logger.WarnContext(ctx, "store key changed by another writer", "key", key, "op", event.Op.String())
				if fn != nil {
					fn(key)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				d.logger.WarnContext(ctx, "error watching data dir", "err", err)
			}
		}
	}()
	return nil
}

func (d *Dir) Close() error {
	d.mu.Lock()
	w, done := d.watcher, d.done
	d.watcher, d.done = nil, nil
	d.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}
