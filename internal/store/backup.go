package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"clinic-admin-api/internal/blob"
	"clinic-admin-api/internal/model"
)

const BackupVersion = "1.0.0"

var ErrInvalidBackup = errors.New("invalid backup")

// BackupTables are the collections a backup carries.
var BackupTables = []string{
	model.Users, model.Doctors, model.Patients, model.Appointments,
	model.Prescriptions, model.Inventory, model.Bills, model.Settings,
}

// Backup is a snapshot document. On the wire each table is a top-level key
// next to timestamp and version.
type Backup struct {
	Tables    map[string][]model.Record
	Timestamp string
	Version   string
}

func (b Backup) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(b.Tables)+2)
	for k, v := range b.Tables {
		if v == nil {
			v = []model.Record{}
		}
		doc[k] = v
	}
	doc["timestamp"] = b.Timestamp
	doc["version"] = b.Version
	return json.Marshal(doc)
}

func (b *Backup) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	out := Backup{Tables: map[string][]model.Record{}}
	for k, raw := range doc {
		switch k {
		case "timestamp":
			if err := json.Unmarshal(raw, &out.Timestamp); err != nil {
				return fmt.Errorf("timestamp: %w", err)
			}
		case "version":
			if err := json.Unmarshal(raw, &out.Version); err != nil {
				return fmt.Errorf("version: %w", err)
			}
		default:
			recs, err := decodeCollection(k, raw)
			if err != nil {
				return err
			}
			out.Tables[k] = recs
		}
	}
	*b = out
	return nil
}

func (s *Store) Backup(ctx context.Context) (Backup, error) {
	b := Backup{
		Tables:    make(map[string][]model.Record, len(BackupTables)),
		Timestamp: model.Stamp(s.now()),
		Version:   BackupVersion,
	}
	for _, t := range BackupTables {
		recs, err := s.List(ctx, t, nil)
		if err != nil {
			return Backup{}, err
		}
		b.Tables[t] = recs
	}
	return b, nil
}

// Restore overwrites every known collection present in b. Unknown tables are
// skipped.
func (s *Store) Restore(ctx context.Context, b Backup) error {
	if b.Timestamp == "" || b.Version == "" {
		return fmt.Errorf("%w: missing timestamp or version", ErrInvalidBackup)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for t, recs := range b.Tables {
		if !slices.Contains(model.Collections, t) {
			s.logger.WarnContext(ctx, "restore: skipping unknown table", "table", t)
			continue
		}
		if err := s.save(ctx, t, recs); err != nil {
			return err
		}
		n++
	}
	s.logger.InfoContext(ctx, "backup restored", "tables", n, "taken", b.Timestamp)
	return nil
}

// BackupKey names the backup document for the day of ts.
func BackupKey(ts string) string {
	day := ts
	if t, ok := model.ParseTime(ts); ok {
		day = t.UTC().Format("2006-01-02")
	}
	return "clinic_backup_" + day + ".json"
}

// WriteBackup snapshots the store into dst and returns the key written.
func (s *Store) WriteBackup(ctx context.Context, dst blob.Store) (string, error) {
	b, err := s.Backup(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", err
	}
	key := BackupKey(b.Timestamp)
	if err := dst.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "backup written", "key", key, "bytes", len(data))
	return key, nil
}

// ReadBackup loads a backup document previously written under key.
func ReadBackup(ctx context.Context, src blob.Store, key string) (Backup, error) {
	rc, err := src.Get(ctx, key)
	if err != nil {
		return Backup{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Backup{}, err
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return Backup{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	return b, nil
}
