package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"clinic-admin-api/internal/blob"
	"clinic-admin-api/internal/events"
	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/metrics"
	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
)

// tick is a clock that moves one second forward on every read.
type tick struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tick) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*store.Store, *kv.Memory, *events.Recorder) {
	t.Helper()
	mem := kv.NewMemory()
	rec := &events.Recorder{}
	clk := &tick{now: epoch}
	return store.New(mem, store.WithPublisher(rec), store.WithClock(clk.Now)), mem, rec
}

func mustAdd(t *testing.T, s *store.Store, c string, fields map[string]any) model.Record {
	t.Helper()
	r, err := s.Add(context.Background(), c, fields)
	if err != nil {
		t.Fatalf("add %s: %v", c, err)
	}
	return r
}

func ids(recs []model.Record) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID())
	}
	return out
}

func TestAddAssignsNextID(t *testing.T) {
	ctx := context.Background()
	for _, c := range model.Collections {
		t.Run(c, func(t *testing.T) {
			s, _, _ := setup(t)
			for want := int64(1); want <= 3; want++ {
				r := mustAdd(t, s, c, map[string]any{"name": "x"})
				if r.ID() != want {
					t.Fatalf("id = %d, want %d", r.ID(), want)
				}
			}
			recs, err := s.List(ctx, c, nil)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if c == model.Notifications {
				return
			}
			if diff := cmp.Diff([]int64{1, 2, 3}, ids(recs)); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddStampsTimestampsAndIgnoresCallerID(t *testing.T) {
	s, _, _ := setup(t)
	r := mustAdd(t, s, model.Patients, map[string]any{"id": 99, "name": "Ali"})
	if r.ID() != 1 {
		t.Fatalf("id = %d, want 1", r.ID())
	}
	if r.String("created_at") == "" || r.String("created_at") != r.String("updated_at") {
		t.Fatalf("timestamps: created %q updated %q", r["created_at"], r["updated_at"])
	}
}

func TestIDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	a := mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. A", "specialty": "cardiology"})
	b := mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. B"})
	if a.ID() != 1 || b.ID() != 2 {
		t.Fatalf("ids = %d,%d, want 1,2", a.ID(), b.ID())
	}
	if err := s.Delete(ctx, model.Doctors, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	c := mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. C"})
	if c.ID() != 3 {
		t.Fatalf("id = %d, want 3", c.ID())
	}
}

func TestUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	orig := mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. A", "specialty": "cardiology", "status": "active"})

	if _, err := s.Update(ctx, model.Doctors, 1, map[string]any{"status": "vacation", "id": 7}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Get(ctx, model.Doctors, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.String("updated_at") == orig.String("updated_at") {
		t.Fatal("updated_at did not change")
	}
	want := orig.Clone()
	want["status"] = "vacation"
	if diff := cmp.Diff(map[string]any(want), map[string]any(got), ignoreKey("updated_at")); diff != "" {
		t.Fatalf("record (-want +got):\n%s", diff)
	}
}

func ignoreKey(k string) cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		mi, ok := p.Last().(cmp.MapIndex)
		return ok && mi.Key().String() == k
	}, cmp.Ignore())
}

func TestUpdateMissing(t *testing.T) {
	s, _, _ := setup(t)
	_, err := s.Update(context.Background(), model.Doctors, 5, map[string]any{"name": "x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteMissingLeavesCollection(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(t)
	mustAdd(t, s, model.Bills, map[string]any{"total": 10})
	mustAdd(t, s, model.Bills, map[string]any{"total": 20})
	before, _ := mem.Get(ctx, model.Key(model.Bills))

	if err := s.Delete(ctx, model.Bills, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	after, _ := mem.Get(ctx, model.Key(model.Bills))
	if string(before) != string(after) {
		t.Fatalf("collection changed:\n%s\n%s", before, after)
	}

	if err := s.Delete(ctx, model.Bills, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, _ := s.List(ctx, model.Bills, nil)
	if diff := cmp.Diff([]int64{2}, ids(recs)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

func TestUnknownCollection(t *testing.T) {
	s, _, _ := setup(t)
	_, err := s.Add(context.Background(), "clinic_secrets", map[string]any{})
	if !errors.Is(err, store.ErrUnknownCollection) {
		t.Fatalf("want ErrUnknownCollection, got %v", err)
	}
}

func TestCorruptCollectionSurfaces(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(t)
	_ = mem.Set(ctx, model.Key(model.Patients), []byte("{not json"))

	if _, err := s.List(ctx, model.Patients, nil); !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("list: want ErrCorrupt, got %v", err)
	}
	if _, err := s.Add(ctx, model.Patients, map[string]any{"name": "x"}); !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("add: want ErrCorrupt, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	mustAdd(t, s, model.Appointments, map[string]any{"doctor_id": 1, "status": "scheduled"})
	mustAdd(t, s, model.Appointments, map[string]any{"doctor_id": 2, "status": "completed"})
	mustAdd(t, s, model.Appointments, map[string]any{"doctor_id": 1, "status": "completed"})

	tests := []struct {
		name    string
		filters store.Filters
		want    []int64
	}{
		{"none", nil, []int64{1, 2, 3}},
		{"scalar", store.Filters{"status": "completed"}, []int64{2, 3}},
		{"numeric across types", store.Filters{"doctor_id": int64(1)}, []int64{1, 3}},
		{"empty string passes", store.Filters{"status": "", "doctor_id": 2}, []int64{2}},
		{"nil passes", store.Filters{"status": nil}, []int64{1, 2, 3}},
		{"predicate", store.Filters{"doctor_id": store.Predicate(func(v any) bool {
			f, _ := model.Float(v)
			return f > 1
		})}, []int64{2}},
		{"no match", store.Filters{"status": "cancelled"}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, model.Appointments, tt.filters)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	mustAdd(t, s, model.Patients, map[string]any{"name": "Ali Hassan", "city": "Jeddah"})
	mustAdd(t, s, model.Patients, map[string]any{"name": "Sara", "city": "Khalidiya"})
	mustAdd(t, s, model.Patients, map[string]any{"name": "ALICE", "phone": "0500000000"})

	tests := []struct {
		name   string
		query  string
		fields []string
		want   []int64
	}{
		{"named field", "ali", []string{"name"}, []int64{1, 3}},
		{"all strings", "ali", nil, []int64{1, 2, 3}},
		{"blank", "  ", []string{"name"}, []int64{1, 2, 3}},
		{"phone field", "0500", []string{"phone"}, []int64{3}},
		{"none", "zzz", nil, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, model.Patients, tt.query, tt.fields...)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Fatalf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)

	for _, op := range []store.AggregateOp{store.OpCount, store.OpSum, store.OpAvg, store.OpMax, store.OpMin} {
		got, err := s.Aggregate(ctx, model.Bills, "total", op)
		if err != nil || got != 0 {
			t.Fatalf("empty %s = %v, %v; want 0", op, got, err)
		}
	}

	mustAdd(t, s, model.Bills, map[string]any{"total": 100})
	mustAdd(t, s, model.Bills, map[string]any{"total": "50"})
	mustAdd(t, s, model.Bills, map[string]any{"note": "no total"})

	tests := []struct {
		op   store.AggregateOp
		want float64
	}{
		{store.OpCount, 3},
		{store.OpSum, 150},
		{store.OpAvg, 50},
		{store.OpMax, 100},
		{store.OpMin, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			got, err := s.Aggregate(ctx, model.Bills, "total", tt.op)
			if err != nil {
				t.Fatalf("aggregate: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := s.Aggregate(ctx, model.Bills, "total", "median"); !errors.Is(err, store.ErrUnknownOp) {
		t.Fatalf("want ErrUnknownOp, got %v", err)
	}
}

func TestMutationsEmitNotifications(t *testing.T) {
	ctx := context.Background()
	s, _, rec := setup(t)
	mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. A"})
	if _, err := s.Update(ctx, model.Doctors, 1, map[string]any{"name": "Dr. B"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, model.Doctors, 1); err != nil {
		t.Fatal(err)
	}

	ns, err := s.Notifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for _, n := range ns {
		types = append(types, n.String("type"))
		if n.Bool("read") || n.String("timestamp") == "" {
			t.Fatalf("notification %v", n)
		}
	}
	// newest first
	if diff := cmp.Diff([]string{"warning", "info", "info"}, types); diff != "" {
		t.Fatalf("types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{3, 2, 1}, ids(ns)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if got := len(rec.Events()); got != 3 {
		t.Fatalf("published %d events, want 3", got)
	}

	n, err := s.UnreadCount(ctx)
	if err != nil || n != 3 {
		t.Fatalf("unread = %d, %v", n, err)
	}
	if changed, _ := s.MarkNotificationsRead(ctx, 2); changed != 1 {
		t.Fatalf("marked %d, want 1", changed)
	}
	if changed, _ := s.MarkNotificationsRead(ctx); changed != 2 {
		t.Fatalf("marked %d, want 2", changed)
	}
	if n, _ := s.UnreadCount(ctx); n != 0 {
		t.Fatalf("unread = %d, want 0", n)
	}
}

func TestActivities(t *testing.T) {
	ctx := context.Background()
	s, _, rec := setup(t)
	for i, a := range []string{"login", "add_doctor", "logout"} {
		if _, err := s.LogActivity(ctx, int64(i+1), a, a); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := s.RecentActivities(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{3, 2}, ids(recent)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	if ns, _ := s.Notifications(ctx); len(ns) != 0 {
		t.Fatalf("activities produced %d notifications", len(ns))
	}
	for _, e := range rec.Events() {
		if e.Type != events.TypeActivity {
			t.Fatalf("event type %q", e.Type)
		}
	}
}

func TestSettingsSingleton(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(t)

	got, err := s.Settings(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty settings = %v, %v", got, err)
	}
	if _, err := s.UpdateSettings(ctx, map[string]any{"clinic_name": "A"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.UpdateSettings(ctx, map[string]any{"currency": "SAR"}); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Settings(ctx)
	if got.String("clinic_name") != "A" || got.String("currency") != "SAR" {
		t.Fatalf("settings = %v", got)
	}
	raw, _ := mem.Get(ctx, model.Key(model.Settings))
	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 1 {
		t.Fatalf("stored settings %s", raw)
	}

	// a bare object is read as a one-element array
	_ = mem.Set(ctx, model.Key(model.Settings), []byte(`{"clinic_name":"B"}`))
	got, err = s.Settings(ctx)
	if err != nil || got.String("clinic_name") != "B" {
		t.Fatalf("object settings = %v, %v", got, err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	seed := store.Seed{
		Users:    []model.Record{{"username": "admin", "role": "admin"}},
		Settings: store.DefaultSettings(),
	}
	did, err := s.Init(ctx, seed)
	if err != nil || !did {
		t.Fatalf("first init = %v, %v", did, err)
	}
	mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. A"})
	did, err = s.Init(ctx, seed)
	if err != nil || did {
		t.Fatalf("second init = %v, %v", did, err)
	}
	docs, _ := s.List(ctx, model.Doctors, nil)
	if len(docs) != 1 {
		t.Fatalf("doctors wiped: %d", len(docs))
	}
	u, err := s.UserByUsername(ctx, "admin")
	if err != nil || u.ID() != 1 {
		t.Fatalf("admin = %v, %v", u, err)
	}
	if _, err := s.UserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(t)
	old := model.Stamp(epoch.AddDate(0, 0, -40))
	recent := model.Stamp(epoch.AddDate(0, 0, -5))
	raw, _ := json.Marshal([]map[string]any{
		{"id": 1, "created_at": old},
		{"id": 2, "created_at": recent},
		{"id": 3, "date": "2020-01-01"},
		{"id": 4},
	})
	_ = mem.Set(ctx, model.Key(model.Appointments), raw)
	raw, _ = json.Marshal([]map[string]any{{"id": 1, "timestamp": old}})
	_ = mem.Set(ctx, model.Key(model.Notifications), raw)

	n, err := s.Cleanup(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("removed %d, want 3", n)
	}
	left, _ := s.List(ctx, model.Appointments, nil)
	if diff := cmp.Diff([]int64{2, 4}, ids(left)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	mustAdd(t, s, model.Doctors, map[string]any{"name": "Dr. A"})
	mustAdd(t, s, model.Patients, map[string]any{"name": "Ali"})

	fs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key, err := s.WriteBackup(ctx, fs)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(key, "clinic_backup_2025-03-10") {
		t.Fatalf("key = %q", key)
	}

	b, err := store.ReadBackup(ctx, fs, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if b.Version != store.BackupVersion || len(b.Tables[model.Doctors]) != 1 {
		t.Fatalf("backup = %+v", b)
	}
	if _, ok := b.Tables[model.Notifications]; ok {
		t.Fatal("notifications should not be backed up")
	}

	other, _, _ := setup(t)
	b.Tables["ghosts"] = []model.Record{{"id": float64(1)}}
	if err := other.Restore(ctx, b); err != nil {
		t.Fatalf("restore: %v", err)
	}
	docs, _ := other.List(ctx, model.Doctors, nil)
	if len(docs) != 1 || docs[0].String("name") != "Dr. A" {
		t.Fatalf("restored doctors = %v", docs)
	}

	b.Version = ""
	if err := other.Restore(ctx, b); !errors.Is(err, store.ErrInvalidBackup) {
		t.Fatalf("want ErrInvalidBackup, got %v", err)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	mustAdd(t, s, model.Inventory, map[string]any{"name": `Para "500"`, "quantity": 5, "tags": []string{"a"}})
	mustAdd(t, s, model.Inventory, map[string]any{"name": "Gauze"})

	out, err := s.Export(ctx, model.Inventory, store.FormatCSV)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if lines[0] != "id,created_at,name,quantity,tags,updated_at" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], `"Para ""500"""`) || !strings.Contains(lines[1], `"[""a""]"`) {
		t.Fatalf("row = %q", lines[1])
	}

	js, err := s.Export(ctx, model.Inventory, store.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	var recs []map[string]any
	if err := json.Unmarshal(js, &recs); err != nil || len(recs) != 2 {
		t.Fatalf("json export: %v", err)
	}

	if _, err := s.Export(ctx, model.Inventory, "xml"); !errors.Is(err, store.ErrUnsupportedFormat) {
		t.Fatalf("want ErrUnsupportedFormat, got %v", err)
	}
}

func TestPasswordResets(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	exp := epoch.Add(time.Hour)
	r, err := s.CreatePasswordReset(ctx, 1, "h1", exp)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.PasswordResetByHash(ctx, "h1")
	if err != nil || got.ID() != r.ID() {
		t.Fatalf("by hash = %v, %v", got, err)
	}
	if err := s.MarkPasswordResetUsed(ctx, r.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PasswordResetByHash(ctx, "h1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("used token: want ErrNotFound, got %v", err)
	}

	_, _ = s.CreatePasswordReset(ctx, 2, "h2", exp)
	if err := s.RevokePasswordResets(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := s.PasswordResetByHash(ctx, "h2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoked token: want ErrNotFound, got %v", err)
	}
}

func TestUpcomingAppointments(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2025-03-12", "time": "10:00", "status": "scheduled"})
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2025-03-11", "time": "09:00", "status": "confirmed"})
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2025-03-11", "time": "08:00", "status": "cancelled"})
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2025-03-01", "time": "08:00", "status": "scheduled"})

	got, err := s.UpcomingAppointments(ctx, epoch, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{2, 1}, ids(got)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}
	today, err := s.AppointmentsOn(ctx, "2025-03-11")
	if err != nil || len(today) != 2 {
		t.Fatalf("on day = %d, %v", len(today), err)
	}
}

func TestUpcomingAppointmentsUseLocalWallClock(t *testing.T) {
	ctx := context.Background()
	s, _, _ := setup(t)
	riyadh := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, riyadh)
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2026-10-18", "time": "08:00", "status": "scheduled"})
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2026-10-18", "time": "11:30", "status": "scheduled"})
	mustAdd(t, s, model.Appointments, map[string]any{"date": "2026-10-18T12:00:00Z", "status": "confirmed"})

	got, err := s.UpcomingAppointments(ctx, now, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{2, 3}, ids(got)); diff != "" {
		t.Fatalf("ids (-want +got):\n%s", diff)
	}

	at, ok := store.AppointmentStart(got[0], riyadh)
	if !ok || !at.Equal(time.Date(2026, 10, 18, 8, 30, 0, 0, time.UTC)) {
		t.Fatalf("start = %v, %v", at, ok)
	}
}

func TestOnDay(t *testing.T) {
	tests := []struct {
		date string
		want bool
	}{
		{"2026-10-18", true},
		{"2026-10-18T09:00", true},
		{"2026-10-18T09:00:00Z", true},
		{"2026-10-19", false},
		{"2026-10", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			if got := store.OnDay(tt.date, "2026-10-18"); got != tt.want {
				t.Errorf("OnDay(%q) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestUnreadCountTreatsMissingReadAsUnread(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := setup(t)
	raw := `[{"id":3,"title":"a"},{"id":2,"title":"b","read":true},{"id":1,"title":"c","read":false}]`
	if err := mem.Set(ctx, model.Key(model.Notifications), []byte(raw)); err != nil {
		t.Fatal(err)
	}
	n, err := s.UnreadCount(ctx)
	if err != nil || n != 2 {
		t.Fatalf("unread = %d, %v; want 2", n, err)
	}
	if changed, _ := s.MarkNotificationsRead(ctx); changed != 2 {
		t.Fatalf("marked %d, want 2", changed)
	}
	if n, _ := s.UnreadCount(ctx); n != 0 {
		t.Fatalf("unread = %d, want 0", n)
	}
}

func TestGetRecordsOnlyGetMetric(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	reg := prometheus.NewRegistry()
	s := store.New(mem, store.WithMetrics(metrics.New(reg)))
	if err := mem.Set(ctx, model.Key(model.Patients), []byte(`[{"id":1,"name":"Sara"}]`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, model.Patients, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, model.Patients, 9); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := testutil.CollectAndCount(reg, "clinic_store_operations_total"); n != 2 {
		t.Fatalf("series = %d, want get ok and get error only", n)
	}
	want := strings.NewReader(`
# HELP clinic_store_operations_total Record store operations by collection, operation and result.
# TYPE clinic_store_operations_total counter
clinic_store_operations_total{collection="patients",op="get",result="error"} 1
clinic_store_operations_total{collection="patients",op="get",result="ok"} 1
`)
	if err := testutil.GatherAndCompare(reg, want, "clinic_store_operations_total"); err != nil {
		t.Fatal(err)
	}
}
