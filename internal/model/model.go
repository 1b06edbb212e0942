package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Collection names. Each one persists under KeyPrefix+name.
const (
	Users          = "users"
	Doctors        = "doctors"
	Patients       = "patients"
	Appointments   = "appointments"
	Prescriptions  = "prescriptions"
	Inventory      = "inventory"
	Bills          = "bills"
	Notifications  = "notifications"
	Activities     = "activities"
	Settings       = "settings"
	PasswordResets = "password_resets"
)

const (
	KeyPrefix      = "clinic_"
	InitializedKey = "clinic_db_initialized"
)

// Collections lists every known collection in seed order.
var Collections = []string{
	Users, Doctors, Patients, Appointments, Prescriptions, Inventory,
	Bills, Notifications, Activities, Settings, PasswordResets,
}

func Key(collection string) string { return KeyPrefix + collection }

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleReceptionist Role = "receptionist"
	RolePharmacist   Role = "pharmacist"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleReceptionist, RolePharmacist:
		return true
	}
	return false
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusVacation = "vacation"

	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"

	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusPartial = "partial"
)

var (
	DoctorStatuses      = []string{StatusActive, StatusInactive, StatusVacation}
	AppointmentStatuses = []string{StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow}
	BillStatuses        = []string{StatusPending, StatusPaid, StatusPartial, StatusCancelled}
	UserStatuses        = []string{StatusActive, StatusInactive}
)

// Record is an untyped JSON object. Values follow encoding/json decoding:
// numbers are float64, nested objects are map[string]any.
type Record map[string]any

// ID returns the numeric id, or 0 when the record has none.
func (r Record) ID() int64 {
	n, _ := Int(r["id"])
	return n
}

func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Number returns the field as float64; missing or non-numeric fields are 0.
func (r Record) Number(field string) float64 {
	f, _ := Float(r[field])
	return f
}

func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Time parses an RFC 3339 timestamp or a 2006-01-02 date held in field.
func (r Record) Time(field string) (time.Time, bool) {
	return ParseTime(r.String(field))
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Normalize round-trips fields through JSON so values take the same shape as
// records loaded from storage.
func Normalize(fields map[string]any) (Record, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	if r == nil {
		r = Record{}
	}
	return r, nil
}

// Float converts JSON-ish numeric values, including numeric strings.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func Int(v any) (int64, bool) {
	f, ok := Float(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

func ParseTime(s string) (time.Time, bool) {
	return ParseTimeIn(s, time.UTC)
}

// ParseTimeIn is ParseTime with values that carry no offset read in loc.
func ParseTimeIn(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.ParseInLocation(l, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Stamp formats t the way the store writes created_at/updated_at.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
