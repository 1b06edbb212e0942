package validate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/validate"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestFieldValidators(t *testing.T) {
	tests := []struct {
		name string
		got  bool
		want bool
	}{
		{"email ok", validate.Email("a@b.co"), true},
		{"email no tld", validate.Email("a@b"), false},
		{"email spaces", validate.Email("a b@c.com"), false},
		{"phone separators", validate.Phone("(011) 234-5678"), true},
		{"phone plus", validate.Phone("+966501234567"), true},
		{"phone short", validate.Phone("12345"), false},
		{"saudi id", validate.SaudiID("1000000008"), true},
		{"saudi id bad checksum", validate.SaudiID("1000000001"), false},
		{"saudi id prefix 3", validate.SaudiID("3000000000"), false},
		{"iqama", validate.Iqama("2000000006"), true},
		{"iqama citizen prefix", validate.Iqama("1000000008"), false},
		{"date", validate.Date("2025-02-28"), true},
		{"date invalid day", validate.Date("2025-02-30"), false},
		{"time", validate.Time("9:05"), true},
		{"time 24h", validate.Time("24:00"), false},
		{"birth date", validate.BirthDate("1990-05-01", now), true},
		{"birth date future", validate.BirthDate("2030-01-01", now), false},
		{"birth date ancient", validate.BirthDate("1850-01-01", now), false},
		{"amount zero", validate.Amount(0), true},
		{"amount string", validate.Amount("250.5"), true},
		{"amount negative", validate.Amount(-1), false},
		{"amount nil", validate.Amount(nil), false},
		{"quantity max", validate.Quantity(10000), true},
		{"quantity over", validate.Quantity(10001), false},
		{"percentage", validate.Percentage(15), true},
		{"password", validate.Password("Abcdef12"), true},
		{"password no digit", validate.Password("Abcdefgh"), false},
		{"password short", validate.Password("Ab1"), false},
		{"dosage", validate.Dosage("500 mg"), true},
		{"dosage words", validate.Dosage("a lot"), false},
		{"frequency", validate.Frequency("TID"), true},
		{"frequency unknown", validate.Frequency("sometimes"), false},
		{"duration", validate.Duration("2 weeks"), true},
		{"document number", validate.DocumentNumber("INV-2024-001"), true},
		{"document number lower", validate.DocumentNumber("inv-2024-001"), false},
		{"blood pressure", validate.BloodPressure("120/80"), true},
		{"blood pressure inverted", validate.BloodPressure("80/120"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestPasswordStrength(t *testing.T) {
	tests := []struct {
		pw   string
		want int
	}{
		{"", 0},
		{"aaa", 20},
		{"Abcdef12", 90},
		{"Abcdefgh12!?", 100},
	}
	for _, tt := range tests {
		t.Run(tt.pw, func(t *testing.T) {
			if got := validate.PasswordStrength(tt.pw); got != tt.want {
				t.Fatalf("strength(%q) = %d, want %d", tt.pw, got, tt.want)
			}
		})
	}
}

func TestDoctor(t *testing.T) {
	ok := model.Record{
		"name": "Dr. Amal", "specialty": "cardiology", "license_number": "LIC-1",
		"phone": "0501234567", "status": "active",
	}
	if err := validate.Doctor(ok, validate.Env{Now: now}); err != nil {
		t.Fatalf("valid doctor: %v", err)
	}

	err := validate.Doctor(model.Record{"name": "X", "phone": "1", "status": "retired"}, validate.Env{Now: now})
	if !errors.Is(err, validate.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	want := []string{
		"doctor name must be at least 2 characters",
		"specialty is required",
		"license number is required",
		"invalid phone number",
		"invalid status retired",
	}
	if diff := cmp.Diff(want, validate.Messages(err)); diff != "" {
		t.Fatalf("messages (-want +got):\n%s", diff)
	}
}

func TestAppointmentPastOnlyOnCreate(t *testing.T) {
	past := model.Record{"patient_id": 1, "doctor_id": 2, "date": "2025-03-01", "time": "10:00"}

	err := validate.Appointment(past, validate.Env{Now: now, New: true})
	if diff := cmp.Diff([]string{"appointment cannot be in the past"}, validate.Messages(err)); diff != "" {
		t.Fatalf("messages (-want +got):\n%s", diff)
	}
	if err := validate.Appointment(past, validate.Env{Now: now}); err != nil {
		t.Fatalf("update of past appointment: %v", err)
	}

	long := model.Record{"patient_id": 1, "doctor_id": 2, "date": "2025-03-11", "time": "10:00", "duration": 300}
	if err := validate.Appointment(long, validate.Env{Now: now, New: true}); err == nil {
		t.Fatal("want duration error")
	}
}

func TestPatient(t *testing.T) {
	tests := []struct {
		name string
		rec  model.Record
		ok   bool
	}{
		{"minimal", model.Record{"name": "Ali"}, true},
		{"iqama", model.Record{"name": "Ali", "national_id": "2000000006"}, true},
		{"bad id", model.Record{"name": "Ali", "national_id": "1234"}, false},
		{"future birth", model.Record{"name": "Ali", "birth_date": "2026-01-01"}, false},
		{"bad vitals", model.Record{"name": "Ali", "temperature": 45}, false},
		{"empty optional", model.Record{"name": "Ali", "email": "", "phone": ""}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Patient(tt.rec, validate.Env{Now: now})
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, ok = %v", err, tt.ok)
			}
		})
	}
}

func TestBillAndInventory(t *testing.T) {
	env := validate.Env{Now: now}
	if err := validate.Bill(model.Record{"patient_id": 1, "total": 100, "paid_amount": 150}, env); err == nil {
		t.Fatal("overpaid bill accepted")
	}
	if err := validate.Bill(model.Record{"patient_id": 1, "total": 100, "status": "partial", "paid_amount": 40}, env); err != nil {
		t.Fatalf("bill: %v", err)
	}
	if err := validate.InventoryItem(model.Record{"name": "Gauze", "quantity": 0, "min_quantity": 5}, env); err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if err := validate.InventoryItem(model.Record{"name": "Gauze"}, env); err == nil {
		t.Fatal("missing quantity accepted")
	}
}

func TestNewPassword(t *testing.T) {
	if err := validate.NewPassword("Abcdef12", "Abcdef12"); err != nil {
		t.Fatal(err)
	}
	if msgs := validate.Messages(validate.NewPassword("Abcdef12", "Abcdef13")); len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
}
