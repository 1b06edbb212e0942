package validate

import (
	"slices"
	"time"

	"clinic-admin-api/internal/model"
)

// Env carries what a record validator needs besides the record.
type Env struct {
	Now time.Time
	// New is set when the record is being created rather than updated.
	New bool
}

// Func validates a whole record.
type Func func(r model.Record, env Env) error

func status(c *checker, r model.Record, allowed []string) {
	if st := str(r, "status"); st != "" {
		c.check(slices.Contains(allowed, st), "invalid status "+st)
	}
}

// Vitals checks the optional measurement fields of a patient or visit.
func Vitals(r model.Record, _ Env) error {
	c := &checker{}
	vitals(c, r)
	return c.err()
}

func vitals(c *checker, r model.Record) {
	if v := r["height"]; present(v) {
		f, ok := number(v)
		c.check(ok && f > 30 && f <= 250, "invalid height")
	}
	if v := r["weight"]; present(v) {
		f, ok := number(v)
		c.check(ok && f > 0 && f <= 300, "invalid weight")
	}
	if v := str(r, "blood_pressure"); v != "" {
		c.check(BloodPressure(v), "invalid blood pressure")
	}
	if v := r["temperature"]; present(v) {
		c.check(between(v, 35, 42), "invalid temperature")
	}
	if v := r["pulse"]; present(v) {
		c.check(between(v, 40, 200), "invalid pulse")
	}
	if v := r["blood_sugar"]; present(v) {
		c.check(between(v, 2, 30), "invalid blood sugar")
	}
	if v := r["cholesterol"]; present(v) {
		c.check(between(v, 100, 400), "invalid cholesterol")
	}
}

func Patient(r model.Record, env Env) error {
	c := &checker{}
	c.check(nameOK(r.String("name")), "name must be at least 2 characters")
	if id := str(r, "national_id"); id != "" {
		c.check(SaudiID(id) || Iqama(id), "invalid national id or iqama")
	}
	if p := str(r, "phone"); p != "" {
		c.check(Phone(p), "invalid phone number")
	}
	if e := str(r, "email"); e != "" {
		c.check(Email(e), "invalid email")
	}
	if d := str(r, "birth_date"); d != "" {
		c.check(BirthDate(d, env.Now), "invalid birth date")
	}
	if p := str(r, "emergency_phone"); p != "" {
		c.check(Phone(p), "invalid emergency phone number")
	}
	vitals(c, r)
	return c.err()
}

func Doctor(r model.Record, _ Env) error {
	c := &checker{}
	c.check(nameOK(r.String("name")), "doctor name must be at least 2 characters")
	c.check(str(r, "specialty") != "", "specialty is required")
	c.check(len([]rune(str(r, "license_number"))) >= 3, "license number is required")
	c.check(Phone(str(r, "phone")), "invalid phone number")
	if e := str(r, "email"); e != "" {
		c.check(Email(e), "invalid email")
	}
	if v := r["consultation_fee"]; present(v) {
		c.check(Amount(v), "invalid consultation fee")
	}
	status(c, r, model.DoctorStatuses)
	return c.err()
}

// Appointment rejects start times in the past only for new appointments.
func Appointment(r model.Record, env Env) error {
	c := &checker{}
	c.check(present(r["patient_id"]), "patient is required")
	c.check(present(r["doctor_id"]), "doctor is required")
	date, tm := str(r, "date"), str(r, "time")
	c.check(Date(date), "invalid appointment date")
	c.check(Time(tm), "invalid appointment time")
	if env.New && Date(date) && Time(tm) {
		if len(tm) == 4 {
			tm = "0" + tm
		}
		at, err := time.ParseInLocation("2006-01-02T15:04", date+"T"+tm, env.Now.Location())
		c.check(err == nil && !at.Before(env.Now), "appointment cannot be in the past")
	}
	if v := r["duration"]; present(v) {
		f, ok := number(v)
		c.check(ok && f >= 0 && f <= 240, "invalid duration (max 240 minutes)")
	}
	status(c, r, model.AppointmentStatuses)
	return c.err()
}

func Prescription(r model.Record, _ Env) error {
	c := &checker{}
	c.check(present(r["patient_id"]), "patient is required")
	c.check(present(r["doctor_id"]), "doctor is required")
	c.check(present(r["medication"]) || present(r["medications"]), "medication is required")
	if d := str(r, "diagnosis"); d != "" {
		c.check(Diagnosis(d), "invalid diagnosis")
	}
	if d := str(r, "dosage"); d != "" {
		c.check(Dosage(d), "invalid dosage")
	}
	if f := str(r, "frequency"); f != "" {
		c.check(Frequency(f), "invalid frequency")
	}
	if d := str(r, "duration"); d != "" {
		c.check(Duration(d), "invalid duration")
	}
	if n := str(r, "prescription_number"); n != "" {
		c.check(DocumentNumber(n), "invalid prescription number")
	}
	c.check(Notes(r.String("notes")), "notes are too long")
	return c.err()
}

func InventoryItem(r model.Record, _ Env) error {
	c := &checker{}
	c.check(nameOK(r.String("name")), "item name must be at least 2 characters")
	c.check(Quantity(r["quantity"]), "invalid quantity")
	if v, ok := r["min_quantity"]; ok && v != nil {
		c.check(Quantity(v), "invalid minimum quantity")
	}
	if v := r["price"]; present(v) {
		c.check(Amount(v), "invalid price")
	}
	if d := str(r, "expiry_date"); d != "" {
		c.check(Date(d), "invalid expiry date")
	}
	return c.err()
}

func Bill(r model.Record, _ Env) error {
	c := &checker{}
	c.check(present(r["patient_id"]), "patient is required")
	c.check(Amount(r["total"]), "invalid total")
	if v := r["paid_amount"]; present(v) {
		paid, _ := number(v)
		total, _ := number(r["total"])
		c.check(Amount(v) && paid <= total, "paid amount exceeds total")
	}
	if v := r["discount"]; present(v) {
		c.check(Percentage(v), "invalid discount")
	}
	if n := str(r, "invoice_number"); n != "" {
		c.check(DocumentNumber(n), "invalid invoice number")
	}
	status(c, r, model.BillStatuses)
	return c.err()
}

// User checks account fields. Password policy is enforced separately since
// stored users carry a hash.
func User(r model.Record, _ Env) error {
	c := &checker{}
	c.check(len([]rune(str(r, "username"))) >= 3, "username must be at least 3 characters")
	c.check(nameOK(r.String("name")), "name must be at least 2 characters")
	c.check(model.Role(str(r, "role")).Valid(), "invalid role")
	if e := str(r, "email"); e != "" {
		c.check(Email(e), "invalid email")
	}
	if p := str(r, "phone"); p != "" {
		c.check(Phone(p), "invalid phone number")
	}
	status(c, r, model.UserStatuses)
	return c.err()
}

// NewPassword enforces the password policy and confirmation match.
func NewPassword(pw, confirm string) error {
	c := &checker{}
	c.check(Password(pw), "password must be at least 8 characters with upper case, lower case and a digit")
	if confirm != "" {
		c.check(pw == confirm, "passwords do not match")
	}
	return c.err()
}
