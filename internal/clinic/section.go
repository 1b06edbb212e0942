// Package clinic implements the per-entity screens of the admin panel: list
// views, CRUD with validation, section stats and the dashboard.
package clinic

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
	"clinic-admin-api/internal/validate"
)

var ErrUnknownSection = errors.New("unknown section")

// Section describes one entity screen.
type Section struct {
	ID           string
	Collection   string
	Title        string
	Noun         string // activity prefix, e.g. patient_add
	SearchFields []string
	FilterFields []string
	Statuses     []string
	// DefaultStatus is set on create when the record has none.
	DefaultStatus string
	Validate      validate.Func
	ReadRoles     []model.Role
	WriteRoles    []model.Role

	// prepare runs on create after validation.
	prepare func(ctx context.Context, svc *Service, rec model.Record) error
	// stats adds section specific figures to Stats.Extra.
	stats func(ctx context.Context, svc *Service, recs []model.Record, st *Stats) error
}

func allowed(roles []model.Role, c *auth.Claims) bool {
	if c == nil {
		return false
	}
	for _, r := range roles {
		if auth.CheckPermission(r, c.Role) {
			return true
		}
	}
	return false
}

func (s *Section) validate(r model.Record, env validate.Env) error {
	if s.Validate == nil {
		return nil
	}
	return s.Validate(r, env)
}

func (s *Section) CanRead(c *auth.Claims) bool  { return allowed(s.ReadRoles, c) }
func (s *Section) CanWrite(c *auth.Claims) bool { return allowed(s.WriteRoles, c) }

// Registry maps section ids to sections in registration order.
type Registry struct {
	order    []string
	sections map[string]*Section
}

func NewRegistry(sections ...*Section) *Registry {
	r := &Registry{sections: make(map[string]*Section)}
	for _, s := range sections {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a section.
func (r *Registry) Register(s *Section) {
	if _, ok := r.sections[s.ID]; !ok {
		r.order = append(r.order, s.ID)
	}
	r.sections[s.ID] = s
}

func (r *Registry) Get(id string) (*Section, error) {
	s, ok := r.sections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, id)
	}
	return s, nil
}

// ByCollection finds the section backed by collection.
func (r *Registry) ByCollection(collection string) (*Section, bool) {
	for _, id := range r.order {
		if s := r.sections[id]; s.Collection == collection {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) Sections() []*Section {
	out := make([]*Section, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sections[id])
	}
	return out
}

var (
	staff     = []model.Role{model.RoleReceptionist}
	clinical  = []model.Role{model.RoleDoctor}
	pharmacy  = []model.Role{model.RolePharmacist}
	adminOnly = []model.Role{model.RoleAdmin}
)

// DefaultRegistry holds the six clinic sections.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Section{
			ID: "doctors", Collection: model.Doctors, Title: "Doctors", Noun: "doctor",
			SearchFields:  []string{"name", "specialty", "phone"},
			FilterFields:  []string{"specialty", "status"},
			Statuses:      model.DoctorStatuses,
			DefaultStatus: model.StatusActive,
			Validate:      validate.Doctor,
			ReadRoles:     staff,
			WriteRoles:    adminOnly,
			stats:         doctorStats,
		},
		&Section{
			ID: "patients", Collection: model.Patients, Title: "Patients", Noun: "patient",
			SearchFields: []string{"name", "phone", "national_id", "email"},
			FilterFields: []string{"gender", "blood_type", "city"},
			Validate:     validate.Patient,
			ReadRoles:    slices.Concat(staff, pharmacy),
			WriteRoles:   staff,
			stats:        patientStats,
		},
		&Section{
			ID: "appointments", Collection: model.Appointments, Title: "Appointments", Noun: "appointment",
			SearchFields:  []string{"patient_name", "doctor_name", "date", "notes"},
			FilterFields:  []string{"status", "doctor_id", "patient_id", "date"},
			Statuses:      model.AppointmentStatuses,
			DefaultStatus: model.StatusScheduled,
			Validate:      validate.Appointment,
			ReadRoles:     staff,
			WriteRoles:    staff,
			prepare:       denormalizeNames,
			stats:         appointmentStats,
		},
		&Section{
			ID: "prescriptions", Collection: model.Prescriptions, Title: "Prescriptions", Noun: "prescription",
			SearchFields: []string{"patient_name", "doctor_name", "medication", "diagnosis"},
			FilterFields: []string{"doctor_id", "patient_id", "status"},
			Validate:     validate.Prescription,
			ReadRoles:    slices.Concat(clinical, pharmacy),
			WriteRoles:   clinical,
			prepare:      denormalizeNames,
		},
		&Section{
			ID: "inventory", Collection: model.Inventory, Title: "Inventory", Noun: "inventory",
			SearchFields: []string{"name", "category", "supplier"},
			FilterFields: []string{"category", "supplier"},
			Validate:     validate.InventoryItem,
			ReadRoles:    slices.Concat(clinical, pharmacy),
			WriteRoles:   pharmacy,
			stats:        inventoryStats,
		},
		&Section{
			ID: "bills", Collection: model.Bills, Title: "Bills", Noun: "bill",
			SearchFields:  []string{"patient_name", "invoice_number"},
			FilterFields:  []string{"status", "patient_id", "payment_method"},
			Statuses:      model.BillStatuses,
			DefaultStatus: model.StatusPending,
			Validate:      validate.Bill,
			ReadRoles:     staff,
			WriteRoles:    staff,
			prepare:       denormalizeNames,
			stats:         billStats,
		},
	)
}

// denormalizeNames copies patient and doctor names onto the record when the
// referenced records exist. Missing references are left alone.
func denormalizeNames(ctx context.Context, svc *Service, rec model.Record) error {
	refs := []struct{ idField, nameField, collection string }{
		{"patient_id", "patient_name", model.Patients},
		{"doctor_id", "doctor_name", model.Doctors},
	}
	for _, ref := range refs {
		id, ok := model.Int(rec[ref.idField])
		if !ok || id == 0 || rec.String(ref.nameField) != "" {
			continue
		}
		other, err := svc.store.Get(ctx, ref.collection, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		rec[ref.nameField] = other.String("name")
	}
	return nil
}
