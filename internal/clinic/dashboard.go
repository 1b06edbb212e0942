package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
)

var ErrUnknownPeriod = errors.New("unknown chart period")

// Stats summarizes one section.
type Stats struct {
	Total    int                `json:"total"`
	ByStatus map[string]int     `json:"by_status"`
	Extra    map[string]float64 `json:"extra"`
}

func (s *Service) SectionStats(ctx context.Context, c *auth.Claims, sectionID string) (Stats, error) {
	sec, err := s.section(sectionID, c, false)
	if err != nil {
		return Stats{}, err
	}
	recs, err := s.store.List(ctx, sec.Collection, nil)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(recs), ByStatus: map[string]int{}, Extra: map[string]float64{}}
	for _, status := range sec.Statuses {
		st.ByStatus[status] = 0
	}
	for _, r := range recs {
		if status := r.String("status"); status != "" {
			st.ByStatus[status]++
		}
	}
	if sec.stats != nil {
		if err := sec.stats(ctx, s, recs, &st); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

func doctorStats(ctx context.Context, svc *Service, recs []model.Record, st *Stats) error {
	appts, err := svc.store.Aggregate(ctx, model.Appointments, "id", store.OpCount)
	if err != nil {
		return err
	}
	st.Extra["avg_appointments"] = 0
	if len(recs) > 0 {
		st.Extra["avg_appointments"] = appts / float64(len(recs))
	}
	return nil
}

func patientStats(_ context.Context, svc *Service, recs []model.Record, st *Stats) error {
	now := svc.store.Now()
	n := 0
	for _, r := range recs {
		if t, ok := r.Time("created_at"); ok && sameMonth(t, now) {
			n++
		}
	}
	st.Extra["new_this_month"] = float64(n)
	return nil
}

func appointmentStats(_ context.Context, svc *Service, recs []model.Record, st *Stats) error {
	today := svc.store.Now().Format("2006-01-02")
	n := 0
	for _, r := range recs {
		if store.OnDay(r.String("date"), today) {
			n++
		}
	}
	st.Extra["today"] = float64(n)
	return nil
}

func inventoryStats(_ context.Context, _ *Service, recs []model.Record, st *Stats) error {
	low, value := 0, 0.0
	for _, r := range recs {
		if lowStock(r) {
			low++
		}
		value += r.Number("quantity") * r.Number("price")
	}
	st.Extra["low_stock"] = float64(low)
	st.Extra["stock_value"] = value
	return nil
}

func billStats(_ context.Context, _ *Service, recs []model.Record, st *Stats) error {
	var revenue, outstanding float64
	for _, r := range recs {
		switch r.String("status") {
		case model.StatusPaid:
			revenue += r.Number("total")
		case model.StatusPartial:
			revenue += r.Number("paid_amount")
			outstanding += r.Number("total") - r.Number("paid_amount")
		case model.StatusPending:
			outstanding += r.Number("total")
		}
	}
	st.Extra["revenue"] = revenue
	st.Extra["outstanding"] = outstanding
	return nil
}

// lowStock is quantity at or below min_quantity; items without a minimum
// are never low.
func lowStock(r model.Record) bool {
	if _, ok := r["min_quantity"]; !ok {
		return false
	}
	return r.Number("quantity") <= r.Number("min_quantity")
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// billDate is the bill's date field, falling back to created_at.
func billDate(r model.Record) (time.Time, bool) {
	if t, ok := r.Time("date"); ok {
		return t, true
	}
	return r.Time("created_at")
}

type Dashboard struct {
	Doctors              int            `json:"doctors"`
	Patients             int            `json:"patients"`
	AppointmentsToday    int            `json:"appointments_today"`
	AppointmentsTotal    int            `json:"appointments_total"`
	MonthlyRevenue       float64        `json:"monthly_revenue"`
	PendingBills         int            `json:"pending_bills"`
	LowStockItems        int            `json:"low_stock_items"`
	WaitingPatients      int            `json:"waiting_patients"`
	UnreadNotifications  int            `json:"unread_notifications"`
	RecentActivities     []model.Record `json:"recent_activities"`
	UpcomingAppointments []model.Record `json:"upcoming_appointments"`
}

// Dashboard gathers the home screen figures as of now. Any signed in user may
// read it.
func (s *Service) Dashboard(ctx context.Context, c *auth.Claims, now time.Time) (Dashboard, error) {
	if c == nil {
		return Dashboard{}, auth.ErrPermissionDenied
	}
	var d Dashboard
	load := func(collection string) ([]model.Record, error) {
		return s.store.List(ctx, collection, nil)
	}

	doctors, err := load(model.Doctors)
	if err != nil {
		return d, err
	}
	patients, err := load(model.Patients)
	if err != nil {
		return d, err
	}
	appts, err := load(model.Appointments)
	if err != nil {
		return d, err
	}
	bills, err := load(model.Bills)
	if err != nil {
		return d, err
	}
	items, err := load(model.Inventory)
	if err != nil {
		return d, err
	}

	d.Doctors, d.Patients, d.AppointmentsTotal = len(doctors), len(patients), len(appts)
	today := now.Format("2006-01-02")
	for _, a := range appts {
		if !store.OnDay(a.String("date"), today) {
			continue
		}
		d.AppointmentsToday++
		if a.String("status") == model.StatusScheduled {
			d.WaitingPatients++
		}
	}
	for _, b := range bills {
		if t, ok := billDate(b); ok && sameMonth(t, now) && b.String("status") != model.StatusCancelled {
			d.MonthlyRevenue += b.Number("total")
		}
		if b.String("status") == model.StatusPending {
			d.PendingBills++
		}
	}
	for _, it := range items {
		if lowStock(it) {
			d.LowStockItems++
		}
	}

	if d.UnreadNotifications, err = s.store.UnreadCount(ctx); err != nil {
		return d, err
	}
	if d.RecentActivities, err = s.store.RecentActivities(ctx, 5); err != nil {
		return d, err
	}
	if d.UpcomingAppointments, err = s.store.UpcomingAppointments(ctx, now, 5); err != nil {
		return d, err
	}
	return d, nil
}

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Chart is a pair of aligned series for the dashboard graphs.
type Chart struct {
	Period       Period    `json:"period"`
	Labels       []string  `json:"labels"`
	Appointments []float64 `json:"appointments"`
	Revenue      []float64 `json:"revenue"`
}

// Chart counts appointments and sums bill totals per bucket ending at now:
// days for week (7) and month (30), calendar months for year (12).
func (s *Service) Chart(ctx context.Context, c *auth.Claims, p Period, now time.Time) (Chart, error) {
	if c == nil {
		return Chart{}, auth.ErrPermissionDenied
	}
	if p == "" {
		p = PeriodMonth
	}
	var (
		n      int
		layout string
		step   func(t time.Time, i int) time.Time
	)
	switch p {
	case PeriodWeek, PeriodMonth:
		n, layout = 7, "2006-01-02"
		if p == PeriodMonth {
			n = 30
		}
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, 0, -i) }
	case PeriodYear:
		n, layout = 12, "2006-01"
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		now = first
		step = func(t time.Time, i int) time.Time { return t.AddDate(0, -i, 0) }
	default:
		return Chart{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, p)
	}

	ch := Chart{Period: p, Labels: make([]string, n), Appointments: make([]float64, n), Revenue: make([]float64, n)}
	index := make(map[string]int, n)
	for i := 0; i < n; i++ {
		label := step(now, n-1-i).Format(layout)
		ch.Labels[i] = label
		index[label] = i
	}

	appts, err := s.store.List(ctx, model.Appointments, nil)
	if err != nil {
		return Chart{}, err
	}
	for _, a := range appts {
		if t, ok := a.Time("date"); ok {
			if i, ok := index[t.Format(layout)]; ok {
				ch.Appointments[i]++
			}
		}
	}
	bills, err := s.store.List(ctx, model.Bills, nil)
	if err != nil {
		return Chart{}, err
	}
	for _, b := range bills {
		if b.String("status") == model.StatusCancelled {
			continue
		}
		if t, ok := billDate(b); ok {
			if i, ok := index[t.Format(layout)]; ok {
				ch.Revenue[i] += b.Number("total")
			}
		}
	}
	return ch, nil
}
