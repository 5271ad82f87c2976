package scheduling

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
)

// memRepo is an in-memory AppointmentRepository.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*Appointment
	locks  []int64
	// failWith makes every call return this error.
	failWith error
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[int64]*Appointment)}
}

func (m *memRepo) FindOverlapping(_ context.Context, q OverlapQuery) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*Appointment
	for _, a := range m.sorted() {
		if a.ID == q.ExcludeID || a.ProviderID != q.ProviderID || a.LocationID != q.LocationID || a.Date != q.Date {
			continue
		}
		if a.StartTime == nil || a.EndTime == nil {
			continue
		}
		if Overlaps(*a.StartTime, *a.EndTime, q.Start, q.End) {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.items[a.ID] = a.Clone()
	return nil
}

func (m *memRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now()
	m.items[a.ID] = a.Clone()
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *memRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memRepo) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.items))
	m.items = make(map[int64]*Appointment)
	return n, nil
}

func (m *memRepo) CreateMany(ctx context.Context, items []*Appointment) (int64, error) {
	for _, a := range items {
		if err := m.Create(ctx, a); err != nil {
			return 0, err
		}
	}
	return int64(len(items)), nil
}

func (m *memRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, 0, m.failWith
	}
	var matched []*Appointment
	for _, a := range m.sorted() {
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.Office != "" && a.Office != f.Office {
			continue
		}
		if f.DateFrom != nil && a.Date.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && a.Date.After(*f.DateTo) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(a.ChiefComplaint), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, a.Clone())
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memRepo) CountByLocation(_ context.Context, locationID int64, slug string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.items {
		if a.LocationID == locationID || a.Office == slug {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) LockProvider(_ context.Context, providerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = append(m.locks, providerID)
	return nil
}

func (m *memRepo) LockAll(context.Context) error { return nil }

func (m *memRepo) sorted() []*Appointment {
	out := make([]*Appointment, 0, len(m.items))
	for _, a := range m.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// put stores a directly, bypassing admission.
func (m *memRepo) put(a *Appointment) *Appointment {
	_ = m.Create(context.Background(), a)
	return a
}

// fakeDirectory serves two locations, open 08:00-17:00 on weekdays.
type fakeDirectory struct {
	locs    []LocationRef
	failErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{locs: []LocationRef{
		{ID: 1, Slug: "north", Name: "North Clinic"},
		{ID: 2, Slug: "south", Name: "South Clinic"},
	}}
}

func (d *fakeDirectory) Get(_ context.Context, id int64) (*LocationRef, error) {
	if d.failErr != nil {
		return nil, d.failErr
	}
	for i := range d.locs {
		if d.locs[i].ID == id {
			ref := d.locs[i]
			return &ref, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) GetBySlug(_ context.Context, slug string) (*LocationRef, error) {
	if d.failErr != nil {
		return nil, d.failErr
	}
	for i := range d.locs {
		if strings.EqualFold(d.locs[i].Slug, slug) {
			ref := d.locs[i]
			return &ref, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) Hours(_ context.Context, _ int64, weekday string) (DayHours, error) {
	open := weekday != "sat" && weekday != "sun"
	return DayHours{Open: open, Start: civil.Time{Hour: 8}, End: civil.Time{Hour: 17}}, nil
}

type fakeTx struct{ calls int }

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

var errBoom = errors.New("connection refused")

func testCatalog() *Catalog {
	return NewCatalog([]AppointmentType{
		{Name: "Consult", DefaultDuration: 30, ColorCode: "#4F46E5"},
		{Name: "New Patient", DefaultDuration: 60, ColorCode: "#16A34A"},
		{Name: "Follow Up", DefaultDuration: 15, ColorCode: "#F59E0B"},
	})
}

func clock(h, m int) *civil.Time {
	return &civil.Time{Hour: h, Minute: m}
}

func int64p(v int64) *int64 { return &v }
