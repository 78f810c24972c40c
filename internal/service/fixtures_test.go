package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/arnoma/tutor-admin-api/internal/models"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

type studentRepoStub struct {
	students    map[string]models.Student
	emails      map[string]string
	deactivated []string
	lastFilter  models.StudentFilter
	listTotal   int
	err         error
}

func newStudentRepoStub(students ...models.Student) *studentRepoStub {
	repo := &studentRepoStub{students: map[string]models.Student{}, emails: map[string]string{}}
	for _, s := range students {
		repo.students[s.ID] = s
		if s.Email != nil {
			repo.emails[*s.Email] = s.ID
		}
	}
	return repo
}

func (m *studentRepoStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	out := m.sorted()
	return out, m.listTotal, nil
}

func (m *studentRepoStub) ListActive(ctx context.Context) ([]models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Student{}
	for _, s := range m.sorted() {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *studentRepoStub) sorted() []models.Student {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *studentRepoStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *studentRepoStub) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	if id, ok := m.emails[email]; ok {
		return excludeID == "" || id != excludeID, nil
	}
	return false, nil
}

func (m *studentRepoStub) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = fmt.Sprintf("generated-%d", len(m.students)+1)
	}
	m.students[student.ID] = *student
	return nil
}

func (m *studentRepoStub) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func (m *studentRepoStub) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if s, ok := m.students[id]; ok {
		s.Active = false
		m.students[id] = s
	}
	return nil
}

type paymentRepoStub struct {
	mu       sync.Mutex
	payments []models.Payment
	linkErr  error
}

func (m *paymentRepoStub) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := []models.Payment{}
	for _, p := range m.payments {
		if filter.StudentID != "" && (p.StudentID == nil || *p.StudentID != filter.StudentID) {
			continue
		}
		if filter.Status != "" && string(p.Status) != string(filter.Status) {
			continue
		}
		if filter.Unlinked && p.StudentID != nil {
			continue
		}
		if filter.From != nil && p.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && p.Date.After(*filter.To) {
			continue
		}
		matched = append(matched, p)
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (m *paymentRepoStub) ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.payments {
		if p.StudentID != nil && *p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchDate().Before(out[j].MatchDate()) })
	return out, nil
}

func (m *paymentRepoStub) ListUnlinked(ctx context.Context, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Payment{}
	for _, p := range m.payments {
		if p.StudentID == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *paymentRepoStub) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *paymentRepoStub) Create(ctx context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if payment.ID == "" {
		payment.ID = fmt.Sprintf("pay-%d", len(m.payments)+1)
	}
	m.payments = append(m.payments, *payment)
	return nil
}

func (m *paymentRepoStub) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.payments {
		if m.payments[i].ID == id {
			m.payments[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *paymentRepoStub) LinkStudent(ctx context.Context, id, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkErr != nil {
		return false, m.linkErr
	}
	for i := range m.payments {
		if m.payments[i].ID == id && m.payments[i].StudentID == nil {
			sid := studentID
			m.payments[i].StudentID = &sid
			return true, nil
		}
	}
	return false, nil
}

func (m *paymentRepoStub) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.payments {
		if m.payments[i].ID == id {
			m.payments = append(m.payments[:i], m.payments[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type groupRepoStub struct {
	groups   map[string]models.Group
	sessions map[string][]models.GroupSession
}

func (m *groupRepoStub) FindByName(ctx context.Context, name string) (*models.Group, error) {
	if g, ok := m.groups[name]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *groupRepoStub) ListSessions(ctx context.Context, name string, from, to *time.Time) ([]models.GroupSession, error) {
	return m.sessions[name], nil
}

type markerRepoStub struct {
	markers []models.ClassMarker
}

func (m *markerRepoStub) ListForStudent(ctx context.Context, studentID, groupName string) ([]models.ClassMarker, error) {
	out := []models.ClassMarker{}
	for _, mk := range m.markers {
		switch {
		case mk.StudentID != nil && *mk.StudentID == studentID:
			out = append(out, mk)
		case mk.StudentID == nil && mk.GroupName != nil && *mk.GroupName == groupName && mk.Kind == models.MarkerSkip:
			out = append(out, mk)
		}
	}
	return out, nil
}

func (m *markerRepoStub) Create(ctx context.Context, marker *models.ClassMarker) error {
	if marker.ID == "" {
		marker.ID = fmt.Sprintf("marker-%d", len(m.markers)+1)
	}
	m.markers = append(m.markers, *marker)
	return nil
}

type noteRepoStub struct {
	notes []models.Note
}

func (m *noteRepoStub) ListByGroup(ctx context.Context, groupName string) ([]models.Note, error) {
	out := []models.Note{}
	for _, n := range m.notes {
		if n.GroupName != nil && *n.GroupName == groupName {
			out = append(out, n)
		}
	}
	return out, nil
}

// memoryCache is an in-process CacheRepository storing JSON like the redis one.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *memoryCache) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for k := range m.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func strPtr(s string) *string { return &s }

func mustToken(t *testing.T, url string) string {
	t.Helper()
	token, err := storage.TokenFromURL(url)
	require.NoError(t, err)
	return token
}

func day(raw string) time.Time {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(raw string) *time.Time {
	t := day(raw)
	return &t
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// ledgerFixture is a Monday/Wednesday student of group A who paid one November class
// and was absent on 2025-12-03; the group's 2025-12-15 class is canceled.
type ledgerFixture struct {
	students *studentRepoStub
	payments *paymentRepoStub
	groups   *groupRepoStub
	markers  *markerRepoStub
	cache    *memoryCache
}

func newLedgerFixture() *ledgerFixture {
	ana := models.Student{
		ID:            "s1",
		Name:          "Ana Diaz",
		GroupLetter:   strPtr("a"),
		Aliases:       strPtr(`["Annie"]`),
		PricePerClass: money(20),
		Balance:       decimal.Zero,
		StartDate:     dayPtr("2025-11-24"),
		Active:        true,
	}
	return &ledgerFixture{
		students: newStudentRepoStub(ana),
		payments: &paymentRepoStub{payments: []models.Payment{
			{ID: "p1", StudentID: strPtr("s1"), PayerName: "Ana Diaz", Amount: money(20), Date: day("2025-11-25"), ForClass: dayPtr("2025-11-24"), Status: models.PaymentStatusPaid},
		}},
		groups: &groupRepoStub{groups: map[string]models.Group{
			"A": {GroupName: "A", Schedule: []byte(`{"Monday":["17:00"],"Wednesday":["17:00"]}`)},
		}},
		markers: &markerRepoStub{markers: []models.ClassMarker{
			{ID: "m1", StudentID: strPtr("s1"), Date: day("2025-12-03"), Kind: models.MarkerAbsence},
			{ID: "m2", GroupName: strPtr("A"), Date: day("2025-12-15"), Kind: models.MarkerSkip, SkipType: strPtr("class-canceled"), Note: strPtr("Holiday")},
		}},
		cache: newMemoryCache(),
	}
}

func (f *ledgerFixture) reconciliation(cfg ReconciliationConfig) (*ReconciliationService, *CacheService) {
	cache := NewCacheService(f.cache, nil, time.Minute, nil, true)
	svc := NewReconciliationService(f.students, f.payments, f.groups, f.markers, cache, NewMetricsService(), nil, nil, cfg)
	svc.now = func() time.Time { return time.Date(2025, time.December, 10, 12, 0, 0, 0, time.UTC) }
	return svc, cache
}
