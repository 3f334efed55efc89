package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/internal/repository"
	"github.com/noah-isme/institute-admin-api/pkg/config"
)

var (
	fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

	adminPrincipal      = &models.Principal{EmployeeID: "emp-admin", Role: models.RoleAdmin}
	opsPrincipal        = &models.Principal{EmployeeID: "emp-ops", Role: models.RoleOperations}
	counsellorPrincipal = &models.Principal{EmployeeID: "emp-counsellor", Role: models.RoleCounsellor}
	facultyPrincipal    = &models.Principal{EmployeeID: "emp-faculty", Role: models.RoleFaculty}
	placementPrincipal  = &models.Principal{EmployeeID: "emp-placement", Role: models.RolePlacementOfficer}
)

// memStore is a shared in-memory database behind the fake repositories.
type memStore struct {
	mu         sync.Mutex
	seq        int
	calls      int
	batches    map[string]models.Batch
	students   map[string]models.Student
	leads      map[string]models.Lead
	employees  map[string]models.Employee
	courses    map[string]models.Course
	companies  map[string]models.Company
	placements map[string]models.Placement
}

func newMemStore() *memStore {
	return &memStore{
		batches:    map[string]models.Batch{},
		students:   map[string]models.Student{},
		leads:      map[string]models.Lead{},
		employees:  map[string]models.Employee{},
		courses:    map[string]models.Course{},
		companies:  map[string]models.Company{},
		placements: map[string]models.Placement{},
	}
}

func (m *memStore) begin() func() {
	m.mu.Lock()
	m.calls++
	return m.mu.Unlock
}

func (m *memStore) nextID(kind string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", kind, m.seq)
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type storeSnapshot struct {
	batches    map[string]models.Batch
	students   map[string]models.Student
	leads      map[string]models.Lead
	placements map[string]models.Placement
}

func (m *memStore) snapshot() storeSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := storeSnapshot{
		batches:    make(map[string]models.Batch, len(m.batches)),
		students:   make(map[string]models.Student, len(m.students)),
		leads:      make(map[string]models.Lead, len(m.leads)),
		placements: make(map[string]models.Placement, len(m.placements)),
	}
	for id, b := range m.batches {
		snap.batches[id] = b
	}
	for id, s := range m.students {
		snap.students[id] = cloneStudent(s)
	}
	for id, l := range m.leads {
		snap.leads[id] = cloneLead(l)
	}
	for id, p := range m.placements {
		snap.placements[id] = p
	}
	return snap
}

func (m *memStore) restore(snap storeSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = snap.batches
	m.students = snap.students
	m.leads = snap.leads
	m.placements = snap.placements
}

func (m *memStore) batch(t *testing.T, id string) models.Batch {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		t.Fatalf("batch %s not stored", id)
	}
	return b
}

func (m *memStore) studentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students)
}

func (m *memStore) putBatch(id, name string, capacity, enrolled int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[id] = models.Batch{
		ID:                id,
		Name:              name,
		CourseID:          "course-go",
		StartDate:         fixedNow,
		Capacity:          capacity,
		CurrentEnrollment: enrolled,
		Status:            models.BatchStatusActive,
	}
}

func (m *memStore) putEmployee(id string, role models.EmployeeRole, status models.EmployeeStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[id] = models.Employee{
		ID:           id,
		EmployeeCode: strings.ToUpper(id),
		FirstName:    "Staff",
		LastName:     id,
		Email:        id + "@institute.test",
		Role:         role,
		HireDate:     fixedNow.AddDate(-1, 0, 0),
		Status:       status,
	}
}

func (m *memStore) putCourse(id string, months int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[id] = models.Course{ID: id, Name: "Course " + id, DurationMonths: months, Fees: 1000, Status: models.CatalogueStatusActive}
}

func cloneStudent(s models.Student) models.Student {
	s.StatusHistory = append(models.StatusHistory(nil), s.StatusHistory...)
	return s
}

func cloneLead(l models.Lead) models.Lead {
	l.FollowUps = append(models.FollowUps(nil), l.FollowUps...)
	return l
}

type txMarker struct{}

// fakeTx serializes units of work and restores the store when one fails.
type fakeTx struct {
	store     *memStore
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.store.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		f.store.restore(snap)
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type fakeBatchRepo struct{ *memStore }

func (r fakeBatchRepo) FindByID(ctx context.Context, id string) (*models.Batch, error) {
	defer r.begin()()
	b, ok := r.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (r fakeBatchRepo) List(ctx context.Context, filter models.BatchFilter) ([]models.Batch, int, error) {
	defer r.begin()()
	out := make([]models.Batch, 0, len(r.batches))
	for _, b := range r.batches {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakeBatchRepo) Create(ctx context.Context, batch *models.Batch) error {
	defer r.begin()()
	batch.ID = r.nextID("batch")
	batch.CreatedAt = fixedNow
	batch.UpdatedAt = fixedNow
	r.batches[batch.ID] = *batch
	return nil
}

func (r fakeBatchRepo) Update(ctx context.Context, batch *models.Batch) error {
	defer r.begin()()
	stored, ok := r.batches[batch.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.CurrentEnrollment > batch.Capacity {
		return repository.ErrCapacityExceeded
	}
	next := *batch
	next.CurrentEnrollment = stored.CurrentEnrollment
	r.batches[batch.ID] = next
	return nil
}

func (r fakeBatchRepo) UpdateCapacity(ctx context.Context, id string, capacity int) error {
	defer r.begin()()
	stored, ok := r.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.CurrentEnrollment > capacity {
		return repository.ErrCapacityExceeded
	}
	stored.Capacity = capacity
	r.batches[id] = stored
	return nil
}

func (r fakeBatchRepo) UpdateStatus(ctx context.Context, id string, status models.BatchStatus) error {
	defer r.begin()()
	stored, ok := r.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Status = status
	r.batches[id] = stored
	return nil
}

func (r fakeBatchRepo) Delete(ctx context.Context, id string) error {
	defer r.begin()()
	stored, ok := r.batches[id]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.CurrentEnrollment != 0 {
		return repository.ErrBatchNotEmpty
	}
	delete(r.batches, id)
	return nil
}

func (r fakeBatchRepo) AdjustEnrollment(ctx context.Context, id string, delta int) (*models.Batch, error) {
	defer r.begin()()
	stored, ok := r.batches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	next := stored.CurrentEnrollment + delta
	if next < 0 {
		return nil, repository.ErrEnrollmentUnderflow
	}
	if next > stored.Capacity {
		return nil, repository.ErrCapacityExceeded
	}
	stored.CurrentEnrollment = next
	r.batches[id] = stored
	return &stored, nil
}

func (r fakeBatchRepo) LockByIDs(ctx context.Context, ids []string) ([]models.Batch, error) {
	defer r.begin()()
	out := make([]models.Batch, 0, len(ids))
	for _, id := range ids {
		if b, ok := r.batches[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeStudentRepo struct {
	*memStore
	createErrs []error
}

func (r *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	defer r.begin()()
	out := make([]models.Student, 0, len(r.students))
	for _, s := range r.students {
		if filter.WithoutBatch && s.BatchID != nil {
			continue
		}
		if filter.BatchID != "" && (s.BatchID == nil || *s.BatchID != filter.BatchID) {
			continue
		}
		out = append(out, cloneStudent(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrollmentNumber < out[j].EnrollmentNumber })
	return out, len(out), nil
}

func (r *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	defer r.begin()()
	s, ok := r.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	s = cloneStudent(s)
	return &s, nil
}

func (r *fakeStudentRepo) FindByIDForUpdate(ctx context.Context, id string) (*models.Student, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeStudentRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	defer r.begin()()
	for id, s := range r.students {
		if id != excludeID && s.Email != nil && strings.EqualFold(*s.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStudentRepo) ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	defer r.begin()()
	for id, s := range r.students {
		if id != excludeID && s.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStudentRepo) ExistsByLeadID(ctx context.Context, leadID string) (bool, error) {
	defer r.begin()()
	for _, s := range r.students {
		if s.LeadID != nil && *s.LeadID == leadID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStudentRepo) MaxEnrollmentSequence(ctx context.Context, prefix string) (int, error) {
	defer r.begin()()
	max := 0
	for _, s := range r.students {
		if !strings.HasPrefix(s.EnrollmentNumber, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(s.EnrollmentNumber, prefix)); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

func (r *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	defer r.begin()()
	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, s := range r.students {
		if s.EnrollmentNumber == student.EnrollmentNumber {
			return fmt.Errorf("create student: %w", &repository.UniqueViolationError{Constraint: repository.ConstraintStudentEnrollmentNumber, Err: errors.New("duplicate key value")})
		}
	}
	student.ID = r.nextID("student")
	student.CreatedAt = fixedNow
	student.UpdatedAt = fixedNow
	r.students[student.ID] = cloneStudent(*student)
	return nil
}

func (r *fakeStudentRepo) Update(ctx context.Context, student *models.Student) error {
	defer r.begin()()
	if _, ok := r.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	r.students[student.ID] = cloneStudent(*student)
	return nil
}

func (r *fakeStudentRepo) Delete(ctx context.Context, id string) error {
	defer r.begin()()
	if _, ok := r.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.students, id)
	return nil
}

func (r *fakeStudentRepo) seed(enrollmentNumbers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, number := range enrollmentNumbers {
		id := fmt.Sprintf("seed-%d", i)
		r.students[id] = models.Student{
			ID:               id,
			EnrollmentNumber: number,
			FirstName:        "Seed",
			LastName:         strconv.Itoa(i),
			Phone:            fmt.Sprintf("+6281000000%02d", i),
			Status:           models.StudentStatusActive,
			EnrollmentDate:   fixedNow,
		}
	}
}

type fakeLeadRepo struct{ *memStore }

func (r fakeLeadRepo) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, int, error) {
	defer r.begin()()
	out := make([]models.Lead, 0, len(r.leads))
	for _, l := range r.leads {
		if filter.FollowUpDue != nil {
			if l.NextFollowUpAt == nil || l.NextFollowUpAt.After(*filter.FollowUpDue) {
				continue
			}
			if l.Status == models.LeadStatusConverted || l.Status == models.LeadStatusLost || l.Status == models.LeadStatusNotInterested {
				continue
			}
		}
		out = append(out, cloneLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakeLeadRepo) FindByID(ctx context.Context, id string) (*models.Lead, error) {
	defer r.begin()()
	l, ok := r.leads[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	l = cloneLead(l)
	return &l, nil
}

func (r fakeLeadRepo) FindByIDForUpdate(ctx context.Context, id string) (*models.Lead, error) {
	return r.FindByID(ctx, id)
}

func (r fakeLeadRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	defer r.begin()()
	for id, l := range r.leads {
		if id != excludeID && l.Email != nil && strings.EqualFold(*l.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeLeadRepo) ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	defer r.begin()()
	for id, l := range r.leads {
		if id != excludeID && l.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeLeadRepo) Create(ctx context.Context, lead *models.Lead) error {
	defer r.begin()()
	lead.ID = r.nextID("lead")
	lead.CreatedAt = fixedNow
	lead.UpdatedAt = fixedNow
	r.leads[lead.ID] = cloneLead(*lead)
	return nil
}

func (r fakeLeadRepo) Update(ctx context.Context, lead *models.Lead) error {
	defer r.begin()()
	if _, ok := r.leads[lead.ID]; !ok {
		return sql.ErrNoRows
	}
	r.leads[lead.ID] = cloneLead(*lead)
	return nil
}

func (r fakeLeadRepo) Delete(ctx context.Context, id string) error {
	defer r.begin()()
	l, ok := r.leads[id]
	if !ok || l.Status == models.LeadStatusConverted {
		return sql.ErrNoRows
	}
	delete(r.leads, id)
	return nil
}

type fakeEmployeeRepo struct{ *memStore }

func (r fakeEmployeeRepo) List(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error) {
	defer r.begin()()
	out := make([]models.Employee, 0, len(r.employees))
	for _, e := range r.employees {
		if filter.Role != nil && e.Role != *filter.Role {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakeEmployeeRepo) FindByID(ctx context.Context, id string) (*models.Employee, error) {
	defer r.begin()()
	e, ok := r.employees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (r fakeEmployeeRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	defer r.begin()()
	for id, e := range r.employees {
		if id != excludeID && e.EmployeeCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeEmployeeRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	defer r.begin()()
	for id, e := range r.employees {
		if id != excludeID && strings.EqualFold(e.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeEmployeeRepo) Create(ctx context.Context, employee *models.Employee) error {
	defer r.begin()()
	employee.ID = r.nextID("emp")
	r.employees[employee.ID] = *employee
	return nil
}

func (r fakeEmployeeRepo) Update(ctx context.Context, employee *models.Employee) error {
	defer r.begin()()
	if _, ok := r.employees[employee.ID]; !ok {
		return sql.ErrNoRows
	}
	r.employees[employee.ID] = *employee
	return nil
}

type fakeCourseRepo struct{ *memStore }

func (r fakeCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	defer r.begin()()
	out := make([]models.Course, 0, len(r.courses))
	for _, c := range r.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakeCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	defer r.begin()()
	c, ok := r.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r fakeCourseRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	defer r.begin()()
	for id, c := range r.courses {
		if id != excludeID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeCourseRepo) Create(ctx context.Context, course *models.Course) error {
	defer r.begin()()
	course.ID = r.nextID("course")
	r.courses[course.ID] = *course
	return nil
}

func (r fakeCourseRepo) Update(ctx context.Context, course *models.Course) error {
	defer r.begin()()
	if _, ok := r.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	r.courses[course.ID] = *course
	return nil
}

type fakeCompanyRepo struct{ *memStore }

func (r fakeCompanyRepo) List(ctx context.Context, filter models.CompanyFilter) ([]models.Company, int, error) {
	defer r.begin()()
	out := make([]models.Company, 0, len(r.companies))
	for _, c := range r.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakeCompanyRepo) FindByID(ctx context.Context, id string) (*models.Company, error) {
	defer r.begin()()
	c, ok := r.companies[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (r fakeCompanyRepo) ExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	defer r.begin()()
	for id, c := range r.companies {
		if id != excludeID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeCompanyRepo) Create(ctx context.Context, company *models.Company) error {
	defer r.begin()()
	company.ID = r.nextID("company")
	r.companies[company.ID] = *company
	return nil
}

func (r fakeCompanyRepo) Update(ctx context.Context, company *models.Company) error {
	defer r.begin()()
	if _, ok := r.companies[company.ID]; !ok {
		return sql.ErrNoRows
	}
	r.companies[company.ID] = *company
	return nil
}

type fakePlacementRepo struct{ *memStore }

func (r fakePlacementRepo) List(ctx context.Context, filter models.PlacementFilter) ([]models.Placement, int, error) {
	defer r.begin()()
	out := make([]models.Placement, 0, len(r.placements))
	for _, p := range r.placements {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r fakePlacementRepo) FindByID(ctx context.Context, id string) (*models.Placement, error) {
	defer r.begin()()
	p, ok := r.placements[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (r fakePlacementRepo) Create(ctx context.Context, placement *models.Placement) error {
	defer r.begin()()
	placement.ID = r.nextID("placement")
	r.placements[placement.ID] = *placement
	return nil
}

func (r fakePlacementRepo) Update(ctx context.Context, placement *models.Placement) error {
	defer r.begin()()
	if _, ok := r.placements[placement.ID]; !ok {
		return sql.ErrNoRows
	}
	r.placements[placement.ID] = *placement
	return nil
}

func (r fakePlacementRepo) UpdateStatus(ctx context.Context, id string, status models.PlacementStatus) error {
	defer r.begin()()
	p, ok := r.placements[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	r.placements[id] = p
	return nil
}

func (r fakePlacementRepo) Delete(ctx context.Context, id string) error {
	defer r.begin()()
	if _, ok := r.placements[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.placements, id)
	return nil
}

// testEnv wires the services the way the gateway does, over one memStore.
type testEnv struct {
	store      *memStore
	tx         *fakeTx
	metrics    *MetricsService
	studentDB  *fakeStudentRepo
	batches    *BatchService
	students   *StudentService
	leads      *LeadService
	placements *PlacementService
	employees  *EmployeeService
	courses    *CourseService
	companies  *CompanyService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	store.putCourse("course-go", 6)
	store.putEmployee("emp-admin", models.RoleAdmin, models.EmployeeStatusActive)
	store.putEmployee("emp-counsellor", models.RoleCounsellor, models.EmployeeStatusActive)
	store.putEmployee("emp-faculty", models.RoleFaculty, models.EmployeeStatusActive)

	tx := &fakeTx{store: store}
	metrics := NewMetricsService()
	studentDB := &fakeStudentRepo{memStore: store}

	batches := NewBatchService(fakeBatchRepo{store}, fakeCourseRepo{store}, fakeEmployeeRepo{store}, metrics, nil, nil)
	students := NewStudentService(studentDB, fakeLeadRepo{store}, batches, tx, config.EnrollmentConfig{}, metrics, nil, nil)
	students.now = func() time.Time { return fixedNow }
	leads := NewLeadService(fakeLeadRepo{store}, fakeEmployeeRepo{store}, students, tx, metrics, nil, nil)
	leads.now = func() time.Time { return fixedNow }
	placements := NewPlacementService(fakePlacementRepo{store}, studentDB, fakeCompanyRepo{store}, metrics, nil, nil)
	placements.now = func() time.Time { return fixedNow }

	return &testEnv{
		store:      store,
		tx:         tx,
		metrics:    metrics,
		studentDB:  studentDB,
		batches:    batches,
		students:   students,
		leads:      leads,
		placements: placements,
		employees:  NewEmployeeService(fakeEmployeeRepo{store}, nil, metrics, nil, nil),
		courses:    NewCourseService(fakeCourseRepo{store}, metrics, nil, nil),
		companies:  NewCompanyService(fakeCompanyRepo{store}, metrics, nil, nil),
	}
}

func strPtr(s string) *string { return &s }
