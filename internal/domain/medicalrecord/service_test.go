package medicalrecord

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/ehr/medrec/internal/platform/auth"
)

// =========== Mock Repository ===========

type mockRecordRepo struct {
	store    map[int64]*MedicalRecord
	accounts map[int64]string // id -> email
	nextID   int64
	err      error
	calls    int
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{store: make(map[int64]*MedicalRecord), accounts: make(map[int64]string)}
}

func (m *mockRecordRepo) sorted(keep func(*MedicalRecord) bool) []*MedicalRecord {
	var result []*MedicalRecord
	for _, r := range m.store {
		if keep(r) {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return result
}

func (m *mockRecordRepo) Create(_ context.Context, rec *MedicalRecord) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.store[rec.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id int64) (*MedicalRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.store[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id int64) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.store[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockRecordRepo) ListByUser(_ context.Context, userID int64) ([]*MedicalRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.sorted(func(r *MedicalRecord) bool { return r.UserID != nil && *r.UserID == userID }), nil
}

func (m *mockRecordRepo) ListRecent(_ context.Context, limit int) ([]*MedicalRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	all := m.sorted(func(*MedicalRecord) bool { return true })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *mockRecordRepo) ListWithPatients(_ context.Context) ([]JoinedRecord, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var rows []JoinedRecord
	for _, r := range m.sorted(func(*MedicalRecord) bool { return true }) {
		row := JoinedRecord{ID: r.ID, RecordDate: r.Date, Diagnosis: r.Diagnosis, Notes: r.Notes, DoctorName: r.DoctorName}
		if r.UserID != nil {
			if email, ok := m.accounts[*r.UserID]; ok {
				row.PatientEmail = &email
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// seed stores a record directly, bypassing the service clock.
func (m *mockRecordRepo) seed(userID int64, date time.Time, diagnosis string) *MedicalRecord {
	rec := &MedicalRecord{UserID: &userID, Date: date, Diagnosis: &diagnosis}
	m.nextID++
	rec.ID = m.nextID
	m.store[rec.ID] = rec
	return rec
}

// =========== Helpers ===========

var (
	doctor     = auth.Identity{UserID: 100, Role: auth.RoleDoctor, Name: "Ana Pop"}
	patient    = auth.Identity{UserID: 7, Role: auth.RolePatient, Name: "Ion"}
	dispatcher = auth.Identity{UserID: 200, Role: auth.RoleDispatcher, Name: "Dana"}
)

func newTestService() (*Service, *mockRecordRepo) {
	repo := newMockRecordRepo()
	return NewService(repo), repo
}

func strPtr(s string) *string { return &s }
func int64Ptr(i int64) *int64 { return &i }

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// =========== Tests ===========

func TestListOwn_OnlyCallerRecordsNewestFirst(t *testing.T) {
	svc, repo := newTestService()
	repo.seed(7, baseTime, "old")
	repo.seed(8, baseTime.Add(time.Hour), "someone else")
	repo.seed(7, baseTime.Add(2*time.Hour), "new")

	got, err := svc.ListOwn(context.Background(), patient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, r := range got {
		if *r.UserID != 7 {
			t.Errorf("record %d belongs to user %d", r.ID, *r.UserID)
		}
	}
	if *got[0].Diagnosis != "new" || *got[1].Diagnosis != "old" {
		t.Errorf("expected newest first, got %q then %q", *got[0].Diagnosis, *got[1].Diagnosis)
	}
}

func TestListOwn_EmptyIsNotAnError(t *testing.T) {
	svc, _ := newTestService()
	got, err := svc.ListOwn(context.Background(), patient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestListRecent_CapsAtTen(t *testing.T) {
	svc, repo := newTestService()
	for i := 0; i < 15; i++ {
		repo.seed(int64(i%3), baseTime.Add(time.Duration(i)*time.Minute), "dx")
	}

	got, err := svc.ListRecent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != RecentLimit {
		t.Fatalf("expected %d records, got %d", RecentLimit, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Date.After(got[i-1].Date) {
			t.Errorf("records not sorted newest first at %d", i)
		}
	}
	if !got[0].Date.Equal(baseTime.Add(14 * time.Minute)) {
		t.Errorf("expected newest record first, got %v", got[0].Date)
	}
}

func TestListRecent_FewerThanLimit(t *testing.T) {
	svc, repo := newTestService()
	repo.seed(1, baseTime, "a")
	repo.seed(2, baseTime.Add(time.Minute), "b")

	got, err := svc.ListRecent(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestCreate_SetsDateAndDoctorName(t *testing.T) {
	svc, repo := newTestService()
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	rec, err := svc.Create(context.Background(), doctor, CreateRequest{
		PatientID:    int64Ptr(7),
		Diagnosis:    strPtr("flu"),
		Prescription: strPtr("rest"),
		Notes:        strPtr("3 days"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == 0 {
		t.Error("expected datastore-assigned id")
	}
	if *rec.UserID != 7 || *rec.Diagnosis != "flu" || *rec.Prescription != "rest" || *rec.Notes != "3 days" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if *rec.DoctorName != "Dr. Ana Pop" {
		t.Errorf("expected doctor name 'Dr. Ana Pop', got %q", *rec.DoctorName)
	}
	if !rec.Date.Equal(fixed) {
		t.Errorf("expected date %v, got %v", fixed, rec.Date)
	}
	if _, ok := repo.store[rec.ID]; !ok {
		t.Error("record was not stored")
	}
}

func TestCreate_MissingFieldsAccepted(t *testing.T) {
	svc, _ := newTestService()
	rec, err := svc.Create(context.Background(), doctor, CreateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.UserID != nil || rec.Diagnosis != nil || rec.Prescription != nil || rec.Notes != nil {
		t.Errorf("expected nil fields, got %+v", rec)
	}
}

func TestCreate_DatastoreError(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("null value in column user_id")
	if _, err := svc.Create(context.Background(), doctor, CreateRequest{}); err == nil {
		t.Fatal("expected datastore error")
	}
}

func TestDelete_ExistingThenMissing(t *testing.T) {
	svc, repo := newTestService()
	rec := repo.seed(7, baseTime, "flu")

	if err := svc.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.store[rec.ID]; ok {
		t.Error("record still present after delete")
	}
	if err := svc.Delete(context.Background(), rec.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound on second delete, got %v", err)
	}
}

func TestDelete_MissingDoesNotMutate(t *testing.T) {
	svc, repo := newTestService()
	repo.seed(7, baseTime, "flu")

	if err := svc.Delete(context.Background(), 999); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if len(repo.store) != 1 {
		t.Errorf("expected store untouched, has %d records", len(repo.store))
	}
}

func TestListAll_ShapesRows(t *testing.T) {
	svc, repo := newTestService()
	repo.accounts[7] = "a.b@x.com"
	withDoctor := repo.seed(7, baseTime, "flu")
	withDoctor.DoctorName = strPtr("Dr. Ana Pop")
	repo.seed(42, baseTime.Add(time.Hour), "orphan") // account 42 was deleted

	rows, err := svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	orphan, known := rows[0], rows[1]
	if orphan.PatientName != UnknownPatient || orphan.DoctorName != UnknownDoctor {
		t.Errorf("unexpected orphan row: %+v", orphan)
	}
	if known.PatientName != "a.b" || known.DoctorName != "Dr. Ana Pop" {
		t.Errorf("unexpected row: %+v", known)
	}
	if !known.RecordDate.Equal(baseTime) {
		t.Errorf("expected record_date %v, got %v", baseTime, known.RecordDate)
	}
}

func TestListAll_Empty(t *testing.T) {
	svc, _ := newTestService()
	rows, err := svc.ListAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", rows)
	}
}

func TestService_PropagatesDatastoreErrors(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("connection refused")
	ctx := context.Background()

	if _, err := svc.ListOwn(ctx, patient); err == nil {
		t.Error("ListOwn: expected error")
	}
	if _, err := svc.ListRecent(ctx); err == nil {
		t.Error("ListRecent: expected error")
	}
	if err := svc.Delete(ctx, 1); err == nil || errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Delete: expected datastore error, got %v", err)
	}
	if _, err := svc.ListAll(ctx); err == nil {
		t.Error("ListAll: expected error")
	}
}
