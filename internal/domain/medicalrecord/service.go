package medicalrecord

import (
	"context"
	"time"

	"github.com/ehr/medrec/internal/platform/auth"
)

// RecentLimit caps the doctor's recent-activity listing.
const RecentLimit = 10

// Service implements the medical record operations. Role checks happen in the
// route guards; the service trusts the caller it is given.
type Service struct {
	records RecordRepository
	now     func() time.Time
}

func NewService(records RecordRepository) *Service {
	return &Service{records: records, now: time.Now}
}

// ListOwn returns the caller's records, newest first. No records is an empty
// slice, not an error.
func (s *Service) ListOwn(ctx context.Context, caller auth.Identity) ([]*MedicalRecord, error) {
	return nonNil(s.records.ListByUser(ctx, caller.UserID))
}

// ListRecent returns the newest records across all patients.
func (s *Service) ListRecent(ctx context.Context) ([]*MedicalRecord, error) {
	return nonNil(s.records.ListRecent(ctx, RecentLimit))
}

// nonNil keeps empty listings serialized as [] rather than null.
func nonNil(items []*MedicalRecord, err error) ([]*MedicalRecord, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return items, nil
}

// Create stores a record authored by caller. The date is always the current
// time and the patient id is not checked against the accounts table.
func (s *Service) Create(ctx context.Context, caller auth.Identity, req CreateRequest) (*MedicalRecord, error) {
	doctor := DoctorDisplayName(caller.Name)
	rec := &MedicalRecord{
		UserID:       req.PatientID,
		Date:         s.now(),
		Diagnosis:    req.Diagnosis,
		Prescription: req.Prescription,
		Notes:        req.Notes,
		DoctorName:   &doctor,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record regardless of which doctor authored it. A missing
// id yields ErrRecordNotFound and leaves the store untouched.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.records.GetByID(ctx, id); err != nil {
		return err
	}
	return s.records.Delete(ctx, id)
}

// ListAll returns every record joined with its patient, shaped for display.
func (s *Service) ListAll(ctx context.Context) ([]OverviewRow, error) {
	joined, err := s.records.ListWithPatients(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]OverviewRow, 0, len(joined))
	for _, j := range joined {
		rows = append(rows, j.Shape())
	}
	return rows, nil
}
