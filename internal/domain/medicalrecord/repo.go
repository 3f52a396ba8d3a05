package medicalrecord

import (
	"context"
	"errors"
)

var ErrRecordNotFound = errors.New("medical record not found")

// RecordRepository is the datastore contract of the service. Every method is
// a single statement.
type RecordRepository interface {
	Create(ctx context.Context, rec *MedicalRecord) error
	GetByID(ctx context.Context, id int64) (*MedicalRecord, error)
	Delete(ctx context.Context, id int64) error
	ListByUser(ctx context.Context, userID int64) ([]*MedicalRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*MedicalRecord, error)
	ListWithPatients(ctx context.Context) ([]JoinedRecord, error)
}
