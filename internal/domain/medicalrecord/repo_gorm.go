package medicalrecord

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type recordRepoGorm struct{ db *gorm.DB }

func NewRecordRepoGorm(db *gorm.DB) RecordRepository {
	return &recordRepoGorm{db: db}
}

const newestFirst = "date DESC"

func (r *recordRepoGorm) Create(ctx context.Context, rec *MedicalRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert medical record: %w", err)
	}
	return nil
}

func (r *recordRepoGorm) GetByID(ctx context.Context, id int64) (*MedicalRecord, error) {
	var rec MedicalRecord
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get medical record %d: %w", id, err)
	}
	return &rec, nil
}

func (r *recordRepoGorm) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&MedicalRecord{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete medical record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *recordRepoGorm) ListByUser(ctx context.Context, userID int64) ([]*MedicalRecord, error) {
	items := []*MedicalRecord{}
	err := r.db.WithContext(ctx).
		Where(&MedicalRecord{UserID: &userID}).
		Order(newestFirst).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list medical records for user %d: %w", userID, err)
	}
	return items, nil
}

func (r *recordRepoGorm) ListRecent(ctx context.Context, limit int) ([]*MedicalRecord, error) {
	items := []*MedicalRecord{}
	err := r.db.WithContext(ctx).
		Order(newestFirst).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list recent medical records: %w", err)
	}
	return items, nil
}

// ListWithPatients left-joins every record to its patient account so records
// whose account was deleted are still returned, with a NULL email.
func (r *recordRepoGorm) ListWithPatients(ctx context.Context) ([]JoinedRecord, error) {
	records := MedicalRecord{}.TableName()
	accounts := Account{}.TableName()

	rows := []JoinedRecord{}
	err := r.db.WithContext(ctx).
		Table(records+" AS mr").
		Select("mr.id AS id, mr.date AS record_date, mr.diagnosis AS diagnosis, mr.notes AS notes, " +
			"p.email AS patient_email, mr.doctor_name AS doctor_name").
		Joins("LEFT JOIN " + accounts + " p ON mr.user_id = p.id").
		Order("mr.date DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list medical records with patients: %w", err)
	}
	return rows, nil
}
