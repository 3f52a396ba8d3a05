package medicalrecord

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// MedicalRecord maps to the medical_records table. Text fields are pointers
// because create accepts a body with any of them missing and stores NULL.
type MedicalRecord struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID       *int64    `gorm:"column:user_id" json:"user_id"`
	Date         time.Time `gorm:"column:date" json:"date"`
	Diagnosis    *string   `gorm:"column:diagnosis" json:"diagnosis"`
	Prescription *string   `gorm:"column:prescription" json:"prescription"`
	Notes        *string   `gorm:"column:notes" json:"notes"`
	DoctorName   *string   `gorm:"column:doctor_name" json:"doctor_name"`
}

func (MedicalRecord) TableName() string { return "medical_records" }

// Account is the read-only view of the users table needed by the admin listing.
type Account struct {
	ID    int64  `gorm:"column:id;primaryKey"`
	Email string `gorm:"column:email"`
	Role  string `gorm:"column:role"`
}

func (Account) TableName() string { return "users" }

// CreateRequest is the body of POST /create. No field is required and no
// field is type checked: see UnmarshalJSON. A "date" in the body is ignored.
type CreateRequest struct {
	PatientID    *int64  `json:"patient_id"`
	Diagnosis    *string `json:"diagnosis"`
	Prescription *string `json:"prescription"`
	Notes        *string `json:"notes"`
}

// UnmarshalJSON accepts patient_id as a number or a numeric string; any other
// value is stored as NULL. Text fields take any JSON value and keep its text.
func (r *CreateRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		PatientID    json.RawMessage `json:"patient_id"`
		Diagnosis    json.RawMessage `json:"diagnosis"`
		Prescription json.RawMessage `json:"prescription"`
		Notes        json.RawMessage `json:"notes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.PatientID = looseID(raw.PatientID)
	r.Diagnosis = looseText(raw.Diagnosis)
	r.Prescription = looseText(raw.Prescription)
	r.Notes = looseText(raw.Notes)
	return nil
}

func decodeScalar(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

func looseID(raw json.RawMessage) *int64 {
	var text string
	switch v := decodeScalar(raw).(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return nil
	}
	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		return &id
	}
	// 7.0 and "7.0" are whole numbers too
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != float64(int64(f)) {
		return nil
	}
	id := int64(f)
	return &id
}

func looseText(raw json.RawMessage) *string {
	var text string
	switch v := decodeScalar(raw).(type) {
	case nil:
		return nil
	case string:
		text = v
	case json.Number:
		text = v.String()
	case bool:
		text = strconv.FormatBool(v)
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil
		}
		text = buf.String()
	}
	return &text
}

// JoinedRecord is one row of medical_records LEFT JOIN users. PatientEmail is
// nil when the referenced account no longer exists.
type JoinedRecord struct {
	ID           int64
	RecordDate   time.Time
	Diagnosis    *string
	Notes        *string
	PatientEmail *string
	DoctorName   *string
}

// OverviewRow is the shaped row served to dispatchers and admins.
type OverviewRow struct {
	ID          int64     `json:"id"`
	RecordDate  time.Time `json:"record_date"`
	Diagnosis   *string   `json:"diagnosis"`
	Notes       *string   `json:"notes"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
}

const (
	UnknownPatient = "Unknown Patient"
	UnknownDoctor  = "Unknown Doctor"
)

// DoctorDisplayName is the doctor_name stored on records a doctor authors.
func DoctorDisplayName(name string) string {
	return "Dr. " + name
}

// PatientNameFromEmail returns the part of email before the first '@'. The
// whole string is returned when there is no '@'.
func PatientNameFromEmail(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// Shape converts a joined row into the overview served by the admin listing.
func (j JoinedRecord) Shape() OverviewRow {
	row := OverviewRow{
		ID:          j.ID,
		RecordDate:  j.RecordDate,
		Diagnosis:   j.Diagnosis,
		Notes:       j.Notes,
		PatientName: UnknownPatient,
		DoctorName:  UnknownDoctor,
	}
	if j.PatientEmail != nil && *j.PatientEmail != "" {
		row.PatientName = PatientNameFromEmail(*j.PatientEmail)
	}
	if j.DoctorName != nil && *j.DoctorName != "" {
		row.DoctorName = *j.DoctorName
	}
	return row
}
