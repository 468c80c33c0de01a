package users

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/roster/internal/records"
)

const isoDateLayout = "2006-01-02"

// UserRecord is the persisted form of a records.Record.
type UserRecord struct {
	RecordID       int    `gorm:"column:record_id;primaryKey;autoIncrement:false"`
	FirstName      string `gorm:"column:first_name;size:50;not null"`
	LastName       string `gorm:"column:last_name;size:50;not null"`
	Age            int    `gorm:"column:age;not null"`
	Email          string `gorm:"column:email;size:320;not null;uniqueIndex"`
	Phone          string `gorm:"column:phone;size:32;not null"`
	BirthDate      string `gorm:"column:birth_date;size:10;not null"`
	CreatedAtNanos int64  `gorm:"column:created_at_ns;not null;index"`
	UpdatedAtNanos int64  `gorm:"column:updated_at_ns;not null"`
}

// TableName exposes the table backing user records.
func (UserRecord) TableName() string {
	return "user_records"
}

func fromRecord(record records.Record) UserRecord {
	return UserRecord{
		RecordID:  record.ID,
		FirstName: strings.TrimSpace(record.FirstName),
		LastName:  strings.TrimSpace(record.LastName),
		Age:       record.Age,
		Email:     strings.TrimSpace(record.Email),
		Phone:     strings.TrimSpace(record.Phone),
		BirthDate: dateOnly(record.BirthDate),
	}
}

func (u UserRecord) toRecord() records.Record {
	return records.Record{
		ID:        u.RecordID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Age:       u.Age,
		Email:     u.Email,
		Phone:     u.Phone,
		BirthDate: u.BirthDate,
	}
}

// dateOnly reduces a validated birth date to YYYY-MM-DD.
func dateOnly(value string) string {
	trimmed := strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC().Format(isoDateLayout)
	}
	return trimmed
}
