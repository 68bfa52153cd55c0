package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type DataType string

const (
	DataTypeCustomer    DataType = "customer"
	DataTypeTransaction DataType = "transaction"
	DataTypeDocument    DataType = "document"
)

func (t DataType) String() string { return string(t) }

func (t DataType) Valid() bool {
	return t == DataTypeCustomer || t == DataTypeTransaction || t == DataTypeDocument
}

// ParseDataType normalizes input. Returns (value, true) if valid.
func ParseDataType(s string) (DataType, bool) {
	t := DataType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

type IngestionStatus string

const (
	IngestionCompleted IngestionStatus = "completed"
	IngestionPartial   IngestionStatus = "partial"
	IngestionFailed    IngestionStatus = "failed"
)

func (s IngestionStatus) String() string { return string(s) }

// DeriveIngestionStatus: no errors => completed, no successes => failed, else partial.
func DeriveIngestionStatus(successCount, errorCount int) IngestionStatus {
	switch {
	case errorCount == 0:
		return IngestionCompleted
	case successCount == 0:
		return IngestionFailed
	default:
		return IngestionPartial
	}
}

// RecordFailure describes one record that could not be applied.
type RecordFailure struct {
	RecordID string `json:"record_id"`
	Index    int    `json:"index"`
	Error    string `json:"error"`
}

// RecordFailures is stored as a JSON array, NULL when empty.
type RecordFailures []RecordFailure

func (f RecordFailures) Value() (driver.Value, error) {
	if len(f) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]RecordFailure(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *RecordFailures) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("model: cannot scan %T into RecordFailures", src)
	}
	return json.Unmarshal(b, (*[]RecordFailure)(f))
}

// IngestionLog is written once per batch and never updated.
type IngestionLog struct {
	ID               string          `db:"id"               json:"id"`
	ClientID         string          `db:"client_id"        json:"client_id"`
	RequestID        *string         `db:"request_id"       json:"request_id,omitempty"`
	IngestionType    DataType        `db:"ingestion_type"   json:"ingestion_type"`
	RecordCount      int             `db:"record_count"     json:"record_count"`
	SuccessCount     int             `db:"success_count"    json:"success_count"`
	ErrorCount       int             `db:"error_count"      json:"error_count"`
	Status           IngestionStatus `db:"status"           json:"status"`
	ErrorDetails     RecordFailures  `db:"error_details"    json:"error_details,omitempty"`
	ProcessingTimeMs int64           `db:"processing_time_ms" json:"processing_time_ms"`
	CreatedAt        time.Time       `db:"created_at"       json:"created_at"`
}
