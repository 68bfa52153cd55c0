package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmehdipour/compliance-gateway/internal/validation"
)

// recordHandler turns one raw record into the mapping row to upsert.
type recordHandler func(v *validator.Validate, clientID string, raw json.RawMessage) (model.RecordMapping, error)

var recordHandlers = map[model.DataType]recordHandler{
	model.DataTypeCustomer:    handleCustomer,
	model.DataTypeTransaction: handleTransaction,
	model.DataTypeDocument:    handleDocument,
}

func handleCustomer(v *validator.Validate, clientID string, raw json.RawMessage) (model.RecordMapping, error) {
	rec, err := decodeRecord[model.CustomerRecord](v, raw)
	if err != nil {
		return model.RecordMapping{}, err
	}
	return newMapping(model.DataTypeCustomer, clientID, rec.ExternalID, nil, raw), nil
}

func handleTransaction(v *validator.Validate, clientID string, raw json.RawMessage) (model.RecordMapping, error) {
	rec, err := decodeRecord[model.TransactionRecord](v, raw)
	if err != nil {
		return model.RecordMapping{}, err
	}
	return newMapping(model.DataTypeTransaction, clientID, rec.ExternalID, &rec.CustomerExternalID, raw), nil
}

func handleDocument(v *validator.Validate, clientID string, raw json.RawMessage) (model.RecordMapping, error) {
	rec, err := decodeRecord[model.DocumentRecord](v, raw)
	if err != nil {
		return model.RecordMapping{}, err
	}
	return newMapping(model.DataTypeDocument, clientID, rec.ExternalID, &rec.CustomerExternalID, raw), nil
}

func decodeRecord[T any](v *validator.Validate, raw json.RawMessage) (T, error) {
	var rec T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return rec, errors.New("record must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return rec, fmt.Errorf("malformed record: %w", err)
	}
	if err := v.Struct(rec); err != nil {
		return rec, errors.New(validation.Describe(err))
	}
	return rec, nil
}

func newMapping(t model.DataType, clientID, externalID string, customerExternalID *string, raw json.RawMessage) model.RecordMapping {
	return model.RecordMapping{
		DataType:           t,
		ClientID:           clientID,
		ExternalID:         externalID,
		InternalID:         uuid.NewString(),
		CustomerExternalID: customerExternalID,
		SyncStatus:         model.SyncStatusSynced,
		Data:               model.RawJSON(bytes.TrimSpace(raw)),
	}
}

// recordIdentifier names a record in error reports: external_id, then id,
// then its position in the batch.
func recordIdentifier(raw json.RawMessage, index int) string {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber() // numeric ids keep their literal form
	if err := dec.Decode(&fields); err == nil {
		for _, key := range []string{"external_id", "id"} {
			switch v := fields[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case json.Number:
				return v.String()
			}
		}
	}
	return fmt.Sprintf("#%d", index)
}
