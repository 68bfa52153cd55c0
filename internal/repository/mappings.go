package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/compliance-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// MappingsRepository upserts external records into their mapping table.
type MappingsRepository interface {
	Upsert(ctx context.Context, m model.RecordMapping) error
}

type MappingsRepositoryImpl struct {
	db *sqlx.DB
}

func NewMappingsRepository(db *sqlx.DB) *MappingsRepositoryImpl {
	return &MappingsRepositoryImpl{db: db}
}

var _ MappingsRepository = (*MappingsRepositoryImpl)(nil)

func mappingTable(t model.DataType) (string, error) {
	switch t {
	case model.DataTypeCustomer:
		return "customer_mappings", nil
	case model.DataTypeTransaction:
		return "transaction_mappings", nil
	case model.DataTypeDocument:
		return "document_mappings", nil
	default:
		return "", fmt.Errorf("no mapping table for data type %q", t)
	}
}

// Upsert keys on (client_id, external_id); internal_id is kept from the first insert.
func (r *MappingsRepositoryImpl) Upsert(ctx context.Context, m model.RecordMapping) error {
	table, err := mappingTable(m.DataType)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
		    (client_id, external_id, internal_id, customer_external_id, sync_status, data, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, NOW(6), NOW(6))
		ON DUPLICATE KEY UPDATE
		    customer_external_id = VALUES(customer_external_id),
		    sync_status          = VALUES(sync_status),
		    data                 = VALUES(data),
		    updated_at           = VALUES(updated_at)
	`, table)

	_, err = r.db.ExecContext(ctx, q,
		m.ClientID, m.ExternalID, m.InternalID, m.CustomerExternalID, m.SyncStatus, m.Data,
	)
	return err
}
