package model

const SyncStatusSynced = "synced"

// RecordMapping links an external record of a tenant to our internal id.
// Unique by (ClientID, ExternalID) inside the table of its DataType.
type RecordMapping struct {
	DataType           DataType `db:"-"`
	ClientID           string   `db:"client_id"`
	ExternalID         string   `db:"external_id"`
	InternalID         string   `db:"internal_id"`
	CustomerExternalID *string  `db:"customer_external_id"` // transactions and documents only
	SyncStatus         string   `db:"sync_status"`
	Data               RawJSON  `db:"data"`
}
