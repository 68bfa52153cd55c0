package model

// Inbound record shapes. Unknown fields are kept in the mapping's raw data.

type CustomerRecord struct {
	ExternalID  string `json:"external_id"   validate:"required,max=128"`
	FirstName   string `json:"first_name"    validate:"max=128"`
	LastName    string `json:"last_name"     validate:"max=128"`
	Email       string `json:"email"         validate:"omitempty,email"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Country     string `json:"country"       validate:"omitempty,iso3166_1_alpha2"`
	RiskLevel   string `json:"risk_level"    validate:"omitempty,oneof=low medium high"`
}

type TransactionRecord struct {
	ExternalID         string  `json:"external_id"          validate:"required,max=128"`
	CustomerExternalID string  `json:"customer_external_id" validate:"required,max=128"`
	Amount             float64 `json:"amount"               validate:"gt=0"`
	Currency           string  `json:"currency"             validate:"required,iso4217"`
	TransactionType    string  `json:"transaction_type"     validate:"max=64"`
	OccurredAt         string  `json:"occurred_at"          validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type DocumentRecord struct {
	ExternalID         string `json:"external_id"          validate:"required,max=128"`
	CustomerExternalID string `json:"customer_external_id" validate:"required,max=128"`
	DocumentType       string `json:"document_type"        validate:"required,max=64"`
	DocumentNumber     string `json:"document_number"      validate:"max=128"`
	ExpiryDate         string `json:"expiry_date"          validate:"omitempty,datetime=2006-01-02"`
}
