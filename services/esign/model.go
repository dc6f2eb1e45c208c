package esign

import (
	"time"

	"gorm.io/datatypes"
)

// ExternalSignatureEvent is the raw idempotency record for one provider
// webhook delivery. The verified signature is the primary key, so a second
// delivery of the same event cannot create a second row regardless of
// isolation level or retry storms.
type ExternalSignatureEvent struct {
	Signature      string         `gorm:"column:signature;primaryKey"`
	FeeAgreementID *string        `gorm:"column:fee_agreement_id;index"`
	EnvelopeID     string         `gorm:"column:envelope_id;index"`
	Action         string         `gorm:"column:action"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb"`
	RealDate       *time.Time     `gorm:"column:real_date"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ExternalSignatureEvent) TableName() string {
	return "external_signature_events"
}

// Envelope is the parsed webhook body. Only the fields the lifecycle engine
// needs are bound; the full raw payload rides along in the event record.
type Envelope struct {
	EnvelopeID string         `json:"envelopeId"`
	Action     string         `json:"action"`
	RealDate   *time.Time     `json:"realDate"`
	Data       map[string]any `json:"data"`
}
