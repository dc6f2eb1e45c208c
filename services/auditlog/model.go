package auditlog

import (
	"time"

	"gorm.io/datatypes"
)

// EventLog is one append-only row per accepted fee-agreement transition.
// real_date is when the event really happened (the provider may backdate it);
// created_at is when we learned about it. Rows are never updated or deleted.
type EventLog struct {
	ID              string         `gorm:"column:id;primaryKey"`
	FeeAgreementID  string         `gorm:"column:fee_agreement_id;index;not null"`
	TriggeredBy     *string        `gorm:"column:triggered_by"`
	ResultingStatus string         `gorm:"column:resulting_status;not null"`
	EventType       string         `gorm:"column:event_type;not null"`
	EventDetails    datatypes.JSON `gorm:"column:event_details;type:jsonb"`
	RealDate        *time.Time     `gorm:"column:real_date"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (EventLog) TableName() string {
	return "fee_agreement_event_logs"
}

// EffectiveDate is the display timestamp: business time when known, ingestion
// time otherwise.
func (e *EventLog) EffectiveDate() time.Time {
	if e.RealDate != nil {
		return *e.RealDate
	}
	return e.CreatedAt
}
