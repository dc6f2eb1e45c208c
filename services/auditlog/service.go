package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"recruitflow-crm/pkg/db/option"
	"recruitflow-crm/pkg/errutil"
	"recruitflow-crm/pkg/repository"
)

// Entry is what the orchestrator records for an accepted transition.
type Entry struct {
	FeeAgreementID  string
	TriggeredBy     *string
	ResultingStatus string
	EventType       string
	Details         map[string]any
	RealDate        *time.Time
}

type Service struct {
	node *snowflake.Node
	repo repository.Repository[EventLog]
}

type Params struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		node: p.Node,
		repo: repository.ProvideStore[EventLog](p.DB),
	}
}

// Append writes one event row. When tx is non-nil the row joins the caller's
// transaction so the state write and its audit row commit as a unit.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry Entry) (*EventLog, error) {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return nil, errutil.Internal("failed to encode event details", errutil.WithErr(err))
		}
	}

	row := &EventLog{
		ID:              s.node.Generate().String(),
		FeeAgreementID:  entry.FeeAgreementID,
		TriggeredBy:     entry.TriggeredBy,
		ResultingStatus: entry.ResultingStatus,
		EventType:       entry.EventType,
		EventDetails:    details,
		RealDate:        entry.RealDate,
	}

	if err := s.repo.WithTrx(tx).Create(ctx, row); err != nil {
		return nil, errutil.StorageFailure("failed to append event log", err)
	}
	return row, nil
}

// History returns an agreement's rows ordered by business-effective time,
// newest first. Ingestion time breaks ties for events the provider never
// dated, so out-of-order delivery does not reorder the display.
func (s *Service) History(ctx context.Context, agreementID string) ([]*EventLog, error) {
	rows, err := s.repo.Find(ctx,
		&EventLog{FeeAgreementID: agreementID},
		option.WithOrder("COALESCE(real_date, created_at) DESC, id DESC"),
	)
	if err != nil {
		return nil, errutil.StorageFailure("failed to load event history", err)
	}
	return rows, nil
}

// CountForAgreement supports idempotency checks in the webhook path and tests.
func (s *Service) CountForAgreement(ctx context.Context, agreementID string) (int64, error) {
	return s.repo.Count(ctx, &EventLog{FeeAgreementID: agreementID})
}
