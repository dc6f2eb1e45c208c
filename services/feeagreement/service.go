package feeagreement

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"recruitflow-crm/pkg/config"
	"recruitflow-crm/pkg/db/option"
	"recruitflow-crm/pkg/errutil"
	"recruitflow-crm/pkg/repository"
	"recruitflow-crm/pkg/task"
	"recruitflow-crm/pkg/taskname"
	"recruitflow-crm/services/auditlog"
)

// Service orchestrates the agreement lifecycle: it owns all I/O around the
// pure state machine. Every mutation goes through a row-locked transaction
// that persists the new state and its audit row as a unit; side effects are
// dispatched only after commit and never roll the transition back.
type Service struct {
	db         *gorm.DB
	node       *snowflake.Node
	machineCfg TransitionConfig
	reminder   time.Duration
	sweepLimit int
	agreements repository.Repository[FeeAgreement]
	audit      *auditlog.Service
	enqueuer   task.Enqueuer
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Cfg      *config.Config
	Audit    *auditlog.Service
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p Params) *Service {
	sweepLimit := p.Cfg.FeeAgreement.SweepConcurrency
	if sweepLimit <= 0 {
		sweepLimit = 1
	}
	return &Service{
		db:   p.DB,
		node: p.Node,
		machineCfg: TransitionConfig{
			RequireCountersign: p.Cfg.FeeAgreement.RequireCountersign,
			ExpirationWindow:   p.Cfg.FeeAgreement.ExpirationWindow,
		},
		reminder:   p.Cfg.FeeAgreement.ReminderWindow,
		sweepLimit: sweepLimit,
		agreements: repository.ProvideStore[FeeAgreement](p.DB),
		audit:      p.Audit,
		enqueuer:   p.Enqueuer,
	}
}

// CreateInput carries the initial terms of a draft agreement.
type CreateInput struct {
	CompanyID            string
	HiringAuthorityID    string
	HiringAuthorityName  string
	HiringAuthorityEmail string
	FeePercent           float64
	GuaranteeDays        int
	FlatFeeAmount        *float64
	PaymentScheme        string
	ProcessType          SignatureProcessType
	Provider             EsignProvider
	Creator              Actor
	CoachID              *string
	RegionalDirectorID   *string
	ProductionDirectorID *string
	CCEmails             []string
	VerbiageChangeNotes  string
}

const PaymentSchemeFlat = "flat"

func (in CreateInput) validate() error {
	details := make([]errutil.Detail, 0)
	if in.CompanyID == "" {
		details = append(details, errutil.Detail{Field: "company_id", Message: "required"})
	}
	if in.Creator.ID == "" {
		details = append(details, errutil.Detail{Field: "creator", Message: "required"})
	}
	if in.FeePercent < 0 || in.FeePercent > 100 {
		details = append(details, errutil.Detail{Field: "fee_percent", Message: "must be between 0 and 100"})
	}
	if in.GuaranteeDays <= 0 {
		details = append(details, errutil.Detail{Field: "guarantee_days", Message: "must be positive"})
	}
	if in.PaymentScheme == PaymentSchemeFlat && in.FlatFeeAmount == nil {
		details = append(details, errutil.Detail{Field: "flat_fee_amount", Message: "required for flat payment scheme"})
	}
	switch in.ProcessType {
	case ProcessAgencyManaged:
		if in.Provider == ProviderNone {
			details = append(details, errutil.Detail{Field: "esign_provider", Message: "required for agency-managed agreements"})
		}
	case ProcessExternalUnmanaged:
		if in.Provider != ProviderNone {
			details = append(details, errutil.Detail{Field: "esign_provider", Message: "must be empty for externally unmanaged agreements"})
		}
	default:
		details = append(details, errutil.Detail{Field: "signature_process_type", Message: "unknown process type"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid fee agreement", errutil.WithDetails(details...))
	}
	return nil
}

// Create opens a new agreement in Draft and records the creation event.
func (s *Service) Create(ctx context.Context, in CreateInput) (*FeeAgreement, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	deadline := now.Add(s.machineCfg.ExpirationWindow)

	ccEmails, err := json.Marshal(in.CCEmails)
	if err != nil {
		return nil, errutil.Internal("failed to encode cc emails", errutil.WithErr(err))
	}

	agreement := &FeeAgreement{
		ID:                   s.node.Generate().String(),
		CompanyID:            in.CompanyID,
		HiringAuthorityID:    in.HiringAuthorityID,
		HiringAuthorityName:  in.HiringAuthorityName,
		HiringAuthorityEmail: in.HiringAuthorityEmail,
		FeePercent:           in.FeePercent,
		GuaranteeDays:        in.GuaranteeDays,
		FlatFeeAmount:        in.FlatFeeAmount,
		PaymentScheme:        in.PaymentScheme,
		Status:               StatusDraft,
		ResponsibleRole:      RoleRecruiter,
		ProcessType:          in.ProcessType,
		Provider:             in.Provider,
		CreatorID:            in.Creator.ID,
		CoachID:              in.CoachID,
		RegionalDirectorID:   in.RegionalDirectorID,
		ProductionDirectorID: in.ProductionDirectorID,
		CCEmails:             ccEmails,
		VerbiageChangeNotes:  in.VerbiageChangeNotes,
		ExpiresAt:            &deadline,
		LastTransitionAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.agreements.WithTrx(tx).Create(ctx, agreement); err != nil {
			return errutil.StorageFailure("failed to create fee agreement", err)
		}
		_, err := s.audit.Append(ctx, tx, auditlog.Entry{
			FeeAgreementID:  agreement.ID,
			TriggeredBy:     strPtr(in.Creator.ID),
			ResultingStatus: string(StatusDraft),
			EventType:       "created",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return agreement, nil
}

// ApplyActorCommand runs one transition under the agreement's row lock. The
// state write and the audit row commit atomically; effects go out afterwards.
func (s *Service) ApplyActorCommand(ctx context.Context, agreementID string, cmd Command) (*FeeAgreement, error) {
	if cmd.Now.IsZero() {
		cmd.Now = time.Now().UTC()
	}

	var updated *FeeAgreement
	var effects []Effect

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.agreements.WithTrx(tx).FindOne(ctx,
			&FeeAgreement{ID: agreementID},
			option.WithLockForUpdate(),
		)
		if err != nil {
			return errutil.StorageFailure("failed to load fee agreement", err)
		}
		if current == nil {
			return errutil.NotFound("fee agreement not found")
		}
		if !current.Status.Valid() {
			return errutil.Internal("fee agreement has an unknown status: " + current.Status.String())
		}

		outcome, err := Evaluate(*current, cmd, s.machineCfg)
		if err != nil {
			return err
		}

		if err := tx.Save(&outcome.Agreement).Error; err != nil {
			return errutil.StorageFailure("failed to persist transition", err)
		}

		if _, err := s.audit.Append(ctx, tx, auditlog.Entry{
			FeeAgreementID:  agreementID,
			TriggeredBy:     triggeredBy(cmd.Actor),
			ResultingStatus: string(outcome.Agreement.Status),
			EventType:       outcome.EventType,
			Details:         eventDetails(cmd),
			RealDate:        cmd.RealDate,
		}); err != nil {
			return err
		}

		updated = &outcome.Agreement
		effects = outcome.Effects
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEffects(ctx, updated, effects)
	return updated, nil
}

// UpdateTerms changes fee percent, guarantee days or verbiage notes. Terms
// are frozen once the agreement leaves the draft/negotiation phase unless the
// declining reviewer flagged the specific term for change.
type TermUpdate struct {
	FeePercent          *float64
	GuaranteeDays       *int
	VerbiageChangeNotes *string
	Actor               Actor
}

func (s *Service) UpdateTerms(ctx context.Context, agreementID string, update TermUpdate) (*FeeAgreement, error) {
	var updated *FeeAgreement

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.agreements.WithTrx(tx).FindOne(ctx,
			&FeeAgreement{ID: agreementID},
			option.WithLockForUpdate(),
		)
		if err != nil {
			return errutil.StorageFailure("failed to load fee agreement", err)
		}
		if current == nil {
			return errutil.NotFound("fee agreement not found")
		}
		if !current.isCreatorOrCoach(update.Actor) {
			return errutil.Unauthorized("only the creator or coach may edit terms")
		}
		if current.Status.Terminal() {
			return errutil.PreconditionFailed("terms are frozen on a closed agreement")
		}

		editable := current.Status == StatusDraft
		if update.FeePercent != nil {
			if !editable && !current.FeePercentChangeRequested {
				return errutil.PreconditionFailed("fee percent is frozen after submission")
			}
			if *update.FeePercent < 0 || *update.FeePercent > 100 {
				return errutil.ValidationFailed("fee percent must be between 0 and 100")
			}
			current.FeePercent = *update.FeePercent
		}
		if update.GuaranteeDays != nil {
			if !editable && !current.GuaranteeDaysChangeRequested {
				return errutil.PreconditionFailed("guarantee days are frozen after submission")
			}
			if *update.GuaranteeDays <= 0 {
				return errutil.ValidationFailed("guarantee days must be positive")
			}
			current.GuaranteeDays = *update.GuaranteeDays
		}
		if update.VerbiageChangeNotes != nil {
			if !editable && !current.VerbiageChangeRequested {
				return errutil.PreconditionFailed("verbiage is frozen after submission")
			}
			current.VerbiageChangeNotes = *update.VerbiageChangeNotes
		}

		if err := tx.Save(current).Error; err != nil {
			return errutil.StorageFailure("failed to persist term update", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, agreementID string) (*FeeAgreement, error) {
	agreement, err := s.agreements.FindOne(ctx, &FeeAgreement{ID: agreementID})
	if err != nil {
		return nil, errutil.StorageFailure("failed to load fee agreement", err)
	}
	if agreement == nil {
		return nil, errutil.NotFound("fee agreement not found")
	}
	return agreement, nil
}

func (s *Service) History(ctx context.Context, agreementID string) ([]*auditlog.EventLog, error) {
	if _, err := s.Get(ctx, agreementID); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, agreementID)
}

// FindByExternalContract resolves a webhook envelope to its agreement.
func (s *Service) FindByExternalContract(ctx context.Context, externalContractID string) (*FeeAgreement, error) {
	if externalContractID == "" {
		return nil, nil
	}
	agreement, err := s.agreements.FindOne(ctx, &FeeAgreement{ExternalContractID: externalContractID})
	if err != nil {
		return nil, errutil.StorageFailure("failed to look up agreement by contract id", err)
	}
	return agreement, nil
}

// RecordExternalContract stores the provider's contract id after a signature
// request has been created.
func (s *Service) RecordExternalContract(ctx context.Context, agreementID, externalContractID string) error {
	err := s.db.WithContext(ctx).Model(&FeeAgreement{}).
		Where("id = ?", agreementID).
		Update("external_contract_id", externalContractID).Error
	if err != nil {
		return errutil.StorageFailure("failed to record external contract id", err)
	}
	return nil
}

// SweepReport summarizes one expiration sweep run.
type SweepReport struct {
	Scanned        int      `json:"scanned"`
	Expired        int      `json:"expired"`
	Reminded       int      `json:"reminded"`
	AlreadyHandled int      `json:"already_handled"`
	Failed         []string `json:"failed,omitempty"`
}

// observe classifies one expire attempt. A rejection means another writer got
// to the agreement between the candidate select and the locked re-evaluation:
// already terminal (InvalidTransition) or its deadline was refreshed
// (PreconditionFailed). Neither is a failure.
func (r *SweepReport) observe(agreementID string, err error) {
	r.Scanned++
	switch {
	case err == nil:
		r.Expired++
	case errutil.HasStatus(err, errutil.StatusInvalidTransition),
		errutil.HasStatus(err, errutil.StatusPreconditionFailed):
		r.AlreadyHandled++
	default:
		r.Failed = append(r.Failed, agreementID)
		zap.L().Error("expiration sweep failed for agreement",
			zap.String("fee_agreement_id", agreementID),
			zap.Error(err),
		)
	}
}

// RunExpirationSweep expires overdue agreements and reminds soon-to-expire
// ones. It is safe to run repeatedly and concurrently with itself: rows that
// turned terminal or had their deadline refreshed since the candidate select
// reject the expire and count as already handled, and reminders are guarded
// by reminder_sent_at. One agreement's failure never aborts the rest.
func (s *Service) RunExpirationSweep(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{}

	var due []*FeeAgreement
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", TerminalStatuses).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Find(&due).Error
	if err != nil {
		return report, errutil.StorageFailure("failed to select overdue agreements", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepLimit)

	for _, agreement := range due {
		g.Go(func() error {
			_, err := s.ApplyActorCommand(gctx, agreement.ID, Command{
				Action: ActionExpire,
				Actor:  SystemActor,
				Now:    now,
			})
			mu.Lock()
			defer mu.Unlock()
			report.observe(agreement.ID, err)
			return nil
		})
	}
	_ = g.Wait()

	reminded, err := s.sendReminders(ctx, now)
	if err != nil {
		zap.L().Error("reminder pass failed", zap.Error(err))
	}
	report.Reminded = reminded

	return report, nil
}

func (s *Service) sendReminders(ctx context.Context, now time.Time) (int, error) {
	if s.reminder <= 0 {
		return 0, nil
	}

	var soon []*FeeAgreement
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", TerminalStatuses).
		Where("expires_at > ? AND expires_at <= ?", now, now.Add(s.reminder)).
		Where("reminder_sent_at IS NULL").
		Find(&soon).Error
	if err != nil {
		return 0, errutil.StorageFailure("failed to select agreements for reminders", err)
	}

	count := 0
	for _, agreement := range soon {
		res := s.db.WithContext(ctx).Model(&FeeAgreement{}).
			Where("id = ? AND reminder_sent_at IS NULL", agreement.ID).
			Update("reminder_sent_at", now)
		if res.Error != nil {
			zap.L().Error("failed to mark reminder", zap.String("fee_agreement_id", agreement.ID), zap.Error(res.Error))
			continue
		}
		if res.RowsAffected == 0 {
			// another sweep got here first
			continue
		}
		s.dispatchEffects(ctx, agreement, []Effect{ReminderEffect{
			AgreementID: agreement.ID,
			ExpiresAt:   *agreement.ExpiresAt,
		}})
		count++
	}
	return count, nil
}

func (s *Service) dispatchEffects(ctx context.Context, agreement *FeeAgreement, effects []Effect) {
	if len(effects) == 0 {
		return
	}
	if s.enqueuer == nil {
		zap.L().Warn("no enqueuer configured, dropping side effects",
			zap.String("fee_agreement_id", agreement.ID),
			zap.Int("effects", len(effects)),
		)
		return
	}

	for _, effect := range effects {
		name, payload, err := encodeEffect(agreement, effect)
		if err != nil {
			zap.L().Error("failed to encode side effect",
				zap.String("fee_agreement_id", agreement.ID),
				zap.String("effect", effect.EffectKind()),
				zap.Error(err),
			)
			continue
		}
		if _, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload), asynq.MaxRetry(5)); err != nil {
			// Dispatch is best effort: the transition is already durable.
			zap.L().Error("failed to enqueue side effect",
				zap.String("fee_agreement_id", agreement.ID),
				zap.String("task", name),
				zap.Error(err),
			)
		}
	}
}

// NotificationTask is the payload of taskname.NotificationDispatch tasks.
type NotificationTask struct {
	AgreementID string         `json:"agreement_id"`
	Template    string         `json:"template"`
	Recipient   Role           `json:"recipient"`
	Data        map[string]any `json:"data,omitempty"`
}

// SignatureRequestTask is the payload of taskname.EsignRequestCreate tasks.
type SignatureRequestTask struct {
	AgreementID string        `json:"agreement_id"`
	Provider    EsignProvider `json:"provider"`
}

// ReminderTask is the payload of taskname.NotificationReminder tasks.
type ReminderTask struct {
	AgreementID string    `json:"agreement_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func encodeEffect(agreement *FeeAgreement, effect Effect) (string, []byte, error) {
	switch e := effect.(type) {
	case NotifyEffect:
		payload, err := json.Marshal(NotificationTask{
			AgreementID: agreement.ID,
			Template:    e.Template,
			Recipient:   e.Recipient,
			Data:        e.Data,
		})
		return taskname.NotificationDispatch, payload, err
	case SignatureRequestEffect:
		payload, err := json.Marshal(SignatureRequestTask{
			AgreementID: e.AgreementID,
			Provider:    e.Provider,
		})
		return taskname.EsignRequestCreate, payload, err
	case ReminderEffect:
		payload, err := json.Marshal(ReminderTask{
			AgreementID: e.AgreementID,
			ExpiresAt:   e.ExpiresAt,
		})
		return taskname.NotificationReminder, payload, err
	default:
		return "", nil, errutil.Internal("unknown effect kind: " + effect.EffectKind())
	}
}

func triggeredBy(actor Actor) *string {
	if actor.IsSystem() {
		return nil
	}
	return strPtr(actor.ID)
}

func eventDetails(cmd Command) map[string]any {
	details := make(map[string]any, len(cmd.Details)+2)
	for k, v := range cmd.Details {
		details[k] = v
	}
	if cmd.Reason != "" {
		details["reason"] = cmd.Reason
	}
	if len(cmd.DeclinedFields) > 0 {
		details["declined_fields"] = cmd.DeclinedFields
	}
	if len(details) == 0 {
		return nil
	}
	return details
}
