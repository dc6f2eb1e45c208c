package esign

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"recruitflow-crm/pkg/errutil"
	"recruitflow-crm/services/feeagreement"
)

// Service turns verified provider webhooks into lifecycle transitions. The
// verified signature doubles as the idempotency key: record first, transition
// only when the record is new, so N deliveries of one event produce exactly
// one transition and one audit row.
type Service struct {
	verifier   *Verifier
	store      *EventStore
	agreements *feeagreement.Service
}

func NewService(verifier *Verifier, store *EventStore, agreements *feeagreement.Service) *Service {
	return &Service{
		verifier:   verifier,
		store:      store,
		agreements: agreements,
	}
}

// IngestResult tells the handler what happened without leaking verifier
// internals into the HTTP layer.
type IngestResult struct {
	Envelope  Envelope
	Duplicate bool
	Ignored   bool
}

// Ingest processes one webhook delivery. body must be the raw request bytes;
// candidates are the values found in the configured signature headers.
// Verification failures reject the delivery before anything is persisted.
// A replayed delivery is acknowledged as a success without re-applying the
// event.
func (s *Service) Ingest(ctx context.Context, body []byte, candidates []string) (IngestResult, error) {
	var result IngestResult

	matched, ok := s.verifier.Verify(body, candidates)
	if !ok {
		return result, errutil.Unauthorized("webhook signature verification failed")
	}

	if err := json.Unmarshal(body, &result.Envelope); err != nil {
		return result, errutil.BadRequest("malformed webhook payload", errutil.WithErr(err))
	}
	if result.Envelope.EnvelopeID == "" {
		return result, errutil.BadRequest("webhook payload has no envelope id")
	}

	created, _, err := s.store.RecordIfNew(ctx, &ExternalSignatureEvent{
		Signature:  matched,
		EnvelopeID: result.Envelope.EnvelopeID,
		Action:     result.Envelope.Action,
		Payload:    datatypes.JSON(body),
		RealDate:   result.Envelope.RealDate,
	})
	if err != nil {
		return result, err
	}
	if !created {
		result.Duplicate = true
		zap.L().Info("duplicate webhook delivery acknowledged",
			zap.String("envelope_id", result.Envelope.EnvelopeID),
			zap.String("action", result.Envelope.Action),
		)
		return result, nil
	}

	action, known := mapAction(result.Envelope.Action)
	if !known {
		result.Ignored = true
		zap.L().Info("ignoring webhook with unmapped action",
			zap.String("envelope_id", result.Envelope.EnvelopeID),
			zap.String("action", result.Envelope.Action),
		)
		return result, nil
	}

	agreement, err := s.agreements.FindByExternalContract(ctx, result.Envelope.EnvelopeID)
	if err != nil {
		return result, err
	}
	if agreement == nil {
		result.Ignored = true
		zap.L().Warn("webhook references unknown contract",
			zap.String("envelope_id", result.Envelope.EnvelopeID),
		)
		return result, nil
	}

	if err := s.store.LinkAgreement(ctx, matched, agreement.ID); err != nil {
		zap.L().Error("failed to link event to agreement", zap.Error(err))
	}

	_, err = s.agreements.ApplyActorCommand(ctx, agreement.ID, feeagreement.Command{
		Action:   action,
		Actor:    feeagreement.SystemActor,
		Details:  result.Envelope.Data,
		RealDate: result.Envelope.RealDate,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		// Lifecycle rejections are final: the event stays recorded and a
		// redelivery stays a no-op. A transient failure releases the record
		// so the provider's retry can apply the event.
		if !errutil.HasStatus(err, errutil.StatusInvalidTransition) &&
			!errutil.HasStatus(err, errutil.StatusPreconditionFailed) {
			if ferr := s.store.Forget(ctx, matched); ferr != nil {
				zap.L().Error("failed to release signature event after apply failure",
					zap.String("envelope_id", result.Envelope.EnvelopeID),
					zap.Error(ferr),
				)
			}
		}
		return result, err
	}
	return result, nil
}

// mapAction translates provider vocabulary into lifecycle actions. Providers
// disagree on naming, so several aliases map to each action; anything not
// listed is recorded but deliberately not applied.
func mapAction(provider string) (feeagreement.Action, bool) {
	switch provider {
	case "hiring_authority_signed", "recipient_signed", "signed":
		return feeagreement.ActionHiringAuthoritySigned, true
	case "all_parties_signed", "envelope_completed", "completed":
		return feeagreement.ActionAllPartiesSigned, true
	case "declined", "voided":
		return feeagreement.ActionProviderVoided, true
	default:
		return "", false
	}
}
