package esign

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"recruitflow-crm/pkg/config"
	"recruitflow-crm/pkg/errutil"
	"recruitflow-crm/services/auditlog"
	"recruitflow-crm/services/feeagreement"
	"recruitflow-crm/services/testutil"
)

type ingestFixture struct {
	db         *gorm.DB
	service    *Service
	agreements *feeagreement.Service
	audit      *auditlog.Service
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&feeagreement.FeeAgreement{},
		&feeagreement.FeeAgreementStatus{},
		&auditlog.EventLog{},
		&ExternalSignatureEvent{},
	)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.FeeAgreement.ExpirationWindow = 30 * 24 * time.Hour
	cfg.FeeAgreement.RequireCountersign = true

	audit := auditlog.NewService(auditlog.Params{DB: db, Node: node})
	agreements := feeagreement.NewService(feeagreement.Params{
		DB:    db,
		Node:  node,
		Cfg:   cfg,
		Audit: audit,
	})

	return &ingestFixture{
		db:         db,
		service:    NewService(NewVerifier("shared-key"), NewEventStore(db), agreements),
		agreements: agreements,
		audit:      audit,
	}
}

// pendingAgreement seeds an agreement already out for signature, linked to the
// given provider contract id.
func (f *ingestFixture) pendingAgreement(t *testing.T, contractID string) *feeagreement.FeeAgreement {
	t.Helper()

	deadline := time.Now().UTC().Add(30 * 24 * time.Hour)
	agreement := &feeagreement.FeeAgreement{
		ID:                 fmt.Sprintf("fa-%s", contractID),
		CompanyID:          "co-1",
		FeePercent:         20,
		GuaranteeDays:      90,
		PaymentScheme:      "percentage",
		Status:             feeagreement.StatusPendingSignature,
		ProcessType:        feeagreement.ProcessAgencyManaged,
		Provider:           feeagreement.ProviderDocuSign,
		CreatorID:          "rec-1",
		ExternalContractID: contractID,
		ExpiresAt:          &deadline,
		LastTransitionAt:   time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(agreement).Error)
	return agreement
}

func (f *ingestFixture) signedBody(t *testing.T, envelope map[string]any) ([]byte, []string) {
	t.Helper()
	body, err := json.Marshal(envelope)
	require.NoError(t, err)
	sig := f.service.verifier.Sign(body)
	return body, []string{"", sig}
}

func TestIngestRejectsBadSignatureBeforePersisting(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pendingAgreement(t, "env-1")

	body := []byte(`{"envelopeId":"env-1","action":"recipient_signed"}`)
	_, err := f.service.Ingest(ctx, body, []string{"not-a-signature"})
	require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))

	var count int64
	require.NoError(t, f.db.Model(&ExternalSignatureEvent{}).Count(&count).Error)
	require.Zero(t, count, "rejected deliveries leave no trace")

	got, err := f.agreements.Get(ctx, "fa-env-1")
	require.NoError(t, err)
	require.Equal(t, feeagreement.StatusPendingSignature, got.Status)
}

func TestIngestAppliesEachEventExactlyOnce(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pendingAgreement(t, "env-1")

	body, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-1",
		"action":     "recipient_signed",
	})

	// the provider redelivers; only the first application transitions
	for i := 0; i < 3; i++ {
		result, err := f.service.Ingest(ctx, body, headers)
		require.NoError(t, err, "delivery %d", i)
		require.Equal(t, i > 0, result.Duplicate, "delivery %d", i)
	}

	got, err := f.agreements.Get(ctx, "fa-env-1")
	require.NoError(t, err)
	require.Equal(t, feeagreement.StatusHiringAuthoritySigned, got.Status)

	events, err := f.audit.CountForAgreement(ctx, "fa-env-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, events, "one transition, one audit row")

	var stored int64
	require.NoError(t, f.db.Model(&ExternalSignatureEvent{}).Count(&stored).Error)
	require.EqualValues(t, 1, stored)
}

func TestIngestDistinctEventsAdvanceTheLifecycle(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pendingAgreement(t, "env-1")

	realDate := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

	first, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-1",
		"action":     "recipient_signed",
		"realDate":   realDate.Format(time.RFC3339),
	})
	_, err := f.service.Ingest(ctx, first, headers)
	require.NoError(t, err)

	second, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-1",
		"action":     "envelope_completed",
	})
	_, err = f.service.Ingest(ctx, second, headers)
	require.NoError(t, err)

	got, err := f.agreements.Get(ctx, "fa-env-1")
	require.NoError(t, err)
	require.Equal(t, feeagreement.StatusPendingProductionDirectorSignature, got.Status)
	require.NotNil(t, got.HiringAuthoritySignedAt)
	require.Equal(t, realDate, got.HiringAuthoritySignedAt.UTC())
}

func TestIngestRecordsButIgnoresUnknownActions(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pendingAgreement(t, "env-1")

	body, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-1",
		"action":     "envelope_opened",
	})
	result, err := f.service.Ingest(ctx, body, headers)
	require.NoError(t, err)
	require.True(t, result.Ignored)

	got, err := f.agreements.Get(ctx, "fa-env-1")
	require.NoError(t, err)
	require.Equal(t, feeagreement.StatusPendingSignature, got.Status)

	var stored int64
	require.NoError(t, f.db.Model(&ExternalSignatureEvent{}).Count(&stored).Error)
	require.EqualValues(t, 1, stored, "unknown actions are still recorded")
}

func TestIngestIgnoresUnknownEnvelopes(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	body, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-nobody",
		"action":     "recipient_signed",
	})
	result, err := f.service.Ingest(ctx, body, headers)
	require.NoError(t, err)
	require.True(t, result.Ignored)
}

func TestIngestVoidCancelsTheAgreement(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pendingAgreement(t, "env-1")

	body, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-1",
		"action":     "voided",
	})
	_, err := f.service.Ingest(ctx, body, headers)
	require.NoError(t, err)

	got, err := f.agreements.Get(ctx, "fa-env-1")
	require.NoError(t, err)
	require.Equal(t, feeagreement.StatusCancelled, got.Status)
}

func TestIngestOutOfOrderEventStaysRejected(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pendingAgreement(t, "env-1")

	// completion before the hiring authority signed is a lifecycle rejection
	body, headers := f.signedBody(t, map[string]any{
		"envelopeId": "env-1",
		"action":     "envelope_completed",
	})
	_, err := f.service.Ingest(ctx, body, headers)
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))

	// the record sticks, so a redelivery is a plain duplicate
	result, err := f.service.Ingest(ctx, body, headers)
	require.NoError(t, err)
	require.True(t, result.Duplicate)

	got, err := f.agreements.Get(ctx, "fa-env-1")
	require.NoError(t, err)
	require.Equal(t, feeagreement.StatusPendingSignature, got.Status)
}

func TestMapAction(t *testing.T) {
	known := map[string]feeagreement.Action{
		"hiring_authority_signed": feeagreement.ActionHiringAuthoritySigned,
		"recipient_signed":        feeagreement.ActionHiringAuthoritySigned,
		"signed":                  feeagreement.ActionHiringAuthoritySigned,
		"all_parties_signed":      feeagreement.ActionAllPartiesSigned,
		"envelope_completed":      feeagreement.ActionAllPartiesSigned,
		"completed":               feeagreement.ActionAllPartiesSigned,
		"declined":                feeagreement.ActionProviderVoided,
		"voided":                  feeagreement.ActionProviderVoided,
	}
	for provider, want := range known {
		got, ok := mapAction(provider)
		require.True(t, ok, provider)
		require.Equal(t, want, got, provider)
	}

	_, ok := mapAction("envelope_opened")
	require.False(t, ok)
}
