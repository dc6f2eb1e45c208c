package feeagreement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"recruitflow-crm/pkg/errutil"
)

var (
	creator   = Actor{ID: "rec-1", Role: RoleRecruiter}
	coach     = Actor{ID: "coach-1", Role: RoleCoach}
	regional  = Actor{ID: "rd-1", Role: RoleRegionalDirector}
	prodDir   = Actor{ID: "pd-1", Role: RoleProductionDirector}
	validator = Actor{ID: "ops-1", Role: RoleOperationsValidator}
)

func testConfig() TransitionConfig {
	return TransitionConfig{
		RequireCountersign: true,
		ExpirationWindow:   30 * 24 * time.Hour,
	}
}

func agreementAt(status Status) FeeAgreement {
	rd := regional.ID
	pd := prodDir.ID
	ch := coach.ID
	signedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	return FeeAgreement{
		ID:                      "fa-1",
		CompanyID:               "co-1",
		FeePercent:              20,
		GuaranteeDays:           90,
		PaymentScheme:           "percentage",
		Status:                  status,
		ProcessType:             ProcessAgencyManaged,
		Provider:                ProviderDocuSign,
		CreatorID:               creator.ID,
		CoachID:                 &ch,
		RegionalDirectorID:      &rd,
		ProductionDirectorID:    &pd,
		HiringAuthoritySignedAt: &signedAt,
		SignedAt:                &signedAt,
	}
}

func command(action Action, actor Actor) Command {
	return Command{
		Action: action,
		Actor:  actor,
		Now:    time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateRejectsUndefinedTransitions(t *testing.T) {
	cases := []struct {
		status Status
		action Action
	}{
		{StatusDraft, ActionApprove},
		{StatusDraft, ActionDecline},
		{StatusDraft, ActionSign},
		{StatusDraft, ActionValidate},
		{StatusPendingRegionalApproval, ActionSubmit},
		{StatusPendingRegionalApproval, ActionValidate},
		{StatusPendingSignature, ActionSubmit},
		{StatusPendingSignature, ActionApprove},
		{StatusDeclined, ActionApprove},
		{StatusDeclined, ActionSign},
		{StatusSigned, ActionSubmit},
		{StatusSigned, ActionCancel},
		{StatusSigned, ActionExpire},
		{StatusValidated, ActionValidate},
		{StatusValidated, ActionCancel},
		{StatusExpired, ActionSubmit},
		{StatusExpired, ActionExpire},
		{StatusCancelled, ActionResubmit},
	}

	for _, tc := range cases {
		t.Run(string(tc.status)+"_"+string(tc.action), func(t *testing.T) {
			actor := creator
			switch tc.action {
			case ActionApprove, ActionDecline:
				actor = regional
			case ActionSign:
				actor = prodDir
			case ActionValidate:
				actor = validator
			case ActionExpire:
				actor = SystemActor
			}
			cmd := command(tc.action, actor)
			cmd.Reason = "any"

			out, err := Evaluate(agreementAt(tc.status), cmd, testConfig())
			require.Error(t, err)
			require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition),
				"expected invalid transition, got %v", err)
			require.Empty(t, out.Effects, "a rejected command produces no effects")
		})
	}
}

func TestEvaluateChecksTransitionBeforeAuthority(t *testing.T) {
	// A nonsensical action from an unauthorized actor reports the transition
	// problem, not the authority problem.
	_, err := Evaluate(agreementAt(StatusDraft), command(ActionDecline, creator), testConfig())
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))
}

func TestEvaluateChecksAuthorityBeforePreconditions(t *testing.T) {
	// Decline without a reason by the wrong actor reports the authority
	// problem, not the missing reason.
	cmd := command(ActionDecline, creator)
	_, err := Evaluate(agreementAt(StatusPendingRegionalApproval), cmd, testConfig())
	require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
}

func TestSubmit(t *testing.T) {
	t.Run("creator submits", func(t *testing.T) {
		out, err := Evaluate(agreementAt(StatusDraft), command(ActionSubmit, creator), testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusPendingRegionalApproval, out.Agreement.Status)
		require.Equal(t, RoleRegionalDirector, out.Agreement.ResponsibleRole)
	})

	t.Run("coach submits", func(t *testing.T) {
		out, err := Evaluate(agreementAt(StatusDraft), command(ActionSubmit, coach), testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusPendingRegionalApproval, out.Agreement.Status)
	})

	t.Run("stranger may not submit", func(t *testing.T) {
		stranger := Actor{ID: "other", Role: RoleRecruiter}
		_, err := Evaluate(agreementAt(StatusDraft), command(ActionSubmit, stranger), testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
	})

	t.Run("requires a regional director", func(t *testing.T) {
		current := agreementAt(StatusDraft)
		current.RegionalDirectorID = nil
		_, err := Evaluate(current, command(ActionSubmit, creator), testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusPreconditionFailed))
	})
}

func TestApprove(t *testing.T) {
	t.Run("assigned regional director approves", func(t *testing.T) {
		out, err := Evaluate(agreementAt(StatusPendingRegionalApproval), command(ActionApprove, regional), testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusPendingSignature, out.Agreement.Status)
		require.NotNil(t, out.Agreement.SentToSignAt)

		var sawRequest bool
		for _, effect := range out.Effects {
			if _, ok := effect.(SignatureRequestEffect); ok {
				sawRequest = true
			}
		}
		require.True(t, sawRequest, "agency-managed approval must request a signature")
	})

	t.Run("role alone grants nothing", func(t *testing.T) {
		otherDirector := Actor{ID: "rd-99", Role: RoleRegionalDirector}
		_, err := Evaluate(agreementAt(StatusPendingRegionalApproval), command(ActionApprove, otherDirector), testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
	})

	t.Run("unmanaged approval requests no signature", func(t *testing.T) {
		current := agreementAt(StatusPendingRegionalApproval)
		current.ProcessType = ProcessExternalUnmanaged
		current.Provider = ProviderNone
		out, err := Evaluate(current, command(ActionApprove, regional), testConfig())
		require.NoError(t, err)
		for _, effect := range out.Effects {
			_, ok := effect.(SignatureRequestEffect)
			require.False(t, ok)
		}
	})
}

func TestDeclineAndResubmitRoundTrip(t *testing.T) {
	cmd := command(ActionDecline, regional)
	cmd.Reason = "fee too low"
	cmd.DeclinedFields = []string{TermFeePercent, TermVerbiage}

	out, err := Evaluate(agreementAt(StatusPendingRegionalApproval), cmd, testConfig())
	require.NoError(t, err)
	require.Equal(t, StatusDeclined, out.Agreement.Status)
	require.NotNil(t, out.Agreement.CurrentDeclinatorID)
	require.Equal(t, regional.ID, *out.Agreement.CurrentDeclinatorID)
	require.True(t, out.Agreement.FeePercentChangeRequested)
	require.True(t, out.Agreement.VerbiageChangeRequested)
	require.False(t, out.Agreement.GuaranteeDaysChangeRequested)
	require.NotEmpty(t, out.Agreement.DeclinationDetails)

	resubmitted, err := Evaluate(out.Agreement, command(ActionResubmit, creator), testConfig())
	require.NoError(t, err)
	require.Equal(t, StatusPendingRegionalApproval, resubmitted.Agreement.Status)
	require.Nil(t, resubmitted.Agreement.CurrentDeclinatorID)
	require.Empty(t, resubmitted.Agreement.DeclinationDetails)
	require.False(t, resubmitted.Agreement.FeePercentChangeRequested)
	require.False(t, resubmitted.Agreement.VerbiageChangeRequested)
}

func TestLeavingDeclinedClearsDeclinator(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	declined := func() FeeAgreement {
		a := agreementAt(StatusDeclined)
		id := regional.ID
		a.CurrentDeclinatorID = &id
		a.DeclinationDetails = declinationJSON("fee too low", []string{TermFeePercent})
		return a
	}

	t.Run("cancel", func(t *testing.T) {
		cmd := command(ActionCancel, creator)
		cmd.Reason = "client walked away"
		out, err := Evaluate(declined(), cmd, testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, out.Agreement.Status)
		require.Nil(t, out.Agreement.CurrentDeclinatorID)
		require.Empty(t, out.Agreement.DeclinationDetails)
	})

	t.Run("expire", func(t *testing.T) {
		deadline := now.Add(-time.Hour)
		current := declined()
		current.ExpiresAt = &deadline
		out, err := Evaluate(current, Command{Action: ActionExpire, Actor: SystemActor, Now: now}, testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusExpired, out.Agreement.Status)
		require.Nil(t, out.Agreement.CurrentDeclinatorID)
		require.Empty(t, out.Agreement.DeclinationDetails)
	})

	t.Run("resubmit", func(t *testing.T) {
		out, err := Evaluate(declined(), command(ActionResubmit, creator), testConfig())
		require.NoError(t, err)
		require.Nil(t, out.Agreement.CurrentDeclinatorID)
		require.Empty(t, out.Agreement.DeclinationDetails)
	})
}

func TestDeclineRequiresReason(t *testing.T) {
	_, err := Evaluate(agreementAt(StatusPendingRegionalApproval), command(ActionDecline, regional), testConfig())
	require.True(t, errutil.HasStatus(err, errutil.StatusPreconditionFailed))
}

func TestExternalActionsRequireSystemActor(t *testing.T) {
	for _, action := range []Action{ActionHiringAuthoritySigned, ActionProviderVoided} {
		_, err := Evaluate(agreementAt(StatusPendingSignature), command(action, regional), testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized), "action %s", action)
	}
	_, err := Evaluate(agreementAt(StatusHiringAuthoritySigned), command(ActionAllPartiesSigned, prodDir), testConfig())
	require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
}

func TestHiringAuthoritySignedUsesRealDate(t *testing.T) {
	realDate := time.Date(2026, 1, 12, 16, 30, 0, 0, time.UTC)
	cmd := command(ActionHiringAuthoritySigned, SystemActor)
	cmd.RealDate = &realDate

	out, err := Evaluate(agreementAt(StatusPendingSignature), cmd, testConfig())
	require.NoError(t, err)
	require.Equal(t, StatusHiringAuthoritySigned, out.Agreement.Status)
	require.NotNil(t, out.Agreement.HiringAuthoritySignedAt)
	require.Equal(t, realDate, *out.Agreement.HiringAuthoritySignedAt)
}

func TestAllPartiesSignedCountersignToggle(t *testing.T) {
	t.Run("countersign required", func(t *testing.T) {
		out, err := Evaluate(agreementAt(StatusHiringAuthoritySigned), command(ActionAllPartiesSigned, SystemActor), testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusPendingProductionDirectorSignature, out.Agreement.Status)
		require.Equal(t, RoleProductionDirector, out.Agreement.ResponsibleRole)
	})

	t.Run("countersign disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.RequireCountersign = false
		current := agreementAt(StatusHiringAuthoritySigned)
		current.SignedAt = nil

		out, err := Evaluate(current, command(ActionAllPartiesSigned, SystemActor), cfg)
		require.NoError(t, err)
		require.Equal(t, StatusSigned, out.Agreement.Status)
		require.NotNil(t, out.Agreement.SignedAt)
		require.Nil(t, out.Agreement.ExpiresAt, "terminal state carries no deadline")
	})
}

func TestProductionDirectorSign(t *testing.T) {
	t.Run("assigned director signs", func(t *testing.T) {
		out, err := Evaluate(agreementAt(StatusPendingProductionDirectorSignature), command(ActionSign, prodDir), testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusSigned, out.Agreement.Status)
		require.NotNil(t, out.Agreement.ProductionDirectorSignedAt)
		require.NotNil(t, out.Agreement.SignedAt)
	})

	t.Run("requires hiring authority signature on record", func(t *testing.T) {
		current := agreementAt(StatusPendingProductionDirectorSignature)
		current.HiringAuthoritySignedAt = nil
		_, err := Evaluate(current, command(ActionSign, prodDir), testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusPreconditionFailed))
	})
}

func TestValidate(t *testing.T) {
	t.Run("operations validator validates a signed agreement", func(t *testing.T) {
		out, err := Evaluate(agreementAt(StatusSigned), command(ActionValidate, validator), testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusValidated, out.Agreement.Status)
		require.NotNil(t, out.Agreement.ValidatedAt)
		require.Equal(t, validator.ID, *out.Agreement.OperationsValidatorID)
	})

	t.Run("other roles may not validate", func(t *testing.T) {
		_, err := Evaluate(agreementAt(StatusSigned), command(ActionValidate, creator), testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
	})
}

func TestCancelRequiresReason(t *testing.T) {
	_, err := Evaluate(agreementAt(StatusPendingSignature), command(ActionCancel, creator), testConfig())
	require.True(t, errutil.HasStatus(err, errutil.StatusPreconditionFailed))

	cmd := command(ActionCancel, creator)
	cmd.Reason = "client walked away"
	out, err := Evaluate(agreementAt(StatusPendingSignature), cmd, testConfig())
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Agreement.Status)
}

func TestProviderVoided(t *testing.T) {
	for _, status := range []Status{StatusPendingSignature, StatusHiringAuthoritySigned, StatusPendingProductionDirectorSignature} {
		out, err := Evaluate(agreementAt(status), command(ActionProviderVoided, SystemActor), testConfig())
		require.NoError(t, err, "status %s", status)
		require.Equal(t, StatusCancelled, out.Agreement.Status)
	}

	_, err := Evaluate(agreementAt(StatusDraft), command(ActionProviderVoided, SystemActor), testConfig())
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidTransition))
}

func TestExpire(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	t.Run("due agreement expires", func(t *testing.T) {
		deadline := now.Add(-time.Hour)
		current := agreementAt(StatusPendingSignature)
		current.ExpiresAt = &deadline

		out, err := Evaluate(current, Command{Action: ActionExpire, Actor: SystemActor, Now: now}, testConfig())
		require.NoError(t, err)
		require.Equal(t, StatusExpired, out.Agreement.Status)
		require.Nil(t, out.Agreement.ExpiresAt)
		require.Nil(t, out.Agreement.ReminderSentAt)
	})

	t.Run("not yet due", func(t *testing.T) {
		deadline := now.Add(time.Hour)
		current := agreementAt(StatusPendingSignature)
		current.ExpiresAt = &deadline

		_, err := Evaluate(current, Command{Action: ActionExpire, Actor: SystemActor, Now: now}, testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusPreconditionFailed))
	})

	t.Run("only the system expires", func(t *testing.T) {
		deadline := now.Add(-time.Hour)
		current := agreementAt(StatusPendingSignature)
		current.ExpiresAt = &deadline

		_, err := Evaluate(current, Command{Action: ActionExpire, Actor: regional, Now: now}, testConfig())
		require.True(t, errutil.HasStatus(err, errutil.StatusUnauthorized))
	})
}

func TestTransitionsRefreshDeadline(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	reminded := now.Add(-time.Hour)
	current := agreementAt(StatusDraft)
	current.ReminderSentAt = &reminded

	cmd := command(ActionSubmit, creator)
	cmd.Now = now
	out, err := Evaluate(current, cmd, testConfig())
	require.NoError(t, err)
	require.Equal(t, now, out.Agreement.LastTransitionAt)
	require.NotNil(t, out.Agreement.ExpiresAt)
	require.Equal(t, now.Add(testConfig().ExpirationWindow), *out.Agreement.ExpiresAt)
	require.Nil(t, out.Agreement.ReminderSentAt, "a fresh window gets a fresh reminder")
}

func TestEvaluateNeverMutatesInput(t *testing.T) {
	current := agreementAt(StatusDraft)
	snapshot := current

	_, err := Evaluate(current, command(ActionSubmit, creator), testConfig())
	require.NoError(t, err)
	require.Equal(t, snapshot, current)
}
