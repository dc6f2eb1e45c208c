package feeagreement

import (
	"encoding/json"
	"fmt"
	"time"

	"recruitflow-crm/pkg/errutil"
)

// Action is a requested transition. Actor commands arrive over HTTP; the
// external actions arrive through verified provider webhooks and are only
// valid for the system actor.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionApprove  Action = "approve"
	ActionDecline  Action = "decline"
	ActionResubmit Action = "resubmit"
	ActionSign     Action = "sign"
	ActionValidate Action = "validate"
	ActionCancel   Action = "cancel"
	ActionExpire   Action = "expire"

	ActionHiringAuthoritySigned Action = "hiring_authority_signed"
	ActionAllPartiesSigned      Action = "all_parties_signed"
	ActionProviderVoided        Action = "provider_voided"
)

// Term names accepted in a declination's declined-fields list.
const (
	TermVerbiage      = "verbiage"
	TermFeePercent    = "fee_percent"
	TermGuaranteeDays = "guarantee_days"
)

// Command carries everything Evaluate needs to judge a transition. RealDate
// is the business-effective timestamp reported by the provider; Now is the
// orchestrator's clock, injected so evaluation stays deterministic.
type Command struct {
	Action         Action
	Actor          Actor
	Reason         string
	DeclinedFields []string
	Details        map[string]any
	RealDate       *time.Time
	Now            time.Time
}

// TransitionConfig is loaded once at startup and passed in; the machine never
// reads configuration on its own.
type TransitionConfig struct {
	// RequireCountersign inserts the internal production-director signature
	// step between the counter-party completing and the agreement counting
	// as signed.
	RequireCountersign bool
	// ExpirationWindow restarts on every non-terminal transition.
	ExpirationWindow time.Duration
}

// Effect is a side-effect request produced by an accepted transition. The
// orchestrator dispatches effects after the transition is durable; they are
// data, never callbacks.
type Effect interface {
	EffectKind() string
}

type NotifyEffect struct {
	Template  string         `json:"template"`
	Recipient Role           `json:"recipient"`
	Data      map[string]any `json:"data,omitempty"`
}

func (NotifyEffect) EffectKind() string { return "notify" }

type SignatureRequestEffect struct {
	AgreementID string        `json:"agreement_id"`
	Provider    EsignProvider `json:"provider"`
}

func (SignatureRequestEffect) EffectKind() string { return "signature_request" }

type ReminderEffect struct {
	AgreementID string    `json:"agreement_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (ReminderEffect) EffectKind() string { return "reminder" }

// Outcome is the full result of an accepted transition: the mutated copy of
// the agreement plus the side effects to dispatch once it is durable.
type Outcome struct {
	Agreement FeeAgreement
	Effects   []Effect
	EventType string
}

// Evaluate is the single source of truth for what is allowed. It performs no
// I/O and never mutates its input; the caller persists the returned copy.
// Checks run in a fixed order: action defined for the state, actor authority,
// then data preconditions.
func Evaluate(current FeeAgreement, cmd Command, cfg TransitionConfig) (Outcome, error) {
	next := current
	out := Outcome{EventType: string(cmd.Action)}

	switch cmd.Action {
	case ActionSubmit:
		if current.Status != StatusDraft {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !current.isCreatorOrCoach(cmd.Actor) {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if current.RegionalDirectorID == nil {
			return out, errutil.PreconditionFailed("no regional director assigned to review this agreement")
		}
		next.Status = StatusPendingRegionalApproval
		next.ResponsibleRole = RoleRegionalDirector
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_pending_regional",
			Recipient: RoleRegionalDirector,
		})

	case ActionApprove:
		if current.Status != StatusPendingRegionalApproval {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !actorIs(cmd.Actor, current.RegionalDirectorID) {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if current.AgencyManaged() && current.Provider == ProviderNone {
			return out, errutil.PreconditionFailed("agency-managed agreement has no e-signature provider")
		}
		next.Status = StatusPendingSignature
		next.ResponsibleRole = RoleRecruiter
		now := cmd.Now
		next.SentToSignAt = &now
		if current.AgencyManaged() {
			out.Effects = append(out.Effects, SignatureRequestEffect{
				AgreementID: current.ID,
				Provider:    current.Provider,
			})
		}
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_sent_to_sign",
			Recipient: RoleRecruiter,
		})

	case ActionDecline:
		if current.Status != StatusPendingRegionalApproval {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !actorIs(cmd.Actor, current.RegionalDirectorID) {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if cmd.Reason == "" {
			return out, errutil.PreconditionFailed("declination requires a reason")
		}
		next.Status = StatusDeclined
		next.ResponsibleRole = RoleRecruiter
		next.CurrentDeclinatorID = strPtr(cmd.Actor.ID)
		next.DeclinationDetails = declinationJSON(cmd.Reason, cmd.DeclinedFields)
		for _, field := range cmd.DeclinedFields {
			switch field {
			case TermVerbiage:
				next.VerbiageChangeRequested = true
			case TermFeePercent:
				next.FeePercentChangeRequested = true
			case TermGuaranteeDays:
				next.GuaranteeDaysChangeRequested = true
			}
		}
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_declined",
			Recipient: RoleRecruiter,
			Data:      map[string]any{"reason": cmd.Reason, "declined_fields": cmd.DeclinedFields},
		})

	case ActionResubmit:
		if current.Status != StatusDeclined {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !current.isCreatorOrCoach(cmd.Actor) {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		next.Status = StatusPendingRegionalApproval
		next.ResponsibleRole = RoleRegionalDirector
		next.VerbiageChangeRequested = false
		next.FeePercentChangeRequested = false
		next.GuaranteeDaysChangeRequested = false
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_resubmitted",
			Recipient: RoleRegionalDirector,
		})

	case ActionHiringAuthoritySigned:
		if current.Status != StatusPendingSignature {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !cmd.Actor.IsSystem() {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		next.Status = StatusHiringAuthoritySigned
		next.HiringAuthoritySignedAt = effectiveTime(cmd)
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_ha_signed",
			Recipient: RoleRecruiter,
		})

	case ActionAllPartiesSigned:
		if current.Status != StatusHiringAuthoritySigned {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !cmd.Actor.IsSystem() {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if cfg.RequireCountersign {
			next.Status = StatusPendingProductionDirectorSignature
			next.ResponsibleRole = RoleProductionDirector
			out.Effects = append(out.Effects, NotifyEffect{
				Template:  "fee_agreement_pending_countersign",
				Recipient: RoleProductionDirector,
			})
		} else {
			next.Status = StatusSigned
			next.SignedAt = effectiveTime(cmd)
			next.ResponsibleRole = RoleOperationsValidator
			out.Effects = append(out.Effects, NotifyEffect{
				Template:  "fee_agreement_signed",
				Recipient: RoleOperationsValidator,
			})
		}

	case ActionSign:
		if current.Status != StatusPendingProductionDirectorSignature {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !actorIs(cmd.Actor, current.ProductionDirectorID) {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if current.HiringAuthoritySignedAt == nil {
			return out, errutil.PreconditionFailed("hiring authority has not signed yet")
		}
		now := cmd.Now
		next.Status = StatusSigned
		next.ProductionDirectorSignedAt = &now
		next.SignedAt = &now
		next.ResponsibleRole = RoleOperationsValidator
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_signed",
			Recipient: RoleOperationsValidator,
		})

	case ActionValidate:
		if current.Status != StatusSigned {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if cmd.Actor.Role != RoleOperationsValidator {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if current.SignedAt == nil {
			return out, errutil.PreconditionFailed("agreement has no signature on record")
		}
		now := cmd.Now
		next.Status = StatusValidated
		next.ValidatedAt = &now
		next.OperationsValidatorID = strPtr(cmd.Actor.ID)
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_validated",
			Recipient: RoleRecruiter,
		})

	case ActionCancel:
		if current.Status.Terminal() {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !current.isCreatorOrCoach(cmd.Actor) && !actorIs(cmd.Actor, current.RegionalDirectorID) {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if cmd.Reason == "" {
			return out, errutil.PreconditionFailed("cancellation requires a reason")
		}
		next.Status = StatusCancelled

	case ActionProviderVoided:
		switch current.Status {
		case StatusPendingSignature, StatusHiringAuthoritySigned, StatusPendingProductionDirectorSignature:
		default:
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !cmd.Actor.IsSystem() {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		next.Status = StatusCancelled
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_voided_by_provider",
			Recipient: RoleRecruiter,
		})

	case ActionExpire:
		if current.Status.Terminal() {
			return out, invalidTransition(current.Status, cmd.Action)
		}
		if !cmd.Actor.IsSystem() {
			return out, unauthorized(cmd.Actor, cmd.Action)
		}
		if current.ExpiresAt == nil || current.ExpiresAt.After(cmd.Now) {
			return out, errutil.PreconditionFailed("expiration window has not elapsed")
		}
		next.Status = StatusExpired
		out.Effects = append(out.Effects, NotifyEffect{
			Template:  "fee_agreement_expired",
			Recipient: RoleRecruiter,
		})

	default:
		return out, invalidTransition(current.Status, cmd.Action)
	}

	next.LastTransitionAt = cmd.Now
	// a declinator exists only while the agreement sits in Declined,
	// whichever action moves it out
	if next.Status != StatusDeclined {
		next.CurrentDeclinatorID = nil
		next.DeclinationDetails = nil
	}
	if next.Status.Terminal() {
		next.ExpiresAt = nil
		next.ReminderSentAt = nil
	} else if cfg.ExpirationWindow > 0 {
		deadline := cmd.Now.Add(cfg.ExpirationWindow)
		next.ExpiresAt = &deadline
		next.ReminderSentAt = nil
	}

	out.Agreement = next
	return out, nil
}

func invalidTransition(status Status, action Action) error {
	return errutil.InvalidTransition(fmt.Sprintf("action %q is not defined for status %q", action, status))
}

func unauthorized(actor Actor, action Action) error {
	return errutil.Unauthorized(fmt.Sprintf("actor %q (%s) may not perform %q", actor.ID, actor.Role, action))
}

func effectiveTime(cmd Command) *time.Time {
	if cmd.RealDate != nil {
		t := *cmd.RealDate
		return &t
	}
	t := cmd.Now
	return &t
}

func declinationJSON(reason string, fields []string) []byte {
	payload, _ := json.Marshal(map[string]any{
		"notes":           reason,
		"declined_fields": fields,
	})
	return payload
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
