package feeagreement

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the lifecycle position of a fee agreement. Transitions between
// statuses go through Evaluate; nothing else writes the column.
type Status string

const (
	StatusDraft                              Status = "draft"
	StatusPendingRegionalApproval            Status = "pending_regional_approval"
	StatusPendingSignature                   Status = "pending_signature"
	StatusDeclined                           Status = "declined"
	StatusHiringAuthoritySigned              Status = "hiring_authority_signed"
	StatusPendingProductionDirectorSignature Status = "pending_production_director_signature"
	StatusSigned                             Status = "signed"
	StatusValidated                          Status = "validated"
	StatusExpired                            Status = "expired"
	StatusCancelled                          Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingRegionalApproval, StatusPendingSignature,
		StatusDeclined, StatusHiringAuthoritySigned, StatusPendingProductionDirectorSignature,
		StatusSigned, StatusValidated, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status ends the operational lifecycle. Signed
// still accepts the validate action, but no expiration or cancellation applies
// past this point.
func (s Status) Terminal() bool {
	switch s {
	case StatusSigned, StatusValidated, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// TerminalStatuses is the SQL-side counterpart of Status.Terminal, used by the
// expiration sweep's candidate query.
var TerminalStatuses = []Status{StatusSigned, StatusValidated, StatusExpired, StatusCancelled}

// Role identifies the capacity in which an actor issues a command. Authority
// is still resolved against the agreement's own actor references; the role
// alone never grants a transition.
type Role string

const (
	RoleRecruiter           Role = "recruiter"
	RoleCoach               Role = "coach"
	RoleRegionalDirector    Role = "regional_director"
	RoleProductionDirector  Role = "production_director"
	RoleOperationsValidator Role = "operations_validator"
	RoleSystem              Role = "system"
)

// Actor is the authenticated identity issuing a command. The upstream CRM
// layer resolves authentication; this package only checks authority.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor drives webhook and scheduler originated transitions.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

// SignatureProcessType distinguishes agreements signed through the provider
// integration from ones recorded manually outside the system.
type SignatureProcessType string

const (
	ProcessAgencyManaged     SignatureProcessType = "agency_managed"
	ProcessExternalUnmanaged SignatureProcessType = "external_unmanaged"
)

// EsignProvider is the electronic-signature vendor driving an agency-managed
// agreement. Unmanaged agreements carry no provider and no webhook path.
type EsignProvider string

const (
	ProviderDocuSign  EsignProvider = "docusign"
	ProviderHelloSign EsignProvider = "hellosign"
	ProviderNone      EsignProvider = ""
)

// FeeAgreement is the contract between the agency and a hiring company.
// Rows are never hard-deleted; terminal agreements stay for audit.
type FeeAgreement struct {
	ID                   string `gorm:"column:id;primaryKey"`
	CompanyID            string `gorm:"column:company_id;index;not null"`
	HiringAuthorityID    string `gorm:"column:hiring_authority_id;index"`
	HiringAuthorityName  string `gorm:"column:hiring_authority_name"`
	HiringAuthorityEmail string `gorm:"column:hiring_authority_email"`

	FeePercent    float64  `gorm:"column:fee_percent;not null"`
	GuaranteeDays int      `gorm:"column:guarantee_days;not null"`
	FlatFeeAmount *float64 `gorm:"column:flat_fee_amount"`
	PaymentScheme string   `gorm:"column:payment_scheme;not null"`

	Status          Status               `gorm:"column:status;index;not null"`
	ResponsibleRole Role                 `gorm:"column:responsible_role"`
	ProcessType     SignatureProcessType `gorm:"column:signature_process_type;not null"`
	Provider        EsignProvider        `gorm:"column:esign_provider"`

	CreatorID             string  `gorm:"column:creator_id;not null"`
	CoachID               *string `gorm:"column:coach_id"`
	RegionalDirectorID    *string `gorm:"column:regional_director_id"`
	ProductionDirectorID  *string `gorm:"column:production_director_id"`
	OperationsValidatorID *string `gorm:"column:operations_validator_id"`
	CurrentDeclinatorID   *string `gorm:"column:current_declinator_id"`

	CCEmails            datatypes.JSON `gorm:"column:cc_emails;type:jsonb"`
	VerbiageChangeNotes string         `gorm:"column:verbiage_change_notes"`

	VerbiageChangeRequested      bool `gorm:"column:verbiage_change_requested;default:false"`
	FeePercentChangeRequested    bool `gorm:"column:fee_percent_change_requested;default:false"`
	GuaranteeDaysChangeRequested bool `gorm:"column:guarantee_days_change_requested;default:false"`

	DeclinationDetails datatypes.JSON `gorm:"column:declination_details;type:jsonb"`

	SentToSignAt               *time.Time `gorm:"column:sent_to_sign_at"`
	HiringAuthoritySignedAt    *time.Time `gorm:"column:hiring_authority_signed_at"`
	ProductionDirectorSignedAt *time.Time `gorm:"column:production_director_signed_at"`
	SignedAt                   *time.Time `gorm:"column:signed_at"`
	ValidatedAt                *time.Time `gorm:"column:validated_at"`
	ExpiresAt                  *time.Time `gorm:"column:expires_at;index"`
	LastTransitionAt           time.Time  `gorm:"column:last_transition_at"`
	ReminderSentAt             *time.Time `gorm:"column:reminder_sent_at"`

	ExternalContractID string         `gorm:"column:external_contract_id;index"`
	DocumentURLs       datatypes.JSON `gorm:"column:document_urls;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FeeAgreement) TableName() string {
	return "fee_agreements"
}

// AgencyManaged reports whether the provider integration drives signatures
// for this agreement.
func (f *FeeAgreement) AgencyManaged() bool {
	return f.ProcessType == ProcessAgencyManaged
}

// actorIs reports whether the actor matches the given reference id.
func actorIs(actor Actor, ref *string) bool {
	if ref == nil || actor.ID == "" {
		return false
	}
	return actor.ID == *ref
}

// isCreatorOrCoach covers the submit/resubmit/cancel ownership checks.
func (f *FeeAgreement) isCreatorOrCoach(actor Actor) bool {
	if actor.ID != "" && actor.ID == f.CreatorID {
		return true
	}
	return actorIs(actor, f.CoachID)
}

// FeeAgreementStatus is reference data describing each status for views:
// who is responsible, which group the status belongs to, and who may see it.
type FeeAgreementStatus struct {
	ID           Status         `gorm:"column:id;primaryKey"`
	Name         string         `gorm:"column:name;not null"`
	Responsible  Role           `gorm:"column:responsible_role"`
	StatusGroup  string         `gorm:"column:status_group"`
	ViewerRoles  datatypes.JSON `gorm:"column:viewer_roles;type:jsonb"`
	DisplayStyle string         `gorm:"column:display_style"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (FeeAgreementStatus) TableName() string {
	return "fee_agreement_statuses"
}
