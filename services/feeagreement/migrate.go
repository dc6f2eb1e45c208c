package feeagreement

import (
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"recruitflow-crm/services/auditlog"
)

// AutoMigrate creates the lifecycle tables and seeds the status reference
// rows. Seeding upserts by primary key so restarts are harmless. The esign
// tables migrate in their own package.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&FeeAgreement{},
		&FeeAgreementStatus{},
		&auditlog.EventLog{},
	); err != nil {
		return err
	}
	return seedStatuses(db)
}

func seedStatuses(db *gorm.DB) error {
	allRoles := mustJSON([]Role{RoleRecruiter, RoleCoach, RoleRegionalDirector, RoleProductionDirector, RoleOperationsValidator})

	rows := []FeeAgreementStatus{
		{ID: StatusDraft, Name: "Draft", Responsible: RoleRecruiter, StatusGroup: "negotiation", ViewerRoles: allRoles},
		{ID: StatusPendingRegionalApproval, Name: "Pending Regional Approval", Responsible: RoleRegionalDirector, StatusGroup: "approval", ViewerRoles: allRoles},
		{ID: StatusPendingSignature, Name: "Pending Signature", Responsible: RoleRecruiter, StatusGroup: "signature", ViewerRoles: allRoles},
		{ID: StatusDeclined, Name: "Declined", Responsible: RoleRecruiter, StatusGroup: "approval", ViewerRoles: allRoles},
		{ID: StatusHiringAuthoritySigned, Name: "Hiring Authority Signed", Responsible: RoleRecruiter, StatusGroup: "signature", ViewerRoles: allRoles},
		{ID: StatusPendingProductionDirectorSignature, Name: "Pending Production Director Signature", Responsible: RoleProductionDirector, StatusGroup: "signature", ViewerRoles: allRoles},
		{ID: StatusSigned, Name: "Signed", Responsible: RoleOperationsValidator, StatusGroup: "closed", ViewerRoles: allRoles},
		{ID: StatusValidated, Name: "Validated", Responsible: RoleOperationsValidator, StatusGroup: "closed", ViewerRoles: allRoles},
		{ID: StatusExpired, Name: "Expired", StatusGroup: "closed", ViewerRoles: allRoles},
		{ID: StatusCancelled, Name: "Cancelled", StatusGroup: "closed", ViewerRoles: allRoles},
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
