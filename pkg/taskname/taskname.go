package taskname

const (
	// Fee agreement tasks
	FeeAgreementExpirySweep = "feeagreement:expiry:sweep"

	// Side-effect tasks
	NotificationDispatch = "notification:dispatch"
	NotificationReminder = "notification:reminder"
	EsignRequestCreate   = "esign:request:create"
)
