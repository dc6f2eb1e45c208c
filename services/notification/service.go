package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"recruitflow-crm/pkg/taskname"
	"recruitflow-crm/services/feeagreement"
)

// Notifier delivers one rendered notification. The log-backed default keeps
// the pipeline observable without a mail provider; a real sender implements
// the same interface.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is a resolved message ready for delivery.
type Notification struct {
	AgreementID string
	Template    string
	Recipient   feeagreement.Role
	Data        map[string]any
}

type logNotifier struct{}

func NewLogNotifier() Notifier {
	return &logNotifier{}
}

func (logNotifier) Notify(_ context.Context, n Notification) error {
	zap.L().Info("notification dispatched",
		zap.String("fee_agreement_id", n.AgreementID),
		zap.String("template", n.Template),
		zap.String("recipient", string(n.Recipient)),
		zap.Any("data", n.Data),
	)
	return nil
}

// Worker consumes notification tasks produced by lifecycle transitions and
// the reminder pass of the expiry sweep.
type Worker struct {
	notifier Notifier
}

func NewWorker(notifier Notifier) *Worker {
	return &Worker{notifier: notifier}
}

func RegisterWorker(mux *asynq.ServeMux, w *Worker) {
	mux.HandleFunc(taskname.NotificationDispatch, w.HandleDispatch)
	mux.HandleFunc(taskname.NotificationReminder, w.HandleReminder)
}

func (w *Worker) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	var payload feeagreement.NotificationTask
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	return w.notifier.Notify(ctx, Notification{
		AgreementID: payload.AgreementID,
		Template:    payload.Template,
		Recipient:   payload.Recipient,
		Data:        payload.Data,
	})
}

func (w *Worker) HandleReminder(ctx context.Context, t *asynq.Task) error {
	var payload feeagreement.ReminderTask
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	return w.notifier.Notify(ctx, Notification{
		AgreementID: payload.AgreementID,
		Template:    "fee_agreement_expiring_soon",
		Recipient:   feeagreement.RoleRecruiter,
		Data: map[string]any{
			"expires_at": payload.ExpiresAt.Format(time.RFC3339),
		},
	})
}
