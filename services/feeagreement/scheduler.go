package feeagreement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"recruitflow-crm/pkg/config"
	"recruitflow-crm/pkg/task"
	"recruitflow-crm/pkg/taskname"
)

// Scheduler periodically enqueues the expiration sweep. The sweep itself runs
// as an asynq task so overlapping invocations land on the worker pool, where
// idempotent handling makes re-runs harmless.
type Scheduler struct {
	enqueuer task.Enqueuer
	interval time.Duration
}

type SchedulerParams struct {
	fx.In
	Cfg      *config.Config
	Enqueuer task.Enqueuer
}

func NewScheduler(p SchedulerParams) *Scheduler {
	interval := p.Cfg.FeeAgreement.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		enqueuer: p.Enqueuer,
		interval: interval,
	}
}

// StartScheduler is invoked by fx on service start.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started fee agreement expiry scheduler",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.enqueueSweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) enqueueSweep(ctx context.Context) {
	payload, _ := json.Marshal(map[string]time.Time{"now": time.Now().UTC()})
	if _, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.FeeAgreementExpirySweep, payload)); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue expiry sweep", zap.Error(err))
		return
	}
	zap.L().Info("[Scheduler] enqueued expiry sweep")
}

// SweepWorker handles the sweep task on the asynq server.
type SweepWorker struct {
	service *Service
}

func NewSweepWorker(service *Service) *SweepWorker {
	return &SweepWorker{service: service}
}

func RegisterSweepWorker(mux *asynq.ServeMux, w *SweepWorker) {
	mux.HandleFunc(taskname.FeeAgreementExpirySweep, w.HandleSweep)
}

func (w *SweepWorker) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var payload struct {
		Now time.Time `json:"now"`
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}
	if payload.Now.IsZero() {
		payload.Now = time.Now().UTC()
	}

	start := time.Now()
	report, err := w.service.RunExpirationSweep(ctx, payload.Now)
	if err != nil {
		return err
	}

	zap.L().Info("expiry sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("expired", report.Expired),
		zap.Int("reminded", report.Reminded),
		zap.Int("already_handled", report.AlreadyHandled),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
