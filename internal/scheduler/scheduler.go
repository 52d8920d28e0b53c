package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"gitlab.com/leadpilot/api/lead-status-engine/internal/config"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/engine"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/model"
	"gitlab.com/leadpilot/api/lead-status-engine/internal/observer"
	"gitlab.com/leadpilot/api/lead-status-engine/pkg/logger"
)

// dueTargets maps each waiting status to the status a due lead advances to.
var dueTargets = map[model.LeadStatus]model.LeadStatus{
	model.StatusWaitingD2: model.StatusCallDue,
	model.StatusWaitingD1: model.StatusContacted2,
}

// Advancer is the slice of the transition engine the scheduler drives.
type Advancer interface {
	GetDueLeads(ctx context.Context, organizationID string) ([]model.Lead, error)
	AdvanceLead(ctx context.Context, leadID string, target model.LeadStatus, actor string, source model.AuditSource) (*engine.AdvanceResult, error)
}

// TickResult aggregates the per-lead outcomes of one tick. One denied or
// errored lead never aborts the rest of the batch.
type TickResult struct {
	Processed int
	Advanced  int
	Denied    int
	Errors    int

	mu sync.Mutex
}

func (r *TickResult) record(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Processed++
	switch result {
	case "advanced":
		r.Advanced++
	case "denied":
		r.Denied++
	default:
		r.Errors++
	}
}

// task is one due lead handed to the worker pool.
type task struct {
	ctx    context.Context
	lead   model.Lead
	target model.LeadStatus
	result *TickResult
	wg     *sync.WaitGroup
}

// Scheduler periodically scans for due leads and advances each on a worker
// pool. Each lead's advance is independently atomic, so the batch runs in
// parallel with no cross-lead ordering.
type Scheduler struct {
	pool           *ants.PoolWithFunc
	cron           *cron.Cron
	advancer       Advancer
	actor          string
	organizationID string
	baseLogger     *zap.Logger
}

// NewScheduler creates the worker pool. Call Start to begin cron-driven
// ticks, or Tick directly for a one-shot scan.
func NewScheduler(
	poolCfg config.SchedulerWorkerPoolConfig,
	actor string,
	organizationID string,
	advancer Advancer,
	baseLogger *zap.Logger,
) (*Scheduler, error) {
	s := &Scheduler{
		advancer:       advancer,
		actor:          actor,
		organizationID: organizationID,
		baseLogger:     baseLogger.Named("scheduler"),
	}

	pool, err := ants.NewPoolWithFunc(poolCfg.PoolSize, func(i interface{}) {
		t, ok := i.(task)
		if !ok {
			s.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		s.processLead(t)
	},
		ants.WithExpiryDuration(poolCfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(poolCfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			s.baseLogger.Error("Panic recovered in scheduler worker", zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler worker pool: %w", err)
	}
	s.pool = pool
	s.baseLogger.Info("Scheduler worker pool initialized",
		zap.Int("pool_size", poolCfg.PoolSize),
		zap.Int("queue_size", poolCfg.QueueSize),
		zap.Duration("max_block", poolCfg.MaxBlock),
		zap.Duration("expiry_time", poolCfg.ExpiryTime),
	)
	return s, nil
}

// Start begins recurring ticks at the given cron expression.
func (s *Scheduler) Start(cronSpec string) error {
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		if _, err := s.Tick(context.Background()); err != nil {
			s.baseLogger.Error("Scheduler tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", cronSpec, err)
	}
	s.cron = c
	c.Start()
	s.baseLogger.Info("Scheduler started", zap.String("cron_spec", cronSpec))
	return nil
}

// Stop halts cron scheduling, waits for in-flight jobs, and releases the pool.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.cron = nil
	}
	s.pool.Release()
	s.baseLogger.Info("Scheduler stopped")
}

// Tick runs one due-lead scan and advances every due lead on the pool,
// blocking until the whole batch has been processed.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	log := logger.FromContextOr(ctx, s.baseLogger)
	startTime := time.Now()
	observer.IncSchedulerTick(s.organizationID)

	leads, err := s.advancer.GetDueLeads(ctx, s.organizationID)
	if err != nil {
		return nil, fmt.Errorf("due-lead scan failed: %w", err)
	}

	result := &TickResult{}
	var wg sync.WaitGroup

	for _, lead := range leads {
		target, ok := dueTargets[lead.Status]
		if !ok {
			// The due query only returns waiting statuses; anything else
			// means the lead moved between scan and dispatch.
			continue
		}

		wg.Add(1)
		observer.SetSchedulerQueueLength(s.pool.Waiting())
		if err := s.pool.Invoke(task{ctx: ctx, lead: lead, target: target, result: result, wg: &wg}); err != nil {
			wg.Done()
			result.record("error")
			observer.IncSchedulerLeadProcessed(lead.OrganizationID, "error")
			log.Warn("Failed to submit due lead to pool",
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
		}
	}

	wg.Wait()
	observer.ObserveSchedulerTickDuration(s.organizationID, time.Since(startTime))
	log.Info("Scheduler tick complete",
		zap.Int("due", len(leads)),
		zap.Int("advanced", result.Advanced),
		zap.Int("denied", result.Denied),
		zap.Int("errors", result.Errors),
		zap.Duration("duration", time.Since(startTime)),
	)
	return result, nil
}

// processLead advances one due lead inside a pool worker.
func (s *Scheduler) processLead(t task) {
	defer t.wg.Done()

	log := logger.FromContextOr(t.ctx, s.baseLogger).With(
		zap.String("lead_id", t.lead.ID),
		zap.String("target_status", t.target.String()),
	)

	res, err := s.advancer.AdvanceLead(t.ctx, t.lead.ID, t.target, s.actor, model.SourceScheduler)
	switch {
	case err != nil:
		t.result.record("error")
		observer.IncSchedulerLeadProcessed(t.lead.OrganizationID, "error")
		log.Error("Failed to advance due lead", zap.Error(err))
	case !res.Success:
		t.result.record("denied")
		observer.IncSchedulerLeadProcessed(t.lead.OrganizationID, "denied")
		log.Info("Due lead advance denied", zap.String("reason", res.Error))
	default:
		t.result.record("advanced")
		observer.IncSchedulerLeadProcessed(t.lead.OrganizationID, "advanced")
		log.Debug("Due lead advanced", zap.String("final_status", res.Lead.Status.String()))
	}
}
