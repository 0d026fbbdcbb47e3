package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	dwotel "github.com/Strob0t/DealWatch/internal/adapter/otel"
	"github.com/Strob0t/DealWatch/internal/domain"
	"github.com/Strob0t/DealWatch/internal/domain/deal"
	"github.com/Strob0t/DealWatch/internal/domain/joblog"
	"github.com/Strob0t/DealWatch/internal/domain/schedule"
	"github.com/Strob0t/DealWatch/internal/logger"
	"github.com/Strob0t/DealWatch/internal/port/broadcast"
	"github.com/Strob0t/DealWatch/internal/port/database"
	"github.com/Strob0t/DealWatch/internal/port/messagequeue"
)

// ErrJobRunning is returned when a deal job is requested while one runs.
var ErrJobRunning = fmt.Errorf("deal job already running: %w", domain.ErrConflict)

const maxJobLogLimit = 100

// JobStore is the persistence JobService needs.
type JobStore interface {
	database.JobLogStore
	database.DealStore
}

// JobService runs the daily deals job: discovery, push alerts, rule
// notifications and the execution log. At most one run is in flight.
type JobService struct {
	store     JobStore
	discovery *DiscoveryService
	alerts    *PushAlertService
	notify    *NotificationService
	push      broadcast.Broadcaster
	queue     messagequeue.Queue
	metrics   *dwotel.Metrics
	guard     *semaphore.Weighted
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJobService creates a JobService.
func NewJobService(store JobStore, discovery *DiscoveryService, alerts *PushAlertService, notify *NotificationService) *JobService {
	return &JobService{
		store:     store,
		discovery: discovery,
		alerts:    alerts,
		notify:    notify,
		guard:     semaphore.NewWeighted(1),
		now:       time.Now,
	}
}

// SetQueue enables job events and the trigger subscriber.
func (s *JobService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetBroadcaster enables the job.completed browser event.
func (s *JobService) SetBroadcaster(b broadcast.Broadcaster) { s.push = b }

// SetMetrics enables job metrics.
func (s *JobService) SetMetrics(m *dwotel.Metrics) { s.metrics = m }

// RunDailyDealsJob performs one run. Run failures are recorded in the job
// log and reported through the Result; the only error returned is
// ErrJobRunning.
func (s *JobService) RunDailyDealsJob(ctx context.Context) (joblog.Result, error) {
	if !s.guard.TryAcquire(1) {
		return joblog.Result{}, ErrJobRunning
	}
	defer s.guard.Release(1)

	runID := uuid.NewString()
	ctx = logger.WithJobRunID(ctx, runID)
	start := s.now()

	entry, err := s.store.CreateJobLog(ctx, joblog.JobTypeDailyDeals)
	if err != nil {
		slog.ErrorContext(ctx, "create job log failed", "error", err)
		res := joblog.Result{RunID: runID, Error: err.Error()}
		s.finish(ctx, res, nil, s.now().Sub(start))
		return res, nil
	}

	ctx, span := dwotel.StartJobSpan(ctx, runID, entry.ID)
	defer span.End()

	log := slog.Default().With("job_id", entry.ID)
	log.InfoContext(ctx, "deal job started")

	res, deals, runErr := s.execute(ctx, log)
	elapsed := s.now().Sub(start)
	res.JobID, res.RunID = entry.ID, runID

	completion := joblog.Completion{ExecutionTime: elapsed, CompletedAt: s.now()}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.ErrorContext(ctx, "deal job failed", "error", runErr, "elapsed", elapsed)

		res = joblog.Result{JobID: entry.ID, RunID: runID, Error: runErr.Error()}
		deals = nil
		completion.Status = joblog.StatusError
		completion.ErrorMessage = runErr.Error()
	} else {
		res.Success = true
		completion.Status = joblog.StatusSuccess
		completion.RulesProcessed = res.RulesProcessed
		completion.DealsFound = res.DealsFound
		completion.NotificationsSent = res.NotificationsSent
		log.InfoContext(ctx, "deal job completed",
			"rules", res.RulesProcessed,
			"deals", res.DealsFound,
			"notifications", res.NotificationsSent,
			"alerts_triggered", res.AlertsTriggered,
			"push_sent", res.PushSent,
			"elapsed", elapsed,
		)
	}

	// The run's own context may be cancelled; the log must still close.
	if err := s.store.CompleteJobLog(context.WithoutCancel(ctx), entry.ID, completion); err != nil {
		log.ErrorContext(ctx, "update job log failed", "error", err)
	}

	s.finish(ctx, res, deals, elapsed)
	return res, nil
}

func (s *JobService) execute(ctx context.Context, log *slog.Logger) (joblog.Result, []deal.Deal, error) {
	disc, err := s.discovery.ProcessAllRules(ctx)
	if err != nil {
		return joblog.Result{}, nil, fmt.Errorf("process rules: %w", err)
	}
	log.InfoContext(ctx, "rules processed", "rules", disc.RulesProcessed, "deals", disc.DealsFound)

	found := disc.Found()
	push := s.alerts.ProcessPushAlerts(ctx, found)
	log.InfoContext(ctx, "push alerts processed", "triggered", push.AlertsTriggered, "sent", push.NotificationsSent)

	sent := s.notifyRules(ctx, log, disc, found)

	return joblog.Result{
		RulesProcessed:    disc.RulesProcessed,
		DealsFound:        disc.DealsFound,
		NotificationsSent: sent,
		AlertsTriggered:   push.AlertsTriggered,
		PushSent:          push.NotificationsSent,
	}, disc.Deals, nil
}

// notifyRules sends one notification per rule that found deals in this run
// and stamps those deals as notified. It returns the number of rules for
// which at least one channel succeeded.
func (s *JobService) notifyRules(ctx context.Context, log *slog.Logger, disc *DiscoveryResult, found []deal.Found) int {
	ids := make(map[int64][]int64)
	for i := range disc.Deals {
		ids[disc.Deals[i].RuleID] = append(ids[disc.Deals[i].RuleID], disc.Deals[i].ID)
	}

	sent := 0
	byUser := deal.GroupByUser(found)
	for _, userID := range deal.SortedKeys(byUser) {
		byRule := deal.GroupByRule(byUser[userID])
		for _, ruleID := range deal.SortedKeys(byRule) {
			r, ok := disc.Rules[ruleID]
			if !ok {
				continue
			}
			emailSent, webhookSent := s.notify.SendForRule(ctx, r, byRule[ruleID])
			if !emailSent && !webhookSent {
				continue
			}
			sent++
			log.InfoContext(ctx, "rule notified", "rule_id", ruleID, "deals", len(byRule[ruleID]))

			if err := s.store.MarkDealsNotified(ctx, ids[ruleID], s.now()); err != nil {
				log.WarnContext(ctx, "mark deals notified failed", "rule_id", ruleID, "error", err)
			}
		}
	}
	return sent
}

// finish records metrics and emits completion events for a run.
func (s *JobService) finish(ctx context.Context, res joblog.Result, deals []deal.Deal, elapsed time.Duration) {
	status := joblog.StatusSuccess
	if !res.Success {
		status = joblog.StatusError
	}
	s.metrics.RecordJob(ctx, string(status), res.DealsFound, res.NotificationsSent, res.PushSent, elapsed)

	if s.push != nil {
		s.push.BroadcastEvent(ctx, broadcast.EventJobCompleted, res)
	}
	if s.queue == nil {
		return
	}

	if len(deals) > 0 {
		payload := messagequeue.DealsFoundPayload{RunID: res.RunID, JobID: res.JobID, SentAt: s.now().UTC()}
		for i := range deals {
			payload.Deals = append(payload.Deals, dealSummary(&deals[i].Found))
		}
		s.publish(ctx, messagequeue.SubjectDealsFound, payload)
	}
	s.publish(ctx, messagequeue.SubjectJobCompleted, messagequeue.JobCompletedPayload{
		RunID:             res.RunID,
		JobID:             res.JobID,
		Status:            string(status),
		RulesProcessed:    res.RulesProcessed,
		DealsFound:        res.DealsFound,
		NotificationsSent: res.NotificationsSent,
		AlertsTriggered:   res.AlertsTriggered,
		ExecutionTimeMS:   elapsed.Milliseconds(),
		Error:             res.Error,
	})
}

func (s *JobService) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal job event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "publish job event failed", "subject", subject, "error", err)
	}
}

// RecentLogs returns the latest job logs, newest first.
func (s *JobService) RecentLogs(ctx context.Context, limit int) ([]joblog.JobLog, error) {
	switch {
	case limit <= 0:
		limit = joblog.DefaultListLimit
	case limit > maxJobLogLimit:
		limit = maxJobLogLimit
	}
	return s.store.ListJobLogs(ctx, limit)
}

// RequestRun asks for a run without waiting for it. With a queue the request
// goes out as a jobs.trigger message; without one the job starts in the
// background. Either way it reports ErrJobRunning when a run is already in
// flight in this process.
func (s *JobService) RequestRun(ctx context.Context, requestedBy string) error {
	if !s.guard.TryAcquire(1) {
		return ErrJobRunning
	}
	s.guard.Release(1)

	if s.queue != nil {
		data, err := json.Marshal(messagequeue.JobTriggerPayload{RequestedBy: requestedBy})
		if err != nil {
			return err
		}
		return s.queue.Publish(ctx, messagequeue.SubjectJobTrigger, data)
	}

	go func() {
		bg := context.WithoutCancel(ctx)
		if _, err := s.RunDailyDealsJob(bg); err != nil {
			slog.WarnContext(bg, "requested job not started", "requested_by", requestedBy, "error", err)
		}
	}()
	return nil
}

// StartTriggerSubscriber runs the job for every jobs.trigger message. It is a
// no-op without a queue.
func (s *JobService) StartTriggerSubscriber(ctx context.Context) (cancel func(), err error) {
	if s.queue == nil {
		return func() {}, nil
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectJobTrigger, func(ctx context.Context, _ string, data []byte) error {
		var p messagequeue.JobTriggerPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode job trigger: %w", err)
		}
		res, err := s.RunDailyDealsJob(ctx)
		if errors.Is(err, ErrJobRunning) {
			slog.InfoContext(ctx, "job trigger ignored, run in progress", "requested_by", p.RequestedBy)
			return nil
		}
		slog.InfoContext(ctx, "triggered job finished", "requested_by", p.RequestedBy, "job_id", res.JobID, "success", res.Success)
		return nil
	})
}

// StartScheduler checks the schedule every interval and runs the job when a
// slot has passed since the last recorded start. With no recorded run the
// scheduler start time is the baseline. Calling it twice is a no-op.
func (s *JobService) StartScheduler(ctx context.Context, sched schedule.Schedule, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	baseline := s.now()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, sched, baseline)
			}
		}
	}()
	slog.Info("scheduler started", "next_run", sched.NextAfter(baseline), "check_interval", interval)
}

func (s *JobService) tick(ctx context.Context, sched schedule.Schedule, baseline time.Time) {
	last, err := s.store.LastJobStart(ctx, joblog.JobTypeDailyDeals)
	if err != nil {
		slog.WarnContext(ctx, "scheduler: read last run failed", "error", err)
		return
	}
	if last.IsZero() {
		last = baseline
	}
	if !sched.Due(last, s.now()) {
		return
	}
	if _, err := s.RunDailyDealsJob(ctx); errors.Is(err, ErrJobRunning) {
		slog.InfoContext(ctx, "scheduler: run skipped, job in progress")
	}
}

// StopScheduler stops the scheduler and waits for an in-flight tick.
func (s *JobService) StopScheduler() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("scheduler stopped")
}
