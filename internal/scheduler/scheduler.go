package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/state"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// PollJobName is the cron job that drives PollOnce
const PollJobName = "poll"

// Config holds poller configuration
type Config struct {
	// PollSpec is the cron spec of the poll tick
	PollSpec string

	// Timezone the cron spec is evaluated in
	Timezone string

	// MaxRunning caps how many DAGs may be running at once. Zero is unlimited
	MaxRunning int

	// DispatchTimeout bounds a single Dispatch call
	DispatchTimeout time.Duration
}

// DefaultConfig returns the default poller configuration
func DefaultConfig() *Config {
	return &Config{
		PollSpec:        "@every 10s",
		Timezone:        "Local",
		MaxRunning:      0,
		DispatchTimeout: 5 * time.Second,
	}
}

// PollResult summarizes one poll
type PollResult struct {
	Due       int      `json:"due"`
	Triggered int      `json:"triggered"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	RunIDs    []string `json:"run_ids"`
}

// Poller repeatedly selects due DAGs, triggers them and dispatches the runs
type Poller struct {
	config     *Config
	svc        *daginfo.Service
	dispatcher Dispatcher
	locker     TriggerLocker
	log        *logger.Logger
	now        func() time.Time

	cronScheduler *CronScheduler
	mu            sync.RWMutex
	running       bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// PollerOption configures a Poller
type PollerOption func(*Poller)

// WithLocker claims each record through locker before triggering it
func WithLocker(locker TriggerLocker) PollerOption {
	return func(p *Poller) { p.locker = locker }
}

// WithPollerLogger sets the logger
func WithPollerLogger(l *logger.Logger) PollerOption {
	return func(p *Poller) { p.log = l }
}

// WithPollerClock sets the time source used to evaluate eligibility
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a new Poller
func NewPoller(config *Config, svc *daginfo.Service, dispatcher Dispatcher, opts ...PollerOption) *Poller {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Poller{
		config:     config,
		svc:        svc,
		dispatcher: dispatcher,
		log:        logger.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatcher == nil {
		p.dispatcher = LogDispatcher{Log: p.log}
	}
	return p
}

// Start registers the poll job and starts ticking
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller is already running")
	}

	location, err := loadLocation(p.config.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.cronScheduler = NewCronScheduler(location, p.log)
	if err := p.cronScheduler.AddJob(PollJobName, p.config.PollSpec, p.tick); err != nil {
		p.cancel()
		return err
	}
	p.cronScheduler.Start()
	p.running = true

	p.log.Info("Poller started", logger.StringField("poll_spec", p.config.PollSpec))
	return nil
}

// Stop waits for an in-flight poll and stops ticking
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return fmt.Errorf("poller is not running")
	}

	p.cancel()
	p.cronScheduler.Stop()
	p.running = false

	p.log.Info("Poller stopped")
	return nil
}

// IsRunning returns whether the poller is currently running
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// NextPoll returns when the next tick fires
func (p *Poller) NextPoll() (time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cronScheduler == nil {
		return time.Time{}, fmt.Errorf("poller not started")
	}
	return p.cronScheduler.NextRun(PollJobName)
}

func (p *Poller) tick() {
	result, err := p.PollOnce(p.ctx)
	if err != nil {
		p.log.Error("Poll failed", logger.ErrorField(err))
		return
	}
	if result.Due > 0 {
		p.log.Info("Poll finished",
			logger.IntField("due", result.Due),
			logger.IntField("triggered", result.Triggered),
			logger.IntField("skipped", result.Skipped),
			logger.IntField("failed", result.Failed),
		)
	}
}

// PollOnce runs a single select, trigger and dispatch pass. Per-record
// failures are counted and logged; only a failed selection is returned
func (p *Poller) PollOnce(ctx context.Context) (*PollResult, error) {
	now := p.now()
	result := &PollResult{RunIDs: []string{}}

	due, err := p.svc.SelectNeedStartDag(ctx, now)
	if err != nil {
		return result, err
	}
	result.Due = len(due)

	budget, err := p.runBudget(ctx, len(due))
	if err != nil {
		return result, err
	}

	queue := NewPriorityQueue()
	queue.PushDue(due)

	for item := queue.Pop(); item != nil; item = queue.Pop() {
		if ctx.Err() != nil {
			result.Skipped += queue.Len() + 1
			break
		}
		if budget == 0 {
			result.Skipped++
			continue
		}

		runID, err := p.triggerOne(ctx, item.DagInfo)
		switch {
		case err == nil:
			result.Triggered++
			result.RunIDs = append(result.RunIDs, runID)
			budget--
		case errors.Is(err, errClaimed), errors.Is(err, daginfo.ErrAlreadyTriggered):
			result.Skipped++
		default:
			result.Failed++
			p.log.ErrorContext(ctx, "Trigger dag failed",
				logger.Int64Field("id", item.DagInfo.ID),
				logger.StringField("dag_id", item.DagInfo.DagID),
				logger.ErrorField(err),
			)
		}
	}
	return result, nil
}

// Trigger starts one record on demand, bypassing the schedule but not the
// lifecycle rules
func (p *Poller) Trigger(ctx context.Context, id int64) (*daginfo.Trigger, error) {
	rec, err := p.svc.GetDagInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Valid {
		return nil, fmt.Errorf("%w: dag info %d is not valid", storage.ErrInvalidInput, id)
	}
	if rec.IsExpired(p.now()) {
		return nil, fmt.Errorf("%w: dag info %d expired at %s", storage.ErrInvalidInput, id, models.FormatTime(rec.ExpireTime))
	}
	if !rec.DagStatus.IsSchedulable() {
		if rec.DagStatus.IsTerminal() {
			return nil, fmt.Errorf("%w: dag info %d is terminated", state.ErrInvalidTransition, id)
		}
		return nil, fmt.Errorf("%w: dag info %d is running", daginfo.ErrAlreadyTriggered, id)
	}
	return p.triggerAndDispatch(ctx, rec)
}

var errClaimed = errors.New("trigger claimed by another scheduler")

// triggerOne claims rec through the locker when one is configured. A
// successful claim is kept until its TTL runs out, so a peer that selected
// the same record in this tick cannot trigger it again; a failed trigger
// releases it at once
func (p *Poller) triggerOne(ctx context.Context, rec *models.DagInfo) (string, error) {
	key := TriggerLockKey(rec.ID)
	if p.locker != nil {
		ok, err := p.locker.Acquire(ctx, key)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errClaimed
		}
	}

	trigger, err := p.triggerAndDispatch(ctx, rec)
	if err != nil {
		if p.locker != nil {
			if relErr := p.locker.Release(context.Background(), key); relErr != nil {
				p.log.WarnContext(ctx, "Release trigger lock failed", logger.ErrorField(relErr))
			}
		}
		return "", err
	}
	return trigger.RunID, nil
}

// triggerAndDispatch marks rec running and hands the run off. A run that
// cannot be dispatched is marked failed so it does not stay running forever
func (p *Poller) triggerAndDispatch(ctx context.Context, rec *models.DagInfo) (*daginfo.Trigger, error) {
	trigger, err := p.svc.MarkTriggered(ctx, rec)
	if err != nil {
		return nil, err
	}

	dctx := ctx
	if p.config.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.config.DispatchTimeout)
		defer cancel()
	}

	if err := p.dispatcher.Dispatch(dctx, trigger); err != nil {
		if markErr := p.svc.MarkFailed(context.Background(), rec.ID); markErr != nil {
			p.log.ErrorContext(ctx, "Mark undispatched dag failed", logger.ErrorField(markErr))
		}
		return nil, fmt.Errorf("failed to dispatch run %s: %w", trigger.RunID, err)
	}
	return trigger, nil
}

// runBudget returns how many triggers this poll may issue
func (p *Poller) runBudget(ctx context.Context, due int) (int, error) {
	if p.config.MaxRunning <= 0 {
		return due, nil
	}
	running, err := p.svc.Store().SelectWhere(ctx,
		storage.Eq(storage.ColDagStatus, models.DagStatusRunning), storage.ColID)
	if err != nil {
		return 0, err
	}
	if budget := p.config.MaxRunning - len(running); budget > 0 {
		return budget, nil
	}
	return 0, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
