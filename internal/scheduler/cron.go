package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
)

// cronParser accepts optional seconds plus descriptors such as "@every 10s"
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronScheduler runs named jobs on cron schedules. A job still running when
// its next tick fires is skipped for that tick
type CronScheduler struct {
	cron     *cron.Cron
	location *time.Location
	entries  map[string]cron.EntryID // job name -> entryID
	mu       sync.RWMutex
}

// NewCronScheduler creates a new cron scheduler
func NewCronScheduler(location *time.Location, log *logger.Logger) *CronScheduler {
	if location == nil {
		location = time.Local
	}
	if log == nil {
		log = logger.NewNop()
	}
	cl := cronLogger{log: log.Named("cron")}
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithParser(cronParser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		location: location,
		entries:  make(map[string]cron.EntryID),
	}
}

// ValidateSpec checks a cron expression
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %s: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler
func (cs *CronScheduler) Start() {
	cs.cron.Start()
}

// Stop stops the cron scheduler
func (cs *CronScheduler) Stop() {
	ctx := cs.cron.Stop()
	<-ctx.Done() // Wait for all jobs to complete
}

// AddJob registers fn under name
func (cs *CronScheduler) AddJob(name, spec string, fn func()) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.entries[name]; exists {
		return fmt.Errorf("job %s is already registered", name)
	}
	if err := ValidateSpec(spec); err != nil {
		return err
	}

	entryID, err := cs.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	cs.entries[name] = entryID
	return nil
}

// RemoveJob removes a job
func (cs *CronScheduler) RemoveJob(name string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if entryID, exists := cs.entries[name]; exists {
		cs.cron.Remove(entryID)
		delete(cs.entries, name)
	}
}

// Jobs returns all registered job names
func (cs *CronScheduler) Jobs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.entries))
	for name := range cs.entries {
		names = append(names, name)
	}
	return names
}

// NextRun returns the next scheduled run of a job. It is zero until the
// scheduler has been started
func (cs *CronScheduler) NextRun(name string) (time.Time, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	entryID, exists := cs.entries[name]
	if !exists {
		return time.Time{}, fmt.Errorf("job %s is not registered", name)
	}

	entry := cs.cron.Entry(entryID)
	if entry.ID == 0 {
		return time.Time{}, fmt.Errorf("entry not found for job %s", name)
	}
	return entry.Next, nil
}

// cronLogger adapts the zap logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
