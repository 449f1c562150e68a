package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"

	"market-data-server/src/helpers"
	"market-data-server/src/logger"
	"market-data-server/src/models"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) *models.MBatchReport

// -----------------------------------------------------------------------------
// guardedJob lets at most one run of a job proceed. A tick that fires while a
// run is in flight is dropped and counted, never queued.
// -----------------------------------------------------------------------------

type guardedJob struct {
	name    string
	fn      Job
	handler *helpers.ErrorHandler
	logger  *logger.Logger
	cron    *gocron.Job

	gate    sync.Mutex
	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64

	mu       sync.Mutex
	lastRun  *time.Time
	lastNote string
}

func (g *guardedJob) run(ctx context.Context) {
	if !g.gate.TryLock() {
		g.skipped.Add(1)
		g.logger.Debug("%s still running, tick skipped", g.name)
		return
	}
	defer g.gate.Unlock()

	g.running.Store(true)
	defer g.running.Store(false)
	defer g.handler.Recover(g.name)

	started := time.Now().UTC()
	g.runs.Add(1)
	g.mu.Lock()
	g.lastRun = &started
	g.mu.Unlock()

	report := g.fn(ctx)
	if report == nil {
		return
	}
	g.mu.Lock()
	g.lastNote = report.String()
	g.mu.Unlock()
}

func (g *guardedJob) status() models.MJobStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := models.MJobStatus{
		Name:     g.name,
		LastRun:  g.lastRun,
		Runs:     g.runs.Load(),
		Skipped:  g.skipped.Load(),
		Running:  g.running.Load(),
		LastNote: g.lastNote,
	}
	if g.cron != nil {
		st.NextRun = g.cron.NextRun()
	}
	return st
}

// -----------------------------------------------------------------------------
// Scheduler registers non-reentrant recurring jobs on a gocron scheduler
// running in UTC.
// -----------------------------------------------------------------------------

type Scheduler struct {
	cron    *gocron.Scheduler
	ctx     context.Context
	handler *helpers.ErrorHandler
	Logger  *logger.Logger

	mu   sync.Mutex
	jobs map[string]*guardedJob
}

func NewScheduler(ctx context.Context, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		ctx:     ctx,
		handler: helpers.NewErrorHandler(log),
		Logger:  log,
		jobs:    make(map[string]*guardedJob),
	}
}

// -----------------------------------------------------------------------------

func (s *Scheduler) register(name string, fn Job) (*guardedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return nil, fmt.Errorf("job %q already registered", name)
	}
	g := &guardedJob{name: name, fn: fn, handler: s.handler, logger: s.Logger}
	s.jobs[name] = g
	return g, nil
}

// AddInterval runs fn every interval, starting immediately
func (s *Scheduler) AddInterval(name string, every time.Duration, fn Job) error {
	if every <= 0 {
		return fmt.Errorf("job %q: interval must be positive", name)
	}
	g, err := s.register(name, fn)
	if err != nil {
		return err
	}
	job, err := s.cron.Every(every).Name(name).Tag(name).Do(g.run, s.ctx)
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}
	g.cron = job
	s.Logger.Info("Registered %s every %s", name, every)
	return nil
}

// AddDaily runs fn once a day at hhmm in the named timezone
func (s *Scheduler) AddDaily(name, hhmm, timezone string, fn Job) error {
	at, err := DailyTimeUTC(hhmm, timezone, time.Now())
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}
	g, err := s.register(name, fn)
	if err != nil {
		return err
	}
	job, err := s.cron.Every(1).Day().At(at).Name(name).Tag(name).Do(g.run, s.ctx)
	if err != nil {
		return fmt.Errorf("job %q: %w", name, err)
	}
	g.cron = job
	s.Logger.Info("Registered %s daily at %s %s (%s UTC)", name, hhmm, timezone, at)
	return nil
}

// -----------------------------------------------------------------------------

// DailyTimeUTC converts a wall-clock time in timezone to UTC HH:MM, using
// the offset in effect on ref's date.
func DailyTimeUTC(hhmm, timezone string, ref time.Time) (string, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	ref = ref.In(loc)
	local := time.Date(ref.Year(), ref.Month(), ref.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	return local.UTC().Format("15:04"), nil
}

// -----------------------------------------------------------------------------

// Trigger runs a registered job now, through the same overlap guard as ticks.
// It returns false for an unknown job.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	g, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	g.run(s.ctx)
	return true
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.Logger.Info("Scheduler started with %d jobs", len(s.cron.Jobs()))
}

// Stop halts new ticks. Runs already in flight finish on their own.
func (s *Scheduler) Stop() {
	if s.cron.IsRunning() {
		s.cron.Stop()
	}
	s.Logger.Info("Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron.IsRunning()
}

// Status reports every job, sorted by name
func (s *Scheduler) Status() models.MSchedulerStatus {
	s.mu.Lock()
	jobs := make([]*guardedJob, 0, len(s.jobs))
	for _, g := range s.jobs {
		jobs = append(jobs, g)
	}
	s.mu.Unlock()

	out := models.MSchedulerStatus{Running: s.IsRunning(), Jobs: make([]models.MJobStatus, 0, len(jobs))}
	for _, g := range jobs {
		out.Jobs = append(out.Jobs, g.status())
	}
	sort.Slice(out.Jobs, func(i, j int) bool { return out.Jobs[i].Name < out.Jobs[j].Name })
	return out
}
