// Package scheduler runs the recurring background jobs: the daily scoring
// batch, alert sweeps, macro and market refreshes, and nightly maintenance.
// All schedules evaluate in America/New_York because the cadences follow US
// market rhythms.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/hedge/internal/events"
)

// Trigger errors, distinguished so the HTTP layer can map them to 404/409.
var (
	ErrUnknownJob     = errors.New("unknown job")
	ErrAlreadyRunning = errors.New("job already running")
)

// Cron schedules with seconds granularity, evaluated in New York time.
const (
	ScheduleScoring      = "0 0 6 * * *"    // daily at 06:00, before US market open
	ScheduleAlerts       = "0 */5 * * * *"  // every 5 minutes
	ScheduleMacro        = "0 0 * * * *"    // hourly
	ScheduleMarketData   = "0 */15 * * * *" // every 15 minutes
	ScheduleFundamentals = "0 0 5 * * 6"    // Saturday at 05:00
	ScheduleMaintenance  = "0 0 2 * * *"    // nightly at 02:00
	ScheduleBackup       = "0 0 3 * * 0"    // Sunday at 03:00
)

// Job is one schedulable unit of background work.
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the scheduler's view of one registered job.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Running   bool       `json:"running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

type jobEntry struct {
	job      Job
	schedule string
	entryID  cron.EntryID

	running bool
	lastRun time.Time
	lastErr error
}

// Scheduler fires registered jobs on their cron schedules and on manual
// triggers. Every run gets its own goroutine with panic recovery, and a job
// still running when its next tick arrives skips that tick instead of
// overlapping itself.
type Scheduler struct {
	cron *cron.Cron
	bus  *events.Bus
	log  zerolog.Logger

	mu      sync.Mutex
	entries map[string]*jobEntry
	wg      sync.WaitGroup
}

// New creates a stopped scheduler. Call Register for each job, then Start.
func New(bus *events.Bus, log zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduler timezone: %w", err)
	}

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		bus:     bus,
		log:     log.With().Str("component", "scheduler").Logger(),
		entries: make(map[string]*jobEntry),
	}, nil
}

// Register adds a job under its own name. Job names must be unique; the
// manual trigger endpoint addresses jobs by them.
func (s *Scheduler) Register(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return fmt.Errorf("job %q already registered", job.Name())
	}

	entry := &jobEntry{job: job, schedule: schedule}
	id, err := s.cron.AddFunc(schedule, func() { s.execute(entry) })
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}
	entry.entryID = id
	s.entries[job.Name()] = entry

	s.log.Info().
		Str("job", job.Name()).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// Trigger starts a registered job immediately, outside its schedule. It
// returns once the run is launched, not when it finishes; completion is
// observable on the event bus.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	entry, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if entry.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	s.mu.Unlock()

	s.log.Info().Str("job", name).Msg("Job triggered manually")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(entry)
	}()
	return nil
}

// Start begins schedule evaluation.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.entries)).Msg("Scheduler started")
}

// Stop halts schedule evaluation and waits for in-flight runs to drain,
// including manually triggered ones.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// Status reports every registered job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.entries))
	for name, entry := range s.entries {
		status := JobStatus{
			Name:     name,
			Schedule: entry.schedule,
			Running:  entry.running,
		}
		if !entry.lastRun.IsZero() {
			lastRun := entry.lastRun
			status.LastRun = &lastRun
		}
		if entry.lastErr != nil {
			status.LastError = entry.lastErr.Error()
		}
		if next := s.cron.Entry(entry.entryID).Next; !next.IsZero() {
			nextRun := next
			status.NextRun = &nextRun
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

func (s *Scheduler) execute(entry *jobEntry) {
	s.mu.Lock()
	if entry.running {
		s.mu.Unlock()
		s.log.Warn().Str("job", entry.job.Name()).Msg("Job still running, skipping tick")
		return
	}
	entry.running = true
	s.mu.Unlock()

	start := time.Now()
	err := s.runRecovered(entry.job)
	duration := time.Since(start)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = start
	entry.lastErr = err
	s.mu.Unlock()

	data := &events.JobCompletedData{
		Job:             entry.job.Name(),
		DurationSeconds: duration.Seconds(),
	}
	if err != nil {
		data.Error = err.Error()
		s.log.Error().
			Err(err).
			Str("job", entry.job.Name()).
			Dur("duration_ms", duration).
			Msg("Job failed")
	} else {
		s.log.Info().
			Str("job", entry.job.Name()).
			Dur("duration_ms", duration).
			Msg("Job completed")
	}
	if s.bus != nil {
		s.bus.Publish(events.JobCompleted, "scheduler", data)
	}
}

// runRecovered converts a job panic into an error so one bad run cannot
// take down the process.
func (s *Scheduler) runRecovered(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", job.Name(), r)
		}
	}()
	return job.Run()
}
