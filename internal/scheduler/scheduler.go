// Package scheduler implements the durable cron-like engine: a single
// ticker-driven task that fires synthetic messages for Once, Daily,
// and Periodic jobs, surviving reboot via persisted state.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fieldmind/core/internal/message"
	"github.com/fieldmind/core/internal/store"
	"github.com/fieldmind/core/internal/tools"
)

const DefaultTick = 60 * time.Second

// Job is a persisted scheduled job.
type Job struct {
	ID            int64  `json:"id"`
	Kind          Kind   `json:"kind"`
	Spec          string `json:"spec"`
	Action        string `json:"action"`
	NextFireEpoch int64  `json:"next_fire_epoch"`
	CreationEpoch int64  `json:"creation_epoch"`
	Active        bool   `json:"active"`
}

// jobStore is the subset of *store.Store the scheduler needs.
type jobStore interface {
	Get(ns store.Namespace, key string) ([]byte, error)
	Put(ns store.Namespace, key string, value []byte) error
	Delete(ns store.Namespace, key string) error
	Iterate(ns store.Namespace) ([]store.Entry, error)
}

// Scheduler owns the persistent job table and the input queue jobs
// fire into.
type Scheduler struct {
	Store       jobStore
	Input       InputQueue
	Location    func() *time.Location
	ClockSynced func() bool
	Now         func() time.Time
	Logger      *zap.Logger

	jobs   map[int64]*Job
	nextID int64
}

// InputQueue is the subset of *channel.Queue the scheduler needs.
type InputQueue interface {
	TrySend(ctx context.Context, m message.Message) bool
}

func New(st jobStore, input InputQueue, location func() *time.Location, clockSynced func() bool, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		Store:       st,
		Input:       input,
		Location:    location,
		ClockSynced: clockSynced,
		Now:         time.Now,
		Logger:      logger,
		jobs:        make(map[int64]*Job),
	}
}

// LoadJobs populates the in-memory job table from the persistent
// store at startup.
func (s *Scheduler) LoadJobs() error {
	entries, err := s.Store.Iterate(store.NamespaceCron)
	if err != nil {
		return err
	}
	var maxID int64
	for _, e := range entries {
		var j Job
		if err := json.Unmarshal(e.Value, &j); err != nil {
			continue
		}
		jc := j
		s.jobs[j.ID] = &jc
		if j.ID > maxID {
			maxID = j.ID
		}
	}
	s.nextID = maxID + 1
	return nil
}

func (s *Scheduler) persistJob(j *Job) error {
	blob, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return s.Store.Put(store.NamespaceCron, strconv.FormatInt(j.ID, 10), blob)
}

// CreateJob implements the tools.SchedulerService contract behind
// schedule_create.
func (s *Scheduler) CreateJob(ctx context.Context, kind, spec, actionText string) (tools.JobSummary, error) {
	trigger, err := ParseTrigger(spec)
	if err != nil {
		return tools.JobSummary{}, err
	}
	if kind != string(trigger.Kind) {
		return tools.JobSummary{}, fmt.Errorf("kind %q does not match spec grammar %q", kind, trigger.Kind)
	}
	now := s.Now()
	nowEpoch := now.Unix()

	var nextFire int64
	switch trigger.Kind {
	case KindOnce:
		if trigger.HasAbsolute {
			nextFire = nextDailyEpoch(now, s.Location(), trigger.AbsHour, trigger.AbsMinute)
		} else {
			nextFire = nowEpoch + trigger.RelativeSeconds
		}
	case KindDaily:
		nextFire = nextDailyEpoch(now, s.Location(), trigger.Hour, trigger.Minute)
	case KindPeriodic:
		nextFire = nowEpoch + trigger.IntervalSeconds
	}

	job := &Job{
		ID:            s.nextID,
		Kind:          trigger.Kind,
		Spec:          spec,
		Action:        actionText,
		NextFireEpoch: nextFire,
		CreationEpoch: nowEpoch,
		Active:        true,
	}
	s.nextID++
	s.jobs[job.ID] = job
	if err := s.persistJob(job); err != nil {
		return tools.JobSummary{}, err
	}
	return toSummary(job), nil
}

func (s *Scheduler) ListJobs(ctx context.Context) ([]tools.JobSummary, error) {
	out := make([]tools.JobSummary, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, toSummary(j))
	}
	return out, nil
}

func (s *Scheduler) DeleteJob(ctx context.Context, id int64) error {
	delete(s.jobs, id)
	return s.Store.Delete(store.NamespaceCron, strconv.FormatInt(id, 10))
}

func toSummary(j *Job) tools.JobSummary {
	return tools.JobSummary{
		ID: j.ID, Kind: string(j.Kind), Spec: j.Spec, Action: j.Action,
		NextFireEpoch: j.NextFireEpoch, Active: j.Active,
	}
}

// nextDailyEpoch computes the next occurrence of hour:minute in loc
// strictly after now, using robfig/cron's standard-spec Schedule.Next
// so DST transitions are handled by the same time.Date normalization
// the cron library relies on internally.
func nextDailyEpoch(now time.Time, loc *time.Location, hour, minute int) int64 {
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		// hour/minute are range-checked by ParseTrigger; this is not
		// reachable in practice.
		return now.Unix()
	}
	return sched.Next(now.In(loc)).Unix()
}

// Run executes the scheduler's ticker loop until ctx is done.
func (s *Scheduler) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.ClockSynced() {
		return
	}
	now := s.Now()
	nowEpoch := now.Unix()

	for _, job := range s.jobs {
		if !job.Active || job.NextFireEpoch > nowEpoch {
			continue
		}

		sent := s.Input.TrySend(ctx, message.New(job.Action, message.OriginSchedule))
		if !sent {
			s.Logger.Warn("input queue full, job remains scheduled", zap.Int64("job_id", job.ID))
			continue
		}

		switch job.Kind {
		case KindOnce:
			job.Active = false
		case KindDaily:
			job.NextFireEpoch = advanceDaily(job.NextFireEpoch, now, s.Location())
		case KindPeriodic:
			job.NextFireEpoch = advancePeriodic(job.NextFireEpoch, nowEpoch, job)
		}
		if err := s.persistJob(job); err != nil {
			s.Logger.Error("persist job after fire failed", zap.Int64("job_id", job.ID), zap.Error(err))
		}
	}
}

func advanceDaily(prevFire int64, now time.Time, loc *time.Location) int64 {
	prev := time.Unix(prevFire, 0).In(loc)
	return nextDailyEpoch(now, loc, prev.Hour(), prev.Minute())
}

func advancePeriodic(prevFire int64, nowEpoch int64, job *Job) int64 {
	trigger, err := ParseTrigger(job.Spec)
	interval := trigger.IntervalSeconds
	if err != nil || interval <= 0 {
		interval = MinPeriodicSeconds
	}
	next := prevFire + interval
	// If several intervals elapsed while offline, advance to the
	// first next-fire-epoch strictly greater than now.
	for next <= nowEpoch {
		next += interval
	}
	return next
}
