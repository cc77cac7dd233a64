package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/cooldown"
	"guildkeeper/pkg/logger"
)

func TestManagerAddRunRemove(t *testing.T) {
	t.Parallel()

	manager := New(logger.NewNop())

	runs := 0
	job, err := manager.AddJob("tags", "flush", "@every 1h", func(ctx context.Context) error {
		runs++
		return nil
	})
	if err != nil {
		t.Fatalf("add job: %v", err)
	}
	if job.ID != "tags:flush" {
		t.Fatalf("expected ID tags:flush, got %q", job.ID)
	}
	if job.NextRun.IsZero() {
		t.Fatalf("expected next run to be computed")
	}

	if err := manager.RunNow(job.ID); err != nil {
		t.Fatalf("run now: %v", err)
	}
	got, err := manager.GetJob(job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if runs != 1 || got.RunCount != 1 || !got.LastSuccess {
		t.Fatalf("expected one successful run, got runs=%d count=%d success=%v", runs, got.RunCount, got.LastSuccess)
	}

	if err := manager.RemoveJob(job.ID); err != nil {
		t.Fatalf("remove job: %v", err)
	}
	if _, err := manager.GetJob(job.ID); err == nil {
		t.Fatalf("expected removed job to be gone")
	}
	if err := manager.RemoveJob(job.ID); err == nil {
		t.Fatalf("expected error removing missing job")
	}
}

func TestManagerRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	manager := New(logger.NewNop())
	noop := func(context.Context) error { return nil }

	if _, err := manager.AddJob("core", "bad", "every minute", noop); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
	if _, err := manager.AddJob("", "x", "@hourly", noop); err == nil {
		t.Fatalf("expected missing owner error")
	}
	if len(manager.ListJobs()) != 0 {
		t.Fatalf("rejected jobs must not be stored")
	}
}

func TestManagerRemoveOwner(t *testing.T) {
	t.Parallel()

	manager := New(logger.NewNop())
	noop := func(context.Context) error { return nil }

	for _, name := range []string{"a", "b"} {
		if _, err := manager.AddJob("core", name, "@hourly", noop); err != nil {
			t.Fatalf("add job: %v", err)
		}
	}
	if _, err := manager.AddJob("tags", "a", "@hourly", noop); err != nil {
		t.Fatalf("add job: %v", err)
	}

	if removed := manager.RemoveOwner("core"); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	jobs := manager.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != "tags:a" {
		t.Fatalf("expected only tags:a to remain, got %+v", jobs)
	}
}

func TestManagerRecordsFailuresAndPanics(t *testing.T) {
	t.Parallel()

	manager := New(logger.NewNop())
	if _, err := manager.AddJob("core", "fail", "@hourly", func(context.Context) error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("add job: %v", err)
	}
	if _, err := manager.AddJob("core", "panic", "@hourly", func(context.Context) error {
		panic("kaboom")
	}); err != nil {
		t.Fatalf("add job: %v", err)
	}

	if err := manager.RunNow("core:fail"); err == nil {
		t.Fatalf("expected job error")
	}
	if err := manager.RunNow("core:panic"); err == nil {
		t.Fatalf("expected recovered panic error")
	}
	job, _ := manager.GetJob("core:fail")
	if job.LastSuccess || job.LastError != "boom" {
		t.Fatalf("expected recorded failure, got %+v", job)
	}
}

func TestManagerStartStop(t *testing.T) {
	t.Parallel()

	manager := New(logger.NewNop())
	if err := manager.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := manager.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestCooldownSweepJob(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	tracker := cooldown.NewTracker(cooldown.WithClock(func() time.Time { return now }))
	tracker.Check("ping", "u1", time.Second)
	tracker.Check("help", "u1", time.Hour)

	manager := New(logger.NewNop())
	cfg := config.DefaultConfig()
	cfg.Cooldown.SweepSchedule = ""
	if err := RegisterCooldownSweep(manager, cfg, tracker, logger.NewNop()); err != nil {
		t.Fatalf("register sweep: %v", err)
	}

	job, err := manager.GetJob(CoreOwner + ":cooldown-sweep")
	if err != nil {
		t.Fatalf("sweep job missing: %v", err)
	}
	if job.Schedule != "@every 1m" {
		t.Fatalf("expected default schedule, got %q", job.Schedule)
	}

	now = now.Add(2 * time.Second)
	if err := manager.RunNow(job.ID); err != nil {
		t.Fatalf("run sweep: %v", err)
	}
	if tracker.Len() != 1 {
		t.Fatalf("expected only the live entry to remain, got %d", tracker.Len())
	}
}
