package cron_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/replypass/replypass/internal/cron"
	"github.com/replypass/replypass/internal/cron/crontest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler_DuplicateName(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	if err := s.RegisterJob(&crontest.MockJob{NameVal: "a", ScheduleVal: "* * * * *"}); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterJob(&crontest.MockJob{NameVal: "a", ScheduleVal: "* * * * *"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"invalid", "", "60 * * * *", "* * * * * *"} {
		s := cron.NewScheduler(nil)
		_ = s.RegisterJob(&crontest.MockJob{NameVal: "bad", ScheduleVal: expr})
		if err := s.Start(); err == nil {
			t.Errorf("Start() with schedule %q should fail", expr)
			_ = s.Stop(context.Background())
		}
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(&crontest.MockJob{NameVal: "noop", ScheduleVal: "17 3 * * *"})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Stop is idempotent and safe before Start.
	if err := cron.NewScheduler(nil).Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	job := &crontest.MockJob{NameVal: "j", ScheduleVal: "* * * * *", RunFunc: func(context.Context) error { return boom }}
	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(job)

	ran, err := s.RunNow(context.Background(), "j")
	if !ran || !errors.Is(err, boom) {
		t.Errorf("RunNow() = %v, %v", ran, err)
	}
	if job.CallCount() != 1 {
		t.Errorf("calls = %d", job.CallCount())
	}
	if _, err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Error("unknown job should fail")
	}
}

func TestScheduler_RunNowSkipsOverlap(t *testing.T) {
	t.Parallel()

	started, release := make(chan struct{}), make(chan struct{})
	job := &crontest.MockJob{NameVal: "slow", ScheduleVal: "* * * * *", RunFunc: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	s := cron.NewScheduler(nil)
	_ = s.RegisterJob(job)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunNow(context.Background(), "slow")
	}()
	<-started

	ran, err := s.RunNow(context.Background(), "slow")
	if ran || err != nil {
		t.Errorf("overlapping RunNow() = %v, %v, want skipped", ran, err)
	}
	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}
}
