package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"animlib/internal/backup"
	"animlib/internal/database"
	"animlib/internal/model"
	"animlib/internal/scanner"
	"animlib/internal/testutil"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 3 * * *", false},
		{"*/15 * * * *", false},
		{"@daily", false},
		{"", true},
		{"0 0 3 * * *", true}, // seconds field not accepted
		{"every day", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, model.ErrInvalid) {
				t.Errorf("error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestScheduler_Add(t *testing.T) {
	s := New(nil)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "bad", Schedule: "nope", Run: noop}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("Add(invalid schedule) error = %v, want ErrInvalid", err)
	}
	if err := s.Add(Job{Name: "scan", Schedule: "0 * * * *", Run: noop}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(Job{Name: "scan", Schedule: "0 * * * *", Run: noop}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("Add(duplicate) error = %v, want ErrConflict", err)
	}
	if err := s.Add(Job{Name: "backup", Schedule: "@daily", Run: noop}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if got := s.Jobs(); !reflect.DeepEqual(got, []string{"backup", "scan"}) {
		t.Errorf("Jobs() = %v", got)
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	boom := errors.New("boom")
	s.Add(Job{Name: "count", Schedule: "@daily", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}})
	s.Add(Job{Name: "fail", Schedule: "@daily", Run: func(context.Context) error { return boom }})

	if err := s.RunNow(context.Background(), "count"); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("job ran %d times, want 1", calls.Load())
	}
	if err := s.RunNow(context.Background(), "fail"); !errors.Is(err, boom) {
		t.Errorf("RunNow(fail) error = %v, want boom", err)
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("RunNow(missing) error = %v, want ErrNotFound", err)
	}
}

func TestScheduler_NoOverlap(t *testing.T) {
	s := New(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	s.Add(Job{Name: "slow", Schedule: "@daily", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started

	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrJobRunning) {
		t.Errorf("overlapping RunNow() error = %v, want ErrJobRunning", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first RunNow() error = %v", err)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(nil)
	s.Add(Job{Name: "nightly", Schedule: "0 3 * * *", Run: func(context.Context) error { return nil }})

	if s.NextRun("nightly") != nil {
		t.Error("NextRun() before Start should be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx) // no-op
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}

	next := s.NextRun("nightly")
	if next == nil {
		t.Fatal("NextRun() = nil while running")
	}
	if next.Hour() != 3 || next.Minute() != 0 || !next.After(time.Now()) {
		t.Errorf("NextRun() = %v, want next 03:00", next)
	}
	if s.NextRun("unknown") != nil {
		t.Error("NextRun(unknown) should be nil")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("scheduler still running after context cancel")
	}
	s.Stop() // idempotent
}

func TestBackupAndScanJobs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := database.Open(ctx, filepath.Join(dir, "data", database.FileName), database.Options{Clock: testutil.FixedClock()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	root := filepath.Join(dir, "library")
	testutil.WriteManifest(t, root, "library/actions/walk", map[string]any{
		"uuid": "w1", "name": "Walk", "app_version": "1.0.0",
	})

	svc, err := backup.New(db, backup.Options{})
	if err != nil {
		t.Fatalf("backup.New() error = %v", err)
	}
	sc := scanner.New(db, scanner.Options{})

	s := New(nil)
	if err := s.Add(BackupJob("@daily", svc)); err != nil {
		t.Fatalf("Add(backup) error = %v", err)
	}
	if err := s.Add(ScanJob("*/30 * * * *", sc, root)); err != nil {
		t.Fatalf("Add(scan) error = %v", err)
	}

	if err := s.RunNow(ctx, "scan"); err != nil {
		t.Fatalf("RunNow(scan) error = %v", err)
	}
	if ok, _ := db.Animations().Exists(ctx, "w1"); !ok {
		t.Error("scan job did not import the library")
	}

	if err := s.RunNow(ctx, "backup"); err != nil {
		t.Fatalf("RunNow(backup) error = %v", err)
	}
	backups, err := svc.List()
	if err != nil || len(backups) != 1 {
		t.Errorf("backups after job = %v, %v; want 1", backups, err)
	}
}
