package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mpetrov/jobpool/internal/model"
	"github.com/mpetrov/jobpool/internal/orchestrator"
)

// --- Mock implementations ---

type countingRunner struct {
	allCalls atomic.Int32
	mu       sync.Mutex
	sources  []model.Source
	panicked bool
}

func (r *countingRunner) CollectAll(_ context.Context) orchestrator.Stats {
	if r.panicked {
		panic("collector blew up")
	}
	r.allCalls.Add(1)
	return orchestrator.Stats{}
}

func (r *countingRunner) CollectFromSource(_ context.Context, src model.Source) orchestrator.Stats {
	r.mu.Lock()
	r.sources = append(r.sources, src)
	r.mu.Unlock()
	return orchestrator.Stats{}
}

func (r *countingRunner) collectedLocators() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	locators := make([]string, len(r.sources))
	for i, src := range r.sources {
		locators[i] = src.Locator
	}
	return locators
}

type quotaStore struct {
	exhausted    bool
	checks       atomic.Int32
	refreshCalls atomic.Int32
}

func (s *quotaStore) QuotaExhausted(_ time.Time) (bool, error) {
	s.checks.Add(1)
	return s.exhausted, nil
}

func (s *quotaStore) RecordRefresh() error {
	s.refreshCalls.Add(1)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runBriefly(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(d)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

// --- Tests ---

func TestRun_ImmediatePassThenTicks(t *testing.T) {
	r := &countingRunner{}
	s := New(r, &quotaStore{}, 100*time.Millisecond, Rotation{}, discardLogger())

	runBriefly(t, s, 250*time.Millisecond)

	if got := r.allCalls.Load(); got < 2 {
		t.Errorf("CollectAll calls = %d, want >= 2 (startup pass plus ticks)", got)
	}
}

func TestRun_QuotaExhaustedSkipsNetwork(t *testing.T) {
	r := &countingRunner{}
	store := &quotaStore{exhausted: true}
	s := New(r, store, 50*time.Millisecond, Rotation{}, discardLogger())

	runBriefly(t, s, 150*time.Millisecond)

	if got := store.checks.Load(); got < 1 {
		t.Fatalf("expected quota to be checked, got %d checks", got)
	}
	if got := r.allCalls.Load(); got != 0 {
		t.Errorf("CollectAll calls = %d, want 0 while quota exhausted", got)
	}
}

func TestRun_RotationWalksKeywords(t *testing.T) {
	r := &countingRunner{}
	store := &quotaStore{}
	rotation := Rotation{Enabled: true, Keywords: []string{"golang", "rust"}}
	s := New(r, store, 60*time.Millisecond, rotation, discardLogger())

	runBriefly(t, s, 200*time.Millisecond)

	locators := r.collectedLocators()
	if len(locators) < 3 {
		t.Fatalf("expected at least 3 rotation passes, got %v", locators)
	}
	// Cursor wraps: golang, rust, golang, ...
	want := []string{"golang", "rust", "golang"}
	for i, w := range want {
		if locators[i] != w {
			t.Fatalf("rotation order = %v, want prefix %v", locators, want)
		}
	}
	if got := r.allCalls.Load(); got != 0 {
		t.Errorf("CollectAll calls = %d, want 0 when rotation is active", got)
	}
	if got := store.refreshCalls.Load(); got < 3 {
		t.Errorf("refresh recorded %d times, want >= 3 (once per rotation pass)", got)
	}
}

func TestRun_RotationSourceShape(t *testing.T) {
	r := &countingRunner{}
	rotation := Rotation{Enabled: true, Keywords: []string{"golang"}}
	s := New(r, &quotaStore{}, time.Hour, rotation, discardLogger())

	runBriefly(t, s, 50*time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sources) != 1 {
		t.Fatalf("expected a single startup pass, got %d", len(r.sources))
	}
	src := r.sources[0]
	if src.Type != model.SourceAPI || src.Provider != model.ProviderAdzuna {
		t.Errorf("rotation source should target the api provider, got %+v", src)
	}
}

func TestKick_TriggersImmediatePass(t *testing.T) {
	r := &countingRunner{}
	s := New(r, &quotaStore{}, time.Hour, Rotation{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Kick()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if got := r.allCalls.Load(); got != 2 {
		t.Errorf("CollectAll calls = %d, want 2 (startup pass plus kick)", got)
	}
}

func TestKick_NeverBlocks(t *testing.T) {
	s := New(&countingRunner{}, &quotaStore{}, time.Hour, Rotation{}, discardLogger())

	// No Run loop draining the channel; repeated kicks must not block.
	for i := 0; i < 5; i++ {
		s.Kick()
	}
}

func TestRun_PassPanicDoesNotKillLoop(t *testing.T) {
	r := &countingRunner{panicked: true}
	s := New(r, &quotaStore{}, 50*time.Millisecond, Rotation{}, discardLogger())

	// Every pass panics; the loop must still exit cleanly on cancel.
	runBriefly(t, s, 150*time.Millisecond)
}
