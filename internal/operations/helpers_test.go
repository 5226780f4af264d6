package operations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tabtweak/pkg/contracts/domain"
)

type recordedEvent struct {
	eventType string
	step      string
	status    string
	metadata  interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) BroadcastUpdate(eventType, step, status string, metadata interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{eventType, step, status, metadata})
}

func (h *fakeHub) statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.status)
	}
	return out
}

func (h *fakeHub) last() (recordedEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return recordedEvent{}, false
	}
	return h.events[len(h.events)-1], true
}

type fakeLoader struct {
	spec    domain.DatasetSpec
	table   *domain.Table
	err     error
	block   bool
	started chan struct{}
}

func (l *fakeLoader) Dataset(name string) (domain.DatasetSpec, error) {
	if name != l.spec.Name {
		return domain.DatasetSpec{}, fmt.Errorf("unknown dataset %q", name)
	}
	return l.spec, nil
}

func (l *fakeLoader) LoadRaw(ctx context.Context, _ domain.DatasetSpec, _ string) (*domain.Table, error) {
	if l.started != nil {
		close(l.started)
		l.started = nil
	}
	if l.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.table, nil
}

type fakeExporter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []string
}

func (e *fakeExporter) Export(path string, t *domain.Table, _ bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.failures {
		return "", fmt.Errorf("disk full")
	}
	full := "/reports/" + path
	e.written = append(e.written, full)
	return full, nil
}

// sampleTable has a numeric "temp" column and a text "note" column
func sampleTable() *domain.Table {
	return domain.MustTable(
		domain.NewNumericColumn("temp", []float64{1, 2, 3}, nil),
		domain.NewTextColumn("note", []string{"a", "b", "c"}, nil),
	)
}

func sampleSpec(drop ...string) domain.DatasetSpec {
	return domain.DatasetSpec{
		Name:   "sample",
		Source: "sample.csv",
		Tweak:  domain.TweakSpec{Drop: drop},
	}
}

// fastConfig keeps retries short for tests
func fastConfig() *Config {
	cfg := NewConfig()
	cfg.RetryConfig = RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
	return cfg
}

type stubStep struct {
	BaseStage
	run func(ctx context.Context, state *OperationState) error
}

func newStubStep(id string, deps ...string) *stubStep {
	return &stubStep{BaseStage: NewBaseStage(id, id, deps)}
}

func (s *stubStep) Execute(ctx context.Context, state *OperationState) error {
	if s.run == nil {
		return nil
	}
	return s.run(ctx, state)
}
