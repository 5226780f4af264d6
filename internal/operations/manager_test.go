package operations

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tabtweak/internal/errors"
	"tabtweak/internal/shared/testutil"
)

func newTestManager(t *testing.T, loader DatasetLoader, exporter TableExporter) (*Manager, *fakeHub, *testutil.BufferedSlogHandler) {
	t.Helper()
	logger, handler := testutil.NewTestLogger(t)
	hub := &fakeHub{}
	registry := NewRegistry()
	require.NoError(t, RegisterTweakSteps(registry, loader, exporter, logger))
	return NewManager(hub, registry, fastConfig(), logger), hub, handler
}

func TestManager_Execute(t *testing.T) {
	tests := []struct {
		name         string
		loader       *fakeLoader
		exporter     *fakeExporter
		req          OperationRequest
		wantStatus   OperationStatusValue
		wantSteps    map[string]StepStatus
		wantErrType  ErrorType
		wantExports  int
		wantAttempts map[string]int
	}{
		{
			name:        "success",
			loader:      &fakeLoader{spec: sampleSpec("note"), table: sampleTable()},
			exporter:    &fakeExporter{},
			req:         OperationRequest{Dataset: "sample"},
			wantStatus:  OperationStatusCompleted,
			wantSteps:   map[string]StepStatus{StepIDLoad: StepStatusCompleted, StepIDTweak: StepStatusCompleted, StepIDExport: StepStatusCompleted},
			wantExports: 1,
		},
		{
			name:        "tweak failure skips export",
			loader:      &fakeLoader{spec: sampleSpec("missing"), table: sampleTable()},
			exporter:    &fakeExporter{},
			req:         OperationRequest{Dataset: "sample"},
			wantStatus:  OperationStatusFailed,
			wantSteps:   map[string]StepStatus{StepIDLoad: StepStatusCompleted, StepIDTweak: StepStatusFailed, StepIDExport: StepStatusSkipped},
			wantErrType: ErrorTypeExecution,
		},
		{
			name:         "export retried until success",
			loader:       &fakeLoader{spec: sampleSpec(), table: sampleTable()},
			exporter:     &fakeExporter{failures: 2},
			req:          OperationRequest{Dataset: "sample"},
			wantStatus:   OperationStatusCompleted,
			wantSteps:    map[string]StepStatus{StepIDExport: StepStatusCompleted},
			wantExports:  1,
			wantAttempts: map[string]int{StepIDExport: 3},
		},
		{
			name:         "export gives up after max attempts",
			loader:       &fakeLoader{spec: sampleSpec(), table: sampleTable()},
			exporter:     &fakeExporter{failures: 5},
			req:          OperationRequest{Dataset: "sample"},
			wantStatus:   OperationStatusFailed,
			wantSteps:    map[string]StepStatus{StepIDExport: StepStatusFailed},
			wantErrType:  ErrorTypeExecution,
			wantAttempts: map[string]int{StepIDExport: 3},
		},
		{
			name:        "validation failure",
			loader:      &fakeLoader{spec: sampleSpec()},
			exporter:    &fakeExporter{},
			req:         OperationRequest{},
			wantStatus:  OperationStatusFailed,
			wantSteps:   map[string]StepStatus{StepIDLoad: StepStatusSkipped, StepIDTweak: StepStatusSkipped, StepIDExport: StepStatusSkipped},
			wantErrType: ErrorTypeValidation,
		},
		{
			name:        "storage errors are retried",
			loader:      &fakeLoader{spec: sampleSpec(), err: apperrors.NewStorageError("read sample.csv", errors.New("io"))},
			exporter:    &fakeExporter{},
			req:         OperationRequest{Dataset: "sample"},
			wantStatus:  OperationStatusFailed,
			wantSteps:    map[string]StepStatus{StepIDLoad: StepStatusFailed},
			wantErrType:  ErrorTypeExecution,
			wantAttempts: map[string]int{StepIDLoad: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := newTestManager(t, tt.loader, tt.exporter)

			resp, err := m.Execute(context.Background(), tt.req)
			require.NotNil(t, resp)
			assert.Equal(t, tt.wantStatus, resp.Status)
			for id, want := range tt.wantSteps {
				require.Contains(t, resp.Steps, id)
				assert.Equal(t, want, resp.Steps[id].Status, "step %s", id)
			}
			if tt.wantErrType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErrType, GetErrorType(err))
				assert.NotEmpty(t, resp.Error)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, tt.exporter.written, tt.wantExports)
			for id, want := range tt.wantAttempts {
				assert.Equal(t, want, resp.Steps[id].Attempts, "attempts of %s", id)
			}
			assert.Empty(t, m.ListOperations(), "finished operations are not tracked as running")
		})
	}
}

func TestManager_ExecuteResponse(t *testing.T) {
	exporter := &fakeExporter{}
	m, hub, handler := newTestManager(t, &fakeLoader{spec: sampleSpec("note"), table: sampleTable()}, exporter)

	resp, err := m.Execute(context.Background(), OperationRequest{ID: "op-fixed", Dataset: "sample", Output: "out.csv"})
	require.NoError(t, err)

	assert.Equal(t, "op-fixed", resp.ID)
	assert.Equal(t, "/reports/out.csv", resp.OutputPath)
	assert.Equal(t, 3, resp.Rows)
	assert.Equal(t, []string{"temp"}, resp.Steps[StepIDTweak].Metadata["columns"])

	snap, ok := m.GetBroadcaster().GetSnapshot("op-fixed")
	require.True(t, ok)
	assert.Equal(t, "completed", snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "sample", snap.Dataset)
	assert.Contains(t, hub.statuses(), "completed")

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "operation_completed")
	testutil.AssertLogAttr(t, handler, "operation_id", "op-fixed")
}

func TestManager_Cancel(t *testing.T) {
	started := make(chan struct{})
	loader := &fakeLoader{spec: sampleSpec(), block: true, started: started}
	m, _, _ := newTestManager(t, loader, &fakeExporter{})

	type result struct {
		resp *OperationResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := m.Execute(context.Background(), OperationRequest{ID: "op-cancel", Dataset: "sample"})
		done <- result{resp, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("load step never started")
	}
	op, err := m.GetOperation("op-cancel")
	require.NoError(t, err)
	assert.Equal(t, OperationStatusRunning, op.Status)
	require.NoError(t, m.CancelOperation("op-cancel"))

	select {
	case r := <-done:
		require.Error(t, r.err)
		assert.True(t, IsCancellation(r.err))
		assert.Equal(t, OperationStatusCancelled, r.resp.Status)
		assert.Equal(t, StepStatusSkipped, r.resp.Steps[StepIDExport].Status)
	case <-time.After(2 * time.Second):
		t.Fatal("operation did not stop after cancel")
	}

	assert.Error(t, m.CancelOperation("op-cancel"), "finished operations cannot be cancelled")
}

func TestManager_StepTimeout(t *testing.T) {
	m, _, _ := newTestManager(t, &fakeLoader{spec: sampleSpec(), block: true}, &fakeExporter{})
	m.GetConfig().SetStepTimeout(StepIDLoad, 10*time.Millisecond)

	resp, err := m.Execute(context.Background(), OperationRequest{Dataset: "sample"})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.Equal(t, OperationStatusFailed, resp.Status)
}
