// Package operations runs tweak operations as a sequence of dependent steps.
//
// An operation loads one dataset, tweaks it and exports the result. Each of
// these is a Step registered on a Registry, which orders steps by their
// declared dependencies. The Manager executes the ordered steps with
// per-step timeouts and retries for steps that report retryable failures.
//
// Progress is tracked in two places. OperationState holds the runtime state
// and the values passed between steps. StatusBroadcaster keeps a
// serializable snapshot per operation and pushes every change to the
// WebSocket hub.
//
// JobQueue wraps the Manager for asynchronous use from the HTTP API:
//
//	registry := operations.NewRegistry()
//	_ = operations.RegisterTweakSteps(registry, loader, exporter, logger)
//	manager := operations.NewManager(hub, registry, nil, logger)
//	queue := operations.NewJobQueue(2, operations.NewMemoryJobStore(), manager, logger)
//	queue.Start(ctx)
//	job, err := queue.Enqueue(operations.OperationRequest{Dataset: "nyc"}, traceID)
package operations
