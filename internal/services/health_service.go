package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"tabtweak/internal/config"
	"tabtweak/internal/infrastructure"
	"tabtweak/pkg/contracts"
)

// ClientCounter reports connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// OperationCounter reports executing operations
type OperationCounter interface {
	ActiveOperations() int
}

// HealthService provides health check functionality
type HealthService struct {
	paths      *config.Paths
	hub        ClientCounter
	operations OperationCounter
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	InputFiles       int     `json:"input_files"`
	ReportFiles      int     `json:"report_files"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	WebSocketClients int     `json:"websocket_clients"`
	ActiveOperations int     `json:"active_operations"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// NewHealthService creates a health service. hub and ops may be nil.
func NewHealthService(paths *config.Paths, hub ClientCounter, ops OperationCounter, logger *slog.Logger) *HealthService {
	logger = infrastructure.WithComponent(logger, "health_service")
	logger.Info("health service initialized", slog.String("version", contracts.Version))

	return &HealthService{
		paths:      paths,
		hub:        hub,
		operations: ops,
		startTime:  time.Now(),
		logger:     logger,
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check", slog.Duration("uptime", time.Since(hs.startTime)))
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   contracts.Version,
	}
}

// ReadinessCheck reports whether every dependency is ready
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services: map[string]interface{}{
			"websocket":  hs.checkWebSocketHealth(),
			"operations": hs.checkOperationHealth(),
			"data":       hs.checkDataHealth(),
		},
	}

	for name, service := range status.Services {
		if sh := service.(ServiceHealth); sh.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "service not ready",
				slog.String("service", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	return map[string]interface{}{
		"version":        info.Version,
		"build_time":     info.BuildTime,
		"git_commit":     info.GitCommit,
		"go_version":     info.GoVersion,
		"os":             info.OS,
		"arch":           info.Architecture,
		"dataset_format": info.DatasetFormat,
		"api_version":    info.APIVersion,
		"uptime":         time.Since(hs.startTime).Seconds(),
		"start_time":     hs.startTime.Format(time.RFC3339),
	}
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	stats.InputFiles, stats.TotalSizeBytes = countFiles(hs.paths.InputDir)
	reports, size := countFiles(hs.paths.ReportsDir)
	stats.ReportFiles = reports
	stats.TotalSizeBytes += size

	if hs.hub != nil {
		stats.WebSocketClients = hs.hub.ClientCount()
	}
	if hs.operations != nil {
		stats.ActiveOperations = hs.operations.ActiveOperations()
	}
	return stats
}

func countFiles(dir string) (int, int64) {
	var count int
	var size int64
	_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
			size += info.Size()
		}
		return nil
	})
	return count, size
}

func (hs *HealthService) checkWebSocketHealth() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "websocket hub not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: fmt.Sprintf("%d clients connected", hs.hub.ClientCount()),
		Uptime:  time.Since(hs.startTime).String(),
	}
}

func (hs *HealthService) checkOperationHealth() ServiceHealth {
	if hs.operations == nil {
		return ServiceHealth{Status: "not_ready", Message: "operation service not initialized"}
	}
	return ServiceHealth{Status: "ready", Message: "operation service is healthy"}
}

// checkDataHealth requires a readable input directory and a writable reports directory
func (hs *HealthService) checkDataHealth() ServiceHealth {
	if _, err := os.Stat(hs.paths.InputDir); err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("input directory not accessible: %s", hs.paths.InputDir),
		}
	}
	probe, err := os.CreateTemp(hs.paths.ReportsDir, ".health-*")
	if err != nil {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("cannot write to reports directory: %v", err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return ServiceHealth{Status: "ready", Message: "data directories are accessible"}
}

// GetDetailedHealth returns comprehensive health information
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     hs.SystemStats(ctx),
	}
}
