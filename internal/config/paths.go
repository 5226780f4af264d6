package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains all the application paths.
//
// Layout under the base directory:
//
//	base/
//	  data/
//	    input/     raw dataset files
//	    reports/   cleaned tables and descriptions
//	  logs/
type Paths struct {
	BaseDir    string
	DataDir    string
	InputDir   string
	ReportsDir string
	LogsDir    string
}

// NewPaths lays out the directories under base
func NewPaths(base string) *Paths {
	dataDir := filepath.Join(base, "data")
	return &Paths{
		BaseDir:    base,
		DataDir:    dataDir,
		InputDir:   filepath.Join(dataDir, "input"),
		ReportsDir: filepath.Join(dataDir, "reports"),
		LogsDir:    filepath.Join(base, "logs"),
	}
}

// GetPaths returns the default layout next to the executable
func GetPaths() (*Paths, error) {
	dir, err := executableDir()
	if err != nil {
		return nil, err
	}
	return NewPaths(dir), nil
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	return filepath.Dir(exe), nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.InputDir, p.ReportsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetInputPath resolves a dataset source. Absolute sources are kept.
func (p *Paths) GetInputPath(source string) string {
	if filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(p.InputDir, source)
}

// GetReportPath returns the path for a report file
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved layout
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("input", p.InputDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		))
}
