package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
)

// DataExtensions are the suffixes a readable dataset file may carry
var DataExtensions = []string{".csv", ".dat", ".txt", ".tsv", ".xlsx", ".gz"}

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	HumanSize string    `json:"human_size"`
	ModTime   time.Time `json:"mod_time"`
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a discovery rooted at basePath
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// FindDataFiles lists readable dataset files in dir, sorted by name
func (d *Discovery) FindDataFiles(dir string) ([]FileInfo, error) {
	return d.find(dir, func(name string) bool { return IsDataFile(name) })
}

// FindFilesByPattern finds files matching a glob pattern, sorted by name
func (d *Discovery) FindFilesByPattern(dir, pattern string) ([]FileInfo, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
	}
	return d.find(dir, func(name string) bool {
		ok, _ := filepath.Match(pattern, name)
		return ok
	})
}

func (d *Discovery) find(dir string, keep func(string) bool) ([]FileInfo, error) {
	fullPath := d.resolve(dir)
	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || !keep(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, newFileInfo(filepath.Join(fullPath, entry.Name()), info))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Stat describes a single file
func Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	if info.IsDir() {
		return FileInfo{}, fmt.Errorf("%s is a directory", path)
	}
	return newFileInfo(path, info), nil
}

func newFileInfo(path string, info os.FileInfo) FileInfo {
	return FileInfo{
		Path:      path,
		Name:      info.Name(),
		Size:      info.Size(),
		HumanSize: datasize.ByteSize(info.Size()).HumanReadable(),
		ModTime:   info.ModTime(),
	}
}

// IsDataFile reports whether name carries a readable dataset extension
func IsDataFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range DataExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// GetLatestFile returns the most recently modified file from a list
func GetLatestFile(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}
	latest := files[0]
	for _, file := range files[1:] {
		if file.ModTime.After(latest.ModTime) {
			latest = file
		}
	}
	return latest, true
}
