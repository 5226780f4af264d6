package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
)

// NYCSampleCSV is a small extract in the layout of central-park-raw.csv
const NYCSampleCSV = "EST,Max TemperatureF,Mean TemperatureF,Min TemperatureF,Max Humidity, Mean Humidity,PrecipitationIn,CloudCover, Events\n" +
	"2000-1-1,46,38,29,92,60,0.00,5,\n" +
	"2000-1-2,55,48,41,100,84,T,7,Rain\n" +
	"2000-1-3,55,51,47,100,93,0.43,8,Rain\n" +
	"2000-2-1,32,27,21,75,59,T,4,\n" +
	"2000-2-2,42,37,31,92,73,0.09,7,Fog-Rain\n" +
	"2001-1-1,40,34,28,70,58,0.00,3,\n"

// NinoSampleDAT is a small extract in the layout of tao-all2.dat: space
// separated, header-less, with "." marking missing readings.
const NinoSampleDAT = "1 80 3 7 800307 -0.02 -109.46 -6.8 0.7 . 26.14 26.24\n" +
	"2 80 3 8 800308 -0.02 -109.46 -4.9 1.1 . 25.66 25.97\n" +
	"3 80 3 9 800309 -0.02 -109.46 -4.5 2.2 . 25.69 25.28\n" +
	"4 80 4 1 800401 -0.02 -109.46 -3.8 1.9 . 25.57 24.31\n" +
	"5 98 6 15 980615 8.96 -140.32 -6.3 -1.1 81.2 26.04 .\n"

// WriteFixture writes content to name under dir and returns the path
func WriteFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// WriteGzipFixture writes gzip-compressed content to name under dir
func WriteGzipFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatalf("write gzip fixture: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip fixture: %v", err)
	}
	return path
}

// WriteDatasetFixtures writes both sample datasets under dir using the file
// names the built-in presets expect.
func WriteDatasetFixtures(t *testing.T, dir string) {
	t.Helper()
	WriteFixture(t, dir, "central-park-raw.csv", NYCSampleCSV)
	WriteGzipFixture(t, dir, "tao-all2.dat.gz", NinoSampleDAT)
}
