package converter

import (
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// Locator reports whether an office suite is installed and where.
type Locator interface {
	Discover() (available bool, path string)
}

// Suite is the process-wide office suite discovery result. Detection runs at
// most once per Suite, even under concurrent first access; the answer is never
// refreshed, so installing or removing the suite mid-run goes unnoticed.
type Suite struct {
	once      sync.Once
	detect    func() string
	available bool
	path      string
}

// NewSuite creates a Suite that scans the host on first Discover.
func NewSuite() *Suite {
	return &Suite{detect: detectOfficeSuite}
}

// NewSuiteWithDetector creates a Suite with a custom detector.
func NewSuiteWithDetector(detect func() string) *Suite {
	return &Suite{detect: detect}
}

// Discover returns the cached discovery result, scanning on first use.
func (s *Suite) Discover() (bool, string) {
	s.once.Do(func() {
		s.path = s.detect()
		s.available = s.path != ""
		log.Info().Bool("available", s.available).Str("path", s.path).Msg("office suite discovery")
	})
	return s.available, s.path
}

// Static is a fixed Locator: "always at path" or, with an empty path, "never available".
type Static string

func (s Static) Discover() (bool, string) { return s != "", string(s) }

var defaultSuite = NewSuite()

// DiscoverOfficeSuite queries the process-wide Suite.
func DiscoverOfficeSuite() (bool, string) {
	return defaultSuite.Discover()
}

// Default returns the process-wide Suite.
func Default() *Suite { return defaultSuite }

var (
	linuxPaths = []string{
		"/usr/bin/libreoffice",
		"/usr/bin/soffice",
		"/usr/local/bin/libreoffice",
		"/usr/local/bin/soffice",
		"/snap/bin/libreoffice",
		"/opt/libreoffice/program/soffice",
	}
	windowsPaths = []string{
		`C:\Program Files\LibreOffice\program\soffice.exe`,
		`C:\Program Files (x86)\LibreOffice\program\soffice.exe`,
	}
	darwinPaths = []string{
		"/Applications/LibreOffice.app/Contents/MacOS/soffice",
	}
)

// detectOfficeSuite checks well-known install locations, then PATH.
func detectOfficeSuite() string {
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = windowsPaths
	case "darwin":
		candidates = darwinPaths
	default:
		candidates = linuxPaths
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	for _, name := range []string{"libreoffice", "soffice"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}
