package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const scratchPrefix = "e2p-"

// scratchPattern names a job scratch dir after the owning process so sweeps
// from other processes can tell live dirs from abandoned ones.
func scratchPattern() string {
	return fmt.Sprintf("%s%d-*", scratchPrefix, os.Getpid())
}

// scratchOwner returns the pid encoded in a scratch dir name.
func scratchOwner(name string) (int, bool) {
	rest := strings.TrimPrefix(name, scratchPrefix)
	i := strings.IndexByte(rest, '-')
	if i <= 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(rest[:i])
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	defer p.Release()
	if runtime.GOOS == "windows" {
		// FindProcess only succeeds for running processes there
		return true
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// CleanupScratch removes job scratch directories under root older than maxAge
// whose owning process is gone. They are left behind only when a process dies
// mid-job. Returns how many were removed.
func CleanupScratch(root string, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	if root == "" {
		root = os.TempDir()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		if pid, ok := scratchOwner(e.Name()); ok && processAlive(pid) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("failed to remove stale scratch dir")
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("root", root).Msg("swept stale scratch dirs")
	}
	return removed
}
