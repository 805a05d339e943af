package dupefilter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("disk", func(cfg map[string]any) (Filter, error) {
		dir, _ := cfg["job_dir"].(string)
		if dir == "" {
			return nil, fmt.Errorf("disk dupefilter: job_dir is required")
		}
		ttl := defaultInFlightTTL
		if v, ok := cfg["in_flight_ttl"].(time.Duration); ok && v > 0 {
			ttl = v
		}
		return NewDisk(dir, ttl)
	})
}

// Disk is the single-host, restart-surviving fingerprint filter: files
// under JOBDIR hold a fingerprint log. It wraps Memory for the hot path
// and mirrors every newly-seen
// fingerprint to an append-only log so a restart can rebuild the set
// without re-crawling.
type Disk struct {
	mu      sync.Mutex
	mem     *Memory
	logPath string
	logFile *os.File
}

// NewDisk opens (or creates) the fingerprint log under dir and replays
// it to rebuild the in-memory seen set.
func NewDisk(dir string, ttl time.Duration) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dupefilter dir: %w", err)
	}
	logPath := filepath.Join(dir, "requests.seen")

	d := &Disk{mem: NewMemory(ttl), logPath: logPath}
	if err := d.replay(); err != nil {
		return nil, fmt.Errorf("replay fingerprint log: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open fingerprint log: %w", err)
	}
	d.logFile = f
	return d, nil
}

// replay reads one fingerprint per line, skipping the in-flight TTL
// bookkeeping entirely: anything that reached the log was fully
// admitted in a prior run, so it is loaded straight into the seen set
// with no expiry.
func (d *Disk) replay() error {
	f, err := os.Open(d.logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fp := sc.Text()
		if fp == "" {
			continue
		}
		d.mem.seen[fp] = struct{}{}
	}
	return sc.Err()
}

func (d *Disk) Seen(ctx context.Context, req *types.Request) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen, err := d.mem.Seen(ctx, req)
	if err != nil {
		return false, &types.FilterError{Backend: "disk", Err: err}
	}
	if seen {
		return true, nil
	}
	if _, werr := d.logFile.WriteString(req.Fingerprint() + "\n"); werr != nil {
		return false, &types.FilterError{Backend: "disk", Err: werr}
	}
	if werr := d.logFile.Sync(); werr != nil {
		return false, &types.FilterError{Backend: "disk", Err: werr}
	}
	return false, nil
}

func (d *Disk) Release(ctx context.Context, req *types.Request, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The log stays append-only (no compaction on release); a released
	// fingerprint simply becomes schedulable again in memory, and a
	// future restart will re-admit it as seen once it is re-scheduled.
	return d.mem.Release(ctx, req, reason)
}

func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logFile.Close()
}
