package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/dupefilter"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/queue"
	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// CheckpointManager snapshots pending requests, seen fingerprints, and
// stats so a crawl can pause and resume. Pending requests and
// fingerprints are captured only when the queue or dupefilter is the
// plain in-memory variant; backends that are already durable on their
// own (disk, Redis, AMQP) are skipped. The stats are always written.
type CheckpointManager struct {
	interval      time.Duration
	checkpointDir string
}

type checkpointData struct {
	Timestamp  time.Time       `json:"timestamp"`
	Pending    []checkpointReq `json:"pending"`
	SeenHashes []string        `json:"seen_hashes"`
	Stats      checkpointStats `json:"stats"`
}

type checkpointReq struct {
	URL       string `json:"url"`
	Depth     int    `json:"depth"`
	Priority  int    `json:"priority"`
	ParentURL string `json:"parent_url,omitempty"`
}

type checkpointStats struct {
	RequestsSent    int64 `json:"requests_sent"`
	RequestsFailed  int64 `json:"requests_failed"`
	ResponsesOK     int64 `json:"responses_ok"`
	ResponsesError  int64 `json:"responses_error"`
	ItemsScraped    int64 `json:"items_scraped"`
	URLsEnqueued    int64 `json:"urls_enqueued"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
}

// NewCheckpointManager creates a CheckpointManager writing under dir
// (defaulting to ".webcrawler_checkpoints" when empty).
func NewCheckpointManager(interval time.Duration, dir string) *CheckpointManager {
	if dir == "" {
		dir = ".webcrawler_checkpoints"
	}
	return &CheckpointManager{interval: interval, checkpointDir: dir}
}

// Save writes the current crawl state to disk. q and filter are
// inspected for the in-memory concrete types; other backends persist
// themselves and are skipped here.
func (cm *CheckpointManager) Save(q queue.Backend, filter dupefilter.Filter, stats *Stats) error {
	if err := os.MkdirAll(cm.checkpointDir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data := checkpointData{
		Timestamp: time.Now(),
		Stats: checkpointStats{
			RequestsSent:    stats.RequestsSent.Load(),
			RequestsFailed:  stats.RequestsFailed.Load(),
			ResponsesOK:     stats.ResponsesOK.Load(),
			ResponsesError:  stats.ResponsesError.Load(),
			ItemsScraped:    stats.ItemsScraped.Load(),
			URLsEnqueued:    stats.URLsEnqueued.Load(),
			BytesDownloaded: stats.BytesDownloaded.Load(),
		},
	}

	if mem, ok := q.(*queue.Memory); ok {
		requests := mem.Snapshot()
		data.Pending = make([]checkpointReq, len(requests))
		for i, req := range requests {
			data.Pending[i] = checkpointReq{
				URL:       req.URLString(),
				Depth:     req.Meta.Depth,
				Priority:  req.Priority,
				ParentURL: req.ParentURL,
			}
		}
	}

	if mem, ok := filter.(*dupefilter.Memory); ok {
		data.SeenHashes = mem.Export()
	}

	tmpPath := filepath.Join(cm.checkpointDir, "checkpoint.tmp")
	finalPath := filepath.Join(cm.checkpointDir, "checkpoint.json")

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create checkpoint file: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	f.Close()

	return os.Rename(tmpPath, finalPath)
}

// Load reads a checkpoint and restores it into q and filter, when
// they are the in-memory concrete types; other backends already
// carried their own state across the restart.
func (cm *CheckpointManager) Load(q queue.Backend, filter dupefilter.Filter, stats *Stats) error {
	path := filepath.Join(cm.checkpointDir, "checkpoint.json")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	var data checkpointData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return fmt.Errorf("decode checkpoint: %w", err)
	}

	if mem, ok := filter.(*dupefilter.Memory); ok {
		mem.Import(data.SeenHashes)
	}

	if _, ok := q.(*queue.Memory); ok {
		ctx := context.Background()
		for _, cr := range data.Pending {
			req, err := newRequestFromCheckpoint(cr)
			if err != nil {
				continue
			}
			_ = q.Push(ctx, req)
		}
	}

	stats.RequestsSent.Store(data.Stats.RequestsSent)
	stats.RequestsFailed.Store(data.Stats.RequestsFailed)
	stats.ResponsesOK.Store(data.Stats.ResponsesOK)
	stats.ResponsesError.Store(data.Stats.ResponsesError)
	stats.ItemsScraped.Store(data.Stats.ItemsScraped)
	stats.URLsEnqueued.Store(data.Stats.URLsEnqueued)
	stats.BytesDownloaded.Store(data.Stats.BytesDownloaded)

	return nil
}

// HasCheckpoint returns true if a checkpoint file exists.
func (cm *CheckpointManager) HasCheckpoint() bool {
	path := filepath.Join(cm.checkpointDir, "checkpoint.json")
	_, err := os.Stat(path)
	return err == nil
}

// Clean removes the checkpoint file.
func (cm *CheckpointManager) Clean() error {
	path := filepath.Join(cm.checkpointDir, "checkpoint.json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func newRequestFromCheckpoint(cr checkpointReq) (*types.Request, error) {
	req, err := types.NewRequest(cr.URL)
	if err != nil {
		return nil, err
	}
	req.Meta.Depth = cr.Depth
	req.Priority = cr.Priority
	req.ParentURL = cr.ParentURL
	req.DontFilter = true
	return req, nil
}
