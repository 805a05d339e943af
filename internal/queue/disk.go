package queue

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

func init() {
	Registry.Register("disk", func(cfg map[string]any) (Backend, error) {
		dir, _ := cfg["job_dir"].(string)
		if dir == "" {
			return nil, fmt.Errorf("disk queue: job_dir is required")
		}
		return NewDisk(dir, JSONSerializer{})
	})
}

// Disk is a queue backend that persists requests under JOBDIR so a
// single-host crawl survives a restart. It keeps the priority heap in
// memory for ordering and mirrors every Push to an append-only segment
// file; Pop additionally appends a tombstone so a restart can replay
// the segment and skip already-popped entries.
type Disk struct {
	mu         sync.Mutex
	mem        *Memory
	serializer Serializer
	segPath    string
	segFile    *os.File
}

// NewDisk opens (or creates) the queue segment file under dir and
// replays any previously-persisted, not-yet-popped requests into an
// in-memory heap.
func NewDisk(dir string, ser Serializer) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	segPath := filepath.Join(dir, "requests.log")

	d := &Disk{
		mem:        NewMemory(),
		serializer: ser,
		segPath:    segPath,
	}

	if err := d.replay(); err != nil {
		return nil, fmt.Errorf("replay queue segment: %w", err)
	}

	f, err := os.OpenFile(segPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open queue segment: %w", err)
	}
	d.segFile = f
	return d, nil
}

// segment line formats: "+ <base64(serialized request)>" for a push,
// "- <id>" for a tombstone recording a pop. The serializer's Name() is
// not recorded, so a segment replays only with the serializer that
// wrote it.
func (d *Disk) replay() error {
	f, err := os.Open(d.segPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	pending := make(map[string]*types.Request)
	order := make([]string, 0)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 2 {
			continue
		}
		op, payload := line[0], line[2:]
		switch op {
		case '+':
			raw, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				continue
			}
			req, err := d.serializer.Deserialize(raw)
			if err != nil {
				continue
			}
			if _, exists := pending[req.ID]; !exists {
				order = append(order, req.ID)
			}
			pending[req.ID] = req
		case '-':
			delete(pending, payload)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	for _, id := range order {
		if req, ok := pending[id]; ok {
			if err := d.mem.Push(context.Background(), req); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Disk) Push(ctx context.Context, req *types.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := d.serializer.Serialize(req)
	if err != nil {
		return &types.QueueError{Backend: "disk", Op: "push", Err: err}
	}
	line := "+ " + base64.StdEncoding.EncodeToString(raw) + "\n"
	if _, err := d.segFile.WriteString(line); err != nil {
		return &types.QueueError{Backend: "disk", Op: "push", Err: err}
	}
	if err := d.segFile.Sync(); err != nil {
		return &types.QueueError{Backend: "disk", Op: "push", Err: err}
	}
	return d.mem.Push(ctx, req)
}

func (d *Disk) Pop(ctx context.Context) (*types.Request, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	req, err := d.mem.Pop(ctx)
	if err != nil {
		return nil, err
	}
	line := "- " + req.ID + "\n"
	if _, werr := d.segFile.WriteString(line); werr != nil {
		return req, &types.QueueError{Backend: "disk", Op: "pop", Err: werr}
	}
	return req, nil
}

func (d *Disk) Size(ctx context.Context) (int64, error) {
	return d.mem.Size(ctx)
}

func (d *Disk) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mem.Clear(ctx); err != nil {
		return err
	}
	if err := d.segFile.Truncate(0); err != nil {
		return err
	}
	_, err := d.segFile.Seek(0, 0)
	return err
}

func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.mem.Close()
	return d.segFile.Close()
}
