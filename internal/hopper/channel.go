package hopper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cernan/cernan/internal/cernanlog"
)

// Default sizing, matching the values the on-disk layout is documented
// against: a 1 MiB segment roll threshold and a 100 MiB per-channel ceiling.
const (
	DefaultSegmentBytes int64 = 1 << 20
	DefaultMaxBytes     int64 = 100 << 20
)

// ErrClosed is returned by Enqueue and Reader.Next once the channel has
// been closed for shutdown.
var ErrClosed = errors.New("hopper: channel closed")

// ErrDegraded is returned once a channel has hit an unrecoverable disk I/O
// error. There is no automatic self-heal; an operator must intervene on the
// data directory and restart the process.
var ErrDegraded = errors.New("hopper: channel degraded, operator intervention required")

// Config configures one channel's on-disk directory and sizing.
type Config struct {
	Dir          string
	MaxBytes     int64
	SegmentBytes int64
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.SegmentBytes <= 0 {
		cfg.SegmentBytes = DefaultSegmentBytes
	}
	return cfg
}

// Channel is one disk-backed queue directory: a single writer and any number
// of independent, privately-cursored readers.
type Channel struct {
	cfg Config

	mu   sync.Mutex
	cond *sync.Cond

	segments   []int64 // ascending ids of segment files currently on disk
	writeSeg   int64
	writeFile  *os.File
	writeBytes int64 // bytes appended to writeFile past its header
	totalBytes int64 // approximate total bytes across all segment files

	manifest *manifest
	readers  map[string]*Reader

	closed   bool
	degraded error
}

// Open opens (creating if necessary) the channel directory at cfg.Dir.
func Open(cfg Config) (*Channel, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("hopper: mkdir %s: %w", cfg.Dir, err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "cursors"), 0o755); err != nil {
		return nil, fmt.Errorf("hopper: mkdir cursors: %w", err)
	}

	mf, err := loadManifest(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("hopper: load manifest: %w", err)
	}

	c := &Channel{
		cfg:      cfg,
		manifest: mf,
		readers:  make(map[string]*Reader),
	}
	c.cond = sync.NewCond(&c.mu)

	segs, totalBytes, err := discoverSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}
	c.segments = segs
	c.totalBytes = totalBytes

	if len(segs) == 0 {
		if err := c.rollLocked(); err != nil {
			return nil, err
		}
	} else {
		c.writeSeg = segs[len(segs)-1]
		f, err := os.OpenFile(segmentPath(cfg.Dir, c.writeSeg), os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("hopper: reopen segment %d: %w", c.writeSeg, err)
		}
		c.writeFile = f
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		c.writeBytes = info.Size() - magicSize
	}

	return c, nil
}

func segmentPath(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("%08d.log", id))
}

// discoverSegments lists every NNNNNNNN.log file in dir, ascending by id,
// and sums their sizes for the channel's disk-usage accounting.
func discoverSegments(dir string) ([]int64, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	var ids []int64
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		idStr := strings.TrimSuffix(e.Name(), ".log")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, total, nil
}

// Enqueue blocks while the channel's on-disk size is at or above MaxBytes,
// then appends payload as one length-prefixed record, rolling to a new
// segment first if the current one would exceed SegmentBytes. This is the
// sole back-pressure mechanism: there is no drop.
func (c *Channel) Enqueue(payload []byte) error {
	recordSize := int64(4 + len(payload))

	c.mu.Lock()
	defer c.mu.Unlock()

	for c.totalBytes+recordSize > c.cfg.MaxBytes && !c.closed && c.degraded == nil {
		c.cond.Wait()
	}
	if c.degraded != nil {
		return c.degraded
	}
	if c.closed {
		return ErrClosed
	}

	if c.writeBytes > 0 && c.writeBytes+recordSize > c.cfg.SegmentBytes {
		if err := c.rollLocked(); err != nil {
			c.degradeLocked(err)
			return err
		}
	}

	n, err := writeRecord(c.writeFile, payload)
	if err != nil {
		c.degradeLocked(err)
		return err
	}
	c.writeBytes += int64(n)
	c.totalBytes += int64(n)
	c.cond.Broadcast()
	return nil
}

func (c *Channel) degradeLocked(err error) {
	c.degraded = fmt.Errorf("%w: %v", ErrDegraded, err)
	cernanlog.Errorf("hopper: channel %s degraded: %v", c.cfg.Dir, err)
	c.cond.Broadcast()
}

// rollLocked closes the current write segment (if any) and opens the next
// one, then performs a lazy GC pass over now-possibly-eligible old segments.
// Caller must hold c.mu.
func (c *Channel) rollLocked() error {
	if c.writeFile != nil {
		if err := c.writeFile.Close(); err != nil {
			return err
		}
	}

	nextID := int64(1)
	if len(c.segments) > 0 {
		nextID = c.segments[len(c.segments)-1] + 1
	}

	f, err := os.OpenFile(segmentPath(c.cfg.Dir, nextID), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("hopper: create segment %d: %w", nextID, err)
	}
	if err := writeMagic(f, segmentMagic); err != nil {
		f.Close()
		return err
	}

	c.writeFile = f
	c.writeSeg = nextID
	c.writeBytes = 0
	c.segments = append(c.segments, nextID)
	c.totalBytes += magicSize

	c.gcLocked()
	c.cond.Broadcast()
	return nil
}

// gcLocked deletes every segment strictly older than the minimum committed
// cursor across all registered readers. A channel with no registered
// readers yet never garbage-collects, since there is nobody to confirm
// delivery to. Caller must hold c.mu.
func (c *Channel) gcLocked() {
	names := c.manifest.names()
	if len(names) == 0 {
		return
	}

	minCommitted := int64(-1)
	for _, name := range names {
		cur, ok, err := loadCursor(c.cfg.Dir, name)
		if err != nil || !ok {
			// A reader that has never committed holds back GC entirely.
			return
		}
		if minCommitted == -1 || cur.segID < minCommitted {
			minCommitted = cur.segID
		}
	}
	if minCommitted <= 0 {
		return
	}

	var kept []int64
	for _, id := range c.segments {
		if id < minCommitted && id != c.writeSeg {
			path := segmentPath(c.cfg.Dir, id)
			if info, err := os.Stat(path); err == nil {
				if err := os.Remove(path); err == nil {
					c.totalBytes -= info.Size()
				} else {
					kept = append(kept, id)
					continue
				}
			}
			continue
		}
		kept = append(kept, id)
	}
	c.segments = kept
}

// Reader returns the registered reader named name, registering it in the
// manifest (minting a fresh identity token) on first use. Reader identity
// is declared once at topology build time and is stable across restarts as
// long as the name doesn't change.
func (c *Channel) Reader(name string) (*Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.readers[name]; ok {
		return r, nil
	}

	entry, err := c.manifest.register(name)
	if err != nil {
		return nil, fmt.Errorf("hopper: register reader %s: %w", name, err)
	}

	cur, ok, err := loadCursor(c.cfg.Dir, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		// A brand-new reader starts from the oldest surviving segment, so a
		// reader added to an already-populated channel still observes
		// every record currently on disk (at-least-once, never skip-ahead).
		start := c.writeSeg
		if len(c.segments) > 0 {
			start = c.segments[0]
		}
		cur = cursor{segID: start, offset: 0}
	}

	r := &Reader{
		ch:     c,
		name:   name,
		token:  entry.Token,
		segID:  cur.segID,
		offset: cur.offset,
	}
	c.readers[name] = r
	return r, nil
}

// latestSegment returns the most recently rolled-to segment id.
func (c *Channel) latestSegment() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeSeg
}

// waitForChange blocks until either ctx is done or the channel's state
// (new data, new segment, close, degrade) has changed since the caller last
// observed it, signaled by the writer's Broadcast calls.
func (c *Channel) waitForChange(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.degraded != nil {
		return c.degraded
	}

	woke := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-woke:
		}
	}()
	c.cond.Wait()
	close(woke)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.closed {
		return ErrClosed
	}
	return c.degraded
}

// Close stops accepting new Enqueue calls and wakes every parked reader and
// producer so they can observe the closed channel and exit.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cond.Broadcast()
	if c.writeFile != nil {
		return c.writeFile.Close()
	}
	return nil
}

// DepthBytes reports the channel's current approximate on-disk size,
// across every segment, for self-observability reporting.
func (c *Channel) DepthBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// Dir returns the channel's on-disk directory, for labeling metrics.
func (c *Channel) Dir() string {
	return c.cfg.Dir
}
