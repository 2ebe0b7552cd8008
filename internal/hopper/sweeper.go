package hopper

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/klauspost/compress/s2"
	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the background sweeper every 30 seconds,
// supplementing the lazy GC done inline on writer roll with an out-of-band
// pass so a channel with no further writes still reclaims consumed segments.
const DefaultSweepSchedule = "@every 30s"

// Sweeper periodically runs garbage collection and sealed-segment
// compression across a set of channels, off the hot enqueue/roll path.
type Sweeper struct {
	channels []*Channel
	cron     *cron.Cron
}

// NewSweeper builds a Sweeper for the given channels using schedule (a
// robfig/cron expression, e.g. DefaultSweepSchedule).
func NewSweeper(channels []*Channel, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	c := cron.New()
	s := &Sweeper{channels: channels, cron: c}
	if _, err := c.AddFunc(schedule, s.sweepOnce); err != nil {
		return nil, fmt.Errorf("hopper: sweeper schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the sweeper until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}

func (s *Sweeper) sweepOnce() {
	for _, ch := range s.channels {
		ch.mu.Lock()
		ch.gcLocked()
		ch.cond.Broadcast()
		ch.mu.Unlock()

		if err := sealOldSegments(ch); err != nil {
			cernanlog.Errorf("hopper: sweeper: seal %s: %v", ch.cfg.Dir, err)
		}
	}
}

// sealOldSegments compresses every non-write-head segment that is still in
// its plain (segmentMagic) form. Sealed segments are immutable by
// construction — only the current write head is ever appended to — so
// compressing them in place is always safe.
func sealOldSegments(ch *Channel) error {
	ch.mu.Lock()
	segments := append([]int64(nil), ch.segments...)
	writeSeg := ch.writeSeg
	dir := ch.cfg.Dir
	ch.mu.Unlock()

	for _, id := range segments {
		if id == writeSeg {
			continue
		}
		if err := sealSegment(dir, id); err != nil {
			return err
		}
	}
	return nil
}

func sealSegment(dir string, id int64) error {
	path := segmentPath(dir, id)

	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	magic, err := readMagic(src)
	if err != nil {
		src.Close()
		return err
	}
	if magic == sealedMagic {
		src.Close()
		return nil // already sealed
	}

	tmpPath := path + ".sealing"
	dst, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		src.Close()
		return err
	}

	if err := writeMagic(dst, sealedMagic); err != nil {
		src.Close()
		dst.Close()
		os.Remove(tmpPath)
		return err
	}

	sw := s2.NewWriter(dst)
	if _, err := io.Copy(sw, src); err != nil {
		sw.Close()
		src.Close()
		dst.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := sw.Close(); err != nil {
		src.Close()
		dst.Close()
		os.Remove(tmpPath)
		return err
	}
	src.Close()
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, path)
}

// openSegmentAt opens a segment for reading positioned at byte offset within
// its record stream (past the 4-byte header), transparently unwrapping s2
// compression for sealed segments. A plain segment seeks directly; a sealed
// segment has no random access, so it decompresses from the start and
// discards the leading offset bytes — paid only once, on reader resume,
// not on every record.
func openSegmentAt(path string, offset int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	magic, err := readMagic(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if magic == segmentMagic {
		if offset > 0 {
			if _, err := f.Seek(offset, io.SeekCurrent); err != nil {
				f.Close()
				return nil, err
			}
		}
		return f, nil
	}

	sr := s2.NewReader(f)
	if offset > 0 {
		if _, err := io.CopyN(io.Discard, sr, offset); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &sealedSegmentReader{file: f, sr: sr}, nil
}

// sealedSegmentReader adapts an s2-decompressing reader to io.ReadCloser,
// closing the underlying file handle alongside the decompressor.
type sealedSegmentReader struct {
	file *os.File
	sr   *s2.Reader
}

func (s *sealedSegmentReader) Read(p []byte) (int, error) { return s.sr.Read(p) }
func (s *sealedSegmentReader) Close() error                { return s.file.Close() }
