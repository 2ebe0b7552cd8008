package hopper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cernan/cernan/internal/cernanlog"
	"github.com/google/uuid"
)

// Reader is one consumer's private, independently-cursored view of a
// Channel. The channel's bytes are never consumed by reading — only by
// garbage collection once every registered reader has moved past a segment.
type Reader struct {
	ch    *Channel
	name  string
	token uuid.UUID

	segID  int64
	offset int64

	f  io.ReadCloser
	br *bufio.Reader

	committedSeg  int64
	committedOff  int64
	haveCommitted bool
}

// Next blocks until a record is available, returns it, and advances the
// reader's in-memory position. The position is not durable until Commit is
// called.
func (r *Reader) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := r.ensureOpen(); err != nil {
			return nil, err
		}

		payload, err := readRecord(r.br)
		switch {
		case err == nil:
			r.offset += int64(4 + len(payload))
			return payload, nil

		case errors.Is(err, io.EOF), errors.Is(err, ErrShortRecord):
			// Either a clean end of the currently-written bytes, or a
			// truncated trailing record from a crash mid-write. Both are
			// handled the same way: if the writer has already rolled past
			// this segment, treat it as fully consumed and advance; the
			// remaining garbage bytes (if any) of a torn record are
			// abandoned, never retried.
			latest := r.ch.latestSegment()
			if r.segID < latest {
				if err := r.advanceSegment(); err != nil {
					return nil, err
				}
				continue
			}

			if werr := r.ch.waitForChange(ctx); werr != nil {
				return nil, werr
			}
			continue

		default:
			return nil, err
		}
	}
}

// ensureOpen lazily opens the file for the reader's current segment,
// seeking to its in-memory offset (needed the first time a reader resumes
// after a restart, since the offset was loaded from its cursor file rather
// than accumulated by reads in this process).
func (r *Reader) ensureOpen() error {
	if r.f != nil {
		return nil
	}
	path := segmentPath(r.ch.cfg.Dir, r.segID)
	f, err := openSegmentAt(path, r.offset)
	if err != nil {
		if os.IsNotExist(err) {
			cernanlog.Errorf("hopper: reader %s: segment %d missing, restarting from earliest surviving segment", r.name, r.segID)
			return r.restartFromEarliest()
		}
		return err
	}
	r.f = f
	r.br = bufio.NewReader(f)
	return nil
}

// restartFromEarliest recovers from an operator having deleted the segment
// this reader was parked on: it is fatal to this reader's current position,
// so it resumes from the oldest segment still on disk. The segment list is
// rescanned from disk rather than trusting in-memory bookkeeping, since an
// out-of-band deletion by an operator is exactly the event that bookkeeping
// doesn't know about yet.
func (r *Reader) restartFromEarliest() error {
	r.ch.mu.Lock()
	segs, total, err := discoverSegments(r.ch.cfg.Dir)
	if err == nil {
		r.ch.segments = segs
		r.ch.totalBytes = total
	}
	earliest := r.ch.writeSeg
	if len(segs) > 0 {
		earliest = segs[0]
	}
	r.ch.mu.Unlock()
	if err != nil {
		return err
	}

	if earliest == r.segID {
		return fmt.Errorf("hopper: reader %s: no surviving segment to restart from", r.name)
	}

	r.segID = earliest
	r.offset = 0
	r.f = nil
	r.br = nil
	return r.ensureOpen()
}

func (r *Reader) advanceSegment() error {
	if r.f != nil {
		r.f.Close()
		r.f = nil
		r.br = nil
	}
	r.segID++
	r.offset = 0
	return nil
}

// Commit persists the reader's current position, making it durable. The
// committed position never regresses, since it is always the reader's own
// monotonically advancing in-memory position at the time Commit is called.
func (r *Reader) Commit() error {
	c := cursor{segID: r.segID, offset: r.offset}
	if err := saveCursor(r.ch.cfg.Dir, r.name, c); err != nil {
		return err
	}
	r.committedSeg = c.segID
	r.committedOff = c.offset
	r.haveCommitted = true

	r.ch.mu.Lock()
	r.ch.gcLocked()
	r.ch.cond.Broadcast()
	r.ch.mu.Unlock()
	return nil
}

// Close releases the reader's open file handle, if any. It does not commit.
func (r *Reader) Close() error {
	if r.f != nil {
		err := r.f.Close()
		r.f = nil
		r.br = nil
		return err
	}
	return nil
}
