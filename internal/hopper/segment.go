// Package hopper implements the disk-backed, multi-reader durable queue that
// connects one producer (a source or filter) to one or more independent
// consumers (sinks and filters). Storage is a directory of append-only,
// size-capped segment files; each consumer keeps a private cursor so the
// queue is never consumed by reading it.
package hopper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic numbers identifying a segment file's on-disk form. Every file opens
// with a 4-byte magic so a reader can tell a plain segment from a sealed one
// without trying to parse its body.
const (
	segmentMagic = uint32(0xCE51A001) // plain, record-framed segment
	sealedMagic  = uint32(0xCE51A002) // sealed segment, s2-compressed body
)

const magicSize = 4

var (
	// ErrShortRecord is returned by readRecord when the remaining segment
	// bytes are fewer than the declared payload_len — the expected shape of
	// a truncated trailing write after a crash mid-append.
	ErrShortRecord = errors.New("hopper: truncated trailing record")

	// ErrBadMagic is returned when a segment file's header doesn't match
	// any known magic, meaning it is foreign or corrupted at the start.
	ErrBadMagic = errors.New("hopper: unrecognized segment file header")
)

// writeMagic writes the 4-byte file header.
func writeMagic(w io.Writer, magic uint32) error {
	var hdr [magicSize]byte
	binary.BigEndian.PutUint32(hdr[:], magic)
	_, err := w.Write(hdr[:])
	return err
}

// readMagic reads and validates the 4-byte file header, returning which
// magic was found.
func readMagic(r io.Reader) (uint32, error) {
	var hdr [magicSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	magic := binary.BigEndian.Uint32(hdr[:])
	if magic != segmentMagic && magic != sealedMagic {
		return 0, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}
	return magic, nil
}

// writeRecord appends one length-prefixed record: u32 payload_len (BigEndian)
// followed by payload. No checksum: the durability contract is "survives
// process exit", not "survives kernel panic".
func writeRecord(w io.Writer, payload []byte) (int, error) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	n1, err := w.Write(lenBuf[:])
	if err != nil {
		return n1, err
	}
	n2, err := w.Write(payload)
	return n1 + n2, err
}

// readRecord reads one length-prefixed record from r. Returns io.EOF on a
// clean end of stream (no bytes read at all), and ErrShortRecord when a
// payload_len was read but the payload itself is truncated — the signature
// of a process killed mid-write, which the reader treats as "stop here,
// this segment has no more complete records."
func readRecord(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, ErrShortRecord
	}
	payloadLen := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrShortRecord
	}
	return payload, nil
}
