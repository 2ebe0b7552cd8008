// Package native implements cernan's native wire protocol: a u32
// big-endian length prefix followed by that many bytes of a protobuf-wire
// encoded batch of events. The schema is defined once, directly against
// google.golang.org/protobuf/encoding/protowire's low-level primitives
// rather than a protoc-generated package (no build-time code generation is
// available in this environment), giving the same "unknown fields
// ignored, schema versioned by field number" contract a .proto-compiled
// message would.
package native

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/cernan/cernan/internal/event"
)

// batchEntryField is the Batch message's single repeated field: one
// length-delimited submessage per Event, so a decoder knows exactly where
// one event's fields end and the next one's begin.
const batchEntryField = 1

// Field numbers for the wire-encoded Event message. A reader skips any
// field number it doesn't recognize rather than failing.
const (
	fieldVariant    = 1
	fieldName       = 2
	fieldTagKV      = 3 // repeated, each itself a 2-field {key, value} message
	fieldKind       = 4
	fieldTimestampS = 5
	fieldValue      = 6
	fieldPersist    = 7
	fieldSampleRate = 8
	fieldPath       = 9
	fieldFieldKV    = 10 // repeated, each a {key, value} message, log fields
	fieldWindowID   = 11
)

const (
	tagKVFieldKey   = 1
	tagKVFieldValue = 2
)

// ErrFrameTooLarge guards against a corrupt or hostile length prefix
// requesting an unreasonable allocation.
var ErrFrameTooLarge = errors.New("native: frame exceeds maximum size")

// MaxFrameBytes bounds a single frame's declared payload length.
const MaxFrameBytes = 64 << 20

// EncodeEvent appends the wire-protobuf form of e to dst.
func EncodeEvent(dst []byte, e event.Event) []byte {
	dst = protowire.AppendTag(dst, fieldVariant, protowire.VarintType)
	dst = protowire.AppendVarint(dst, uint64(e.Variant))

	switch e.Variant {
	case event.VariantTelemetry:
		dst = appendString(dst, fieldName, e.Name)
		dst = appendTags(dst, e.Tags)
		dst = protowire.AppendTag(dst, fieldKind, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(e.Kind))
		dst = protowire.AppendTag(dst, fieldTimestampS, protowire.VarintType)
		dst = protowire.AppendVarint(dst, zigzag(e.TimestampS))
		dst = protowire.AppendTag(dst, fieldValue, protowire.Fixed64Type)
		dst = protowire.AppendFixed64(dst, math.Float64bits(e.Value))
		dst = protowire.AppendTag(dst, fieldPersist, protowire.VarintType)
		dst = protowire.AppendVarint(dst, boolVarint(e.Persist))
		dst = protowire.AppendTag(dst, fieldSampleRate, protowire.Fixed64Type)
		dst = protowire.AppendFixed64(dst, math.Float64bits(e.SampleRate))

	case event.VariantLogLine:
		dst = appendString(dst, fieldPath, e.Path)
		dst = appendString(dst, fieldName, e.Name) // log body
		dst = protowire.AppendTag(dst, fieldTimestampS, protowire.VarintType)
		dst = protowire.AppendVarint(dst, zigzag(e.TimestampS))
		dst = appendTags(dst, e.Tags)
		for k, v := range e.Fields {
			dst = appendKV(dst, fieldFieldKV, k, v)
		}

	case event.VariantTimerFlush:
		dst = protowire.AppendTag(dst, fieldWindowID, protowire.VarintType)
		dst = protowire.AppendVarint(dst, zigzag(e.WindowID))
	}

	return dst
}

// DecodeEvent parses one wire-protobuf Event from the front of src,
// returning it and the number of bytes consumed. Unrecognized field
// numbers are skipped rather than rejected.
func DecodeEvent(src []byte) (event.Event, int, error) {
	var e event.Event
	fields := map[string]string{}
	var tags event.Tags
	orig := src

	for len(src) > 0 {
		num, typ, n := protowire.ConsumeTag(src)
		if n < 0 {
			return event.Event{}, 0, protowire.ParseError(n)
		}
		src = src[n:]

		switch num {
		case fieldVariant:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.Variant = event.Variant(v)
			src = src[n:]

		case fieldName:
			s, n, err := consumeString(src)
			if err != nil {
				return event.Event{}, 0, err
			}
			e.Name = s
			src = src[n:]

		case fieldPath:
			s, n, err := consumeString(src)
			if err != nil {
				return event.Event{}, 0, err
			}
			e.Path = s
			src = src[n:]

		case fieldTagKV:
			k, v, n, err := consumeKV(src)
			if err != nil {
				return event.Event{}, 0, err
			}
			tags.Set(k, v)
			src = src[n:]

		case fieldFieldKV:
			k, v, n, err := consumeKV(src)
			if err != nil {
				return event.Event{}, 0, err
			}
			fields[k] = v
			src = src[n:]

		case fieldKind:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.Kind = event.Kind(v)
			src = src[n:]

		case fieldTimestampS:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.TimestampS = unzigzag(v)
			src = src[n:]

		case fieldValue:
			v, n := protowire.ConsumeFixed64(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.Value = math.Float64frombits(v)
			src = src[n:]

		case fieldPersist:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.Persist = v != 0
			src = src[n:]

		case fieldSampleRate:
			v, n := protowire.ConsumeFixed64(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.SampleRate = math.Float64frombits(v)
			src = src[n:]

		case fieldWindowID:
			v, n := protowire.ConsumeVarint(src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			e.WindowID = unzigzag(v)
			src = src[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, src)
			if n < 0 {
				return event.Event{}, 0, protowire.ParseError(n)
			}
			src = src[n:]
		}
	}

	e.Tags = tags
	if len(fields) > 0 {
		e.Fields = fields
	}
	return e, len(orig), nil
}

func appendString(dst []byte, field protowire.Number, s string) []byte {
	dst = protowire.AppendTag(dst, field, protowire.BytesType)
	return protowire.AppendString(dst, s)
}

func appendKV(dst []byte, field protowire.Number, k, v string) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, tagKVFieldKey, protowire.BytesType)
	inner = protowire.AppendString(inner, k)
	inner = protowire.AppendTag(inner, tagKVFieldValue, protowire.BytesType)
	inner = protowire.AppendString(inner, v)

	dst = protowire.AppendTag(dst, field, protowire.BytesType)
	return protowire.AppendBytes(dst, inner)
}

func appendTags(dst []byte, t event.Tags) []byte {
	t.Range(func(k, v string) {
		dst = appendKV(dst, fieldTagKV, k, v)
	})
	return dst
}

func consumeString(src []byte) (string, int, error) {
	b, n := protowire.ConsumeBytes(src)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return string(b), n, nil
}

func consumeKV(src []byte) (string, string, int, error) {
	b, n := protowire.ConsumeBytes(src)
	if n < 0 {
		return "", "", 0, protowire.ParseError(n)
	}
	var k, v string
	inner := b
	for len(inner) > 0 {
		num, typ, fn := protowire.ConsumeTag(inner)
		if fn < 0 {
			return "", "", 0, protowire.ParseError(fn)
		}
		inner = inner[fn:]
		switch num {
		case tagKVFieldKey:
			s, sn, err := consumeString(inner)
			if err != nil {
				return "", "", 0, err
			}
			k = s
			inner = inner[sn:]
		case tagKVFieldValue:
			s, sn, err := consumeString(inner)
			if err != nil {
				return "", "", 0, err
			}
			v = s
			inner = inner[sn:]
		default:
			sn := protowire.ConsumeFieldValue(num, typ, inner)
			if sn < 0 {
				return "", "", 0, protowire.ParseError(sn)
			}
			inner = inner[sn:]
		}
	}
	return k, v, n, nil
}

func zigzag(v int64) uint64  { return protowire.EncodeZigZag(v) }
func unzigzag(v uint64) int64 { return protowire.DecodeZigZag(v) }

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// ReadFrame reads one u32-length-prefixed frame from r and decodes its
// batch of events.
func ReadFrame(r io.Reader) ([]event.Event, error) {
	var lb [4]byte
	if _, err := io.ReadFull(r, lb[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lb[:])
	if int64(n) > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	var events []event.Event
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]

		if num != batchEntryField {
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			buf = buf[n:]
			continue
		}

		entry, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		buf = buf[n:]

		e, _, err := DecodeEvent(entry)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// WriteFrame encodes events as one batch and writes it as a
// u32-length-prefixed frame to w.
func WriteFrame(w io.Writer, events []event.Event) error {
	var body []byte
	for _, e := range events {
		entry := EncodeEvent(nil, e)
		body = protowire.AppendTag(body, batchEntryField, protowire.BytesType)
		body = protowire.AppendBytes(body, entry)
	}
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(body)))
	if _, err := w.Write(lb[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
