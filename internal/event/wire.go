package event

import (
	"encoding/binary"
	"errors"
	"math"
)

// Encode and Decode serialize a single Event to/from the compact binary
// form stored in hopper segment records and carried inside native-protocol
// frames. The format is a hand-rolled record convention (length-prefixed
// fields, big-endian integers, no reliance on a generated-code marshaler)
// rather than a generic codegen tool.
var (
	ErrShortBuffer = errors.New("cernan/event: buffer too short to decode")
	ErrBadVariant  = errors.New("cernan/event: unknown event variant byte")
)

// Encode appends the wire form of e to dst and returns the extended slice.
func Encode(dst []byte, e Event) []byte {
	dst = append(dst, byte(e.Variant))

	switch e.Variant {
	case VariantTelemetry:
		dst = putString(dst, e.Name)
		dst = putTags(dst, e.Tags)
		dst = append(dst, byte(e.Kind))
		dst = putI64(dst, e.TimestampS)
		dst = putF64(dst, e.Value)
		dst = putBool(dst, e.Persist)
		dst = putF64(dst, e.SampleRate)

	case VariantLogLine:
		dst = putString(dst, e.Path)
		dst = putString(dst, e.Name) // log line value/body
		dst = putI64(dst, e.TimestampS)
		dst = putTags(dst, e.Tags)
		dst = putStringMap(dst, e.Fields)

	case VariantTimerFlush:
		dst = putI64(dst, e.WindowID)
	}

	return dst
}

// Decode parses a single Event from the front of src, returning the Event
// and the number of bytes consumed.
func Decode(src []byte) (Event, int, error) {
	if len(src) < 1 {
		return Event{}, 0, ErrShortBuffer
	}
	variant := Variant(src[0])
	pos := 1

	switch variant {
	case VariantTelemetry:
		name, n, err := getString(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		tags, n, err := getTags(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		if len(src[pos:]) < 1 {
			return Event{}, 0, ErrShortBuffer
		}
		kind := Kind(src[pos])
		pos++

		ts, n, err := getI64(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		value, n, err := getF64(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		persist, n, err := getBool(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		rate, n, err := getF64(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		return Event{
			Variant:    VariantTelemetry,
			Name:       name,
			Tags:       tags,
			Kind:       kind,
			TimestampS: ts,
			Value:      value,
			Persist:    persist,
			SampleRate: rate,
		}, pos, nil

	case VariantLogLine:
		path, n, err := getString(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		body, n, err := getString(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		ts, n, err := getI64(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		tags, n, err := getTags(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		fields, n, err := getStringMap(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n

		return Event{
			Variant:    VariantLogLine,
			Path:       path,
			Name:       body,
			TimestampS: ts,
			Tags:       tags,
			Fields:     fields,
		}, pos, nil

	case VariantTimerFlush:
		wid, n, err := getI64(src[pos:])
		if err != nil {
			return Event{}, 0, err
		}
		pos += n
		return Event{Variant: VariantTimerFlush, WindowID: wid}, pos, nil

	default:
		return Event{}, 0, ErrBadVariant
	}
}

func putString(dst []byte, s string) []byte {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(s)))
	dst = append(dst, lb[:]...)
	return append(dst, s...)
}

func getString(src []byte) (string, int, error) {
	if len(src) < 4 {
		return "", 0, ErrShortBuffer
	}
	l := int(binary.BigEndian.Uint32(src))
	if len(src) < 4+l {
		return "", 0, ErrShortBuffer
	}
	return string(src[4 : 4+l]), 4 + l, nil
}

func putI64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

func getI64(src []byte) (int64, int, error) {
	if len(src) < 8 {
		return 0, 0, ErrShortBuffer
	}
	return int64(binary.BigEndian.Uint64(src)), 8, nil
}

func putF64(dst []byte, v float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return append(dst, b[:]...)
}

func getF64(src []byte) (float64, int, error) {
	if len(src) < 8 {
		return 0, 0, ErrShortBuffer
	}
	return math.Float64frombits(binary.BigEndian.Uint64(src)), 8, nil
}

func putBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func getBool(src []byte) (bool, int, error) {
	if len(src) < 1 {
		return false, 0, ErrShortBuffer
	}
	return src[0] != 0, 1, nil
}

func putTags(dst []byte, t Tags) []byte {
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], uint32(t.Len()))
	dst = append(dst, cb[:]...)
	t.Range(func(k, v string) {
		dst = putString(dst, k)
		dst = putString(dst, v)
	})
	return dst
}

func getTags(src []byte) (Tags, int, error) {
	if len(src) < 4 {
		return Tags{}, 0, ErrShortBuffer
	}
	count := int(binary.BigEndian.Uint32(src))
	pos := 4
	var t Tags
	for i := 0; i < count; i++ {
		k, n, err := getString(src[pos:])
		if err != nil {
			return Tags{}, 0, err
		}
		pos += n
		v, n, err := getString(src[pos:])
		if err != nil {
			return Tags{}, 0, err
		}
		pos += n
		t.Set(k, v)
	}
	return t, pos, nil
}

func putStringMap(dst []byte, m map[string]string) []byte {
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], uint32(len(m)))
	dst = append(dst, cb[:]...)
	for k, v := range m {
		dst = putString(dst, k)
		dst = putString(dst, v)
	}
	return dst
}

func getStringMap(src []byte) (map[string]string, int, error) {
	if len(src) < 4 {
		return nil, 0, ErrShortBuffer
	}
	count := int(binary.BigEndian.Uint32(src))
	pos := 4
	if count == 0 {
		return nil, pos, nil
	}
	m := make(map[string]string, count)
	for i := 0; i < count; i++ {
		k, n, err := getString(src[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		v, n, err := getString(src[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += n
		m[k] = v
	}
	return m, pos, nil
}
