package hopper

import (
	"encoding/binary"
	"os"
	"path/filepath"
)

// cursor is a reader's persisted read position: the segment it is reading
// and the byte offset within that segment's record stream (i.e. past the
// 4-byte file header).
type cursor struct {
	segID  int64
	offset int64
}

func cursorPath(dir, readerName string) string {
	return filepath.Join(dir, "cursors", readerName)
}

func loadCursor(dir, readerName string) (cursor, bool, error) {
	data, err := os.ReadFile(cursorPath(dir, readerName))
	if os.IsNotExist(err) {
		return cursor{}, false, nil
	}
	if err != nil {
		return cursor{}, false, err
	}
	if len(data) != 16 {
		return cursor{}, false, nil
	}
	return cursor{
		segID:  int64(binary.BigEndian.Uint64(data[0:8])),
		offset: int64(binary.BigEndian.Uint64(data[8:16])),
	}, true, nil
}

// saveCursor persists c atomically: write to a temp file, then rename, so a
// crash mid-write never leaves a torn cursor file behind.
func saveCursor(dir, readerName string, c cursor) error {
	path := cursorPath(dir, readerName)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(c.segID))
	binary.BigEndian.PutUint64(buf[8:16], uint64(c.offset))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf[:], 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
