package types

import (
	"net/http"
	"os"
	"slices"
	"time"
)

// StatInfo is the metadata record every protocol dialect converges on.
type StatInfo struct {
	Size  int64
	NLink int
	Mode  os.FileMode
	ATime time.Time
	MTime time.Time
	CTime time.Time
	Owner uint32
	Group uint32
}

// IsDir reports whether the entry is a collection.
func (s StatInfo) IsDir() bool {
	return s.Mode.IsDir()
}

const (
	// DefaultFileMode is reported for remote files that carry no mode.
	DefaultFileMode os.FileMode = 0o644
	// DefaultDirMode is reported for remote collections that carry no mode.
	DefaultDirMode = os.ModeDir | 0o755
)

// FileStat returns a StatInfo for a regular file.
func FileStat(size int64, mtime time.Time) StatInfo {
	return StatInfo{Size: size, NLink: 1, Mode: DefaultFileMode, MTime: mtime, CTime: mtime, ATime: mtime}
}

// DirStat returns a StatInfo for a collection.
func DirStat(mtime time.Time) StatInfo {
	return StatInfo{NLink: 1, Mode: DefaultDirMode, MTime: mtime, CTime: mtime, ATime: mtime}
}

func sortedKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
