// Package progress counts downloaded and composited tiles. The counters are
// written from the download workers and the compositing loop at the same
// time, so every access is atomic.
package progress

import (
	"fmt"
	"sync/atomic"
)

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Composited int `json:"composited"`
	Missing    int `json:"missing"`
}

func (s Snapshot) String() string {
	return fmt.Sprintf("downloaded %d/%d, composited %d/%d, missing %d",
		s.Downloaded, s.Total, s.Composited, s.Total, s.Missing)
}

// Tracker holds the running counts for one image.
type Tracker struct {
	total      atomic.Int64
	downloaded atomic.Int64
	composited atomic.Int64
	missing    atomic.Int64
}

// New returns a tracker expecting total tiles.
func New(total int) *Tracker {
	t := &Tracker{}
	t.total.Store(int64(total))
	return t
}

// Reset zeroes the counters and sets a new total.
func (t *Tracker) Reset(total int) {
	t.total.Store(int64(total))
	t.downloaded.Store(0)
	t.composited.Store(0)
	t.missing.Store(0)
}

func (t *Tracker) Downloaded() int { return int(t.downloaded.Add(1)) }
func (t *Tracker) Composited() int { return int(t.composited.Add(1)) }
func (t *Tracker) Missing() int    { return int(t.missing.Add(1)) }

// Snapshot reads all counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Total:      int(t.total.Load()),
		Downloaded: int(t.downloaded.Load()),
		Composited: int(t.composited.Load()),
		Missing:    int(t.missing.Load()),
	}
}
