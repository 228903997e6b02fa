package timesync

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// MemoryRTC is an in-process RTC. Its time only moves when the owner moves it,
// which keeps tests deterministic.
type MemoryRTC struct {
	Present   bool
	PowerLost bool
	Time      time.Time
	Adjusts   int
}

func (r *MemoryRTC) Begin() bool {
	return r.Present
}

func (r *MemoryRTC) LostPower() bool {
	return r.PowerLost
}

func (r *MemoryRTC) Adjust(t time.Time) {
	r.Time = t
	r.PowerLost = false
	r.Adjusts++
}

func (r *MemoryRTC) Now() time.Time {
	return r.Time
}

type fileRTCState struct {
	OffsetNanos int64 `msgpack:"offset_ns"`
}

// FileRTC emulates a battery-backed RTC on a host: it keeps the offset between
// the adjusted time and the host clock in a small msgpack file. A missing or
// unreadable file is a chip that lost power.
type FileRTC struct {
	path   string
	offset time.Duration
	lost   bool
	now    func() time.Time
}

// NewFileRTC returns a FileRTC persisted at path.
func NewFileRTC(path string) *FileRTC {
	return &FileRTC{path: path, now: time.Now}
}

// Begin loads the persisted offset. It fails only when the backing directory
// cannot be created, the host equivalent of the chip not answering on the bus.
func (r *FileRTC) Begin() bool {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return false
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		r.lost = true
		return errors.Is(err, os.ErrNotExist)
	}

	var st fileRTCState
	if err := msgpack.Unmarshal(data, &st); err != nil {
		r.lost = true
		return true
	}
	r.offset = time.Duration(st.OffsetNanos)
	r.lost = false
	return true
}

func (r *FileRTC) LostPower() bool {
	return r.lost
}

// Adjust sets the RTC. A failed write leaves the chip flagged as having lost
// power so the next boot does not trust it.
func (r *FileRTC) Adjust(t time.Time) {
	r.offset = t.Sub(r.now())
	data, err := msgpack.Marshal(&fileRTCState{OffsetNanos: int64(r.offset)})
	if err == nil {
		err = os.WriteFile(r.path, data, 0o644)
	}
	r.lost = err != nil
}

func (r *FileRTC) Now() time.Time {
	return r.now().Add(r.offset)
}
