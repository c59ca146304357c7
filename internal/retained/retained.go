// Package retained persists the small block of state that must survive a
// sleep cycle: when the device went to sleep, the RTC reading at that moment,
// when the wall clock was last synced and the page the display was showing.
//
// On a microcontroller this lives in RTC memory. On a Linux board it is a
// file, ideally on a tmpfs that survives suspend and re-exec but not a power
// cut, which matches RTC memory semantics.
//
// Layout (little endian, 52 bytes):
//
//	Offset  Size  Field
//	0       4     Magic (0x494b5254)
//	4       8     WhenSlept (unix seconds, 0 = never slept)
//	12      8     RTCAtSleep (milliseconds of RTC time)
//	20      8     LastSync (unix seconds, 0 = never synced)
//	28      4     PageIndex
//	32      16    BootID (boot the RTC reading belongs to)
//	48      4     CRC32 (IEEE) of bytes 0-47
package retained

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	Magic = 0x494b5254
	Size  = 52
)

// Region is the retained state.
type Region struct {
	WhenSlept  uint64 // unix seconds when the device went to sleep
	RTCAtSleep uint64 // RTC milliseconds at that moment
	LastSync   uint64 // unix seconds of the last successful time sync
	PageIndex  uint32
	BootID     uuid.UUID // boot RTCAtSleep was read in; uuid.Nil when unknown
}

// Slept reports whether the region carries a sleep timestamp.
func (r Region) Slept() bool {
	return r.WhenSlept != 0
}

// Marshal encodes the region into its fixed layout.
func (r Region) Marshal() []byte {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint64(buf[4:12], r.WhenSlept)
	binary.LittleEndian.PutUint64(buf[12:20], r.RTCAtSleep)
	binary.LittleEndian.PutUint64(buf[20:28], r.LastSync)
	binary.LittleEndian.PutUint32(buf[28:32], r.PageIndex)
	copy(buf[32:48], r.BootID[:])
	binary.LittleEndian.PutUint32(buf[48:52], crc32.ChecksumIEEE(buf[:48]))
	return buf
}

// ErrCorrupt is returned by Unmarshal for a block that fails validation.
var ErrCorrupt = errors.New("retained region corrupt")

// Unmarshal decodes a region, validating length, magic and checksum.
func Unmarshal(data []byte) (Region, error) {
	if len(data) != Size {
		return Region{}, fmt.Errorf("%w: length %d, want %d", ErrCorrupt, len(data), Size)
	}
	if m := binary.LittleEndian.Uint32(data[0:4]); m != Magic {
		return Region{}, fmt.Errorf("%w: magic 0x%08x", ErrCorrupt, m)
	}
	if sum := crc32.ChecksumIEEE(data[:48]); sum != binary.LittleEndian.Uint32(data[48:52]) {
		return Region{}, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	r := Region{
		WhenSlept:  binary.LittleEndian.Uint64(data[4:12]),
		RTCAtSleep: binary.LittleEndian.Uint64(data[12:20]),
		LastSync:   binary.LittleEndian.Uint64(data[20:28]),
		PageIndex:  binary.LittleEndian.Uint32(data[28:32]),
	}
	copy(r.BootID[:], data[32:48])
	return r, nil
}

// File stores a Region at a fixed path.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File backed by path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing path.
func (f *File) Path() string {
	return f.path
}

// Load returns the stored region. A missing or corrupt block reads as the
// zero Region, the same as RTC memory after a power loss; corruption is
// still reported so the caller can log it.
func (f *File) Load() (Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Region{}, nil
	}
	if err != nil {
		return Region{}, fmt.Errorf("read retained region: %w", err)
	}
	r, err := Unmarshal(data)
	if err != nil {
		return Region{}, err
	}
	return r, nil
}

// Store writes the region atomically.
func (f *File) Store(r Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create retained dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, r.Marshal(), 0600); err != nil {
		return fmt.Errorf("write retained region: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit retained region: %w", err)
	}
	return nil
}

// ClearSleep zeroes the sleep timestamp, keeping the sync time and page index.
func (f *File) ClearSleep() error {
	r, err := f.Load()
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	r.WhenSlept = 0
	r.RTCAtSleep = 0
	r.BootID = uuid.Nil
	return f.Store(r)
}
