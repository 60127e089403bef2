// Package drive defines the interface presented by the audio-sector reader.
// The actual CD access library is an external collaborator; a backend
// registers itself through Register and the core only ever sees these
// interfaces.
package drive

import "cdrip/internal/shared"

// RawSectorSize is the byte size of one raw audio sector (588 stereo
// 16-bit frames).
const RawSectorSize = 2352

// Track describes one track as enumerated by the drive.
type Track struct {
	Number  int
	Start   int64
	End     int64
	IsAudio bool
}

// Reader reads raw audio sectors with error correction (paranoid mode).
type Reader interface {
	// Seek positions the reader at an absolute sector.
	Seek(sector int64) error
	// ReadSector fills buf (RawSectorSize bytes) with the next sector.
	ReadSector(buf []byte) error
}

// Drive is an open CD drive handle. It must not be shared across
// concurrent rip invocations.
type Drive interface {
	// Tracks enumerates the disc's tracks in order.
	Tracks() ([]Track, error)
	// LastSector returns the disc's last audio sector.
	LastSector() (int64, error)
	// SetSpeed hints the drive read speed; fast requests the maximum.
	SetSpeed(fast bool)
	// Reader returns the paranoid sector reader for this drive.
	Reader() Reader
	Close() error
}

// OpenFunc opens the drive at device ("" selects the default drive).
type OpenFunc func(device string) (Drive, error)

// Open is the registered backend. Without a registered backend every open
// fails with DeviceUnavailable.
var Open OpenFunc = func(device string) (Drive, error) {
	return nil, shared.Errorf(shared.KindDeviceUnavailable,
		"no CD drive backend registered (device %q)", device)
}

// Register installs the platform audio-sector reader backend.
func Register(fn OpenFunc) {
	if fn != nil {
		Open = fn
	}
}
