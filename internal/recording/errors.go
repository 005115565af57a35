package recording

import (
	"errors"
	"fmt"
)

// ErrAlreadyActive signals that a guild already has a live recording.
var ErrAlreadyActive = errors.New("a recording is already active for this guild")

// InvalidTransitionError reports a control operation that the current
// recording state does not permit.
type InvalidTransitionError struct {
	Op    string
	State string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: recording is %s", e.Op, e.State)
}

// InsufficientDiskSpaceError reports a failed capture preflight. Figures are
// surfaced in gigabytes so operators can size the volume.
type InsufficientDiskSpaceError struct {
	Path           string
	RequiredBytes  uint64
	AvailableBytes uint64
}

func (e *InsufficientDiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space on %s: need %.2f GB, have %.2f GB available",
		e.Path, e.RequiredGB(), e.AvailableGB())
}

// RequiredGB returns the preflight estimate in gigabytes.
func (e *InsufficientDiskSpaceError) RequiredGB() float64 {
	return float64(e.RequiredBytes) / (1024 * 1024 * 1024)
}

// AvailableGB returns the free space observed in gigabytes.
func (e *InsufficientDiskSpaceError) AvailableGB() float64 {
	return float64(e.AvailableBytes) / (1024 * 1024 * 1024)
}
