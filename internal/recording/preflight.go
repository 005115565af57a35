package recording

import (
	"fmt"

	"golang.org/x/sys/unix"

	"chronicle/internal/config"
)

// statfsFunc reports (total, free) bytes for a mount; injectable for tests.
type statfsFunc func(path string) (uint64, uint64, error)

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

// EstimateRequiredBytes computes the worst-case capture footprint for a
// session: uncompressed PCM at the configured format, for the maximum session
// length, one stream per expected speaker plus one for the mixdown, padded by
// the safety multiplier. The speaker count never drops below the configured
// floor so small parties still reserve room for late joiners.
func EstimateRequiredBytes(cfg config.Recording, memberCount int) uint64 {
	speakers := memberCount
	if speakers < cfg.MinExpectedSpeakers {
		speakers = cfg.MinExpectedSpeakers
	}
	durationSeconds := cfg.MaxSessionHours * 3600
	bytesPerSecond := float64(cfg.SampleRate * cfg.BytesPerSample * cfg.Channels)
	total := bytesPerSecond * durationSeconds * float64(speakers+1) * cfg.DiskSafetyMultiplier
	if total < 0 {
		return 0
	}
	return uint64(total)
}

func checkDiskSpace(statfs statfsFunc, path string, required uint64) error {
	_, free, err := statfs(path)
	if err != nil {
		return fmt.Errorf("statfs %s: %w", path, err)
	}
	if free < required {
		return &InsufficientDiskSpaceError{
			Path:           path,
			RequiredBytes:  required,
			AvailableBytes: free,
		}
	}
	return nil
}
