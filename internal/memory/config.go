package memory

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ArchiveConfig holds the tiering thresholds. Every field is required.
type ArchiveConfig struct {
	ActiveMemoryLimit       int
	TimeBasedThresholdHours float64
	ImportanceFloor         float64
	StaleAccessHours        float64
	BatchSize               int
	IntervalMinutes         float64
}

// Validate reports every invalid field. NaN fails every range check.
func (c ArchiveConfig) Validate() error {
	var errs []error
	if c.ActiveMemoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("active memory limit must be > 0, got %d", c.ActiveMemoryLimit))
	}
	if !(c.TimeBasedThresholdHours >= 0) {
		errs = append(errs, fmt.Errorf("time threshold hours must be >= 0, got %g", c.TimeBasedThresholdHours))
	}
	if !(c.ImportanceFloor >= 0 && c.ImportanceFloor <= 1) {
		errs = append(errs, fmt.Errorf("importance floor must be in [0,1], got %g", c.ImportanceFloor))
	}
	if !(c.StaleAccessHours >= 0) {
		errs = append(errs, fmt.Errorf("stale access hours must be >= 0, got %g", c.StaleAccessHours))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be > 0, got %d", c.BatchSize))
	}
	if !(c.IntervalMinutes > 0) {
		errs = append(errs, fmt.Errorf("interval minutes must be > 0, got %g", c.IntervalMinutes))
	}
	return errors.Join(errs...)
}

func (c ArchiveConfig) Interval() time.Duration {
	return hours(c.IntervalMinutes / 60)
}

func (c ArchiveConfig) ageThreshold() time.Duration   { return hours(c.TimeBasedThresholdHours) }
func (c ArchiveConfig) staleThreshold() time.Duration { return hours(c.StaleAccessHours) }

// hours saturates at the largest Duration so huge or infinite thresholds
// mean "never" instead of wrapping negative.
func hours(h float64) time.Duration {
	d := h * float64(time.Hour)
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
