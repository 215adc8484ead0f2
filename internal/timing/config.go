package timing

import "time"

// EstimateMode selects how the wait behind other orders is quoted.
type EstimateMode string

const (
	// ModeQueue waits for the active queue ahead to drain, using the live
	// remaining minutes of the orders ranked ahead.
	ModeQueue EstimateMode = "queue"
	// ModeFlat charges PerPositionMinutes for every order ahead.
	ModeFlat EstimateMode = "flat"
)

type Config struct {
	PerItemMinutes         int
	PerPositionMinutes     int
	FloorMinutes           int
	RetentionWindowMinutes int
	Mode                   EstimateMode
	StoreTimeout           time.Duration
}

func DefaultConfig() Config {
	return Config{
		PerItemMinutes:         3,
		PerPositionMinutes:     5,
		FloorMinutes:           5,
		RetentionWindowMinutes: 24 * 60,
		Mode:                   ModeQueue,
		StoreTimeout:           3 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.PerItemMinutes < 0:
		return invalidInput("", "per-item minutes must not be negative")
	case c.PerPositionMinutes < 0:
		return invalidInput("", "per-position minutes must not be negative")
	case c.FloorMinutes <= 0:
		return invalidInput("", "floor minutes must be positive")
	case c.RetentionWindowMinutes < 0:
		return invalidInput("", "retention window must not be negative")
	case c.Mode != ModeQueue && c.Mode != ModeFlat:
		return invalidInput("", "unknown estimate mode %q", c.Mode)
	}
	return nil
}

func (c Config) retention() time.Duration {
	return time.Duration(c.RetentionWindowMinutes) * time.Minute
}
