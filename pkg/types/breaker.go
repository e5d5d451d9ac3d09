package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BreakerLevel is the coarse safety state of the circuit breaker.
// Levels are ordered; within a day bucket they may only worsen.
type BreakerLevel int

const (
	LevelNormal BreakerLevel = iota
	LevelWarning
	LevelCaution
	LevelHalt
)

func (l BreakerLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelWarning:
		return "WARNING"
	case LevelCaution:
		return "CAUTION"
	case LevelHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// ParseBreakerLevel converts a persisted level name back to its value.
func ParseBreakerLevel(s string) (BreakerLevel, error) {
	switch s {
	case "NORMAL":
		return LevelNormal, nil
	case "WARNING":
		return LevelWarning, nil
	case "CAUTION":
		return LevelCaution, nil
	case "HALT":
		return LevelHalt, nil
	default:
		return LevelNormal, fmt.Errorf("unknown breaker level %q", s)
	}
}

// CircuitBreakerState is the persisted breaker state. DayBucket is the
// UTC date the counters belong to; a new bucket resets everything.
type CircuitBreakerState struct {
	Level               BreakerLevel
	ConsecutiveFailures int
	DailyPnL            decimal.Decimal
	DayBucket           string // "2006-01-02" in UTC
	UpdatedAt           time.Time
}

// DayBucketFor formats the UTC day bucket for a point in time.
func DayBucketFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
