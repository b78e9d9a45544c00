package scheduler

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/fieldmind/core/internal/apperrors"
)

// Kind is a ScheduledJob's firing pattern.
type Kind string

const (
	KindOnce     Kind = "once"
	KindDaily    Kind = "daily"
	KindPeriodic Kind = "periodic"
)

// MinPeriodicSeconds is the floor on a Periodic job's interval.
const MinPeriodicSeconds = 60

// Trigger is the parsed form of a job's trigger-spec string.
type Trigger struct {
	Kind Kind

	// Once: exactly one of RelativeSeconds or (AbsHour,AbsMinute) is set.
	RelativeSeconds int64
	AbsHour         int
	AbsMinute       int
	HasAbsolute     bool

	// Daily
	Hour, Minute int

	// Periodic
	IntervalSeconds int64
}

var (
	onceInPattern    = regexp.MustCompile(`^once in (\d+) (minute|hour|day)$`)
	onceAtPattern    = regexp.MustCompile(`^once at (\d{1,2}):(\d{2})$`)
	dailyPattern     = regexp.MustCompile(`^every day at (\d{1,2}):(\d{2})$`)
	periodicPattern  = regexp.MustCompile(`^every (\d+) (minute|hour)$`)
)

// ParseTrigger parses one of the four supported trigger grammar forms.
func ParseTrigger(spec string) (Trigger, error) {
	if m := onceInPattern.FindStringSubmatch(spec); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		var seconds int64
		switch m[2] {
		case "minute":
			seconds = n * 60
		case "hour":
			seconds = n * 3600
		case "day":
			seconds = n * 86400
		}
		return Trigger{Kind: KindOnce, RelativeSeconds: seconds}, nil
	}
	if m := onceAtPattern.FindStringSubmatch(spec); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return Trigger{}, apperrors.Validation("spec", "hour must be 0-23, minute 0-59")
		}
		return Trigger{Kind: KindOnce, AbsHour: hour, AbsMinute: minute, HasAbsolute: true}, nil
	}
	if m := dailyPattern.FindStringSubmatch(spec); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return Trigger{}, apperrors.Validation("spec", "hour must be 0-23, minute 0-59")
		}
		return Trigger{Kind: KindDaily, Hour: hour, Minute: minute}, nil
	}
	if m := periodicPattern.FindStringSubmatch(spec); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		var seconds int64
		switch m[2] {
		case "minute":
			seconds = n * 60
		case "hour":
			seconds = n * 3600
		}
		if seconds < MinPeriodicSeconds {
			return Trigger{}, apperrors.Validation("spec", fmt.Sprintf("interval must be at least %d seconds", MinPeriodicSeconds))
		}
		return Trigger{Kind: KindPeriodic, IntervalSeconds: seconds}, nil
	}
	return Trigger{}, apperrors.Validation("spec", "does not match any trigger grammar")
}
