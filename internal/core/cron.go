package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronNever is a cron expression that never matches (February 31st). Jobs
// registered with it only run when triggered by hand.
const CronNever = "0 0 31 2 *"

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression evaluated in loc.
// A nil loc means UTC. An explicit CRON_TZ= prefix in expr wins over loc.
func ParseCron(expr string, loc *time.Location) (cron.Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, NewValidationError(
			fmt.Sprintf("Invalid cron expression: %s", expr),
			map[string]any{"expression": expr, "error": err.Error()},
		)
	}
	if spec, ok := schedule.(*cron.SpecSchedule); ok && !hasTZPrefix(expr) {
		spec.Location = loc
	}
	return schedule, nil
}

func hasTZPrefix(expr string) bool {
	return strings.HasPrefix(expr, "CRON_TZ=") || strings.HasPrefix(expr, "TZ=")
}

// NextExecution returns the first activation of expr after t. The boolean is
// false when the expression never fires.
func NextExecution(expr string, loc *time.Location, t time.Time) (time.Time, bool, error) {
	schedule, err := ParseCron(expr, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	next := schedule.Next(t)
	if next.IsZero() {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// LoadTimeZone resolves an IANA zone name, falling back to def when name is empty.
func LoadTimeZone(name string, def *time.Location) (*time.Location, error) {
	if name == "" {
		if def == nil {
			return time.Local, nil
		}
		return def, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, NewValidationError(
			fmt.Sprintf("Invalid timezone: %s", name),
			map[string]any{"timezone": name},
		)
	}
	return loc, nil
}
