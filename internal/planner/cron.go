package planner

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field form or an optional leading
// seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// validateCron rejects a malformed cron expression before any LLM call
// is made on its behalf.
func validateCron(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return nil
}

// humanReadableCron derives a display string for a cron expression.
// Common patterns are named; anything else falls back to the raw
// expression.
func humanReadableCron(expr string) string {
	switch expr {
	case "":
		return ""
	case "* * * * *":
		return "every minute"
	case "0 * * * *":
		return "every hour"
	case "0 0 * * *":
		return "every day at midnight"
	case "0 0 * * 0":
		return "every week on Sunday at midnight"
	case "0 0 1 * *":
		return "every month on the 1st at midnight"
	default:
		return expr
	}
}
