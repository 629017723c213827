package janitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// ParseSchedule turns a gc_schedule value into a cron schedule.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "@hourly", "@every 30s" (optional "cron:" prefix)
//   - interval: "30s", "2m" or HH:MM like "00:05" (optional "every:" prefix)
//   - "off" or "none": no sweep; returns (nil, nil)
func ParseSchedule(raw string) (cron.Schedule, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)
	switch {
	case low == "off" || low == "none":
		return nil, nil
	case s == "":
		return nil, fmt.Errorf("schedule required")
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return parseCron(s)
	default:
		return parseInterval(s)
	}
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	sch, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return sch, nil
}

func parseInterval(v string) (cron.Schedule, error) {
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return nil, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return nil, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:05', or duration like '30s')", v)
		}
	}
	if d < time.Second {
		return nil, fmt.Errorf("interval %q must be at least 1s", v)
	}
	return cron.Every(d), nil
}
