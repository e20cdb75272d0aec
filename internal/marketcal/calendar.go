// Package marketcal answers "is the market open right now", folding in
// weekends, the exchange holiday calendar and early-close days.
package marketcal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"mirra/internal/logger"

	"gopkg.in/yaml.v3"
)

// Calendar is the on-disk holiday/early-close list. Dates use 2006-01-02;
// early-close values are local close times like "13:00".
type Calendar struct {
	Holidays   map[string]string `yaml:"holidays"`
	EarlyClose map[string]string `yaml:"early_close"`
}

// Config holds the trading-session settings.
type Config struct {
	Timezone      string
	Open          string // "09:30"
	Close         string // "16:00"
	CheckWeekend  bool
	CheckHolidays bool
}

// Oracle evaluates market hours against a loaded calendar. A missing or
// corrupt calendar file degrades to the weekday + session-window check.
type Oracle struct {
	cfg      Config
	loc      *time.Location
	calendar Calendar
}

func New(calendarPath string, cfg Config) (*Oracle, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = "America/New_York"
	}
	if cfg.Open == "" {
		cfg.Open = "09:30"
	}
	if cfg.Close == "" {
		cfg.Close = "16:00"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("market timezone: %w", err)
	}
	o := &Oracle{cfg: cfg, loc: loc}
	if calendarPath != "" {
		if cal, err := loadCalendar(calendarPath); err != nil {
			logger.Warnf("market calendar unavailable (%v), holiday checks disabled", err)
		} else {
			o.calendar = cal
		}
	}
	return o, nil
}

func loadCalendar(path string) (Calendar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Calendar{}, err
	}
	var cal Calendar
	if err := yaml.Unmarshal(data, &cal); err != nil {
		return Calendar{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cal, nil
}

// IsOpen reports whether the market is open at now, with a human-readable
// reason when it is not.
func (o *Oracle) IsOpen(now time.Time) (bool, string) {
	local := now.In(o.loc)
	if o.cfg.CheckWeekend {
		switch local.Weekday() {
		case time.Saturday, time.Sunday:
			return false, "weekend"
		}
	}
	dateKey := local.Format("2006-01-02")
	if o.cfg.CheckHolidays {
		if name, ok := o.calendar.Holidays[dateKey]; ok {
			if name == "" {
				name = "market holiday"
			}
			return false, name
		}
	}
	open, err := o.sessionTime(local, o.cfg.Open)
	if err != nil {
		return false, err.Error()
	}
	closeStr := o.cfg.Close
	early := false
	if o.cfg.CheckHolidays {
		if t, ok := o.calendar.EarlyClose[dateKey]; ok && strings.TrimSpace(t) != "" {
			closeStr = t
			early = true
		}
	}
	close_, err := o.sessionTime(local, closeStr)
	if err != nil {
		return false, err.Error()
	}
	if local.Before(open) {
		return false, fmt.Sprintf("before open (%s)", o.cfg.Open)
	}
	if !local.Before(close_) {
		if early {
			return false, fmt.Sprintf("early close (%s)", closeStr)
		}
		return false, fmt.Sprintf("after close (%s)", closeStr)
	}
	return true, "open"
}

func (o *Oracle) sessionTime(day time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("bad session time %q", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, o.loc), nil
}
