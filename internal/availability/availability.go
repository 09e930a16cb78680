// Package availability computes bookable lesson slots from static provider rules.
package availability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// HourLayout is the layout of provider hour labels.
const HourLayout = "15:04"

var (
	// ErrUnknownProvider is returned when a provider id is not configured.
	ErrUnknownProvider = errors.New("availability: unknown provider")
	// ErrWeekOutOfRange is returned for a week offset outside the booking horizon.
	ErrWeekOutOfRange = errors.New("availability: week offset out of range")
)

// ProviderConfig is the configuration shape of a single provider.
type ProviderConfig struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Weekdays []int    `yaml:"weekdays"`
	Hours    []string `yaml:"hours"`
	Timezone string   `yaml:"timezone"`
}

// Provider is an immutable weekly availability pattern.
// Weekday numbers are Monday-based: 0 is Monday, 6 is Sunday.
type Provider struct {
	ID       string
	Name     string
	Weekdays []int
	Hours    []string
	Location *time.Location
}

// AllowsWeekday reports whether lessons may be held on the date's weekday.
func (p Provider) AllowsWeekday(d civil.Date) bool {
	return slices.Contains(p.Weekdays, Weekday(d))
}

// HasHour reports whether the label is one of the provider's hours.
func (p Provider) HasHour(hour string) bool {
	return slices.Contains(p.Hours, hour)
}

// DisplayName returns the provider name, falling back to its id.
func (p Provider) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.ID
}

// Weekday converts a date to the Monday-based weekday number.
func Weekday(d civil.Date) int {
	return (int(d.Weekday()) + 6) % 7
}

// CandidateDates returns dates in [from, from+7*weeksAhead) whose weekday is allowed, ascending.
func CandidateDates(p Provider, from civil.Date, weeksAhead int) []civil.Date {
	if weeksAhead <= 0 {
		return nil
	}
	var out []civil.Date
	for i := 0; i < 7*weeksAhead; i++ {
		d := from.AddDays(i)
		if p.AllowsWeekday(d) {
			out = append(out, d)
		}
	}
	return out
}

// CandidateHours returns the provider's hour labels in configured order.
func CandidateHours(p Provider) []string {
	return slices.Clone(p.Hours)
}

// NewProvider validates a provider configuration.
func NewProvider(pc ProviderConfig, fallback *time.Location) (Provider, error) {
	id := strings.TrimSpace(pc.ID)
	if id == "" {
		return Provider{}, fmt.Errorf("provider id is required")
	}
	if strings.ContainsAny(id, "|:") {
		return Provider{}, fmt.Errorf("provider %s: id must not contain '|' or ':'", id)
	}
	if len(pc.Weekdays) == 0 {
		return Provider{}, fmt.Errorf("provider %s: at least one weekday is required", id)
	}
	weekdays := make([]int, 0, len(pc.Weekdays))
	for _, wd := range pc.Weekdays {
		if wd < 0 || wd > 6 {
			return Provider{}, fmt.Errorf("provider %s: weekday %d out of range 0..6", id, wd)
		}
		if !slices.Contains(weekdays, wd) {
			weekdays = append(weekdays, wd)
		}
	}
	slices.Sort(weekdays)

	if len(pc.Hours) == 0 {
		return Provider{}, fmt.Errorf("provider %s: at least one hour is required", id)
	}
	hours := make([]string, 0, len(pc.Hours))
	for _, h := range pc.Hours {
		h = strings.TrimSpace(h)
		t, err := time.Parse(HourLayout, h)
		if err != nil {
			return Provider{}, fmt.Errorf("provider %s: invalid hour %q: %w", id, h, err)
		}
		label := t.Format(HourLayout)
		if slices.Contains(hours, label) {
			return Provider{}, fmt.Errorf("provider %s: duplicate hour %s", id, label)
		}
		hours = append(hours, label)
	}
	slices.Sort(hours)

	loc := fallback
	if tz := strings.TrimSpace(pc.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return Provider{}, fmt.Errorf("provider %s: timezone %q: %w", id, tz, err)
		}
		loc = l
	}
	if loc == nil {
		loc = time.UTC
	}

	return Provider{
		ID:       id,
		Name:     strings.TrimSpace(pc.Name),
		Weekdays: weekdays,
		Hours:    hours,
		Location: loc,
	}, nil
}
