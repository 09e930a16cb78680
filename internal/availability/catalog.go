package availability

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Catalog holds the configured providers and the booking horizon.
type Catalog struct {
	providers  []Provider
	byID       map[string]int
	weeksAhead int
}

// NewCatalog validates provider configurations and builds a catalog.
// weeksAhead bounds how far into the future slots are offered.
func NewCatalog(configs []ProviderConfig, weeksAhead int, fallback *time.Location) (*Catalog, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("availability: at least one provider is required")
	}
	if weeksAhead <= 0 {
		return nil, fmt.Errorf("availability: weeks ahead must be > 0")
	}
	c := &Catalog{
		byID:       make(map[string]int, len(configs)),
		weeksAhead: weeksAhead,
	}
	for _, pc := range configs {
		p, err := NewProvider(pc, fallback)
		if err != nil {
			return nil, fmt.Errorf("availability: %w", err)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("availability: duplicate provider id %s", p.ID)
		}
		c.byID[p.ID] = len(c.providers)
		c.providers = append(c.providers, p)
	}
	return c, nil
}

// Providers returns the providers in configuration order.
func (c *Catalog) Providers() []Provider {
	return append([]Provider(nil), c.providers...)
}

// Provider looks up a provider by id.
func (c *Catalog) Provider(id string) (Provider, error) {
	idx, ok := c.byID[id]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	return c.providers[idx], nil
}

// WeeksAhead returns the booking horizon in weeks.
func (c *Catalog) WeeksAhead() int {
	return c.weeksAhead
}

// Today returns the provider-local calendar date at now.
func Today(p Provider, now time.Time) civil.Date {
	return civil.DateOf(now.In(p.Location))
}

// StartOf returns the lesson start time of the slot in the provider's timezone.
func StartOf(p Provider, d civil.Date, hour string) (time.Time, error) {
	t, err := time.Parse(HourLayout, hour)
	if err != nil {
		return time.Time{}, fmt.Errorf("availability: invalid hour %q: %w", hour, err)
	}
	return time.Date(d.Year, d.Month, d.Day, t.Hour(), t.Minute(), 0, 0, p.Location), nil
}

// IsBookable reports whether (date, hour) is a candidate slot of p that has not started yet.
func (c *Catalog) IsBookable(p Provider, d civil.Date, hour string, now time.Time) bool {
	if !p.HasHour(hour) || !p.AllowsWeekday(d) {
		return false
	}
	today := Today(p, now)
	if d.Before(today) || !d.Before(today.AddDays(7*c.weeksAhead)) {
		return false
	}
	start, err := StartOf(p, d, hour)
	if err != nil {
		return false
	}
	return start.After(now)
}

// OpenHours returns the provider hours on d that have not started at now.
func (c *Catalog) OpenHours(p Provider, d civil.Date, now time.Time) []string {
	var out []string
	for _, h := range p.Hours {
		if c.IsBookable(p, d, h, now) {
			out = append(out, h)
		}
	}
	return out
}

// Week returns the candidate dates of the Monday-based calendar week that is
// weekOffset weeks after the current one, clipped to the booking horizon.
// The horizon starts mid-week unless today is Monday, so weekOffset may be
// equal to the horizon length and the last week can be partial or empty.
func (c *Catalog) Week(p Provider, weekOffset int, now time.Time) ([]civil.Date, error) {
	if weekOffset < 0 || weekOffset > c.weeksAhead {
		return nil, fmt.Errorf("%w: %d", ErrWeekOutOfRange, weekOffset)
	}
	today := Today(p, now)
	monday := today.AddDays(-Weekday(today) + 7*weekOffset)
	horizon := today.AddDays(7 * c.weeksAhead)
	var out []civil.Date
	for _, d := range CandidateDates(p, monday, 1) {
		if d.Before(today) || !d.Before(horizon) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
