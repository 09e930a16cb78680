// Package config assembles the vocalbot configuration from the reusable core
// sections and the booking specific ones.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/vocalbot/core/config"
	coredatabase "github.com/m3rciful/vocalbot/core/database"
	"github.com/m3rciful/vocalbot/internal/availability"
	"github.com/m3rciful/vocalbot/internal/scheduler"
)

// BookingConfig describes the lesson catalog and the booking rules.
type BookingConfig struct {
	// Timezone is used for providers that do not set their own.
	Timezone         string        `yaml:"timezone" envconfig:"BOOKING_TIMEZONE"`
	WeeksAhead       int           `yaml:"weeks_ahead" envconfig:"BOOKING_WEEKS_AHEAD"`
	LessonDuration   time.Duration `yaml:"lesson_duration" envconfig:"BOOKING_LESSON_DURATION"`
	SessionTTL       time.Duration `yaml:"session_ttl" envconfig:"BOOKING_SESSION_TTL"`
	MaxActivePerUser int           `yaml:"max_active_per_user" envconfig:"BOOKING_MAX_ACTIVE_PER_USER"`

	Providers []availability.ProviderConfig `yaml:"providers" ignored:"true"`

	location *time.Location
}

// Location returns the resolved fallback timezone.
func (b BookingConfig) Location() *time.Location {
	if b.location == nil {
		return time.UTC
	}
	return b.location
}

// Catalog builds the availability catalog from the configured providers.
func (b BookingConfig) Catalog() (*availability.Catalog, error) {
	return availability.NewCatalog(b.Providers, b.WeeksAhead, b.Location())
}

// Normalize fills defaults and validates the booking section.
func (b *BookingConfig) Normalize() error {
	tz := strings.TrimSpace(b.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("booking.timezone %q: %w", b.Timezone, err)
	}
	b.Timezone, b.location = tz, loc

	if b.WeeksAhead == 0 {
		b.WeeksAhead = 2
	}
	if b.LessonDuration == 0 {
		b.LessonDuration = time.Hour
	}
	if b.SessionTTL == 0 {
		b.SessionTTL = 15 * time.Minute
	}
	switch {
	case b.WeeksAhead < 0:
		return fmt.Errorf("booking.weeks_ahead must be > 0, got %d", b.WeeksAhead)
	case b.LessonDuration < 0:
		return fmt.Errorf("booking.lesson_duration must be positive, got %s", b.LessonDuration)
	case b.SessionTTL < 0:
		return fmt.Errorf("booking.session_ttl must be positive, got %s", b.SessionTTL)
	case b.MaxActivePerUser < 0:
		return fmt.Errorf("booking.max_active_per_user must be >= 0, got %d", b.MaxActivePerUser)
	case len(b.Providers) == 0:
		return fmt.Errorf("booking.providers must not be empty")
	}
	// Validate providers eagerly so a bad config fails at load time.
	if _, err := b.Catalog(); err != nil {
		return fmt.Errorf("booking: %w", err)
	}
	return nil
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database  coredatabase.Config `yaml:"database"`
	Booking   BookingConfig       `yaml:"booking"`
	Scheduler scheduler.Config    `yaml:"scheduler"`
}

// CoreConfig exposes the embedded core section to the shared runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file at path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	if err := c.Booking.Normalize(); err != nil {
		return err
	}
	return c.Scheduler.Normalize()
}

// AdminDirectory adapts telegram.admin_ids to the booking service.
type AdminDirectory struct {
	ids []int64
}

// Admins returns the admin directory built from the telegram section.
func (c *Config) Admins() AdminDirectory {
	return AdminDirectory{ids: append([]int64(nil), c.Telegram.AdminIDs...)}
}

// IsAdmin reports whether id is a configured admin chat id.
func (d AdminDirectory) IsAdmin(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false
	}
	for _, admin := range d.ids {
		if admin == n {
			return true
		}
	}
	return false
}

// AdminIDs returns the admin ids in configuration order.
func (d AdminDirectory) AdminIDs() []string {
	out := make([]string, len(d.ids))
	for i, id := range d.ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
