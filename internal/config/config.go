package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/ykvlv/booking-bot/internal/domain"
	"github.com/ykvlv/booking-bot/internal/relay"
	"github.com/ykvlv/booking-bot/internal/scheduler"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken  string `envconfig:"BOT_TOKEN" required:"true"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"` // json|console
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"` // healthz

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"` // sqlite|postgres
	DBPath      string `envconfig:"DB_PATH" default:"./data/booking.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	WorkDays      []string `envconfig:"WORK_DAYS" default:"monday,tuesday,wednesday,thursday,friday"`
	WorkHours     []int    `envconfig:"WORK_HOURS" default:"9,10,11,12,13,14,15,16,17"`
	WorkMinutes   []int    `envconfig:"WORK_MINUTES" default:"0,30"`
	ExcludedSlots []string `envconfig:"EXCLUDED_SLOTS" default:"13:30,17:30"`
	Providers     []string `envconfig:"PROVIDERS" default:"pediatrician,surgeon,gynecologist"`

	ResetWeekday string        `envconfig:"RESET_WEEKDAY" default:"saturday"`
	ResetAt      string        `envconfig:"RESET_AT" default:"00:00"`
	ResetPoll    time.Duration `envconfig:"RESET_POLL" default:"1h"`
	AdminChatID  int64         `envconfig:"ADMIN_CHAT_ID"`

	// ProviderChats routes consultations: "surgeon:123,pediatrician:456".
	ProviderChats map[string]int64 `envconfig:"PROVIDER_CHATS"`

	ThrottleInterval time.Duration `envconfig:"THROTTLE_INTERVAL" default:"3s"`
	RedisAddr        string        `envconfig:"REDIS_ADDR"` // empty: throttle in process
	SessionIdleTTL   time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
}

// Load reads environment variables into Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return cfg, fmt.Errorf("BOT_TOKEN is empty")
	}
	switch cfg.StoreDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return cfg, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if _, err := cfg.Window(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Reset(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Recipients(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Window builds the schedule window from the WORK_* variables.
func (c Config) Window() (domain.ScheduleWindow, error) {
	days := make([]time.Weekday, 0, len(c.WorkDays))
	for _, name := range c.WorkDays {
		wd, err := domain.ParseWeekday(name)
		if err != nil {
			return domain.ScheduleWindow{}, fmt.Errorf("WORK_DAYS: %w", err)
		}
		days = append(days, wd)
	}
	providers := make([]domain.Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p = strings.TrimSpace(p); p != "" {
			providers = append(providers, domain.Provider(p))
		}
	}
	w, err := domain.NewScheduleWindow(days, c.WorkHours, c.WorkMinutes, c.ExcludedSlots, providers)
	if err != nil {
		return domain.ScheduleWindow{}, fmt.Errorf("schedule: %w", err)
	}
	return w, nil
}

// Reset builds the scheduler settings from the RESET_* variables.
func (c Config) Reset() (scheduler.Config, error) {
	wd, err := domain.ParseWeekday(c.ResetWeekday)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("RESET_WEEKDAY: %w", err)
	}
	h, m, err := domain.ParseClock(c.ResetAt)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("RESET_AT: %w", err)
	}
	return scheduler.Config{
		Weekday:        wd,
		Hour:           h,
		Minute:         m,
		OperatorChatID: c.AdminChatID,
		Poll:           c.ResetPoll,
		Cycle:          24 * time.Hour,
	}, nil
}

// Recipients builds the relay targets: provider chats from PROVIDER_CHATS,
// support from ADMIN_CHAT_ID.
func (c Config) Recipients() (relay.Recipients, error) {
	w, err := c.Window()
	if err != nil {
		return relay.Recipients{}, err
	}
	chats := make(map[domain.Provider]int64, len(c.ProviderChats))
	for name, id := range c.ProviderChats {
		p := domain.Provider(strings.TrimSpace(name))
		if !w.HasProvider(p) {
			return relay.Recipients{}, fmt.Errorf("PROVIDER_CHATS: unknown provider %q", name)
		}
		chats[p] = id
	}
	return relay.Recipients{Providers: chats, Support: c.AdminChatID}, nil
}
