package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/availability"
	"github.com/ykvlv/booking-bot/internal/booking"
	"github.com/ykvlv/booking-bot/internal/config"
	"github.com/ykvlv/booking-bot/internal/ratelimit"
	"github.com/ykvlv/booking-bot/internal/relay"
	"github.com/ykvlv/booking-bot/internal/scheduler"
	"github.com/ykvlv/booking-bot/internal/store"
	"github.com/ykvlv/booking-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server
	repo    store.Repo
	engine  *booking.Engine
	router  *telegram.Router
	relay   *relay.Relay
	rdb     *redis.Client
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	a := &App{cfg: cfg, log: log, bot: bot}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthz)
	a.httpSrv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return a, nil
}

// healthz reports store reachability along with live counters.
func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	if a.repo == nil || a.engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	n, err := a.repo.CountBookings(r.Context())
	if err != nil {
		a.log.Warn("healthz: count bookings failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"bookings": n,
		"sessions": a.engine.Sessions().Len(),
	})
}

func openStore(ctx context.Context, cfg config.Config) (store.Repo, error) {
	if cfg.StoreDriver == "postgres" {
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	return store.OpenSQLite(ctx, cfg.DBPath)
}

func (a *App) limiter(ctx context.Context) ratelimit.Limiter {
	if a.cfg.RedisAddr == "" {
		return ratelimit.NewLocal(a.cfg.ThrottleInterval)
	}
	a.rdb = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.rdb.Ping(pingCtx).Err(); err != nil {
		// the limiter fails open, so an unreachable redis only disables throttling
		a.log.Warn("redis unreachable, throttling disabled until it recovers", zap.Error(err))
	}
	return ratelimit.NewRedis(a.rdb, a.cfg.ThrottleInterval, "booking:throttle")
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting booking-bot",
		zap.String("store", a.cfg.StoreDriver),
		zap.String("http", a.cfg.HTTPAddr),
	)

	window, err := a.cfg.Window()
	if err != nil {
		return err
	}
	resetCfg, err := a.cfg.Reset()
	if err != nil {
		return err
	}
	recipients, err := a.cfg.Recipients()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the store and run migrations.
	repo, err := openStore(ctx, a.cfg)
	if err != nil {
		a.log.Error("open store failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("store ready", zap.String("driver", a.cfg.StoreDriver))

	oracle := availability.New(window, repo, a.log)
	a.engine = booking.NewEngine(window, repo, repo, oracle, a.log)
	a.router = telegram.NewRouter(a.bot, a.log, a.engine, telegram.Options{
		AdminChatID: a.cfg.AdminChatID,
		Records:     repo,
		Shutdown:    stop,
	})
	a.relay = relay.New(window.Providers, recipients, a.router, a.log)
	a.router.UseRelay(a.relay)
	limiter := a.limiter(ctx)
	dispatcher := booking.NewDispatcher(ctx, a.log, limiter, a.router.Process, a.router.Throttled)
	a.router.Bind(dispatcher)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scheduler.New(repo, a.log, a.router, resetCfg).Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.janitor(ctx, limiter)
	}()

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.bot.StopReceivingUpdates()

			// Create a short-lived shutdown context and cancel it immediately after use.
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.httpSrv.Shutdown(shCtx)
			cancel()
			if err != nil {
				a.log.Warn("http server shutdown error", zap.Error(err))
			}

			dispatcher.Wait()
			wg.Wait()
			if a.rdb != nil {
				_ = a.rdb.Close()
			}
			if err := a.repo.Close(); err != nil {
				a.log.Warn("store close error", zap.Error(err))
			}
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// janitor expires idle sessions and conversations and forgets idle throttle state.
func (a *App) janitor(ctx context.Context, limiter ratelimit.Limiter) {
	ttl := a.cfg.SessionIdleTTL
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(janitorInterval(ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.engine.ExpireIdle(ttl); n > 0 {
				a.log.Info("idle sessions expired", zap.Int("count", n))
			}
			if local, ok := limiter.(*ratelimit.Local); ok {
				local.Sweep(ttl)
			}
		}
	}
}

func janitorInterval(ttl time.Duration) time.Duration {
	d := ttl / 3
	if d > time.Minute {
		d = time.Minute
	}
	if d < time.Second {
		d = time.Second
	}
	return d
}
