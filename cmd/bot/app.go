package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/suspectuso/galleon-bot/internal/cache"
	"github.com/suspectuso/galleon-bot/internal/catalog"
	"github.com/suspectuso/galleon-bot/internal/config"
	"github.com/suspectuso/galleon-bot/internal/consumer"
	"github.com/suspectuso/galleon-bot/internal/feed"
	"github.com/suspectuso/galleon-bot/internal/gacha"
	"github.com/suspectuso/galleon-bot/internal/ledger"
	"github.com/suspectuso/galleon-bot/internal/mastodon"
	"github.com/suspectuso/galleon-bot/internal/ops"
	"github.com/suspectuso/galleon-bot/internal/router"
	"github.com/suspectuso/galleon-bot/internal/scheduler"
	"github.com/suspectuso/galleon-bot/internal/storage"
	"github.com/suspectuso/galleon-bot/internal/telegram"
)

type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *storage.Storage
	cache     cache.Cache
	feed      feed.Feed
	scheduler *scheduler.Scheduler
	consumer  *consumer.Consumer
	ops       *ops.Server
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	store, err := storage.New(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.store = store
	log.Info("storage initialized", "driver", cfg.Store.Driver)

	c, err := openCache(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	a.cache = c
	log.Info("catalog cache initialized", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)

	f, err := openFeed(ctx, cfg.Feed, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init feed: %w", err)
	}
	a.feed = f
	log.Info("feed initialized", "feed", f.Name())

	l := ledger.New(store, log)
	if err := l.EnsureLogHeader(ctx); err != nil {
		log.Warn("ensure acquisition log header", "error", err)
	}

	cat := catalog.New(store, c, cfg.Cache.TTL, log)
	logCatalog(ctx, cat, log)

	sched, err := newScheduler(cfg.Schedule, f, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.scheduler = sched

	kw := cfg.Keywords
	r := router.New(router.Config{
		Keywords: router.Keywords{
			Inventory:         config.Aliases(kw.Inventory),
			Dice:              config.Aliases(kw.Dice),
			Gacha:             config.Aliases(kw.Gacha),
			Odds:              config.Aliases(kw.Odds),
			Shop:              config.Aliases(kw.Shop),
			Purchase:          config.Aliases(kw.Purchase),
			Attendance:        config.Aliases(kw.Attendance),
			AcquisitionMarker: kw.AcquisitionMarker,
		},
		GachaPrice:       cfg.Economy.GachaPrice,
		AttendanceReward: cfg.Economy.AttendanceReward,
		AttendancePolicy: router.AttendancePolicy(cfg.Economy.AttendancePolicy),
		CurrencyName:     cfg.Economy.CurrencyName,
		Location:         cfg.Schedule.Location(),
	},
		ledger.NewIdentity(store, ledger.IdentityMode(cfg.IdentityMode)),
		l,
		cat,
		gacha.NewEngine(nil),
		sched,
		log,
	)

	ccfg := consumer.DefaultConfig()
	ccfg.MaxInterval = cfg.Reconnect.MaxInterval
	ccfg.MaxAttempts = cfg.Reconnect.MaxAttempts
	a.consumer = consumer.New(f, r, ccfg, log)

	a.ops = ops.NewServer(sched, a.consumer, store, f.Name(), log)

	return a, nil
}

// Run blocks until ctx is done or a component fails.
func (a *app) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.scheduler.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()
		a.scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		return a.ops.Start(gctx, a.cfg.OpsPort)
	})

	g.Go(func() error {
		a.log.Info("starting mention consumer", "feed", a.feed.Name())
		return a.consumer.Run(gctx)
	})

	return g.Wait()
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("close cache", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close storage", "error", err)
		}
	}
}

func openCache(cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "none":
		return nil, nil
	default:
		return cache.NewMemoryCache(cfg.TTL), nil
	}
}

func openFeed(ctx context.Context, cfg config.FeedConfig, log *slog.Logger) (feed.Feed, error) {
	switch cfg.Type {
	case "telegram":
		return telegram.New(ctx, cfg.TelegramToken, cfg.TelegramBroadcastChat, log)
	default:
		return mastodon.New(ctx, mastodon.Config{
			Server:      cfg.MastodonServer,
			AccessToken: cfg.MastodonAccessToken,
			Visibility:  cfg.MastodonVisibility,
		}, log)
	}
}

func newScheduler(cfg config.ScheduleConfig, b scheduler.Broadcaster, log *slog.Logger) (*scheduler.Scheduler, error) {
	openAt, err := scheduler.ParseClock(cfg.OpenAt)
	if err != nil {
		return nil, fmt.Errorf("ATTENDANCE_OPEN_AT: %w", err)
	}
	curfewAt, err := scheduler.ParseClock(cfg.CurfewAt)
	if err != nil {
		return nil, fmt.Errorf("CURFEW_AT: %w", err)
	}

	sc := scheduler.DefaultConfig()
	sc.OpenAt = openAt
	sc.CloseAt = curfewAt
	sc.Location = cfg.Location()
	if cfg.OpenMessage != "" {
		sc.OpenMessage = cfg.OpenMessage
	}
	if cfg.CurfewMessage != "" {
		sc.CurfewMessage = cfg.CurfewMessage
	}
	return scheduler.New(sc, b, log), nil
}

// logCatalog reports what the operator sheets hold at startup.
func logCatalog(ctx context.Context, cat *catalog.Catalog, log *slog.Logger) {
	kws, err := cat.Keywords(ctx)
	if err != nil {
		log.Warn("load keywords", "error", err)
	}
	items, err := cat.RewardItems(ctx)
	if err != nil {
		log.Warn("load reward items", "error", err)
	}
	shop, err := cat.ShopItems(ctx)
	if err != nil {
		log.Warn("load shop", "error", err)
	}

	log.Info("catalog loaded", "keywords", len(kws), "reward_items", len(items), "shop_items", len(shop))
	if len(items) == 0 {
		log.Warn("gacha sheet is empty, draws will be refused")
	}
}
