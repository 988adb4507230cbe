package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"fives.org/internal/audit"
	"fives.org/internal/auth"
	"fives.org/internal/config"
	"fives.org/internal/httpapi"
	"fives.org/internal/notify"
	"fives.org/internal/obs"
	"fives.org/internal/store/memory"
	"fives.org/internal/store/pg"
	"fives.org/internal/ws"
)

var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		obs.Logger().WithError(err).Fatal("fives-api stopped")
	}
}

// stores groups the persistence backends selected at startup.
type stores struct {
	users auth.UserStore
	rules notify.RuleStore
	work  notify.WorkSource
	db    *sql.DB
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := obs.Configure(cfg.Log.Level, cfg.Log.Format)
	obs.Init()
	obs.InitBuildInfo(version, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
	}

	auditStore, rdb, err := openAuditStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	hasher := auth.NewPasswordHasher(auth.HashParams{
		MemoryKiB:   cfg.Auth.Argon2MemoryKiB,
		Iterations:  cfg.Auth.Argon2Time,
		Parallelism: cfg.Auth.Argon2Parallelism,
	})
	authSvc, err := auth.NewService(st.users, tokens, hasher)
	if err != nil {
		return err
	}
	if created, err := authSvc.EnsureAdmin(ctx, cfg.Auth.BootstrapUsername, cfg.Auth.BootstrapPassword); err != nil {
		return err
	} else if created {
		log.WithField("username", cfg.Auth.BootstrapUsername).Warn("bootstrap admin account created; change its password")
	}

	registry := ws.NewRegistry(authSvc,
		ws.WithLogger(log),
		ws.WithAllowedOrigins(cfg.HTTP.CORSOrigins),
		ws.WithErrorDetails(!cfg.IsProduction()),
	)
	notifier, err := notify.NewService(registry, st.rules, notify.NewLogMailer(log), st.work, notify.Config{
		FallbackRecipients: cfg.Notify.FallbackRecipients,
		PassingScore:       cfg.Notify.PassingScore,
	}, log)
	if err != nil {
		return err
	}

	ready := httpapi.ReadyProbe{DB: st.db}
	if rdb != nil {
		ready.Redis = rdb
	}
	api, err := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Auth:     authSvc,
		Audit:    audit.NewLogger(auditStore, log),
		Registry: registry,
		Notify:   notifier,
		Ready:    ready,
		Logger:   log,
		Version:  version,
	})
	if err != nil {
		return err
	}

	var (
		grpcLis net.Listener
		grpcSrv *grpc.Server
	)
	if cfg.HTTP.GRPCAddr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.HTTP.GRPCAddr); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	sched, err := scheduleSweeps(ctx, cfg.Notify, notifier, log)
	if err != nil {
		return err
	}
	sched.Start()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "version": version, "environment": cfg.Environment}).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		grpcSrv = grpc.NewServer()
		health := httpapi.NewGRPCHealth(ready, log)
		health.Register(grpcSrv)
		g.Go(func() error {
			health.Watch(gctx, 10*time.Second)
			return nil
		})
		g.Go(func() error {
			log.WithField("addr", cfg.HTTP.GRPCAddr).Info("grpc listening")
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		<-sched.Stop().Done()
		if err := registry.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("websocket shutdown incomplete")
		}
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("stopped")
	return err
}

// openStores picks Postgres when DATABASE_URL is set and the in-memory
// stores otherwise. A rules file seeds whichever rule store is active.
func openStores(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (stores, error) {
	seed := memory.NewRuleStore()
	if cfg.Notify.RulesFile != "" {
		n, err := seed.LoadRulesFile(cfg.Notify.RulesFile)
		if err != nil {
			return stores{}, fmt.Errorf("load rules %s: %w", cfg.Notify.RulesFile, err)
		}
		log.WithFields(logrus.Fields{"file": cfg.Notify.RulesFile, "rules": n}).Info("notification rules loaded")
	}

	if cfg.Store.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return stores{users: memory.NewUserStore(), rules: seed, work: memory.NewWorkStore()}, nil
	}

	pgStore, err := pg.Open(cfg.Store.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pgStore.Ping(pingCtx); err != nil {
		_ = pgStore.Close()
		return stores{}, fmt.Errorf("ping database: %w", err)
	}
	// Only active seed rules are copied; the table keeps whatever else it has.
	if cfg.Notify.RulesFile != "" {
		rules, err := seed.ActiveRules(ctx)
		if err != nil {
			_ = pgStore.Close()
			return stores{}, err
		}
		for _, r := range rules {
			if err := pgStore.PutRule(ctx, r); err != nil {
				_ = pgStore.Close()
				return stores{}, fmt.Errorf("seed rule %s: %w", r.ID, err)
			}
		}
	}
	return stores{users: pgStore, rules: pgStore, work: pgStore, db: pgStore.DB()}, nil
}

// openAuditStore uses Redis when AUDIT_REDIS_URL is set and the in-process
// ring buffer otherwise.
func openAuditStore(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (audit.Store, *redis.Client, error) {
	if cfg.Audit.RedisURL == "" {
		return audit.NewRingStore(cfg.Audit.Capacity), nil, nil
	}
	rdb, err := audit.OpenRedis(ctx, cfg.Audit.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit redis: %w", err)
	}
	log.WithField("key", cfg.Audit.RedisKey).Info("audit log stored in redis")
	return audit.NewRedisStore(rdb, cfg.Audit.RedisKey, cfg.Audit.Capacity), rdb, nil
}

// scheduleSweeps registers the periodic notification sweeps. Overlapping
// runs of the same sweep are skipped.
func scheduleSweeps(ctx context.Context, cfg config.NotifyConfig, svc *notify.Service, log logrus.FieldLogger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	jobs := []struct {
		name string
		spec string
		run  func() (int, error)
	}{
		{"overdue-actions", cfg.OverdueSchedule, func() (int, error) { return svc.SweepOverdueActions(ctx, time.Now()) }},
		{"low-score-audits", cfg.LowScoreSchedule, func() (int, error) { return svc.SweepLowScoreAudits(ctx) }},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := c.AddFunc(j.spec, func() {
			n, err := j.run()
			entry := log.WithFields(logrus.Fields{"sweep": j.name, "triggered": n})
			if err != nil {
				entry.WithError(err).Error("sweep failed")
				return
			}
			entry.Info("sweep finished")
		}); err != nil {
			return nil, fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}
	return c, nil
}
