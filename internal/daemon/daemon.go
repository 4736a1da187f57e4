package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blockrush/blockrush/internal/api"
	"github.com/blockrush/blockrush/internal/app/cosmetic"
	"github.com/blockrush/blockrush/internal/app/engagement"
	"github.com/blockrush/blockrush/internal/app/jobs"
	"github.com/blockrush/blockrush/internal/domain"
	"github.com/blockrush/blockrush/internal/health"
	"github.com/blockrush/blockrush/internal/infra/email"
	"github.com/blockrush/blockrush/internal/infra/kafka"
	"github.com/blockrush/blockrush/internal/infra/scheduler"
	"github.com/blockrush/blockrush/internal/infra/sqlite"
	"github.com/blockrush/blockrush/internal/logger"
)

// Daemon is the BlockRush runtime. It wires together all services.
type Daemon struct {
	Config    Config
	Log       *logger.Logger
	DB        *sqlite.DB
	Server    *api.Server
	Services  api.Services
	Jobs      *jobs.Registry
	Scheduler *scheduler.Scheduler
	Health    *health.Checker
}

// New opens the database and wires every service. Nothing runs until Serve.
func New(cfg Config, log *logger.Logger) (*Daemon, error) {
	db, err := sqlite.Open(cfg.Database.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	mailer, err := newMailer(cfg.Email, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	users := db.Users()
	gam := db.Gamification()

	cos := cosmetic.NewService(db.Cosmetics(), log)
	pass := engagement.NewSeasonPassService(users, gam, cos, log)
	challenges := engagement.NewChallengeTracker(gam, log)
	achievements := engagement.NewAchievementService(db.Achievements(), log)
	goals := engagement.NewGoalService(db.Goals(), log)
	svc := api.Services{
		Users:        engagement.NewUserService(users, log),
		Streaks:      engagement.NewStreakService(users, log),
		SeasonPass:   pass,
		GameEnd:      engagement.NewGameEndService(users, db.Sessions(), pass, challenges, achievements, goals, cfg.Gameplay.BaseGameXP, log),
		Challenges:   challenges,
		Achievements: achievements,
		Goals:        goals,
		Cosmetics:    cos,
	}

	daily := jobs.NewDailyRotationJob(gam, log)
	weekly := jobs.NewWeeklyRotationJob(gam, log)
	transition := jobs.NewSeasonTransitionJob(users, gam, log)
	notify := jobs.NewStreakNotificationJob(users, mailer, log)
	registry := jobs.NewRegistry(daily, weekly, transition, notify)

	sched := scheduler.New(log,
		scheduler.Entry{Job: daily, Interval: parseDuration(cfg.Scheduler.DailyRotation, 0)},
		scheduler.Entry{Job: weekly, Interval: parseDuration(cfg.Scheduler.WeeklyRotation, 0)},
		scheduler.Entry{Job: transition, Interval: parseDuration(cfg.Scheduler.SeasonTransition, 0)},
		scheduler.Entry{Job: notify, Interval: parseDuration(cfg.Scheduler.StreakNotify, 0)},
	)

	checks := []health.Check{
		health.DatabaseCheck(db),
		health.DataDirCheck(cfg.Database.Dir),
	}
	if cfg.Scheduler.Enabled {
		checks = append(checks, health.SchedulerCheck(sched))
	}
	checker := health.NewChecker(parseDuration(cfg.Telemetry.HealthInterval, health.DefaultInterval), log, checks...)

	srv := api.NewServer(svc, log)
	srv.SetJobRunner(sched)
	srv.SetHealth(checker)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Server:    srv,
		Services:  svc,
		Jobs:      registry,
		Scheduler: sched,
		Health:    checker,
	}, nil
}

func newMailer(cfg EmailConfig, log *logger.Logger) (domain.EmailService, error) {
	if cfg.SendGridAPIKey == "" {
		log.Warn("no SendGrid API key configured, streak emails will only be logged")
		return email.NewLogMailer(log), nil
	}
	sg, err := email.NewSendGrid(log, email.Config{
		APIKey:     cfg.SendGridAPIKey,
		BaseURL:    cfg.BaseURL,
		FromEmail:  cfg.FromEmail,
		FromName:   cfg.FromName,
		Timeout:    parseDuration(cfg.Timeout, 30*time.Second),
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("configure email: %w", err)
	}
	return sg, nil
}

// RunJob runs one registered job synchronously.
func (d *Daemon) RunJob(ctx context.Context, name string) error {
	job, err := d.Jobs.Get(name)
	if err != nil {
		return err
	}
	return job.Run(ctx)
}

// Serve runs the HTTP server, scheduler, health checks and, if enabled, the
// Kafka consumer until ctx is cancelled or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g.Go(func() error {
		d.Log.Info("http server listening", "addr", addr, "metrics", d.Config.Telemetry.Prometheus)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if d.Config.Scheduler.Enabled {
		if err := d.Scheduler.Start(gctx); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("start scheduler: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return d.Scheduler.Stop()
		})
	}

	g.Go(func() error {
		d.Health.Run(gctx)
		return nil
	})

	if d.Config.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(kafka.Config{
			Brokers:        d.Config.Kafka.Brokers,
			Topic:          d.Config.Kafka.Topic,
			GroupID:        d.Config.Kafka.GroupID,
			HandlerTimeout: parseDuration(d.Config.Kafka.HandlerTimeout, 10*time.Second),
		}, d.Services.GameEnd, d.Log)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return consumer.Start(gctx) })
		g.Go(func() error {
			<-gctx.Done()
			return consumer.Close()
		})
	}

	err := g.Wait()
	d.Log.Info("daemon stopped")
	return err
}

// Close releases daemon resources.
func (d *Daemon) Close() {
	if d.Scheduler != nil {
		_ = d.Scheduler.Stop()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	d.Log.Sync()
}
