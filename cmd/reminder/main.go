package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/boleto-reminder/internal/alert"
	"github.com/LeventeLantos/boleto-reminder/internal/api"
	"github.com/LeventeLantos/boleto-reminder/internal/attemptlog"
	"github.com/LeventeLantos/boleto-reminder/internal/cache"
	"github.com/LeventeLantos/boleto-reminder/internal/channel"
	"github.com/LeventeLantos/boleto-reminder/internal/config"
	"github.com/LeventeLantos/boleto-reminder/internal/logging"
	"github.com/LeventeLantos/boleto-reminder/internal/provider/hosted"
	"github.com/LeventeLantos/boleto-reminder/internal/provider/whatsmeow"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
	"github.com/LeventeLantos/boleto-reminder/internal/scheduler"
	"github.com/LeventeLantos/boleto-reminder/internal/service"
	"github.com/LeventeLantos/boleto-reminder/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Server.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("boleto-reminder stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return err
	}

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	invoices, closeStore, err := openInvoiceStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open invoice store: %w", err)
	}
	closers = append(closers, closeStore)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
	}

	attempts, err := openAttemptLog(cfg.AttemptLog, rdb)
	if err != nil {
		return fmt.Errorf("open attempt log: %w", err)
	}

	files, err := openFileStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open file store: %w", err)
	}

	provider := selectProvider(cfg, log)
	manager := channel.NewManager(provider, channel.Options{
		ScanTimeout:   cfg.Channel.ScanTimeout,
		MaxChallenges: cfg.Channel.MaxChallenges,
		MaxReconnects: cfg.Channel.MaxReconnects,
		BackoffBase:   cfg.Channel.BackoffBase,
		BackoffMax:    cfg.Channel.BackoffMax,
		Logger:        log,
	})
	closers = append(closers, manager.Close)

	if cfg.Alert.Enabled {
		alerter := alert.New(alert.NewSMTPMailer(alert.SMTPConfig{
			Host:     cfg.Alert.Host,
			Port:     cfg.Alert.Port,
			Username: cfg.Alert.Username,
			Password: cfg.Alert.Password,
			From:     cfg.Alert.From,
			To:       cfg.Alert.To,
		}), alert.Options{Logger: log})
		manager.OnStateChange(alerter.Observe)
		closers = append(closers, alerter.Wait)
	}

	dispatcher := channel.NewDispatcher(manager,
		channel.NewFallback(attempts, provider.Name(), cfg.AttemptLog.BodyMax),
		channel.DispatcherOptions{
			SendTimeout:        cfg.Channel.SendTimeout,
			DefaultRegion:      cfg.Channel.DefaultRegion,
			MaxAttachmentBytes: cfg.Storage.MaxBytes,
			Attachments:        files,
			Logger:             log,
		})

	notifierOpts := service.NotifierOptions{Location: loc, Logger: log}
	if rdb != nil {
		notifierOpts.Cache = cache.NewRedisCache(rdb, cfg.Redis.TTL)
	}
	notifier := service.NewNotifier(dispatcher, invoices, notifierOpts)

	sweeper := service.NewSweeper(invoices, notifier, service.SweeperOptions{
		Window:            cfg.Scheduler.Window,
		CriticalAfterDays: cfg.Scheduler.CriticalAfterDays,
		Location:          loc,
		Logger:            log,
	})

	sched, err := scheduler.New(scheduler.Config{
		Name:     "reminder-sweep",
		Interval: cfg.Scheduler.Interval,
		RunHour:  cfg.Scheduler.RunHour,
		Location: loc,
		Logger:   log,
	}, func(ctx context.Context) error {
		_, err := sweeper.Run(ctx)
		return err
	})
	if err != nil {
		return err
	}
	sched.Start()
	closers = append(closers, func() { sched.Stop() })

	if cfg.Channel.Autostart {
		if err := manager.Start(ctx); err != nil {
			log.Warn("channel autostart failed", "error", err)
		}
	}

	handler := api.NewHandler(api.Deps{
		Session:   manager,
		Sender:    dispatcher,
		Invoices:  invoices,
		Notifier:  notifier,
		Files:     files,
		Scheduler: sched,
		Location:  loc,
		QRWait:    3 * time.Second,
		Logger:    log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler, api.RouterOptions{CORSOrigins: cfg.Server.CORSOrigins})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("boleto-reminder starting",
			"addr", cfg.Server.Address,
			"store", cfg.Store.Backend,
			"provider", provider.Name(),
			"attempt_log", cfg.AttemptLog.Backend,
			"files", cfg.Storage.Backend,
			"redis", cfg.Redis.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	log.Info("boleto-reminder stopped")
	return nil
}

func openInvoiceStore(ctx context.Context, cfg config.StoreConfig) (repo.InvoiceRepository, func(), error) {
	switch cfg.Backend {
	case "mongo":
		client, err := repo.ConnectMongo(ctx, cfg.MongoURI, 10*time.Second)
		if err != nil {
			return nil, nil, err
		}
		r := repo.NewMongoInvoiceRepo(client.Database(cfg.MongoDatabase))
		if err := r.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return r, func() { _ = client.Disconnect(context.Background()) }, nil

	case "postgres":
		db, err := repo.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		r := repo.NewPostgresInvoiceRepo(db)
		if err := r.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return r, func() { _ = db.Close() }, nil

	case "memory":
		return repo.NewMemoryInvoiceRepo(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func openAttemptLog(cfg config.AttemptLogConfig, rdb *redis.Client) (attemptlog.Log, error) {
	if cfg.Backend == "redis" {
		if rdb == nil {
			return nil, errors.New("redis attempt log without a redis client")
		}
		return attemptlog.NewRedisLog(rdb, ""), nil
	}
	return attemptlog.NewFileLog(cfg.Path)
}

func openFileStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Backend != "minio" {
		return storage.NewLocalStore(cfg.UploadDir, cfg.MaxBytes)
	}

	s, err := storage.NewMinIOStore(storage.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
		MaxBytes:  cfg.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func selectProvider(cfg *config.Config, log *slog.Logger) channel.Provider {
	switch cfg.Channel.Provider {
	case "hosted":
		return hosted.New(cfg.Hosted.URL, cfg.Hosted.APIKey)
	case "null":
		return channel.NullProvider{}
	default:
		return whatsmeow.New(whatsmeow.Config{
			StorePath:      cfg.Whatsmeow.StorePath,
			DeviceName:     cfg.Whatsmeow.DeviceName,
			PrintQR:        cfg.Whatsmeow.PrintQR,
			SendsPerMinute: cfg.Whatsmeow.SendsPerMinute,
			Logger:         log,
		})
	}
}
