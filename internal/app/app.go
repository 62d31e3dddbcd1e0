package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"library/internal/api"
	"library/internal/config"
	"library/internal/loans"
	"library/internal/notify"
	"library/internal/scanner"
	"library/internal/storage"
	"library/internal/storage/pg"
	"library/internal/storage/stubs"
)

// App represents the application
type App struct {
	config     *config.Config
	logger     *zap.Logger
	db         storage.Storage
	dispatcher *notify.Dispatcher
	scanner    *scanner.Scanner
	server     *http.Server

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// New creates and initializes a new application instance
func New() (*App, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{config: cfg, logger: logger}
	app.rootCtx, app.rootCancel = context.WithCancel(context.Background())

	logger.Info("Starting library service")

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initNotifications(); err != nil {
		return nil, err
	}
	app.initScanner()
	app.initHTTPServer()

	return app, nil
}

// initDatabase initializes the storage engine
func (a *App) initDatabase() error {
	var db storage.Storage
	if a.config.UseMockDB {
		a.logger.Info("Using mock database")
		db = stubs.NewMockDB()
	} else {
		a.logger.Info("Connecting to Postgres",
			zap.String("host", a.config.PostgresHost),
			zap.Int("port", a.config.PostgresPort),
			zap.String("database", a.config.PostgresDatabase),
			zap.String("user", a.config.PostgresUser),
		)
		pgDB, err := pg.NewPostgresDB(a.rootCtx,
			a.config.PostgresHost,
			a.config.PostgresPort,
			a.config.PostgresDatabase,
			a.config.PostgresUser,
			a.config.PostgresPassword,
			a.config.PostgresSSLMode,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		db = pgDB
	}

	if err := db.Initialize(a.rootCtx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

// initNotifications builds the delivery channel and the dispatcher
func (a *App) initNotifications() error {
	var sender notify.Sender
	switch a.config.NotifyChannel {
	case config.ChannelSMTP:
		s, err := notify.NewSMTPSender(
			a.config.SMTPHost,
			a.config.SMTPPort,
			a.config.SMTPUser,
			a.config.SMTPPassword,
			a.config.SMTPFrom,
		)
		if err != nil {
			return fmt.Errorf("failed to create SMTP sender: %w", err)
		}
		sender = s
	case config.ChannelTelegram:
		s, err := notify.NewTelegramSender(a.config.TelegramToken, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create Telegram sender: %w", err)
		}
		sender = s
	default:
		sender = notify.NewLogSender(a.logger)
	}

	opts := []notify.Option{
		notify.WithQueueSize(a.config.NotifyQueueSize),
		notify.WithWorkers(a.config.NotifyWorkers),
		notify.WithRetryDelay(a.config.NotifyRetryDelay),
	}
	if a.config.NotifyRate > 0 {
		opts = append(opts, notify.WithRateLimit(a.config.NotifyRate, 1))
	}
	a.dispatcher = notify.NewDispatcher(sender, a.db, a.logger, opts...)

	a.logger.Info("Notification dispatcher configured",
		zap.String("channel", a.config.NotifyChannel))
	return nil
}

// initScanner builds the overdue scanner, with a Redis run lock when
// configured
func (a *App) initScanner() {
	opts := []scanner.Option{
		scanner.WithSchedule(a.config.ScanHour, a.config.ScanMinute),
	}
	if a.config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})
		opts = append(opts, scanner.WithLock(
			scanner.NewRedisLock(client, "library:overdue-scan", time.Hour, a.logger)))
		a.logger.Info("Overdue scan lock backed by Redis",
			zap.String("addr", a.config.RedisAddr))
	}
	a.scanner = scanner.NewScanner(a.db, a.dispatcher, a.logger, opts...)
}

// initHTTPServer wires the API routes into an HTTP server
func (a *App) initHTTPServer() {
	loanService := loans.NewService(a.db, a.dispatcher, a.logger)
	server := api.NewServer(a.db, loanService, a.logger)

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      server.SetupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	a.dispatcher.Start(a.rootCtx)
	go a.scanner.Run(a.rootCtx)

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.logger.Info("Shutting down")
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop the scanner and drain the dispatcher
	a.rootCancel()
	a.dispatcher.Stop(shutdownCtx)

	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	return nil
}
