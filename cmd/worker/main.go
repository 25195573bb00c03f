package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"bookingfast/internal/config"
	"bookingfast/internal/domain/workflow"
	"bookingfast/internal/infra/dedup"
	"bookingfast/internal/infra/email"
	"bookingfast/internal/infra/queue"
	"bookingfast/internal/infra/ratelimit"
	"bookingfast/internal/infra/sms"
	"bookingfast/internal/infra/store"
	"bookingfast/internal/infra/template"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("worker configuration loaded")

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	wfStore, err := store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase store", "error", err)
		os.Exit(1)
	}
	slog.Info("supabase store initialized")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Duplicate-dispatch guards, one per channel
	var dedupStore workflow.DedupStore = workflow.NewMemoryDedupStore()
	if cfg.Dispatch.DedupBackend == "redis" {
		dedupStore = dedup.NewRedisStore(redisClient)
	}
	slog.Info("dedup store initialized", "backend", cfg.Dispatch.DedupBackend)

	// Delayed workflows and reminder scans both enqueue through this client
	redisOpt := queue.RedisOpt(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient, cfg.Queue.MaxRetry, cfg.Queue.Timeout())

	smsOpts := []workflow.SMSOption{
		workflow.WithCountryCode(cfg.SMS.DefaultCountryCode),
		workflow.WithMaxLength(cfg.SMS.MaxLength),
	}
	if cfg.RecipientRateLimit.MaxPerHour > 0 {
		limiter := ratelimit.NewRedisRecipientLimiter(redisClient, cfg.RecipientRateLimit.MaxPerHour, 0)
		smsOpts = append(smsOpts, workflow.WithRecipientLimiter(limiter))
		slog.Info("recipient rate limiter initialized", "max_per_hour", cfg.RecipientRateLimit.MaxPerHour)
	}

	functionURL := cfg.SMS.FunctionURL
	if functionURL == "" && cfg.Supabase.URL != "" {
		functionURL = sms.FunctionURL(cfg.Supabase.URL)
	}
	gateway := sms.NewFunctionGateway(functionURL, cfg.Supabase.ServiceKey, cfg.SMS.Timeout())
	smsDispatcher := workflow.NewDispatcher(
		workflow.NewSMSAdapter(gateway, smsOpts...),
		wfStore, wfStore,
		workflow.WithDeliveryLog(wfStore),
		workflow.WithGuard(workflow.NewGuard(dedupStore, cfg.Dispatch.SMSDebounce(), cfg.Dispatch.Retention(), nil)),
		workflow.WithScheduler(enqueuer),
	)

	layout, err := template.NewEngine(cfg.Email.Footer)
	if err != nil {
		slog.Error("failed to initialize email layout", "error", err)
		os.Exit(1)
	}
	sender := email.NewResendSender(cfg.Email.APIKey, cfg.Email.FromAddress, cfg.Email.FromName, cfg.Email.BaseURL)
	emailDispatcher := workflow.NewDispatcher(
		workflow.NewEmailAdapter(sender, layout),
		wfStore, wfStore,
		workflow.WithDeliveryLog(wfStore),
		workflow.WithGuard(workflow.NewGuard(dedupStore, cfg.Dispatch.EmailDebounce(), cfg.Dispatch.Retention(), nil)),
		workflow.WithScheduler(enqueuer),
	)

	engine := workflow.NewEngine(emailDispatcher, smsDispatcher)

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(redisOpt, cfg.Queue.Concurrency)

	mux := asynq.NewServeMux()
	mux.HandleFunc(workflow.TaskTypeDispatch, workflow.HandleDispatchTask(engine))
	mux.HandleFunc(workflow.TaskTypeDeliver, workflow.HandleDeliveryTask(engine))

	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Reminder Scanner
	// ==========================================

	scannerCtx, scannerCancel := context.WithCancel(context.Background())
	defer scannerCancel()

	if cfg.Reminders.Enabled {
		loc, _ := cfg.Reminders.Location() // checked by config.Load

		scanner := workflow.NewReminderScanner(
			wfStore,
			enqueuer,
			workflow.ReminderConfig{
				Interval: cfg.Reminders.Interval(),
				Location: loc,
				Channels: engine.Channels(),
			},
		)
		go scanner.Run(scannerCtx)
	}

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	scannerCancel() // Stop the scanner first
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
