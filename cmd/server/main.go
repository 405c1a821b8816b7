package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"worktime-bot/internal/config"
	"worktime-bot/internal/handler"
	"worktime-bot/internal/i18n"
	"worktime-bot/internal/notify"
	"worktime-bot/internal/service"
	"worktime-bot/internal/store"
	"worktime-bot/internal/timeutil"
)

func main() {
	cfg := config.Load()

	i18n.Init(cfg.DefaultLocale)

	// All date and time-of-day decisions use the organization's fixed offset.
	clock := timeutil.NewClock(cfg.OrgUTCOffsetHours)

	// Connect to MongoDB
	db, err := store.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer db.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stores
	schedules, err := store.NewScheduleStore(ctx, db)
	if err != nil {
		log.Fatalf("Failed to init schedule store: %v", err)
	}
	ledger, err := store.NewBreakLedger(ctx, db, clock)
	if err != nil {
		log.Fatalf("Failed to init break ledger: %v", err)
	}
	directory, err := store.NewDirectory(ctx, db)
	if err != nil {
		log.Fatalf("Failed to init directory: %v", err)
	}

	// Active breaks left over from a crashed prior run must not stay stuck.
	ledger.ReapStale(ctx)

	// Notifications
	telegram := notify.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramBotToken,
		cfg.AdminGroupChatID, directory.ChatIDFor, cfg.NotifyTimeout)
	debouncer := notify.NewDebouncer(cfg.PersonalDebounce)
	notifier := notify.NewNotifier(telegram, debouncer, clock, cfg.NotifyTimeout)

	// Services
	breakSvc := service.NewBreakService(schedules, ledger, notifier, clock)
	monitor := service.NewMonitor(schedules, ledger, notifier, clock, cfg.MonitorInterval)
	monitor.Start()
	defer monitor.Stop()

	// Routes
	mux := http.NewServeMux()
	handler.NewBreakHandler(breakSvc, ledger).RegisterRoutes(mux)
	handler.NewScheduleHandler(schedules, directory).RegisterRoutes(mux)

	// Health checks
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.LoggingMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Break service started on :%s (env: %s)", cfg.Port, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
