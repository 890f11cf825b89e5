package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/spal-labs/transcriberd/internal/config"
	"github.com/spal-labs/transcriberd/internal/httpapi"
	"github.com/spal-labs/transcriberd/internal/jobs"
	"github.com/spal-labs/transcriberd/internal/mail"
	"github.com/spal-labs/transcriberd/internal/persistence"
	"github.com/spal-labs/transcriberd/internal/transcribe"
	"github.com/spal-labs/transcriberd/internal/webhook"
	"github.com/spal-labs/transcriberd/pkg/log"
)

func main() {
	_ = godotenv.Load()
	log.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatal("%v", err)
	}
}

func run(cfg *config.Config) error {
	sqlStore, err := persistence.NewSQLiteStore(cfg.Data.DBPath)
	if err != nil {
		return err
	}
	defer sqlStore.Close()

	store, err := jobs.NewStore(sqlStore)
	if err != nil {
		return err
	}
	if n := store.RecoverInterrupted(); n > 0 {
		log.Warn("Recovered %d interrupted job(s) from previous run", n)
	}

	resolver := mail.NewResolver(cfg.Mail.RecipientsFile, cfg.Mail.RecipientsDir)

	var dispatcher *mail.Dispatcher
	smtpCfg := mail.SMTPConfig{
		Host:       cfg.Mail.SMTPHost,
		Port:       cfg.Mail.SMTPPort,
		Username:   cfg.Mail.SMTPUser,
		Password:   cfg.Mail.SMTPPass,
		Sender:     cfg.Mail.Sender,
		SenderName: cfg.Mail.SenderName,
		UseTLS:     cfg.Mail.UseTLS,
		UseSSL:     cfg.Mail.UseSSL,
		SkipVerify: cfg.Mail.SkipVerify,
	}
	if smtpCfg.Configured() {
		dispatcher = mail.NewDispatcher(resolver, mail.NewSMTPTransport(smtpCfg), store, cfg.Mail.Subject, cfg.Mail.Body)
	} else {
		log.Info("SMTP not configured, notifications disabled")
	}

	// A nil notifier disables automatic dispatch; the manual endpoint stays up.
	var sinks []jobs.Notifier
	if dispatcher != nil && cfg.Mail.AutoSend {
		sinks = append(sinks, dispatcher)
	}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, webhook.NewSender(cfg.Notify.WebhookURL))
	}
	var notifier jobs.Notifier
	if len(sinks) > 0 {
		notifier = jobs.MultiNotifier(sinks...)
	}

	engine := transcribe.NewWhisperCLI(
		cfg.Worker.WhisperBin,
		cfg.Worker.WhisperModel,
		cfg.Worker.WhisperDevice,
		cfg.Worker.Threads,
	)
	processor := jobs.NewProcessor(store, engine, notifier, cfg.Data.Dir)

	queue := jobs.NewQueue(cfg.Worker.Count, store)
	queue.Start(processor.Run)
	defer queue.Stop()

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Mail.ReloadCron, resolver.Invalidate); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	opts := []httpapi.Option{
		httpapi.WithUpload(cfg.Data.Dir, cfg.Server.UploadMaxMB),
		httpapi.WithResolver(resolver),
	}
	if dispatcher != nil {
		opts = append(opts, httpapi.WithDispatcher(dispatcher))
	}
	server := httpapi.NewServer(store, queue, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Listening on http://%s", cfg.Server.Addr())
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
