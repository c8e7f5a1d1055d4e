package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/pflag"

	"autolead-telegram-bot/internal/adapter/httpapi"
	telegramAdapter "autolead-telegram-bot/internal/adapter/telegram"
	"autolead-telegram-bot/internal/config"
	"autolead-telegram-bot/internal/domain"
	"autolead-telegram-bot/internal/infra/jsonl"
	"autolead-telegram-bot/internal/infra/macrocrm"
	"autolead-telegram-bot/internal/infra/memory"
	sqliteRepo "autolead-telegram-bot/internal/infra/sqlite"
	"autolead-telegram-bot/internal/pkg/logger"
	"autolead-telegram-bot/internal/usecase"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("bot", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "path to .env file")
	healthAddr := flags.String("health-addr", "", "health endpoint address (overrides HEALTH_ADDR)")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *healthAddr != "" {
		cfg.App.HealthAddr = *healthAddr
	}

	log := logger.New(cfg.Log.Level, cfg.Log.File)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.App.HealthAddr != "" {
		srv := &http.Server{Addr: cfg.App.HealthAddr, Handler: httpapi.NewRouter(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("health server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	bot.Debug = false
	log.Info("authorized", "username", bot.Self.UserName)

	leads, err := openLeadStore(cfg, log)
	if err != nil {
		return err
	}
	if c, ok := leads.(io.Closer); ok {
		defer c.Close()
	}

	var funnelRepo usecase.FunnelRepository = memory.NewFunnelRepo()
	if cfg.Funnel.SQLiteDSN != "" {
		repo, err := sqliteRepo.NewFunnelRepo(cfg.Funnel.SQLiteDSN)
		if err != nil {
			return fmt.Errorf("funnel sqlite init: %w", err)
		}
		defer repo.Close()
		funnelRepo = repo
	}
	funnelUC := usecase.NewFunnelUsecase(funnelRepo)

	sender := telegramAdapter.NewSender(bot)
	opts := []usecase.Option{usecase.WithLogger(log)}
	if cfg.AdminChatID != 0 {
		opts = append(opts, usecase.WithOperator(cfg.AdminChatID, sender))
	} else {
		log.Info("ADMIN_CHAT_ID not set: forwarding and /leads disabled")
	}
	dialog := usecase.NewDialog(usecase.DefaultCatalog, memory.NewSessionRepo(cfg.App.SessionTTL), leads, opts...)

	handler := telegramAdapter.NewHandler(bot, dialog, funnelUC, log)
	handler.SetWorkers(cfg.App.Workers)
	if cfg.MacroCRM.Enabled() {
		handler.SetLeadDelivery(macrocrm.NewClient(cfg.MacroCRM.Domain, cfg.MacroCRM.AppSecret,
			macrocrm.WithBaseURL(cfg.MacroCRM.BaseURL),
			macrocrm.WithAction(cfg.MacroCRM.Action),
		))
	}

	log.Info("starting polling", "workers", cfg.App.Workers, "leads_backend", cfg.Leads.Backend)
	if err := handler.Run(ctx); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

func openLeadStore(cfg *config.Config, log *slog.Logger) (domain.LeadRepository, error) {
	switch cfg.Leads.Backend {
	case config.BackendSQLite:
		repo, err := sqliteRepo.NewLeadRepo(cfg.Leads.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("leads sqlite init: %w", err)
		}
		return repo, nil
	default:
		return jsonl.NewLeadStore(cfg.Leads.File, log), nil
	}
}
