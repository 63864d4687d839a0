/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "net/http"
    "os"
    "os/signal"
    "strings"
    "syscall"
    "time"

    "github.com/example/okr-pulse/internal/adapters/jira"
    "github.com/example/okr-pulse/internal/adapters/openai"
    "github.com/example/okr-pulse/internal/adapters/telegram"
    "github.com/example/okr-pulse/internal/config"
    httpx "github.com/example/okr-pulse/internal/http"
    "github.com/example/okr-pulse/internal/jobs"
    "github.com/example/okr-pulse/internal/logger"
    "github.com/example/okr-pulse/internal/okr"
    "github.com/example/okr-pulse/internal/repo"
    "github.com/example/okr-pulse/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    log.Info().Str("env", cfg.AppEnv).Msg("okr-pulse starting")

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    db := repo.MustOpen(ctx, cfg, log)
    cancel()
    defer db.Close()

    r := repo.NewRepository(db, log)
    if err := r.Migrate(context.Background()); err != nil {
        log.Fatal().Err(err).Msg("migrate failed")
    }

    source := jira.NewClient(cfg, log)
    matcher := openai.NewMatcher(cfg, log)
    tg := telegram.NewClient(cfg.TelegramToken, log)
    catalog := okr.NewParser(cfg.OKRDir, log)

    svc := services.New(cfg, log, r, source, matcher, tg, catalog)

    router := httpx.NewRouter(cfg, log, svc)
    srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

    // register the webhook only when we are reachable over https
    if cfg.TelegramToken != "" && strings.HasPrefix(cfg.PublicBaseURL, "https://") {
        go func() {
            ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
            defer cancel()
            url := strings.TrimRight(cfg.PublicBaseURL, "/") + "/telegram/webhook/" + cfg.TelegramWebhookSecret
            if err := tg.SetWebhook(ctx, url); err != nil {
                log.Error().Err(err).Msg("telegram setWebhook failed")
            } else {
                log.Info().Msg("telegram webhook registered")
            }
        }()
    }

    sched, err := jobs.NewScheduler(cfg, log, r, svc)
    if err != nil { log.Fatal().Err(err).Msg("cron setup failed") }
    sched.Start()

    go func() {
        log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server failed")
        }
    }()

    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit
    log.Info().Msg("shutdown signal received")

    <-sched.Stop().Done()

    shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer shutdownCancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Error().Err(err).Msg("http shutdown failed")
    }
    log.Info().Msg("okr-pulse stopped")
}
