/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/gin-gonic/gin"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/services"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc *services.Service) *gin.Engine {
    if cfg.AppEnv == "prod" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())

    h := &Handlers{cfg: cfg, log: log, svc: svc}

    r.GET("/healthz", h.Health)

    admin := r.Group("/admin")
    {
        admin.POST("/run", h.TriggerRun)
        admin.GET("/last-run", h.LastRun)
        admin.GET("/snapshots", h.Snapshots)
        admin.GET("/trends", h.Trends)
        admin.GET("/report", h.Report)
    }

    r.POST("/telegram/webhook/:secret", h.TelegramWebhook)
    r.POST("/telegram/webhook", h.TelegramWebhook)

    return r
}
