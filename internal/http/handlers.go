/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"
    "path/filepath"
    "sort"
    "strconv"
    "strings"
    "time"

    "github.com/gin-gonic/gin"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/services"
    "github.com/rs/zerolog"
)

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc *services.Service
}

func (h *Handlers) Health(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

// TriggerRun queues a full analysis run in the background and returns
// immediately. The pipeline can take minutes against a slow tracker.
func (h *Handlers) TriggerRun(c *gin.Context) {
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
        defer cancel()
        if err := h.svc.RunWeeklyAnalysis(ctx); err != nil {
            h.log.Error().Err(err).Msg("manual analysis run failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) LastRun(c *gin.Context) {
    run, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if run == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
        return
    }
    c.JSON(http.StatusOK, run)
}

func (h *Handlers) Snapshots(c *gin.Context) {
    limit, _ := strconv.Atoi(c.DefaultQuery("limit", "4"))
    snaps, err := h.svc.GetSnapshots(c.Request.Context(), limit)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"snapshots": snaps, "count": len(snaps)})
}

// Report serves the most recently generated weekly report file.
func (h *Handlers) Report(c *gin.Context) {
    files, err := filepath.Glob(filepath.Join(h.cfg.ReportDir, "okr_analysis_*.md"))
    if err != nil || len(files) == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "no reports generated yet"})
        return
    }
    sort.Strings(files)
    // date-stamped names sort chronologically
    latest := files[len(files)-1]
    c.Header("Content-Type", "text/markdown; charset=utf-8")
    c.File(latest)
}

func (h *Handlers) Trends(c *gin.Context) {
    okrID := c.Query("okr")
    if okrID == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "okr query parameter required"})
        return
    }
    weeks, _ := strconv.Atoi(c.DefaultQuery("weeks", "0"))
    points, err := h.svc.GetTrends(c.Request.Context(), okrID, weeks)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"okr": okrID, "trends": points})
}

type tgUpdate struct {
    Message struct {
        Text string `json:"text"`
        Chat struct {
            ID int64 `json:"id"`
        } `json:"chat"`
    } `json:"message"`
}

func (h *Handlers) TelegramWebhook(c *gin.Context) {
    headerSecret := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
    pathSecret := c.Param("secret")
    // Accept either header secret (preferred) or path secret
    if headerSecret != h.cfg.TelegramWebhookSecret && pathSecret != h.cfg.TelegramWebhookSecret {
        c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
        return
    }
    var upd tgUpdate
    if err := c.ShouldBindJSON(&upd); err != nil {
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    chatID := upd.Message.Chat.ID
    // accept only configured chats if provided
    allowed := len(h.cfg.TelegramChatIDs) == 0
    for _, id := range h.cfg.TelegramChatIDs {
        if id == chatID { allowed = true; break }
    }
    if !allowed {
        c.JSON(http.StatusOK, gin.H{"ok": true})
        return
    }
    cmd := strings.ToLower(strings.TrimSpace(upd.Message.Text))
    if i := strings.Index(cmd, "@"); i > 0 { cmd = cmd[:i] }
    switch cmd {
    case "/run":
        go func() {
            ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
            defer cancel()
            if err := h.svc.RunWeeklyAnalysis(ctx); err != nil {
                h.log.Error().Err(err).Int64("chat", chatID).Msg("webhook-triggered run failed")
            }
        }()
    case "/help", "/start":
        if err := h.svc.SendHelp(c.Request.Context(), chatID); err != nil {
            h.log.Error().Err(err).Int64("chat", chatID).Msg("send help failed")
        }
    }
    c.JSON(http.StatusOK, gin.H{"ok": true})
}
