/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jobs

import (
    "context"
    "time"

    "github.com/robfig/cron/v3"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/repo"
    "github.com/example/okr-pulse/internal/services"
    "github.com/rs/zerolog"
)

// advisory lock key for the weekly analysis job, shared across replicas
const weeklyAnalysisLockKey int64 = 48102993

type Scheduler struct {
    c   *cron.Cron
    log zerolog.Logger
}

func NewScheduler(cfg config.Config, log zerolog.Logger, r *repo.Repository, svc *services.Service) (*Scheduler, error) {
    parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
    c := cron.New(cron.WithLocation(time.Local), cron.WithParser(parser))

    _, err := c.AddFunc(cfg.AnalysisCron, func() {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
        defer cancel()

        ok, err := r.TryAdvisoryLock(ctx, weeklyAnalysisLockKey)
        if err != nil {
            log.Error().Err(err).Msg("cron: advisory lock failed")
            return
        }
        if !ok {
            log.Info().Msg("cron: another instance holds the analysis lock, skipping")
            return
        }
        defer func() {
            if err := r.AdvisoryUnlock(ctx, weeklyAnalysisLockKey); err != nil {
                log.Error().Err(err).Msg("cron: advisory unlock failed")
            }
        }()

        if err := svc.RunWeeklyAnalysis(ctx); err != nil {
            log.Error().Err(err).Msg("cron: weekly analysis failed")
        }
    })
    if err != nil { return nil, err }
    return &Scheduler{c: c, log: log}, nil
}

func (s *Scheduler) Start() {
    s.c.Start()
    s.log.Info().Msg("cron scheduler started")
}

func (s *Scheduler) Stop() context.Context {
    s.log.Info().Msg("cron scheduler stopping")
    return s.c.Stop()
}
