/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "regexp"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/domain"
    "github.com/example/okr-pulse/internal/repo"
    "github.com/rs/zerolog"
)

type IssueSource interface {
    FetchAllIssues(ctx context.Context) ([]domain.ActivityIssue, error)
}

type Matcher interface {
    MatchIssue(ctx context.Context, issue domain.ActivityIssue, okrs domain.OKRSet) (domain.MatchResult, error)
}

type Notifier interface {
    SendMessage(ctx context.Context, chatID int64, text string) error
    SendMessagePlain(ctx context.Context, chatID int64, text string) error
}

type Catalog interface {
    Load(autoDetect bool, defaultFile string) (domain.OKRSet, error)
}

type Service struct {
    cfg     config.Config
    log     zerolog.Logger
    repo    *repo.Repository
    source  IssueSource
    matcher Matcher
    tg      Notifier
    catalog Catalog
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, source IssueSource, matcher Matcher, tg Notifier, catalog Catalog) *Service {
    return &Service{cfg: cfg, log: log, repo: r, source: source, matcher: matcher, tg: tg, catalog: catalog}
}

// RunWeeklyAnalysis is the full pipeline: catalog -> tracker fetch -> matching
// -> persistence -> snapshot -> metrics -> report + notification. A run either
// completes and writes a snapshot or fails without one.
func (s *Service) RunWeeklyAnalysis(ctx context.Context) error {
    s.log.Info().Msg("WeeklyAnalysis: start")
    weekStart := analysisWindowStart(time.Now(), s.cfg.AnalysisDays)
    weekEnd := truncateDay(time.Now())

    okrSet, err := s.catalog.Load(s.cfg.OKRAutoDetect, s.cfg.OKRDefaultFile)
    if err != nil { return fmt.Errorf("load okr catalog: %w", err) }

    runID, err := s.repo.StartJobRun(ctx, okrSet.Period)
    if err != nil { s.log.Error().Err(err).Msg("start job run failed") }
    var scanned, aligned, unalignedCount int
    var runErr error
    defer func() {
        if runID != 0 {
            errStr := ""
            if runErr != nil { errStr = runErr.Error() }
            _ = s.repo.FinishJobRun(ctx, runID, scanned, aligned, unalignedCount, runErr == nil, errStr)
        }
    }()

    if runErr = s.storeCatalog(ctx, okrSet); runErr != nil { return runErr }

    issues, err := s.source.FetchAllIssues(ctx)
    if err != nil { runErr = fmt.Errorf("fetch issues: %w", err); return runErr }
    scanned = len(issues)
    s.log.Info().Int("issues", scanned).Msg("WeeklyAnalysis: fetched tracker issues")
    if scanned == 0 {
        s.log.Info().Msg("WeeklyAnalysis: no issues in window, nothing to do")
        return nil
    }

    for _, issue := range issues {
        if runErr = s.repo.UpsertIssue(ctx, issue.Issue); runErr != nil { return runErr }
    }

    results := s.matchAll(ctx, issues, okrSet)

    var mappings []domain.Mapping
    var unaligned []domain.UnalignedIssue
    for _, issue := range issues {
        result, ok := results[issue.Key]
        if !ok || result.NoMatch {
            reasoning := "No matching OKRs found"
            if ok && result.NoMatchReasoning != "" { reasoning = result.NoMatchReasoning }
            unaligned = append(unaligned, domain.UnalignedIssue{IssueKey: issue.Key, WeekStart: weekStart, Reasoning: reasoning})
            continue
        }
        matched := false
        for _, m := range result.Matches {
            if m.Confidence < s.cfg.ConfidenceThreshold { continue }
            okrID, err := parseOKRID(m.ObjectiveID, m.KeyResultID)
            if err != nil {
                s.log.Warn().Str("issue", issue.Key).Str("obj", m.ObjectiveID).Str("kr", m.KeyResultID).Msg("invalid OKR id in match, skipping")
                continue
            }
            mappings = append(mappings, domain.Mapping{
                IssueKey:   issue.Key,
                OKRID:      okrID,
                Confidence: m.Confidence,
                Reasoning:  m.Reasoning,
                Category:   issue.Category,
                WeekStart:  weekStart,
            })
            matched = true
        }
        if matched { aligned++ } else {
            unaligned = append(unaligned, domain.UnalignedIssue{IssueKey: issue.Key, WeekStart: weekStart, Reasoning: "No match above confidence threshold"})
        }
    }
    unalignedCount = len(unaligned)

    if runErr = s.repo.UpsertMappings(ctx, mappings); runErr != nil { return runErr }
    if runErr = s.repo.UpsertUnalignedIssues(ctx, unaligned); runErr != nil { return runErr }

    if runErr = s.repo.InsertSnapshot(ctx, domain.WeeklySnapshot{
        WeekStart:       weekStart,
        WeekEnd:         weekEnd,
        TotalIssues:     scanned,
        AlignedIssues:   aligned,
        UnalignedIssues: unalignedCount,
        Period:          okrSet.Period,
    }); runErr != nil { return runErr }

    calc := NewCalculator(s.repo, okrSet, weekStart, s.log)
    coverage, err := calc.Coverage(ctx)
    if err != nil { runErr = err; return runErr }
    summary, err := calc.Summary(ctx, coverage)
    if err != nil { runErr = err; return runErr }
    under := calc.Underprioritized(coverage, s.cfg.ActivityThreshold)
    top, err := calc.TopIssues(ctx, coverage, s.cfg.TopIssuesLimit)
    if err != nil { runErr = err; return runErr }
    unalignedDetails, err := s.unalignedDetails(ctx, weekStart)
    if err != nil { runErr = err; return runErr }

    renderer := NewRenderer(okrSet, weekStart, weekEnd)
    report := renderer.Render(coverage, summary, under, unalignedDetails, top)
    path, err := renderer.Write(s.cfg.ReportDir, report)
    if err != nil { runErr = err; return runErr }
    s.log.Info().Str("report", path).Msg("WeeklyAnalysis: report written")

    digest := s.renderDigest(okrSet, summary, under)
    for _, chat := range s.cfg.TelegramChatIDs {
        if err := s.tg.SendMessage(ctx, chat, digest); err != nil {
            s.log.Error().Err(err).Int64("chat", chat).Msg("telegram send failed")
        }
    }
    s.log.Info().Time("weekStart", weekStart).Int("aligned", aligned).Int("unaligned", unalignedCount).Msg("WeeklyAnalysis: done")
    return nil
}

func (s *Service) storeCatalog(ctx context.Context, okrSet domain.OKRSet) error {
    var okrs []domain.OKR
    for _, obj := range okrSet.Objectives {
        for _, kr := range obj.KeyResults {
            n := kr.Number
            okrs = append(okrs, domain.OKR{
                ID:              obj.KeyResultID(kr.Number),
                ObjectiveNumber: obj.Number,
                ObjectiveTitle:  obj.Title,
                KeyResultNumber: &n,
                KeyResultText:   kr.Text,
                Period:          okrSet.Period,
            })
        }
    }
    return s.repo.UpsertOKRs(ctx, okrs)
}

// matchAll fans issues out to a bounded worker pool. A failed match degrades
// to an unaligned record rather than failing the run.
func (s *Service) matchAll(ctx context.Context, issues []domain.ActivityIssue, okrSet domain.OKRSet) map[string]domain.MatchResult {
    workerCount := s.cfg.WorkersMatch
    if workerCount <= 0 { workerCount = 3 }
    type result struct {
        key string
        res domain.MatchResult
    }
    jobs := make(chan domain.ActivityIssue)
    results := make(chan result)
    var wg sync.WaitGroup
    for w := 0; w < workerCount; w++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for issue := range jobs {
                res, err := s.matcher.MatchIssue(ctx, issue, okrSet)
                if err != nil {
                    s.log.Error().Err(err).Str("issue", issue.Key).Msg("match failed")
                    res = domain.MatchResult{NoMatch: true, NoMatchReasoning: err.Error()}
                }
                results <- result{key: issue.Key, res: res}
            }
        }()
    }
    go func() {
        for _, issue := range issues { jobs <- issue }
        close(jobs)
        wg.Wait()
        close(results)
    }()
    out := make(map[string]domain.MatchResult, len(issues))
    for r := range results { out[r.key] = r.res }
    return out
}

func (s *Service) unalignedDetails(ctx context.Context, weekStart time.Time) ([]UnalignedDetail, error) {
    entries, err := s.repo.UnalignedForWeek(ctx, weekStart)
    if err != nil { return nil, err }
    out := make([]UnalignedDetail, 0, len(entries))
    for _, u := range entries {
        issue, err := s.repo.GetIssue(ctx, u.IssueKey)
        if err != nil { return nil, err }
        if issue == nil {
            s.log.Warn().Str("issue", u.IssueKey).Msg("unaligned entry references missing issue, skipping")
            continue
        }
        out = append(out, UnalignedDetail{
            IssueKey:  u.IssueKey,
            Summary:   issue.Summary,
            Status:    issue.Status,
            Type:      issue.Type,
            Reasoning: u.Reasoning,
        })
    }
    return out, nil
}

func (s *Service) renderDigest(okrSet domain.OKRSet, summary domain.SummaryStats, under []domain.UnderprioritizedKR) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "*OKR Pulse*\n")
    fmt.Fprintf(b, "Weekly alignment summary (%s)\n\n", okrSet.Period)
    fmt.Fprintf(b, "*Issues analyzed:* %d\n", summary.TotalIssues)
    fmt.Fprintf(b, "*Aligned:* %d (%.1f%%)\n", summary.AlignedIssues, summary.AlignmentPercentage)
    fmt.Fprintf(b, "*Unaligned:* %d\n", summary.UnalignedIssues)
    fmt.Fprintf(b, "*Total mappings:* %d\n", summary.TotalMappings)
    if summary.HasMostActive {
        fmt.Fprintf(b, "*Most active:* Objective %d\n", summary.MostActiveObjective)
    }
    if len(under) > 0 {
        fmt.Fprintf(b, "\n*Underprioritized key results:* %d\n", len(under))
        limit := under
        if len(limit) > 5 { limit = limit[:5] }
        for _, kr := range limit {
            fmt.Fprintf(b, "- Obj %d KR %d (%d issues)\n", kr.ObjectiveNumber, kr.KeyResultNumber, kr.IssueCount)
        }
    }
    return b.String()
}

func (s *Service) GetLastRun(ctx context.Context) (*repo.LastRun, error) {
    return s.repo.GetLastRun(ctx)
}

func (s *Service) GetSnapshots(ctx context.Context, limit int) ([]domain.WeeklySnapshot, error) {
    return s.repo.Snapshots(ctx, limit)
}

// GetTrends returns per-week mapping counts for one key result, oldest first.
func (s *Service) GetTrends(ctx context.Context, okrID string, weeks int) ([]domain.TrendPoint, error) {
    if weeks <= 0 { weeks = s.cfg.TrendWeeks }
    return s.repo.CoverageTrends(ctx, okrID, weeks)
}

// SendHelp replies with bot capabilities and commands.
func (s *Service) SendHelp(ctx context.Context, chatID int64) error {
    if chatID == 0 { return nil }
    help := "OKR Pulse Bot\n" +
        "Weekly OKR alignment analysis of tracker activity.\n\n" +
        "Commands:\n" +
        "- /run — trigger an analysis for the current window\n" +
        "- /help — this message"
    return s.tg.SendMessagePlain(ctx, chatID, help)
}

var okrPartRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// parseOKRID normalizes matcher-produced identifier pairs into the composite
// obj{N}_kr{M} id. The matcher is loose about formats: "obj1"/"kr2", bare
// numbers, or floats like "1.2" all occur in practice.
func parseOKRID(objectiveID, keyResultID string) (string, error) {
    objNum, err := parseOKRPart(objectiveID)
    if err != nil { return "", err }
    krNum, err := parseOKRPart(keyResultID)
    if err != nil { return "", err }
    return fmt.Sprintf("obj%d_kr%d", objNum, krNum), nil
}

func parseOKRPart(id string) (int, error) {
    m := okrPartRe.FindString(strings.TrimSpace(id))
    if m == "" { return 0, fmt.Errorf("no numeric part in %q", id) }
    f, err := strconv.ParseFloat(m, 64)
    if err != nil { return 0, err }
    n := int(f)
    if n <= 0 { return 0, fmt.Errorf("non-positive id %q", id) }
    return n, nil
}

// analysisWindowStart is today minus the analysis window, truncated to a day.
func analysisWindowStart(now time.Time, days int) time.Time {
    if days <= 0 { days = 7 }
    return truncateDay(now.AddDate(0, 0, -days))
}

func truncateDay(t time.Time) time.Time {
    return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
