/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "sort"
    "time"

    "github.com/example/okr-pulse/internal/domain"
    "github.com/rs/zerolog"
)

// Store is the read-only slice of the repository the metrics engine needs.
type Store interface {
    MappingsForWeek(ctx context.Context, weekStart time.Time) ([]domain.Mapping, error)
    MappingsForOKR(ctx context.Context, okrID string, weekStart time.Time) ([]domain.Mapping, error)
    UnalignedForWeek(ctx context.Context, weekStart time.Time) ([]domain.UnalignedIssue, error)
    GetIssue(ctx context.Context, key string) (*domain.Issue, error)
}

// Calculator derives coverage, prioritization, and summary statistics for one
// analysis week. It only reads from the store and never mutates stored rows.
type Calculator struct {
    store     Store
    okrs      domain.OKRSet
    weekStart time.Time
    log       zerolog.Logger
}

func NewCalculator(store Store, okrs domain.OKRSet, weekStart time.Time, log zerolog.Logger) *Calculator {
    return &Calculator{store: store, okrs: okrs, weekStart: weekStart, log: log}
}

// Coverage returns one entry per (objective, key result) pair in the catalog,
// keyed by composite id. Key results with no mappings still get an entry with
// all-zero counts so prioritization can see them.
func (c *Calculator) Coverage(ctx context.Context) (map[string]domain.KRCoverage, error) {
    coverage := make(map[string]domain.KRCoverage)
    for _, obj := range c.okrs.Objectives {
        for _, kr := range obj.KeyResults {
            okrID := obj.KeyResultID(kr.Number)
            mappings, err := c.store.MappingsForOKR(ctx, okrID, c.weekStart)
            if err != nil { return nil, err }
            byCategory := map[string]int{}
            sum := 0.0
            for _, m := range mappings {
                byCategory[m.Category]++
                sum += m.Confidence
            }
            avg := 0.0
            if len(mappings) > 0 { avg = sum / float64(len(mappings)) }
            coverage[okrID] = domain.KRCoverage{
                ObjectiveNumber: obj.Number,
                ObjectiveTitle:  obj.Title,
                KeyResultNumber: kr.Number,
                KeyResultText:   kr.Text,
                TotalIssues:     len(mappings),
                Created:         byCategory[domain.CategoryCreated],
                Updated:         byCategory[domain.CategoryUpdated],
                Completed:       byCategory[domain.CategoryCompleted],
                AvgConfidence:   avg,
                Mappings:        mappings,
            }
        }
    }
    return coverage, nil
}

// Underprioritized returns key results whose mapping count is strictly below
// threshold, ascending by count. Ties break by objective then key result
// number to keep the output deterministic.
func (c *Calculator) Underprioritized(coverage map[string]domain.KRCoverage, threshold int) []domain.UnderprioritizedKR {
    var out []domain.UnderprioritizedKR
    for okrID, data := range coverage {
        if data.TotalIssues >= threshold { continue }
        out = append(out, domain.UnderprioritizedKR{
            OKRID:           okrID,
            ObjectiveNumber: data.ObjectiveNumber,
            ObjectiveTitle:  data.ObjectiveTitle,
            KeyResultNumber: data.KeyResultNumber,
            KeyResultText:   data.KeyResultText,
            IssueCount:      data.TotalIssues,
        })
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].IssueCount != out[j].IssueCount { return out[i].IssueCount < out[j].IssueCount }
        if out[i].ObjectiveNumber != out[j].ObjectiveNumber { return out[i].ObjectiveNumber < out[j].ObjectiveNumber }
        return out[i].KeyResultNumber < out[j].KeyResultNumber
    })
    return out
}

// Summary computes headline stats from one scan of the week's mapping table
// plus one unaligned query. Per-category counts are distinct issue keys over
// the full week, not sums of per-KR sub-counts, since an issue can map to
// several key results under the same category.
func (c *Calculator) Summary(ctx context.Context, coverage map[string]domain.KRCoverage) (domain.SummaryStats, error) {
    allMappings, err := c.store.MappingsForWeek(ctx, c.weekStart)
    if err != nil { return domain.SummaryStats{}, err }
    unaligned, err := c.store.UnalignedForWeek(ctx, c.weekStart)
    if err != nil { return domain.SummaryStats{}, err }

    distinct := map[string]struct{}{}
    byCategory := map[string]map[string]struct{}{
        domain.CategoryCreated:   {},
        domain.CategoryUpdated:   {},
        domain.CategoryCompleted: {},
    }
    for _, m := range allMappings {
        distinct[m.IssueKey] = struct{}{}
        if set, ok := byCategory[m.Category]; ok { set[m.IssueKey] = struct{}{} }
    }

    aligned := len(distinct)
    total := aligned + len(unaligned)
    pct := 0.0
    if total > 0 { pct = float64(aligned) / float64(total) * 100 }

    stats := domain.SummaryStats{
        TotalIssues:         total,
        AlignedIssues:       aligned,
        UnalignedIssues:     len(unaligned),
        AlignmentPercentage: pct,
        CreatedIssues:       len(byCategory[domain.CategoryCreated]),
        UpdatedIssues:       len(byCategory[domain.CategoryUpdated]),
        CompletedIssues:     len(byCategory[domain.CategoryCompleted]),
        TotalMappings:       len(allMappings),
    }

    objCounts := map[int]int{}
    for _, data := range coverage { objCounts[data.ObjectiveNumber] += data.TotalIssues }
    for num, count := range objCounts {
        if !stats.HasMostActive || count > objCounts[stats.MostActiveObjective] ||
            (count == objCounts[stats.MostActiveObjective] && num < stats.MostActiveObjective) {
            stats.MostActiveObjective = num
            stats.HasMostActive = true
        }
    }
    return stats, nil
}

// TopIssues ranks each key result's mappings by confidence descending (stable,
// so equal confidences keep insertion order), dedupes by issue key keeping the
// highest-confidence occurrence, and truncates to limit. Mappings whose issue
// is missing from the store are skipped with a warning.
func (c *Calculator) TopIssues(ctx context.Context, coverage map[string]domain.KRCoverage, limit int) (map[string][]domain.TopIssue, error) {
    if limit <= 0 { limit = 3 }
    top := make(map[string][]domain.TopIssue)
    for okrID, data := range coverage {
        if len(data.Mappings) == 0 { continue }
        ranked := make([]domain.Mapping, len(data.Mappings))
        copy(ranked, data.Mappings)
        sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Confidence > ranked[j].Confidence })

        seen := map[string]struct{}{}
        var picks []domain.TopIssue
        for _, m := range ranked {
            if _, ok := seen[m.IssueKey]; ok { continue }
            issue, err := c.store.GetIssue(ctx, m.IssueKey)
            if err != nil { return nil, err }
            if issue == nil {
                c.log.Warn().Str("issue", m.IssueKey).Str("okr", okrID).Msg("metrics: mapping references missing issue, skipping")
                continue
            }
            picks = append(picks, domain.TopIssue{
                IssueKey:   m.IssueKey,
                Summary:    issue.Summary,
                Confidence: m.Confidence,
                Category:   m.Category,
                Reasoning:  m.Reasoning,
            })
            seen[m.IssueKey] = struct{}{}
            if len(picks) >= limit { break }
        }
        if len(picks) > 0 { top[okrID] = picks }
    }
    return top, nil
}
