/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "github.com/example/okr-pulse/internal/domain"
)

type UnalignedDetail struct {
    IssueKey  string
    Summary   string
    Status    string
    Type      string
    Reasoning string
}

// Renderer turns computed metrics into the weekly markdown report. It consumes
// plain data only and never reaches back into the store.
type Renderer struct {
    okrs      domain.OKRSet
    weekStart time.Time
    weekEnd   time.Time
}

func NewRenderer(okrs domain.OKRSet, weekStart, weekEnd time.Time) *Renderer {
    return &Renderer{okrs: okrs, weekStart: weekStart, weekEnd: weekEnd}
}

func (r *Renderer) Render(coverage map[string]domain.KRCoverage, summary domain.SummaryStats,
    under []domain.UnderprioritizedKR, unaligned []UnalignedDetail, top map[string][]domain.TopIssue) string {
    sections := []string{
        r.header(),
        r.summarySection(summary),
        r.coverageSection(coverage, top),
        r.underprioritizedSection(under),
        r.unalignedSection(unaligned),
        r.footer(),
    }
    return strings.Join(sections, "\n\n")
}

// Write saves the report under dir as okr_analysis_YYYY-MM-DD.md.
func (r *Renderer) Write(dir, report string) (string, error) {
    if err := os.MkdirAll(dir, 0o755); err != nil { return "", err }
    path := filepath.Join(dir, fmt.Sprintf("okr_analysis_%s.md", r.weekStart.Format("2006-01-02")))
    if err := os.WriteFile(path, []byte(report), 0o644); err != nil { return "", err }
    return path, nil
}

func (r *Renderer) header() string {
    return fmt.Sprintf(`# Weekly OKR Alignment Report

**Period**: %s to %s
**Generated**: %s
**OKR Period**: %s`,
        r.weekStart.Format("2006-01-02"), r.weekEnd.Format("2006-01-02"),
        time.Now().Format("2006-01-02 15:04:05"), r.okrs.Period)
}

func (r *Renderer) summarySection(s domain.SummaryStats) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "## Executive Summary\n\n")
    fmt.Fprintf(b, "- **Total Issues Analyzed**: %d\n", s.TotalIssues)
    fmt.Fprintf(b, "- **Aligned with OKRs**: %d (%.1f%%)\n", s.AlignedIssues, s.AlignmentPercentage)
    fmt.Fprintf(b, "- **Unaligned Issues**: %d\n", s.UnalignedIssues)
    fmt.Fprintf(b, "- **Total OKR Mappings**: %d (issues can match multiple OKRs)\n\n", s.TotalMappings)
    fmt.Fprintf(b, "### Issue Breakdown\n\n")
    fmt.Fprintf(b, "- **Created**: %d issues\n", s.CreatedIssues)
    fmt.Fprintf(b, "- **Updated**: %d issues\n", s.UpdatedIssues)
    fmt.Fprintf(b, "- **Completed**: %d issues\n", s.CompletedIssues)
    if s.HasMostActive {
        fmt.Fprintf(b, "\n### Most Active Objective\n\nObjective %d: %s", s.MostActiveObjective, r.objectiveTitle(s.MostActiveObjective))
    }
    return b.String()
}

func (r *Renderer) objectiveTitle(num int) string {
    for _, obj := range r.okrs.Objectives {
        if obj.Number == num { return obj.Title }
    }
    return "Unknown"
}

func (r *Renderer) coverageSection(coverage map[string]domain.KRCoverage, top map[string][]domain.TopIssue) string {
    lines := []string{"## OKR Coverage Analysis"}

    type entry struct {
        okrID string
        data  domain.KRCoverage
    }
    byObjective := map[int][]entry{}
    for okrID, data := range coverage {
        byObjective[data.ObjectiveNumber] = append(byObjective[data.ObjectiveNumber], entry{okrID, data})
    }
    objNums := make([]int, 0, len(byObjective))
    for num := range byObjective { objNums = append(objNums, num) }
    sort.Ints(objNums)

    for _, num := range objNums {
        entries := byObjective[num]
        sort.Slice(entries, func(i, j int) bool { return entries[i].data.KeyResultNumber < entries[j].data.KeyResultNumber })
        total := 0
        for _, e := range entries { total += e.data.TotalIssues }
        lines = append(lines, fmt.Sprintf("\n### Objective %d: %s", num, entries[0].data.ObjectiveTitle))
        lines = append(lines, fmt.Sprintf("\n**Total Activity**: %d issue mappings", total))
        for _, e := range entries {
            if e.data.TotalIssues == 0 { continue }
            lines = append(lines, fmt.Sprintf("\n#### KR %d.%d: %s", num, e.data.KeyResultNumber, e.data.KeyResultText))
            lines = append(lines, fmt.Sprintf("\n- **Issues**: %d", e.data.TotalIssues))
            lines = append(lines, fmt.Sprintf("- **Average Confidence**: %.2f", e.data.AvgConfidence))
            lines = append(lines, fmt.Sprintf("- **Breakdown**: %d created, %d updated, %d completed", e.data.Created, e.data.Updated, e.data.Completed))
            if picks := top[e.okrID]; len(picks) > 0 {
                lines = append(lines, "\n**Top Issues**:")
                for _, p := range picks {
                    lines = append(lines, fmt.Sprintf("- **%s** (%s, conf: %.2f): %s", p.IssueKey, p.Category, p.Confidence, p.Summary))
                    if p.Reasoning != "" {
                        lines = append(lines, fmt.Sprintf("  - *%s*", clip(p.Reasoning, 100)))
                    }
                }
            }
        }
    }
    return strings.Join(lines, "\n")
}

func (r *Renderer) underprioritizedSection(under []domain.UnderprioritizedKR) string {
    lines := []string{"## Underprioritized OKRs"}
    if len(under) == 0 {
        lines = append(lines, "\n*All OKRs have active work assigned!*")
        return strings.Join(lines, "\n")
    }
    lines = append(lines, fmt.Sprintf("\n**%d OKRs** with minimal or no activity:", len(under)))
    show := under
    if len(show) > 10 { show = show[:10] }
    for _, kr := range show {
        lines = append(lines, fmt.Sprintf("\n### Objective %d, KR %d", kr.ObjectiveNumber, kr.KeyResultNumber))
        lines = append(lines, fmt.Sprintf("**%s**", kr.KeyResultText))
        lines = append(lines, fmt.Sprintf("- Issues: %d", kr.IssueCount))
    }
    return strings.Join(lines, "\n")
}

func (r *Renderer) unalignedSection(unaligned []UnalignedDetail) string {
    lines := []string{"## Unaligned Work"}
    if len(unaligned) == 0 {
        lines = append(lines, "\n*All issues are aligned with OKRs!*")
        return strings.Join(lines, "\n")
    }
    lines = append(lines, fmt.Sprintf("\n**%d issues** don't contribute to current OKRs:", len(unaligned)))
    lines = append(lines, "\n### Issues Without OKR Alignment\n")
    show := unaligned
    if len(show) > 20 { show = show[:20] }
    for _, u := range show {
        lines = append(lines, fmt.Sprintf("- **%s**: %s", u.IssueKey, u.Summary))
        lines = append(lines, fmt.Sprintf("  - Status: %s, Type: %s", u.Status, u.Type))
        if u.Reasoning != "" { lines = append(lines, fmt.Sprintf("  - *%s*", u.Reasoning)) }
    }
    return strings.Join(lines, "\n")
}

func (r *Renderer) footer() string {
    return "---\n\n*Report generated by OKR Pulse*"
}

func clip(s string, max int) string {
    runes := []rune(s)
    if len(runes) <= max { return s }
    return string(runes[:max]) + "..."
}
