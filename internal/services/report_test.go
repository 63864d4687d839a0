package services

import (
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/example/okr-pulse/internal/domain"
)

func testRenderer() *Renderer {
    weekStart := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
    weekEnd := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
    return NewRenderer(testOKRSet(), weekStart, weekEnd)
}

func TestRenderFullReport(t *testing.T) {
    coverage := map[string]domain.KRCoverage{
        "obj1_kr1": {
            ObjectiveNumber: 1, ObjectiveTitle: "Improve reliability",
            KeyResultNumber: 1, KeyResultText: "Reduce error rate to 0.1%",
            TotalIssues: 2, Created: 1, Completed: 1, AvgConfidence: 0.85,
            Mappings: []domain.Mapping{
                mapping("PROJ-1", "obj1_kr1", 0.9, domain.CategoryCreated),
                mapping("PROJ-2", "obj1_kr1", 0.8, domain.CategoryCompleted),
            },
        },
        "obj1_kr2": {ObjectiveNumber: 1, ObjectiveTitle: "Improve reliability", KeyResultNumber: 2, KeyResultText: "P99 latency under 300ms"},
        "obj2_kr1": {ObjectiveNumber: 2, ObjectiveTitle: "Grow adoption", KeyResultNumber: 1, KeyResultText: "Onboard 5 new teams"},
    }
    summary := domain.SummaryStats{
        TotalIssues: 3, AlignedIssues: 2, UnalignedIssues: 1, AlignmentPercentage: 66.7,
        CreatedIssues: 1, CompletedIssues: 1, TotalMappings: 2,
        MostActiveObjective: 1, HasMostActive: true,
    }
    under := []domain.UnderprioritizedKR{
        {OKRID: "obj1_kr2", ObjectiveNumber: 1, KeyResultNumber: 2, KeyResultText: "P99 latency under 300ms", IssueCount: 0},
    }
    unaligned := []UnalignedDetail{
        {IssueKey: "PROJ-9", Summary: "Refactor billing", Status: "Open", Type: "Task", Reasoning: "no related key result"},
    }
    top := map[string][]domain.TopIssue{
        "obj1_kr1": {{IssueKey: "PROJ-1", Summary: "Fix flaky retries", Confidence: 0.9, Category: domain.CategoryCreated, Reasoning: "directly reduces errors"}},
    }

    report := testRenderer().Render(coverage, summary, under, unaligned, top)

    assert.Contains(t, report, "# Weekly OKR Alignment Report")
    assert.Contains(t, report, "**Period**: 2025-08-25 to 2025-09-01")
    assert.Contains(t, report, "**OKR Period**: 2025-Q3")
    assert.Contains(t, report, "**Total Issues Analyzed**: 3")
    assert.Contains(t, report, "**Aligned with OKRs**: 2 (66.7%)")
    assert.Contains(t, report, "Most Active Objective")
    assert.Contains(t, report, "Objective 1: Improve reliability")
    assert.Contains(t, report, "#### KR 1.1: Reduce error rate to 0.1%")
    assert.Contains(t, report, "**PROJ-1** (created, conf: 0.90): Fix flaky retries")
    assert.Contains(t, report, "## Underprioritized OKRs")
    assert.Contains(t, report, "### Objective 1, KR 2")
    assert.Contains(t, report, "**PROJ-9**: Refactor billing")
    // zero-activity key results get no detail block in the coverage section
    assert.NotContains(t, report, "#### KR 1.2")
    assert.NotContains(t, report, "#### KR 2.1")
}

func TestRenderEmptyStateMessages(t *testing.T) {
    report := testRenderer().Render(map[string]domain.KRCoverage{}, domain.SummaryStats{}, nil, nil, nil)

    assert.Contains(t, report, "*All OKRs have active work assigned!*")
    assert.Contains(t, report, "*All issues are aligned with OKRs!*")
    assert.NotContains(t, report, "Most Active Objective")
}

func TestWriteReportFile(t *testing.T) {
    dir := filepath.Join(t.TempDir(), "reports")
    r := testRenderer()

    path, err := r.Write(dir, "content")
    require.NoError(t, err)
    assert.Equal(t, filepath.Join(dir, "okr_analysis_2025-08-25.md"), path)

    data, err := os.ReadFile(path)
    require.NoError(t, err)
    assert.Equal(t, "content", string(data))
}

func TestClip(t *testing.T) {
    assert.Equal(t, "short", clip("short", 10))
    long := strings.Repeat("a", 120)
    got := clip(long, 100)
    assert.Len(t, got, 103)
    assert.True(t, strings.HasSuffix(got, "..."))
}
