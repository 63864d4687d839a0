package services

import (
    "context"
    "testing"
    "time"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/example/okr-pulse/internal/domain"
)

type fakeStore struct {
    mappings  map[string][]domain.Mapping // by okr id
    unaligned []domain.UnalignedIssue
    issues    map[string]domain.Issue
}

func (f *fakeStore) MappingsForWeek(ctx context.Context, weekStart time.Time) ([]domain.Mapping, error) {
    var all []domain.Mapping
    for _, ms := range f.mappings { all = append(all, ms...) }
    return all, nil
}

func (f *fakeStore) MappingsForOKR(ctx context.Context, okrID string, weekStart time.Time) ([]domain.Mapping, error) {
    return f.mappings[okrID], nil
}

func (f *fakeStore) UnalignedForWeek(ctx context.Context, weekStart time.Time) ([]domain.UnalignedIssue, error) {
    return f.unaligned, nil
}

func (f *fakeStore) GetIssue(ctx context.Context, key string) (*domain.Issue, error) {
    i, ok := f.issues[key]
    if !ok { return nil, nil }
    return &i, nil
}

func testOKRSet() domain.OKRSet {
    return domain.OKRSet{
        Period: "2025-Q3",
        Objectives: []domain.Objective{
            {Number: 1, Title: "Improve reliability", KeyResults: []domain.KeyResult{
                {Number: 1, Text: "Reduce error rate to 0.1%"},
                {Number: 2, Text: "P99 latency under 300ms"},
            }},
            {Number: 2, Title: "Grow adoption", KeyResults: []domain.KeyResult{
                {Number: 1, Text: "Onboard 5 new teams"},
            }},
        },
    }
}

func mapping(issueKey, okrID string, conf float64, category string) domain.Mapping {
    return domain.Mapping{IssueKey: issueKey, OKRID: okrID, Confidence: conf, Category: category}
}

func newTestCalculator(store Store) *Calculator {
    week := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
    return NewCalculator(store, testOKRSet(), week, zerolog.Nop())
}

func TestCoverageIncludesEveryKeyResult(t *testing.T) {
    store := &fakeStore{mappings: map[string][]domain.Mapping{
        "obj1_kr1": {
            mapping("PROJ-1", "obj1_kr1", 0.9, domain.CategoryCreated),
            mapping("PROJ-2", "obj1_kr1", 0.7, domain.CategoryCreated),
            mapping("PROJ-3", "obj1_kr1", 0.9, domain.CategoryUpdated),
        },
    }}
    calc := newTestCalculator(store)

    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    // every catalog KR appears, even with zero mappings
    require.Len(t, cov, 3)
    require.Contains(t, cov, "obj1_kr2")
    require.Contains(t, cov, "obj2_kr1")
    assert.Equal(t, 0, cov["obj1_kr2"].TotalIssues)
    assert.Equal(t, 0.0, cov["obj1_kr2"].AvgConfidence)

    kr1 := cov["obj1_kr1"]
    assert.Equal(t, 3, kr1.TotalIssues)
    assert.Equal(t, 2, kr1.Created)
    assert.Equal(t, 1, kr1.Updated)
    assert.Equal(t, 0, kr1.Completed)
    assert.Equal(t, kr1.TotalIssues, kr1.Created+kr1.Updated+kr1.Completed)
    assert.InDelta(t, 0.8333, kr1.AvgConfidence, 0.001)
}

func TestUnderprioritizedOrderingAndFilter(t *testing.T) {
    store := &fakeStore{mappings: map[string][]domain.Mapping{
        "obj1_kr1": {
            mapping("PROJ-1", "obj1_kr1", 0.9, domain.CategoryCreated),
            mapping("PROJ-2", "obj1_kr1", 0.8, domain.CategoryCreated),
        },
        "obj2_kr1": {
            mapping("PROJ-3", "obj2_kr1", 0.6, domain.CategoryCompleted),
        },
    }}
    calc := newTestCalculator(store)
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    under := calc.Underprioritized(cov, 2)
    require.Len(t, under, 2)
    // ascending by count, ties by objective then key result number
    assert.Equal(t, "obj1_kr2", under[0].OKRID)
    assert.Equal(t, 0, under[0].IssueCount)
    assert.Equal(t, "obj2_kr1", under[1].OKRID)
    assert.Equal(t, 1, under[1].IssueCount)
    // kr1 has 2 >= threshold, excluded
    for _, u := range under { assert.Less(t, u.IssueCount, 2) }
}

func TestUnderprioritizedEmptyWhenAllAtThreshold(t *testing.T) {
    store := &fakeStore{mappings: map[string][]domain.Mapping{
        "obj1_kr1": {mapping("PROJ-1", "obj1_kr1", 0.9, domain.CategoryCreated)},
        "obj1_kr2": {mapping("PROJ-2", "obj1_kr2", 0.9, domain.CategoryCreated)},
        "obj2_kr1": {mapping("PROJ-3", "obj2_kr1", 0.9, domain.CategoryCreated)},
    }}
    calc := newTestCalculator(store)
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    assert.Empty(t, calc.Underprioritized(cov, 1))
}

func TestSummaryCountsDistinctIssues(t *testing.T) {
    // PROJ-1 maps to two key results: one issue, two mappings
    store := &fakeStore{
        mappings: map[string][]domain.Mapping{
            "obj1_kr1": {
                mapping("PROJ-1", "obj1_kr1", 0.9, domain.CategoryCreated),
                mapping("PROJ-2", "obj1_kr1", 0.8, domain.CategoryUpdated),
            },
            "obj1_kr2": {mapping("PROJ-1", "obj1_kr2", 0.7, domain.CategoryCreated)},
        },
        unaligned: []domain.UnalignedIssue{{IssueKey: "PROJ-9", Reasoning: "no match"}},
    }
    calc := newTestCalculator(store)
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    s, err := calc.Summary(context.Background(), cov)
    require.NoError(t, err)

    assert.Equal(t, 2, s.AlignedIssues)
    assert.Equal(t, 1, s.UnalignedIssues)
    assert.Equal(t, 3, s.TotalIssues)
    assert.Equal(t, 3, s.TotalMappings)
    assert.InDelta(t, 66.666, s.AlignmentPercentage, 0.01)
    assert.Equal(t, 1, s.CreatedIssues)
    assert.Equal(t, 1, s.UpdatedIssues)
    assert.Equal(t, 0, s.CompletedIssues)
    require.True(t, s.HasMostActive)
    assert.Equal(t, 1, s.MostActiveObjective)
}

func TestSummaryZeroActivity(t *testing.T) {
    calc := newTestCalculator(&fakeStore{mappings: map[string][]domain.Mapping{}})
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    s, err := calc.Summary(context.Background(), cov)
    require.NoError(t, err)

    assert.Equal(t, 0, s.TotalIssues)
    assert.Equal(t, 0.0, s.AlignmentPercentage)
}

func TestSummaryMostActiveTieBreaksToLowerObjective(t *testing.T) {
    store := &fakeStore{mappings: map[string][]domain.Mapping{
        "obj1_kr1": {mapping("PROJ-1", "obj1_kr1", 0.9, domain.CategoryCreated)},
        "obj2_kr1": {mapping("PROJ-2", "obj2_kr1", 0.9, domain.CategoryCreated)},
    }}
    calc := newTestCalculator(store)
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    s, err := calc.Summary(context.Background(), cov)
    require.NoError(t, err)
    require.True(t, s.HasMostActive)
    assert.Equal(t, 1, s.MostActiveObjective)
}

func TestSummaryNoMostActiveWithEmptyCatalog(t *testing.T) {
    week := time.Date(2025, 8, 25, 0, 0, 0, 0, time.UTC)
    calc := NewCalculator(&fakeStore{}, domain.OKRSet{Period: "2025-Q3"}, week, zerolog.Nop())

    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)
    s, err := calc.Summary(context.Background(), cov)
    require.NoError(t, err)
    assert.False(t, s.HasMostActive)
}

func TestTopIssuesRankingDedupeAndLimit(t *testing.T) {
    store := &fakeStore{
        mappings: map[string][]domain.Mapping{
            "obj1_kr1": {
                mapping("PROJ-1", "obj1_kr1", 0.5, domain.CategoryCreated),
                mapping("PROJ-2", "obj1_kr1", 0.95, domain.CategoryCompleted),
                mapping("PROJ-2", "obj1_kr1", 0.4, domain.CategoryUpdated),
                mapping("PROJ-3", "obj1_kr1", 0.8, domain.CategoryCreated),
                mapping("PROJ-4", "obj1_kr1", 0.7, domain.CategoryCreated),
            },
        },
        issues: map[string]domain.Issue{
            "PROJ-1": {Key: "PROJ-1", Summary: "one"},
            "PROJ-2": {Key: "PROJ-2", Summary: "two"},
            "PROJ-3": {Key: "PROJ-3", Summary: "three"},
            "PROJ-4": {Key: "PROJ-4", Summary: "four"},
        },
    }
    calc := newTestCalculator(store)
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    top, err := calc.TopIssues(context.Background(), cov, 3)
    require.NoError(t, err)

    picks := top["obj1_kr1"]
    require.Len(t, picks, 3)
    assert.Equal(t, "PROJ-2", picks[0].IssueKey)
    assert.Equal(t, 0.95, picks[0].Confidence)
    assert.Equal(t, "PROJ-3", picks[1].IssueKey)
    assert.Equal(t, "PROJ-4", picks[2].IssueKey)
    for i := 1; i < len(picks); i++ {
        assert.GreaterOrEqual(t, picks[i-1].Confidence, picks[i].Confidence)
    }
    // key results with no activity get no entry at all
    assert.NotContains(t, top, "obj1_kr2")
}

func TestTopIssuesSkipsMissingIssues(t *testing.T) {
    store := &fakeStore{
        mappings: map[string][]domain.Mapping{
            "obj1_kr1": {
                mapping("PROJ-GONE", "obj1_kr1", 0.99, domain.CategoryCreated),
                mapping("PROJ-1", "obj1_kr1", 0.6, domain.CategoryCreated),
            },
        },
        issues: map[string]domain.Issue{"PROJ-1": {Key: "PROJ-1", Summary: "one"}},
    }
    calc := newTestCalculator(store)
    cov, err := calc.Coverage(context.Background())
    require.NoError(t, err)

    top, err := calc.TopIssues(context.Background(), cov, 3)
    require.NoError(t, err)
    picks := top["obj1_kr1"]
    require.Len(t, picks, 1)
    assert.Equal(t, "PROJ-1", picks[0].IssueKey)
}
