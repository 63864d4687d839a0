package domain

import (
    "fmt"
    "time"
)

const (
    CategoryCreated   = "created"
    CategoryUpdated   = "updated"
    CategoryCompleted = "completed"
)

type KeyResult struct {
    Number int
    Text   string
}

type Objective struct {
    Number     int
    Title      string
    KeyResults []KeyResult
}

func (o Objective) ID() string { return fmt.Sprintf("obj%d", o.Number) }

func (o Objective) KeyResultID(krNumber int) string {
    return fmt.Sprintf("obj%d_kr%d", o.Number, krNumber)
}

type OKRSet struct {
    Period     string
    Objectives []Objective
}

// OKR is the persisted form of one catalog entry. KeyResultNumber is nil for
// objective-level rows.
type OKR struct {
    ID              string
    ObjectiveNumber int
    ObjectiveTitle  string
    KeyResultNumber *int
    KeyResultText   string
    Period          string
}

type Issue struct {
    Key         string
    Summary     string
    Description string
    Type        string
    Status      string
    Assignee    string
    FirstSeen   time.Time
    LastSeen    time.Time
}

// ActivityIssue is an issue as seen in one analysis window, tagged with the
// activity category that surfaced it.
type ActivityIssue struct {
    Issue
    Category string
}

type Mapping struct {
    IssueKey   string
    OKRID      string
    Confidence float64
    Reasoning  string
    Category   string
    WeekStart  time.Time
    AnalyzedAt time.Time
}

type UnalignedIssue struct {
    IssueKey   string
    WeekStart  time.Time
    Reasoning  string
    AnalyzedAt time.Time
}

type WeeklySnapshot struct {
    ID              int64
    WeekStart       time.Time
    WeekEnd         time.Time
    TotalIssues     int
    AlignedIssues   int
    UnalignedIssues int
    Period          string
    AnalyzedAt      time.Time
}

// CandidateMatch is one scored association proposed by the matcher.
type CandidateMatch struct {
    ObjectiveID string
    KeyResultID string
    Confidence  float64
    Reasoning   string
}

type MatchResult struct {
    Matches          []CandidateMatch
    NoMatch          bool
    NoMatchReasoning string
}

// KRCoverage aggregates one key result's weekly activity.
type KRCoverage struct {
    ObjectiveNumber int
    ObjectiveTitle  string
    KeyResultNumber int
    KeyResultText   string
    TotalIssues     int
    Created         int
    Updated         int
    Completed       int
    AvgConfidence   float64
    Mappings        []Mapping
}

type UnderprioritizedKR struct {
    OKRID           string
    ObjectiveNumber int
    ObjectiveTitle  string
    KeyResultNumber int
    KeyResultText   string
    IssueCount      int
}

type SummaryStats struct {
    TotalIssues         int
    AlignedIssues       int
    UnalignedIssues     int
    AlignmentPercentage float64
    CreatedIssues       int
    UpdatedIssues       int
    CompletedIssues     int
    TotalMappings       int
    MostActiveObjective int
    HasMostActive       bool
}

type TopIssue struct {
    IssueKey   string
    Summary    string
    Confidence float64
    Category   string
    Reasoning  string
}

type TrendPoint struct {
    WeekStart  time.Time
    IssueCount int
}
