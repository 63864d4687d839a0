package openai

import (
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/example/okr-pulse/internal/domain"
)

func TestStripCodeFence(t *testing.T) {
    plain := `{"matches":[]}`
    assert.Equal(t, plain, stripCodeFence(plain))
    assert.Equal(t, plain, stripCodeFence("```json\n"+plain+"\n```"))
    assert.Equal(t, plain, stripCodeFence("```\n"+plain+"\n```"))
    assert.Equal(t, plain, stripCodeFence("  \n```json\n"+plain+"\n```\n  "))
}

func TestBuildPromptIncludesCatalogAndIssue(t *testing.T) {
    okrs := domain.OKRSet{
        Period: "2025-Q3",
        Objectives: []domain.Objective{
            {Number: 1, Title: "Improve reliability", KeyResults: []domain.KeyResult{{Number: 1, Text: "Reduce error rate"}}},
        },
    }
    issue := domain.ActivityIssue{
        Issue:    domain.Issue{Key: "PROJ-1", Summary: "Fix retries", Type: "Bug", Status: "Open", Description: "retries storm the backend"},
        Category: domain.CategoryCreated,
    }

    prompt := buildPrompt(issue, okrs)
    assert.Contains(t, prompt, "period 2025-Q3")
    assert.Contains(t, prompt, "Objective 1 (obj1): Improve reliability")
    assert.Contains(t, prompt, "KR 1 (kr1): Reduce error rate")
    assert.Contains(t, prompt, "Key: PROJ-1")
    assert.Contains(t, prompt, "Activity: created")
    assert.Contains(t, prompt, "retries storm the backend")
}

func TestBuildPromptClipsLongDescription(t *testing.T) {
    issue := domain.ActivityIssue{
        Issue:    domain.Issue{Key: "PROJ-1", Description: strings.Repeat("x", 5000)},
        Category: domain.CategoryUpdated,
    }
    prompt := buildPrompt(issue, domain.OKRSet{})
    assert.Less(t, len(prompt), 3000)
}
