/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package openai

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/domain"
    oa "github.com/openai/openai-go/v2"
    "github.com/openai/openai-go/v2/option"
    "github.com/openai/openai-go/v2/shared"
    "github.com/rs/zerolog"
)

// Matcher asks the model which key results a Jira issue advances.
type Matcher struct {
    cli       oa.Client
    model     string
    threshold float64
    log       zerolog.Logger
}

func NewMatcher(cfg config.Config, log zerolog.Logger) *Matcher {
    cli := oa.NewClient(option.WithAPIKey(cfg.OpenAIKey), option.WithRequestTimeout(cfg.OpenAITimeout))
    return &Matcher{cli: cli, model: cfg.OpenAIModel, threshold: cfg.ConfidenceThreshold, log: log}
}

const systemPrompt = `You analyze software development work against OKRs (Objectives and Key Results).
Given one Jira issue and the current OKR catalog, decide which key results (if any) this issue contributes to.
Respond with JSON only, no prose, using exactly this shape:
{"matches":[{"objective_id":"obj1","key_result_id":"kr2","confidence":0.85,"reasoning":"..."}],"no_okr_match":false,"no_match_reasoning":""}
Confidence is a number between 0 and 1. If the issue advances no key result, set no_okr_match to true and explain in no_match_reasoning.`

type wireMatch struct {
    ObjectiveID string  `json:"objective_id"`
    KeyResultID string  `json:"key_result_id"`
    Confidence  float64 `json:"confidence"`
    Reasoning   string  `json:"reasoning"`
}

type wireResult struct {
    Matches          []wireMatch `json:"matches"`
    NoOKRMatch       bool        `json:"no_okr_match"`
    NoMatchReasoning string      `json:"no_match_reasoning"`
}

func (m *Matcher) MatchIssue(ctx context.Context, issue domain.ActivityIssue, okrs domain.OKRSet) (domain.MatchResult, error) {
    user := buildPrompt(issue, okrs)
    params := oa.ChatCompletionNewParams{
        Model: shared.ChatModel(m.model),
        Messages: []oa.ChatCompletionMessageParamUnion{
            oa.SystemMessage(systemPrompt),
            oa.UserMessage(user),
        },
    }
    resp, err := m.cli.Chat.Completions.New(ctx, params)
    if err != nil { return domain.MatchResult{}, err }
    if len(resp.Choices) == 0 { return domain.MatchResult{}, errors.New("openai: empty choices") }
    raw := stripCodeFence(resp.Choices[0].Message.Content)

    var wr wireResult
    if err := json.Unmarshal([]byte(raw), &wr); err != nil {
        m.log.Warn().Err(err).Str("issue", issue.Key).Msg("openai: unparsable match response")
        return domain.MatchResult{}, fmt.Errorf("openai: decode match response: %w", err)
    }
    out := domain.MatchResult{NoMatch: wr.NoOKRMatch, NoMatchReasoning: wr.NoMatchReasoning}
    for _, w := range wr.Matches {
        out.Matches = append(out.Matches, domain.CandidateMatch{
            ObjectiveID: w.ObjectiveID,
            KeyResultID: w.KeyResultID,
            Confidence:  w.Confidence,
            Reasoning:   w.Reasoning,
        })
    }
    if len(out.Matches) == 0 && !out.NoMatch {
        out.NoMatch = true
        if out.NoMatchReasoning == "" { out.NoMatchReasoning = "Model returned no matches" }
    }
    return out, nil
}

func buildPrompt(issue domain.ActivityIssue, okrs domain.OKRSet) string {
    var b strings.Builder
    b.WriteString("Current OKRs (period " + okrs.Period + "):\n")
    for _, obj := range okrs.Objectives {
        fmt.Fprintf(&b, "Objective %d (%s): %s\n", obj.Number, obj.ID(), obj.Title)
        for _, kr := range obj.KeyResults {
            fmt.Fprintf(&b, "  KR %d (kr%d): %s\n", kr.Number, kr.Number, kr.Text)
        }
    }
    b.WriteString("\nJira issue:\n")
    fmt.Fprintf(&b, "Key: %s\nSummary: %s\nType: %s\nStatus: %s\nActivity: %s\n", issue.Key, issue.Summary, issue.Type, issue.Status, issue.Category)
    if issue.Description != "" {
        desc := issue.Description
        if len(desc) > 2000 { desc = desc[:2000] }
        b.WriteString("Description: " + desc + "\n")
    }
    return b.String()
}

// stripCodeFence removes a surrounding ```json ... ``` fence when the model
// wraps its answer in one.
func stripCodeFence(s string) string {
    t := strings.TrimSpace(s)
    if !strings.HasPrefix(t, "```") { return t }
    t = strings.TrimPrefix(t, "```json")
    t = strings.TrimPrefix(t, "```")
    t = strings.TrimSuffix(strings.TrimSpace(t), "```")
    return strings.TrimSpace(t)
}
