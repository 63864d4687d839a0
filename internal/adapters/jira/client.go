/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "os"
    "strings"
    "time"

    "github.com/example/okr-pulse/internal/config"
    "github.com/example/okr-pulse/internal/domain"
    "github.com/rs/zerolog"
)

type Client struct {
    baseURL      string
    token        string
    basic        string
    user         string
    pass         string
    project      string
    analysisDays int
    http         *http.Client
    log          zerolog.Logger
    apiVer       string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:      cfg.JiraBaseURL,
        token:        cfg.JiraPAT,
        basic:        getenvBasic(),
        user:         cfg.JiraUsername,
        pass:         cfg.JiraPassword,
        project:      cfg.JiraProject,
        analysisDays: cfg.AnalysisDays,
        http:         &http.Client{Timeout: cfg.HTTPTimeout},
        log:          log,
        apiVer:       cfg.JiraAPIVersion,
    }
}

// getenvBasic reads JIRA_BASIC_AUTH from environment if present (format: user:pass base64), optional
func getenvBasic() string {
    v := ""
    if s := strings.TrimSpace(os.Getenv("JIRA_BASIC_AUTH")); s != "" { v = s }
    return v
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if q != nil && len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) doJSON(ctx context.Context, method, u string, body any) (map[string]any, error) {
    if c.baseURL == "" { return nil, errors.New("jira: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return nil, err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        if attempt > 0 { time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond) }
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return nil, err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        } else if c.basic != "" {
            req.Header.Set("Authorization", "Basic "+c.basic)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
            continue
        }
        if resp.StatusCode >= 300 {
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            apiErr := fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
            // only rate limits and server errors are worth retrying
            if resp.StatusCode == 429 || resp.StatusCode >= 500 {
                lastErr = apiErr
                continue
            }
            return nil, apiErr
        }
        var out map[string]any
        err = json.NewDecoder(resp.Body).Decode(&out)
        resp.Body.Close()
        if err != nil { return nil, err }
        return out, nil
    }
    return nil, lastErr
}

func (c *Client) search(ctx context.Context, jql string, startAt, max int) (map[string]any, error) {
    if jql == "" { return nil, errors.New("jira: empty jql") }
    if c.apiVer == "2" {
        q := url.Values{}
        q.Set("jql", jql)
        if startAt > 0 { q.Set("startAt", fmt.Sprint(startAt)) }
        if max > 0 { q.Set("maxResults", fmt.Sprint(max)) }
        q.Set("fields", "summary,description,issuetype,status,assignee")
        u := c.apiURL("/rest/api/2/search", q)
        return c.doJSON(ctx, http.MethodGet, u, nil)
    }
    // default to v3
    body := map[string]any{"jql": jql, "startAt": startAt, "maxResults": max,
        "fields": []string{"summary", "description", "issuetype", "status", "assignee"}}
    u := c.apiURL("/rest/api/3/search", nil)
    return c.doJSON(ctx, http.MethodPost, u, body)
}

// fetchCategory pages through one JQL query and tags every issue with the
// activity category that query represents.
func (c *Client) fetchCategory(ctx context.Context, jql, category string) ([]domain.ActivityIssue, error) {
    var out []domain.ActivityIssue
    startAt := 0
    for {
        page, err := c.search(ctx, jql, startAt, 50)
        if err != nil { return nil, err }
        arr, _ := page["issues"].([]any)
        if len(arr) == 0 { break }
        for _, it := range arr {
            im, _ := it.(map[string]any)
            if im == nil { continue }
            issue := parseIssue(im)
            if issue.Key == "" { continue }
            out = append(out, domain.ActivityIssue{Issue: issue, Category: category})
        }
        if len(arr) < 50 { break }
        startAt += 50
    }
    return out, nil
}

func parseIssue(im map[string]any) domain.Issue {
    fields, _ := im["fields"].(map[string]any)
    key := toStrAny(im["key"])
    summary := toStrAny(fields["summary"])
    description := toStrAny(fields["description"])
    typ := ""; if tp, ok := fields["issuetype"].(map[string]any); ok { typ = toStrAny(tp["name"]) }
    status := ""; if st, ok := fields["status"].(map[string]any); ok { status = toStrAny(st["name"]) }
    assignee := ""; if as, ok := fields["assignee"].(map[string]any); ok { assignee = toStrAny(as["displayName"]) }
    return domain.Issue{Key: key, Summary: summary, Description: description, Type: typ, Status: status, Assignee: assignee}
}

func toStrAny(v any) string {
    if v == nil { return "" }
    if s, ok := v.(string); ok { return s }
    return fmt.Sprintf("%v", v)
}

// FetchCreatedIssues returns issues created within the analysis window.
func (c *Client) FetchCreatedIssues(ctx context.Context) ([]domain.ActivityIssue, error) {
    jql := fmt.Sprintf("project = %s AND created >= -%dd", c.project, c.analysisDays)
    return c.fetchCategory(ctx, jql, domain.CategoryCreated)
}

// FetchUpdatedIssues returns issues updated within the window, excluding
// just-created ones so the categories stay disjoint.
func (c *Client) FetchUpdatedIssues(ctx context.Context) ([]domain.ActivityIssue, error) {
    jql := fmt.Sprintf("project = %s AND updated >= -%dd AND created < -%dd", c.project, c.analysisDays, c.analysisDays)
    return c.fetchCategory(ctx, jql, domain.CategoryUpdated)
}

// FetchCompletedIssues returns issues moved to Done within the window.
func (c *Client) FetchCompletedIssues(ctx context.Context) ([]domain.ActivityIssue, error) {
    jql := fmt.Sprintf("project = %s AND status changed to Done during (-%dd, now())", c.project, c.analysisDays)
    return c.fetchCategory(ctx, jql, domain.CategoryCompleted)
}

func (c *Client) FetchAllIssues(ctx context.Context) ([]domain.ActivityIssue, error) {
    created, err := c.FetchCreatedIssues(ctx)
    if err != nil { return nil, err }
    updated, err := c.FetchUpdatedIssues(ctx)
    if err != nil { return nil, err }
    completed, err := c.FetchCompletedIssues(ctx)
    if err != nil { return nil, err }
    all := make([]domain.ActivityIssue, 0, len(created)+len(updated)+len(completed))
    all = append(all, created...)
    all = append(all, updated...)
    all = append(all, completed...)
    c.log.Info().Int("created", len(created)).Int("updated", len(updated)).Int("completed", len(completed)).Msg("jira: fetched issue categories")
    return all, nil
}
