/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package telegram

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "time"

    "github.com/rs/zerolog"
)

type Client struct {
    token string
    http  *http.Client
    log   zerolog.Logger
}

func NewClient(token string, log zerolog.Logger) *Client {
    return &Client{token: token, http: &http.Client{Timeout: 15 * time.Second}, log: log}
}

func (c *Client) api(method string) string {
    return fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.token, method)
}

func (c *Client) post(ctx context.Context, method string, payload any) error {
    b, err := json.Marshal(payload)
    if err != nil { return err }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api(method), bytes.NewReader(b))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        body, _ := io.ReadAll(resp.Body)
        return fmt.Errorf("telegram %s status=%d body=%s", method, resp.StatusCode, string(body))
    }
    return nil
}

// SendMessage sends Markdown-formatted text to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
    return c.post(ctx, "sendMessage", map[string]any{
        "chat_id":    chatID,
        "text":       text,
        "parse_mode": "Markdown",
    })
}

// SendMessagePlain sends text without any parse mode, used as a fallback
// when Markdown rendering fails on the Telegram side.
func (c *Client) SendMessagePlain(ctx context.Context, chatID int64, text string) error {
    return c.post(ctx, "sendMessage", map[string]any{
        "chat_id": chatID,
        "text":    text,
    })
}

func (c *Client) SetWebhook(ctx context.Context, url string) error {
    return c.post(ctx, "setWebhook", map[string]any{"url": url})
}
