package http

import (
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/rs/zerolog"
    "github.com/stretchr/testify/assert"

    "github.com/example/okr-pulse/internal/config"
)

func testRouter() http.Handler {
    cfg := config.Config{AppEnv: "prod", TelegramWebhookSecret: "s3cret"}
    return NewRouter(cfg, zerolog.Nop(), nil)
}

func testRouterWithChats(chats []int64) http.Handler {
    cfg := config.Config{AppEnv: "prod", TelegramWebhookSecret: "s3cret", TelegramChatIDs: chats}
    return NewRouter(cfg, zerolog.Nop(), nil)
}

func TestHealth(t *testing.T) {
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
    testRouter().ServeHTTP(w, req)

    assert.Equal(t, http.StatusOK, w.Code)
    assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestWebhookRejectsBadSecret(t *testing.T) {
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/telegram/webhook/wrong", strings.NewReader(`{}`))
    testRouter().ServeHTTP(w, req)

    assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookRejectsBareRouteWithoutSecret(t *testing.T) {
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{}`))
    testRouter().ServeHTTP(w, req)

    assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookAcceptsHeaderSecret(t *testing.T) {
    w := httptest.NewRecorder()
    req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{}`))
    req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
    testRouter().ServeHTTP(w, req)

    assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookIgnoresUnconfiguredChat(t *testing.T) {
    // /run from a chat outside the allow-list must not reach the service;
    // the nil service here would panic if it did
    w := httptest.NewRecorder()
    body := `{"message":{"text":"/run","chat":{"id":42}}}`
    req := httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(body))
    testRouterWithChats([]int64{99}).ServeHTTP(w, req)

    assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookIgnoresUnknownCommand(t *testing.T) {
    w := httptest.NewRecorder()
    body := `{"message":{"text":"hello","chat":{"id":42}}}`
    req := httptest.NewRequest(http.MethodPost, "/telegram/webhook/s3cret", strings.NewReader(body))
    testRouter().ServeHTTP(w, req)

    assert.Equal(t, http.StatusOK, w.Code)
}
