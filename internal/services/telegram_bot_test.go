package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	requests map[string][]map[string]string
	updates  string
}

func newFakeBotAPI(t *testing.T) (*fakeBotAPI, *httptest.Server) {
	t.Helper()
	f := &fakeBotAPI{requests: make(map[string][]map[string]string), updates: "[]"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path: /bot<token>/<method>
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		method := parts[len(parts)-1]
		_ = r.ParseForm()
		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		f.mu.Lock()
		f.requests[method] = append(f.requests[method], form)
		updates := f.updates
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Dispatch","username":"dispatchdesk_bot"}}`))
		case "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":42,"type":"private"}}}`))
		case "getUpdates":
			_, _ = w.Write([]byte(`{"ok":true,"result":` + updates + `}`))
		case "setWebhook", "deleteWebhook":
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeBotAPI) calls(method string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method]
}

func newTestTelegram(t *testing.T, srv *httptest.Server) *TelegramService {
	t.Helper()
	tg, err := NewTelegramService(TelegramOptions{
		Token:       "123:abc",
		Username:    "@dispatchdesk_bot",
		APIEndpoint: srv.URL + "/bot%s/%s",
		HTTPTimeout: 2 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return tg
}

func TestTelegramServiceRequiresCredentials(t *testing.T) {
	_, err := NewTelegramService(TelegramOptions{Username: "bot"}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewTelegramService(TelegramOptions{Token: "123:abc"}, zap.NewNop())
	assert.Error(t, err)
}

func TestTelegramServiceDeepLink(t *testing.T) {
	_, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)
	assert.Equal(t, "https://t.me/dispatchdesk_bot?start=link_AbC-_123", tg.DeepLink("AbC-_123"))
}

func TestTelegramServiceSendText(t *testing.T) {
	fake, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	require.NoError(t, tg.SendText(context.Background(), 42, "hello"))
	calls := fake.calls("sendMessage")
	require.Len(t, calls, 1)
	assert.Equal(t, "42", calls[0]["chat_id"])
	assert.Equal(t, "hello", calls[0]["text"])
	assert.Empty(t, calls[0]["reply_markup"])
}

func TestTelegramServiceSendContactRequest(t *testing.T) {
	fake, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	require.NoError(t, tg.SendContactRequest(context.Background(), 42, "share please"))
	calls := fake.calls("sendMessage")
	require.Len(t, calls, 1)

	var markup struct {
		Keyboard [][]struct {
			Text           string `json:"text"`
			RequestContact bool   `json:"request_contact"`
		} `json:"keyboard"`
		OneTimeKeyboard bool `json:"one_time_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(calls[0]["reply_markup"]), &markup))
	require.Len(t, markup.Keyboard, 1)
	assert.True(t, markup.Keyboard[0][0].RequestContact)
	assert.True(t, markup.OneTimeKeyboard)
}

func TestTelegramServiceFetchUpdates(t *testing.T) {
	fake, srv := newFakeBotAPI(t)
	fake.updates = `[{"update_id":7,"message":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"hi"}}]`
	tg := newTestTelegram(t, srv)

	updates, err := tg.FetchUpdates(context.Background(), 5, 0, 50)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, 7, updates[0].UpdateID)

	calls := fake.calls("getUpdates")
	require.Len(t, calls, 1)
	assert.Equal(t, "5", calls[0]["offset"])
	assert.Equal(t, "50", calls[0]["limit"])
}

func TestTelegramServiceSetWebhookPassesSecret(t *testing.T) {
	fake, srv := newFakeBotAPI(t)
	tg := newTestTelegram(t, srv)

	require.NoError(t, tg.SetWebhook("https://api.example.com/integrations/telegram/webhook", "s3cr3t"))
	calls := fake.calls("setWebhook")
	require.Len(t, calls, 1)
	assert.Equal(t, "s3cr3t", calls[0]["secret_token"])
	require.NoError(t, tg.DeleteWebhook())
}
