package notifier

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendTextRetriesUntilAccepted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "chat-1", payload["chat_id"])
		assert.Equal(t, "Markdown", payload["parse_mode"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram("bot-token", "chat-1")
	tg.apiBase = srv.URL
	require.NoError(t, tg.SendText("*测试*"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTelegramSendTextRequiresConfig(t *testing.T) {
	tg := NewTelegram("", "")
	assert.Error(t, tg.SendText("忽略"))
}
