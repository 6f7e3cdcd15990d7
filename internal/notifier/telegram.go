package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tlbot/internal/logger"
)

const (
	telegramAPIBase = "https://api.telegram.org"
	sendRetries     = 3
)

// TextNotifier 是最小文本通知接口，方便组件解耦具体实现。
type TextNotifier interface {
	SendText(text string) error
}

// Telegram 把信号终态与平仓事件推送到指定群/频道。
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	apiBase string // 测试注入
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{BotToken: botToken, ChatID: chatID, Client: &http.Client{Timeout: 15 * time.Second}}
}

// SendText 以 Markdown 发送文本，失败时线性退避重试。
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("notifier: telegram 配置不完整")
	}
	base := t.apiBase
	if base == "" {
		base = telegramAPIBase
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, t.BotToken)
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("notifier: 序列化消息失败: %w", err)
	}

	var lastErr error
	for i := 0; i < sendRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * time.Second)
		}
		if lastErr = t.post(endpoint, body); lastErr == nil {
			return nil
		}
		logger.Debugf("[notifier] telegram 第 %d 次发送失败: %v", i+1, lastErr)
	}
	return lastErr
}

func (t *Telegram) post(endpoint string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return nil
}
