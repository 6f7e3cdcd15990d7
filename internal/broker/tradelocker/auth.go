package tradelocker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tlbot/internal/logger"
)

// tokenSource 持有 JWT 访问/刷新令牌。所有请求共享同一份令牌，
// 刷新在锁内进行，避免并发的 401 触发多次重新认证。
type tokenSource struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	email        string
	password     string
	server       string
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// bearer returns the current access token, authenticating on first use.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()
	if c.tokens.accessToken != "" {
		return c.tokens.accessToken, nil
	}
	if err := c.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return c.tokens.accessToken, nil
}

// refreshBearer 换取新令牌。stale 是触发 401 的旧令牌：若已被其他
// 调用刷新过，直接复用现有令牌，不再打认证端点。
func (c *Client) refreshBearer(ctx context.Context, stale string) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()
	if c.tokens.accessToken != "" && c.tokens.accessToken != stale {
		return c.tokens.accessToken, nil
	}
	if c.tokens.refreshToken != "" {
		if err := c.exchangeLocked(ctx, "/auth/jwt/refresh", map[string]string{
			"refreshToken": c.tokens.refreshToken,
		}); err == nil {
			return c.tokens.accessToken, nil
		} else {
			logger.Warnf("tradelocker: 刷新令牌失败，回退重新认证: %v", err)
		}
	}
	if err := c.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return c.tokens.accessToken, nil
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	return c.exchangeLocked(ctx, "/auth/jwt/token", map[string]string{
		"email":    c.tokens.email,
		"password": c.tokens.password,
		"server":   c.tokens.server,
	})
}

func (c *Client) exchangeLocked(ctx context.Context, path string, payload map[string]string) error {
	if err := c.limiter.Acquire(ctx, categoryAuth); err != nil {
		return err
	}
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return err
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化认证请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("构造认证请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s", ErrAuthFailed, resp.Status, strings.TrimSpace(string(data)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("解析认证响应失败: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: 经纪商未返回 accessToken", ErrAuthFailed)
	}
	c.tokens.accessToken = tr.AccessToken
	c.tokens.refreshToken = tr.RefreshToken
	logger.Infof("tradelocker: 已获取新的访问令牌")
	return nil
}
