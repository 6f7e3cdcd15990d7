// Package tradelocker implements the authenticated broker transport: every
// call passes the per-category circuit breaker and rate limiter before it
// reaches the wire, and every tabular response is decoded through the column
// schema set negotiated at startup.
package tradelocker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"tlbot/internal/broker/ratelimit"
	"tlbot/internal/broker/schema"
	brconfig "tlbot/internal/config"
	"tlbot/internal/logger"
	"tlbot/internal/pkg/circuit"
)

// 端点类别，与经纪商 /trade/config 下发的 rateLimitType 对齐。
const (
	categoryAuth            = "AUTH"
	categoryTradeConfig     = "TRADE_CONFIG"
	categoryGetOrders       = "GET_ORDERS"
	categoryOrdersHistory   = "GET_ORDERS_HISTORY"
	categoryGetPositions    = "GET_POSITIONS"
	categoryGetAccountState = "GET_ACCOUNT_STATE"
	categoryPlaceOrder      = "PLACE_ORDER"
	categoryModifyOrder     = "MODIFY_ORDER"
	categoryClosePosition   = "CLOSE_POSITION"
	categoryQuotes          = "QUOTES"
)

const (
	defaultAttempts  = 3
	breakerThreshold = 5
	breakerProbe     = time.Minute
	// 经纪商返回 429 而未附带 Retry-After 时的估计冷却时长。
	default429Cooldown = 2 * time.Second
	maxBodyBytes       = 1 << 20
)

// Client is the typed TradeLocker-style API client shared by the execution
// pipeline and the position monitor. Safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	tokens     tokenSource
	accountID  int64
	accNum     int
	maxHistory int

	schemaMu sync.RWMutex
	schemas  *schema.Set

	breakerMu sync.Mutex
	breakers  map[string]*circuit.Breaker

	instrMu     sync.Mutex
	instruments map[string]Instrument
}

// NewClient constructs a broker client from configuration. The schema set
// starts as the embedded fallback; Bootstrap replaces it with the live one.
func NewClient(cfg brconfig.BrokerConfig, limiter *ratelimit.Limiter) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("broker.base_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 broker.base_url 失败: %w", err)
	}
	if limiter == nil {
		return nil, fmt.Errorf("tradelocker: limiter 必填")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402
		} else {
			transport.TLSClientConfig.InsecureSkipVerify = true // #nosec G402
		}
	}
	builtin, err := schema.Builtin()
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		limiter:    limiter,
		accountID:  cfg.AccountID,
		accNum:     cfg.AccNum,
		maxHistory: cfg.HistoryMaxRows,
		schemas:    builtin,
		breakers:   make(map[string]*circuit.Breaker),
		tokens: tokenSource{
			email:    strings.TrimSpace(cfg.Email),
			password: cfg.Password,
			server:   strings.TrimSpace(cfg.Server),
		},
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// UseSchemas 切换解码用的列定义集。启动引导成功后调用一次。
func (c *Client) UseSchemas(set *schema.Set) {
	if set == nil {
		return
	}
	c.schemaMu.Lock()
	c.schemas = set
	c.schemaMu.Unlock()
}

func (c *Client) schemaSet() *schema.Set {
	c.schemaMu.RLock()
	defer c.schemaMu.RUnlock()
	return c.schemas
}

func (c *Client) breaker(category string) *circuit.Breaker {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	b, ok := c.breakers[category]
	if !ok {
		b = circuit.NewBreaker(category, breakerThreshold, breakerProbe)
		c.breakers[category] = b
	}
	return b
}

// request 描述一次对经纪商的调用。attempts 为 0 时使用默认重试预算。
type request struct {
	method   string
	path     string
	category string
	query    url.Values
	payload  any
	attempts int
}

// do 是所有端点共用的传输路径：熔断检查 → 带重试的 HTTP 往返 →
// 信封校验。每次线上往返（含重试与重认证后的重发）都单独过限流准入，
// 配额约束的是实际发出的请求数。返回响应信封的 d 字段。
func (c *Client) do(ctx context.Context, r request) (gjson.Result, error) {
	br := c.breaker(r.category)
	if !br.Allow() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrCircuitOpen, r.category)
	}

	endpoint, err := c.resolveEndpoint(r.path)
	if err != nil {
		return gjson.Result{}, err
	}
	if len(r.query) > 0 {
		endpoint.RawQuery = r.query.Encode()
	}
	var body []byte
	if r.payload != nil {
		body, err = json.Marshal(r.payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("序列化请求失败: %w", err)
		}
	}

	token, err := c.bearer(ctx)
	if err != nil {
		return gjson.Result{}, err
	}

	attempts := r.attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	reauthed := false
	cooled := false
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryBackoff(attempt-1)); err != nil {
				return gjson.Result{}, err
			}
			logger.Debugf("tradelocker: %s %s 第 %d 次重试", r.method, r.path, attempt)
		}
		if err := c.limiter.Acquire(ctx, r.category); err != nil {
			return gjson.Result{}, err
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, endpoint.String(), reqBody)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("构造请求失败: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("accNum", strconv.Itoa(c.accNum))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return gjson.Result{}, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
			continue
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTransient, readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			if reauthed {
				br.RecordFailure()
				return gjson.Result{}, fmt.Errorf("%w: 新令牌仍被拒绝", ErrAuthFailed)
			}
			logger.Infof("tradelocker: 令牌过期，重新认证")
			token, err = c.refreshBearer(ctx, token)
			if err != nil {
				return gjson.Result{}, err
			}
			reauthed = true
			attempt--
			continue

		case resp.StatusCode == http.StatusTooManyRequests:
			cooldown := retryAfter(resp, default429Cooldown)
			c.limiter.Penalize(r.category, cooldown)
			if cooled {
				br.RecordFailure()
				return gjson.Result{}, &APIError{Status: resp.StatusCode, Message: "本地限流后仍触发经纪商限频"}
			}
			cooled = true
			if err := sleepCtx(ctx, cooldown); err != nil {
				return gjson.Result{}, err
			}
			attempt--
			continue

		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: HTTP %d %s", ErrTransient, resp.StatusCode, strings.TrimSpace(string(data)))
			continue

		case resp.StatusCode >= 300:
			br.RecordFailure()
			return gjson.Result{}, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}

		envelope := gjson.ParseBytes(data)
		if s := envelope.Get("s"); s.Exists() && s.String() != "ok" {
			br.RecordFailure()
			msg := envelope.Get("errmsg").String()
			if msg == "" {
				msg = s.String()
			}
			return gjson.Result{}, &APIError{Message: msg}
		}
		br.RecordSuccess()
		return envelope.Get("d"), nil
	}

	br.RecordFailure()
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: 重试预算耗尽", ErrTransient)
	}
	logger.Errorf("tradelocker: %s %s 在 %d 次尝试后失败: %v", r.method, r.path, attempts, lastErr)
	return gjson.Result{}, lastErr
}

// decodeTable 把 d 中指定键下的定位行数组按表定义解码。
func (c *Client) decodeTable(table string, d gjson.Result) ([]schema.Record, error) {
	t, ok := c.schemaSet().Table(table)
	if !ok {
		return nil, fmt.Errorf("tradelocker: 未知的表 %q", table)
	}
	raw, ok := d.Get(table).Value().([]any)
	if !ok {
		if !d.Get(table).Exists() {
			return nil, nil
		}
		return nil, fmt.Errorf("tradelocker: 表 %q 的响应不是数组", table)
	}
	rows := make([][]any, 0, len(raw))
	for _, r := range raw {
		row, ok := r.([]any)
		if !ok {
			return nil, &schema.MismatchError{Table: table, Want: len(t.Columns), Got: 0}
		}
		rows = append(rows, row)
	}
	return t.Decode(rows)
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("tradelocker: API 地址未设置")
	}
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	base.RawQuery = ""
	base.Fragment = ""
	return &base, nil
}

func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
