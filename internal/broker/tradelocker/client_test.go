package tradelocker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlbot/internal/broker/ratelimit"
	"tlbot/internal/broker/schema"
	"tlbot/internal/config"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	limiter, err := ratelimit.New([]ratelimit.Rule{
		{Category: "GET_POSITIONS", Measure: "seconds", IntervalNum: 1, Limit: 100},
		{Category: "GET_ACCOUNT_STATE", Measure: "seconds", IntervalNum: 1, Limit: 100},
		{Category: "PLACE_ORDER", Measure: "seconds", IntervalNum: 1, Limit: 100},
		{Category: "MODIFY_ORDER", Measure: "seconds", IntervalNum: 1, Limit: 100},
	})
	require.NoError(t, err)
	c, err := NewClient(config.BrokerConfig{
		BaseURL:        baseURL,
		Email:          "bot@example.com",
		Password:       "secret",
		Server:         "DEMO",
		AccountID:      1001,
		AccNum:         3,
		TimeoutSeconds: 5,
		HistoryMaxRows: 500,
	}, limiter)
	require.NoError(t, err)
	c.tokens.accessToken = "token-1"
	return c
}

func TestGetPositionsDecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade/accounts/1001/positions", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "3", r.Header.Get("accNum"))
		fmt.Fprint(w, `{"s":"ok","d":{"positions":[
			["p-1",278,901,"buy",20000,1.085,"sl-1","tp-1",1719830000000,12.5]
		]}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	positions, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, int64(278), p.TradableInstrumentID)
	assert.Equal(t, "buy", p.Side)
	assert.True(t, p.Qty.Equal(decimal.NewFromInt(20000)))
	assert.True(t, p.AvgPrice.Equal(decimal.RequireFromString("1.085")))
	assert.Equal(t, 2024, p.OpenDate.Year())
}

func TestGetPositionsSchemaMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 9 个值，少于 positions 表的 10 列。
		fmt.Fprint(w, `{"s":"ok","d":{"positions":[
			["p-1",278,901,"buy",20000,1.085,"sl-1","tp-1",1719830000000]
		]}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetPositions(context.Background())
	var mismatch *schema.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "positions", mismatch.Table)
	assert.Equal(t, 10, mismatch.Want)
	assert.Equal(t, 9, mismatch.Got)
}

func TestGetAccountState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s":"ok","d":{"accountDetailsData":[10000,9980.5,9500,480,9020,-19.5,0,0,2,1]}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	state, err := c.GetAccountState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Balance.Equal(decimal.NewFromInt(10000)))
	assert.True(t, state.Equity().Equal(decimal.RequireFromString("9980.5")))
	assert.True(t, state.AvailableFunds.Equal(decimal.NewFromInt(9500)))
	assert.Equal(t, int64(2), state.PositionsCount)
	assert.False(t, state.FetchedAt.IsZero())
}

func TestPlaceOrderReturnsOrderID(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trade/accounts/1001/orders", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, `{"s":"ok","d":{"orderId":"ord-777"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	orderID, err := c.PlaceOrder(context.Background(), OrderIntent{
		Instrument:           "EURUSD",
		TradableInstrumentID: 278,
		RouteID:              901,
		Side:                 "buy",
		Type:                 "market",
		Qty:                  decimal.NewFromInt(20000),
		StopLoss:             decimal.RequireFromString("1.0800"),
		TakeProfit:           decimal.RequireFromString("1.0900"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-777", orderID)

	assert.Equal(t, "buy", gotPayload["side"])
	assert.Equal(t, "market", gotPayload["type"])
	assert.Equal(t, "IOC", gotPayload["validity"])
	assert.Equal(t, 20000.0, gotPayload["qty"])
	assert.Equal(t, "absolute", gotPayload["stopLossType"])
	assert.Equal(t, 1.08, gotPayload["stopLoss"])
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestPlaceOrderAmbiguousOnTransportFailure(t *testing.T) {
	c := newTestClient(t, "http://broker.invalid")
	c.SetHTTPClient(&http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})})

	_, err := c.PlaceOrder(context.Background(), OrderIntent{
		Side: "buy", Type: "market", Qty: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, ErrAmbiguousSubmission)
}

func TestExpiredTokenTriggersSingleReauth(t *testing.T) {
	var authCalls, positionCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/jwt/token":
			authCalls.Add(1)
			fmt.Fprint(w, `{"accessToken":"token-2","refreshToken":"refresh-2"}`)
		case "/trade/accounts/1001/positions":
			if positionCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"s":"ok","d":{"positions":[]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), authCalls.Load())
	assert.Equal(t, int32(2), positionCalls.Load())
}

func TestReauthRejectedIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/jwt/token":
			fmt.Fprint(w, `{"accessToken":"token-2","refreshToken":""}`)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetPositions(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestBrokerErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"s":"error","errmsg":"Insufficient margin"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.PlaceOrder(context.Background(), OrderIntent{Side: "buy", Type: "market", Qty: decimal.NewFromInt(1)})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Message, "Insufficient margin")
}

func TestModifyPositionPatchesStopLoss(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/trade/positions/p-9", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		fmt.Fprint(w, `{"s":"ok","d":{}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	sl := decimal.RequireFromString("1.0850")
	offset := decimal.NewFromInt(15)
	err := c.ModifyPosition(context.Background(), "p-9", PositionPatch{StopLoss: &sl, TrailingOffset: &offset})
	require.NoError(t, err)
	assert.Equal(t, 1.085, gotPayload["stopLoss"])
	assert.Equal(t, 15.0, gotPayload["trailingOffset"])
}

func TestRetriesTransientThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetPositions(context.Background())
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(defaultAttempts), calls.Load())
}

func TestRetryAttemptsRespectCategoryQuota(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	// 配额只剩 2 次：重试风暴下第 3 次往返必须卡在限流准入上，
	// 而不是越过配额打到经纪商。
	limiter, err := ratelimit.New([]ratelimit.Rule{
		{Category: "GET_POSITIONS", Measure: "minutes", IntervalNum: 1, Limit: 2},
	})
	require.NoError(t, err)
	c, err := NewClient(config.BrokerConfig{
		BaseURL:        srv.URL,
		Email:          "bot@example.com",
		Password:       "secret",
		Server:         "DEMO",
		AccountID:      1001,
		AccNum:         3,
		TimeoutSeconds: 5,
	}, limiter)
	require.NoError(t, err)
	c.tokens.accessToken = "token-1"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err = c.GetPositions(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadBrokerConfigBuildsSchemasAndRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade/config", r.URL.Path)
		fmt.Fprint(w, `{"s":"ok","d":{
			"configVersion": 4,
			"rateLimits": [
				{"rateLimitType":"PLACE_ORDER","measure":"SECONDS","intervalNum":1,"limit":2},
				{"rateLimitType":"GET_POSITIONS","measure":"MINUTES","intervalNum":1,"limit":120}
			],
			"positionsConfig": {"columns":[{"id":"id"},{"id":"qty"},{"id":"avgPrice"}]},
			"accountDetailsConfig": {"columns":[{"id":"balance"},{"id":"availableFunds"}]}
		}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	set, rules, err := c.LoadBrokerConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, set.Version)

	positions, ok := set.Table("positions")
	require.True(t, ok)
	require.Len(t, positions.Columns, 3)
	// 在线配置只给列标识，类型由内置表推断。
	assert.Equal(t, schema.TypeNumber, positions.Columns[1].Type)

	require.Len(t, rules, 2)
	assert.Equal(t, "PLACE_ORDER", rules[0].Category)
	assert.Equal(t, "seconds", rules[0].Measure)
	assert.Equal(t, 120, rules[1].Limit)
}

func TestLoadBrokerConfigRejectsMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// rateLimits 条目缺少 limit 字段。
		fmt.Fprint(w, `{"s":"ok","d":{"rateLimits":[{"rateLimitType":"PLACE_ORDER","measure":"SECONDS","intervalNum":1}]}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, _, err := c.LoadBrokerConfig(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "结构校验失败")
}
