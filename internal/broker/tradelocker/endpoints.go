package tradelocker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tlbot/internal/logger"
)

// GetPositions 拉取当前账户的全部持仓。
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	d, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("/trade/accounts/%d/positions", c.accountID),
		category: categoryGetPositions,
	})
	if err != nil {
		return nil, err
	}
	records, err := c.decodeTable("positions", d)
	if err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(records))
	for _, rec := range records {
		var p Position
		if err := rec.ScanInto(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetOrders 拉取当前所有挂单。
func (c *Client) GetOrders(ctx context.Context) ([]Order, error) {
	return c.fetchOrders(ctx, "orders", fmt.Sprintf("/trade/accounts/%d/orders", c.accountID), categoryGetOrders)
}

// GetOrdersHistory 拉取历史订单，按配置截断行数上限。
func (c *Client) GetOrdersHistory(ctx context.Context) ([]Order, error) {
	orders, err := c.fetchOrders(ctx, "ordersHistory", fmt.Sprintf("/trade/accounts/%d/ordersHistory", c.accountID), categoryOrdersHistory)
	if err != nil {
		return nil, err
	}
	if c.maxHistory > 0 && len(orders) > c.maxHistory {
		orders = orders[:c.maxHistory]
	}
	return orders, nil
}

func (c *Client) fetchOrders(ctx context.Context, table, path, category string) ([]Order, error) {
	d, err := c.do(ctx, request{method: http.MethodGet, path: path, category: category})
	if err != nil {
		return nil, err
	}
	records, err := c.decodeTable(table, d)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(records))
	for _, rec := range records {
		var o Order
		if err := rec.ScanInto(&o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// GetFilledOrders 拉取已成交订单。
func (c *Client) GetFilledOrders(ctx context.Context) ([]FilledOrder, error) {
	d, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("/trade/accounts/%d/filledOrders", c.accountID),
		category: categoryOrdersHistory,
	})
	if err != nil {
		return nil, err
	}
	records, err := c.decodeTable("filledOrders", d)
	if err != nil {
		return nil, err
	}
	out := make([]FilledOrder, 0, len(records))
	for _, rec := range records {
		var f FilledOrder
		if err := rec.ScanInto(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// GetAccountState 拉取账户资金快照。accountDetails 表只有一行。
func (c *Client) GetAccountState(ctx context.Context) (AccountState, error) {
	d, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("/trade/accounts/%d/state", c.accountID),
		category: categoryGetAccountState,
	})
	if err != nil {
		return AccountState{}, err
	}
	t, ok := c.schemaSet().Table("accountDetails")
	if !ok {
		return AccountState{}, fmt.Errorf("tradelocker: 缺少 accountDetails 表定义")
	}
	row, ok := d.Get("accountDetailsData").Value().([]any)
	if !ok {
		return AccountState{}, fmt.Errorf("tradelocker: accountDetailsData 响应不是数组")
	}
	rec, err := t.DecodeRow(row)
	if err != nil {
		return AccountState{}, err
	}
	var state AccountState
	if err := rec.ScanInto(&state); err != nil {
		return AccountState{}, err
	}
	state.FetchedAt = time.Now().UTC()
	return state, nil
}

// PlaceOrder submits exactly one order and returns the broker order id.
// No transport-level retry: a second attempt could double-submit. A transport
// failure after the request went out surfaces as ErrAmbiguousSubmission and
// must be reconciled by polling before any compensating action.
func (c *Client) PlaceOrder(ctx context.Context, intent OrderIntent) (string, error) {
	d, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     fmt.Sprintf("/trade/accounts/%d/orders", c.accountID),
		category: categoryPlaceOrder,
		payload:  intent.payload(),
		attempts: 1,
	})
	if err != nil {
		if errors.Is(err, ErrTransient) {
			return "", fmt.Errorf("%w: %v", ErrAmbiguousSubmission, err)
		}
		return "", err
	}
	orderID := d.Get("orderId").String()
	if orderID == "" {
		return "", fmt.Errorf("tradelocker: 经纪商未返回 orderId")
	}
	logger.Infof("tradelocker: 订单已提交 id=%s %s %s qty=%s", orderID, intent.Instrument, intent.Side, intent.Qty)
	return orderID, nil
}

// ModifyOrder 修改挂单的价格/保护位。
func (c *Client) ModifyOrder(ctx context.Context, orderID string, patch OrderPatch) error {
	payload := patch.payload()
	if len(payload) == 0 {
		return fmt.Errorf("tradelocker: 空的订单修改请求")
	}
	_, err := c.do(ctx, request{
		method:   http.MethodPatch,
		path:     "/trade/orders/" + url.PathEscape(orderID),
		category: categoryModifyOrder,
		payload:  payload,
	})
	return err
}

// ModifyPosition 调整持仓的止损/止盈/移动止损偏移。
func (c *Client) ModifyPosition(ctx context.Context, positionID string, patch PositionPatch) error {
	payload := patch.payload()
	if len(payload) == 0 {
		return fmt.Errorf("tradelocker: 空的持仓修改请求")
	}
	_, err := c.do(ctx, request{
		method:   http.MethodPatch,
		path:     "/trade/positions/" + url.PathEscape(positionID),
		category: categoryModifyOrder,
		payload:  payload,
	})
	return err
}

// ClosePosition 平掉指定持仓。qty 为零表示全平。
func (c *Client) ClosePosition(ctx context.Context, positionID string, qty decimal.Decimal) error {
	payload := map[string]any{}
	if qty.IsPositive() {
		payload["qty"] = qty.InexactFloat64()
	}
	_, err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     "/trade/positions/" + url.PathEscape(positionID),
		category: categoryClosePosition,
		payload:  payload,
	})
	return err
}

// GetQuote 拉取品种即时报价。
func (c *Client) GetQuote(ctx context.Context, routeID, tradableInstrumentID int64) (Quote, error) {
	q := url.Values{}
	q.Set("routeId", strconv.FormatInt(routeID, 10))
	q.Set("tradableInstrumentId", strconv.FormatInt(tradableInstrumentID, 10))
	d, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/trade/quotes",
		category: categoryQuotes,
		query:    q,
	})
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Ask: decimal.NewFromFloat(d.Get("ap").Float()),
		Bid: decimal.NewFromFloat(d.Get("bp").Float()),
	}, nil
}

// LoadInstruments 拉取账户可交易品种并缓存，供名称查找使用。
func (c *Client) LoadInstruments(ctx context.Context) ([]Instrument, error) {
	d, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     fmt.Sprintf("/trade/accounts/%d/instruments", c.accountID),
		category: categoryTradeConfig,
	})
	if err != nil {
		return nil, err
	}
	var instruments []Instrument
	if raw := d.Get("instruments").Raw; raw != "" {
		if err := json.Unmarshal([]byte(raw), &instruments); err != nil {
			return nil, fmt.Errorf("解析 instruments 响应失败: %w", err)
		}
	}
	c.instrMu.Lock()
	c.instruments = make(map[string]Instrument, len(instruments))
	for _, ins := range instruments {
		c.instruments[strings.ToUpper(ins.Name)] = ins
	}
	c.instrMu.Unlock()
	logger.Infof("tradelocker: 已加载 %d 个可交易品种", len(instruments))
	return instruments, nil
}

// InstrumentByName 按名称查找缓存的品种；缓存为空时现场拉取。
func (c *Client) InstrumentByName(ctx context.Context, name string) (Instrument, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	c.instrMu.Lock()
	cached := c.instruments
	c.instrMu.Unlock()
	if cached == nil {
		if _, err := c.LoadInstruments(ctx); err != nil {
			return Instrument{}, err
		}
		c.instrMu.Lock()
		cached = c.instruments
		c.instrMu.Unlock()
	}
	ins, ok := cached[key]
	if !ok {
		return Instrument{}, fmt.Errorf("tradelocker: 未找到品种 %q", name)
	}
	return ins, nil
}
