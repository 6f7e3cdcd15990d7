package tradelocker

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tlbot/internal/broker/ratelimit"
	"tlbot/internal/broker/schema"
	"tlbot/internal/logger"
)

// /trade/config 是列顺序与限流规则的唯一权威来源。文档先过结构校验，
// 再转成本地表定义与限流规则，避免经纪商侧的格式漂移悄悄破坏解码。
//
//go:embed config_schema.json
var configSchemaRaw string

var configSchema = jsonschema.MustCompileString("config_schema.json", configSchemaRaw)

// 配置文档键名 -> 逻辑表名。
var tableConfigKeys = map[string]string{
	"positionsConfig":      "positions",
	"ordersConfig":         "orders",
	"ordersHistoryConfig":  "ordersHistory",
	"filledOrdersConfig":   "filledOrders",
	"accountDetailsConfig": "accountDetails",
}

// LoadBrokerConfig 拉取并校验 /trade/config，返回在线表定义与限流规则。
func (c *Client) LoadBrokerConfig(ctx context.Context) (*schema.Set, []ratelimit.Rule, error) {
	d, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/trade/config",
		category: categoryTradeConfig,
	})
	if err != nil {
		return nil, nil, err
	}

	var doc any
	if err := json.Unmarshal([]byte(d.Raw), &doc); err != nil {
		return nil, nil, fmt.Errorf("解析 /trade/config 失败: %w", err)
	}
	if err := configSchema.Validate(doc); err != nil {
		return nil, nil, fmt.Errorf("/trade/config 结构校验失败: %w", err)
	}

	version := int(d.Get("configVersion").Int())
	if version == 0 {
		version = 1
	}

	tables := make([]schema.TableSchema, 0, len(tableConfigKeys))
	for key, table := range tableConfigKeys {
		colsNode := d.Get(key + ".columns")
		if !colsNode.Exists() {
			continue
		}
		var cols []schema.Column
		for _, col := range colsNode.Array() {
			id := col.Get("id").String()
			cols = append(cols, schema.Column{ID: id, Type: schema.ColumnTypeFor(table, id)})
		}
		t, err := schema.NewTableSchema(table, cols)
		if err != nil {
			return nil, nil, err
		}
		tables = append(tables, t)
	}
	set, err := schema.NewSet(version, tables)
	if err != nil {
		return nil, nil, err
	}

	var rules []ratelimit.Rule
	for _, rl := range d.Get("rateLimits").Array() {
		rules = append(rules, ratelimit.Rule{
			Category:    rl.Get("rateLimitType").String(),
			Measure:     strings.ToLower(rl.Get("measure").String()),
			IntervalNum: int(rl.Get("intervalNum").Int()),
			Limit:       int(rl.Get("limit").Int()),
		})
	}
	return set, rules, nil
}

// Bootstrap 在启动时协商列定义与限流规则：在线文档优先，失败时保留
// 内置回退并记录告警，不阻断启动。
func (c *Client) Bootstrap(ctx context.Context) error {
	set, rules, err := c.LoadBrokerConfig(ctx)
	if err != nil {
		logger.Warnf("tradelocker: 拉取 /trade/config 失败，沿用内置表定义与本地限流规则: %v", err)
		return err
	}
	if len(rules) > 0 {
		if err := c.limiter.Install(rules); err != nil {
			return fmt.Errorf("安装经纪商限流规则失败: %w", err)
		}
	}
	c.UseSchemas(set)
	logger.Infof("tradelocker: 经纪商配置就绪 version=%d tables=%v rules=%d", set.Version, set.Tables(), len(rules))
	return nil
}
