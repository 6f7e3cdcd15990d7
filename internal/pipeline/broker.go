package pipeline

import (
	"context"

	"tlbot/internal/broker/tradelocker"
)

// Broker 是执行链对经纪商客户端的依赖面，测试中用 mock 替换。
type Broker interface {
	GetAccountState(ctx context.Context) (tradelocker.AccountState, error)
	PlaceOrder(ctx context.Context, intent tradelocker.OrderIntent) (string, error)
	GetOrders(ctx context.Context) ([]tradelocker.Order, error)
	GetPositions(ctx context.Context) ([]tradelocker.Position, error)
	InstrumentByName(ctx context.Context, name string) (tradelocker.Instrument, error)
	GetQuote(ctx context.Context, routeID, tradableInstrumentID int64) (tradelocker.Quote, error)
}
