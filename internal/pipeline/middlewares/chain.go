package middlewares

import (
	"tlbot/internal/gate"
	"tlbot/internal/pipeline"
	"tlbot/internal/risk"
)

// StandardChain 组装生产用的执行链，stage 顺序即状态机顺序。
func StandardChain(broker pipeline.Broker, news *gate.NewsGate, drawdown *gate.DrawdownGate, params *risk.Params) []pipeline.Middleware {
	return []pipeline.Middleware{
		NewValidate(0),
		NewSnapshot(1, broker),
		NewNewsCheck(2, news),
		NewDrawdownCheck(3, drawdown),
		NewSizing(4, broker, params),
		NewSubmit(5, broker),
	}
}
