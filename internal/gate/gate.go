// Package gate holds the pre-submission checks: the news blackout predicate
// and the sticky daily-drawdown halt. A denial is a normal business outcome,
// not an error; the reason string travels with the signal's terminal state.
package gate

// Decision 是闸门裁定结果。
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow(reason string) Decision {
	return Decision{Allowed: true, Reason: reason}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}
