package client

// RetryState tracks where a single call is in the 401 recovery branch:
//
//	Fresh ──401──▶ Retrying ──refresh ok──▶ Exhausted ──▶ replayed once
//	                  └──refresh failed──▶ Exhausted ──▶ AuthenticationError
//
// Only a Fresh call may start a refresh, so no call refreshes twice.
type RetryState int

const (
	Fresh RetryState = iota
	Retrying
	Exhausted
)

func (s RetryState) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Retrying:
		return "retrying"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// call is the per-invocation state carried alongside a Request. The Request
// itself is never mutated.
type call struct {
	req   Request
	body  []byte
	state RetryState
	// token overrides the stored access token for the replay after a refresh.
	token string
}
