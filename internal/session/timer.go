package session

// TickResult is the outcome of advancing the exam countdown.
type TickResult struct {
	RemainingMs int64
	Expired     bool
}

// Tick advances the countdown by elapsedMs and reports expiry. It is pure:
// the scheduler that calls it decides what to do with the result (persist
// the remaining time on a throttled interval, force-submit on expiry).
func Tick(remainingMs, elapsedMs int64) TickResult {
	r := remainingMs - elapsedMs
	if r <= 0 {
		return TickResult{RemainingMs: 0, Expired: true}
	}
	return TickResult{RemainingMs: r}
}
