/*
Package resilience provides a circuit breaker for calls to remote services.

The updater wraps its feed requests in a Breaker so that an unreachable
update server fails fast instead of stalling every check.

# Usage

	breaker := resilience.New("update-feed", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, updater.ErrNoUpdate)
		},
	})

	release, err := resilience.Do(ctx, breaker, fetchLatest)

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
