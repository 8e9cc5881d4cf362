/*
Package tracing provides lightweight request tracing for the host's HTTP
surface and its outbound calls.

Every traced operation becomes a Span with a trace ID shared by the whole
request flow. Finished spans are logged through zap by a background
collector.

# Usage

	tracer := tracing.New("hostkit", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "updater.check", func(ctx context.Context) error {
		return check(ctx)
	})

# Propagation

Traces travel in the X-Trace-ID and X-Span-ID headers. Incoming values are
continued, and outgoing requests carry them via InjectHeaders.
*/
package tracing
