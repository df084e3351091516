package telemetry

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "backoffice-api"

// RequestTracing starts a server span per request and records its latency on metrics.
// Spans are named after the matched route so member ids do not explode cardinality.
func RequestTracing(tp trace.TracerProvider, metrics *Metrics) fiber.Handler {
	tracer := tp.Tracer(tracerName)

	return func(c *fiber.Ctx) error {
		started := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(c.Context(), propagation.HeaderCarrier(c.GetReqHeaders()))

		ctx, span := tracer.Start(ctx, c.Method(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Method()),
				attribute.String("http.url", c.OriginalURL()),
				attribute.String("http.client_ip", c.IP()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// The route is only known once routing ran
		route := c.Route().Path
		span.SetName(fmt.Sprintf("%s %s", c.Method(), route))
		span.SetAttributes(attribute.String("http.route", route))
		if id := c.Params("memberId"); id != "" {
			span.SetAttributes(attribute.String("member.id", id))
		}

		status := c.Response().StatusCode()
		if err != nil {
			// the app error handler has not written the response yet
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}

		metrics.RequestServed(ctx, c.Method(), route, status, time.Since(started))
		return err
	}
}
