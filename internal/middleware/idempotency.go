package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries the client-chosen key of a mutating request
const IdempotencyHeader = "X-Correlation-ID"

// inFlightTTL bounds how long a crashed request can hold its key
const inFlightTTL = 30 * time.Second

type cachedResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// IdempotencyMiddleware replays the stored response when a POST/PATCH/PUT arrives again
// with the same X-Correlation-ID within ttl. A renewal retried by a flaky client is thus
// applied once. Keys are scoped by method and path. A second request arriving while the
// first is still running gets 409 and should retry.
func IdempotencyMiddleware(redisClient *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPatch && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		correlationID := c.Get(IdempotencyHeader)
		if correlationID == "" {
			return c.Next()
		}

		key := fmt.Sprintf("idempotency:%s:%s:%s", c.Method(), c.Path(), correlationID)
		ctx := c.UserContext()

		if raw, err := redisClient.Get(ctx, key).Bytes(); err == nil {
			var cached cachedResponse
			if json.Unmarshal(raw, &cached) == nil {
				c.Set("X-Idempotent-Replay", "true")
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				return c.Status(cached.Status).Send(cached.Body)
			}
		}

		lockKey := key + ":inflight"
		acquired, err := redisClient.SetNX(ctx, lockKey, "1", inFlightTTL).Result()
		switch {
		case err != nil:
			log.Printf("[Idempotency] in-flight marker unavailable for %s: %v", correlationID, err)
		case !acquired:
			c.Set(fiber.HeaderRetryAfter, "1")
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "a request with this " + IdempotencyHeader + " is still in progress",
			})
		default:
			defer func() {
				delCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := redisClient.Del(delCtx, lockKey).Err(); err != nil {
					log.Printf("[Idempotency] failed to release %s: %v", correlationID, err)
				}
			}()
		}

		if err := c.Next(); err != nil {
			return err
		}

		// Only successful responses are replayed; failures may be retried for real
		statusCode := c.Response().StatusCode()
		if statusCode < 200 || statusCode >= 300 {
			return nil
		}

		// fasthttp reuses the body buffer once the handler returns
		body := append([]byte(nil), c.Response().Body()...)
		raw, err := json.Marshal(cachedResponse{Status: statusCode, Body: body})
		if err != nil {
			return nil
		}

		setCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Set(setCtx, key, raw, ttl).Err(); err != nil {
			log.Printf("[Idempotency] failed to store response for %s: %v", correlationID, err)
		}
		return nil
	}
}
