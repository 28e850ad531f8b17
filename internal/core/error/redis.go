package errx

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis classifies a session store failure. A missing key is a 404 and
// a request that ran out of time is a 504; any other failure is a 502.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, redis.Nil):
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return New(err, http.StatusGatewayTimeout, RedisTimeoutMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
