// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/pdiddy/food-resolver/internal/httputil"
)

// NewLimiter returns a token-bucket limiter allowing rps requests per
// second, or nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// doJSON sends req after waiting on the limiter and decodes a 2xx JSON body
// into dst.
func doJSON(ctx context.Context, client *http.Client, l *rate.Limiter, req *http.Request, service string, dst any) error {
	if err := wait(ctx, l); err != nil {
		return err
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp, service); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("parsing %s response: %w", service, err)
	}
	return nil
}
