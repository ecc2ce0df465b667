// Package interlock asks an external safety service whether equipment may
// start. The oracle fails open: if the service is unreachable or answers
// garbage, starts are permitted and the failure is logged. Farm equipment
// must remain operable when an advisory service is down.
package interlock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds one interlock query.
const DefaultTimeout = 1 * time.Second

// HTTPOracle queries GET {base}/interlock/{name} and expects
// {"blocked": true|false}.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPOracle creates an oracle against the given base URL.
func NewHTTPOracle(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "interlock").Logger(),
	}
}

// MayStart reports whether the named equipment may be switched on.
func (o *HTTPOracle) MayStart(ctx context.Context, name string) bool {
	reqURL := fmt.Sprintf("%s/interlock/%s", o.baseURL, url.PathEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		o.logger.Warn().Err(err).Str("equipment", name).Msg("Interlock request build failed, allowing start")
		return true
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.Warn().Err(err).Str("equipment", name).Msg("Interlock service unreachable, allowing start")
		return true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.logger.Warn().
			Int("status", resp.StatusCode).
			Str("equipment", name).
			Msg("Interlock service error, allowing start")
		return true
	}

	var verdict struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		o.logger.Warn().Err(err).Str("equipment", name).Msg("Interlock response malformed, allowing start")
		return true
	}

	if verdict.Blocked {
		o.logger.Info().Str("equipment", name).Msg("Start blocked by interlock")
	}
	return !verdict.Blocked
}

// Static is a fixed-verdict oracle for deployments with no interlock
// service configured.
type Static struct {
	Allow bool
}

// MayStart returns the configured verdict for every equipment.
func (s Static) MayStart(context.Context, string) bool {
	return s.Allow
}
