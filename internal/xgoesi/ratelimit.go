package xgoesi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/antihax/goesi"
	"golang.org/x/time/rate"
)

type contextKey string

var (
	contextCharacterID contextKey = "characterID"
	contextOperationID contextKey = "operationID"
)

func (c contextKey) String() string {
	return "xgoesi-" + string(c)
}

// NewContextWithAuth returns a new context with a characterID and an access token.
func NewContextWithAuth(ctx context.Context, characterID int32, accessToken string) context.Context {
	ctx = context.WithValue(ctx, contextCharacterID, characterID)
	ctx = context.WithValue(ctx, goesi.ContextAccessToken, accessToken)
	return ctx
}

// ContextHasAccessToken reports whether the context contains an access token.
func ContextHasAccessToken(ctx context.Context) bool {
	return ctx.Value(goesi.ContextAccessToken) != nil
}

// NewContextWithOperationID returns a new context with an operation ID.
func NewContextWithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, contextOperationID, operationID)
}

const (
	errorLimitResetFallback = 60 * time.Second
	retryAfterFallback      = 900 * time.Second
	minErrorsRemainDefault  = 5

	headerErrorLimitRemain = "X-ESI-Error-Limit-Remain"
	headerErrorLimitReset  = "X-ESI-Error-Limit-Reset"
	headerRetryAfter       = "Retry-After"
)

// rateLimitGroup is a rate limit group of ESI.
type rateLimitGroup struct {
	maxTokens  int
	windowSize time.Duration
}

var rateLimitGroups = map[string]rateLimitGroup{
	"char-notification": {maxTokens: 15, windowSize: 15 * time.Minute},
	"corp-structure":    {maxTokens: 300, windowSize: 15 * time.Minute},
}

// operationRateLimitGroups maps the ESI operations used by this package to their rate limit groups.
// Operations without a group are only error limited.
var operationRateLimitGroups = map[string]string{
	opCharacterNotifications: "char-notification",
	opCorporationStructures:  "corp-structure",
	opSolarSystem:            "",
	opType:                   "",
	opUniverseNames:          "",
}

// RateLimiter is a transport which respects ESI rate limits and the ESI error limit.
//
// Requests are assigned to a rate limit bucket by the operation ID in their context
// (see [NewContextWithOperationID]) and, for authenticated requests,
// the character ID (see [NewContextWithAuth]).
// Requests within a bucket are spaced out to stay below the average rate of the group.
// A 429 response blocks the bucket until its Retry-After has passed.
//
// Requests without a rate limit group are only error limited:
// when the remaining errors fall to MinErrorsRemain or a 420 is received,
// all such requests are blocked until the error window resets.
// Blocked requests receive a synthetic response without being sent.
//
// The zero value is ready to use. RateLimiter is safe for concurrent use.
type RateLimiter struct {
	// Transport used to make requests. When nil, http.DefaultTransport is used.
	Transport http.RoundTripper

	// Minimum number of remaining errors before requests are blocked.
	MinErrorsRemain int

	mu             sync.Mutex
	errorsBlocked  time.Time
	bucketBlocked  map[string]time.Time
	bucketLimiters map[string]*rate.Limiter
}

var _ http.RoundTripper = (*RateLimiter)(nil)

func (rl *RateLimiter) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := slog.With("method", req.Method, "url", req.URL)
	transport := rl.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	bucket, group, hasGroup, err := rateLimitBucket(req.Context())
	if err != nil {
		return nil, err
	}
	if !hasGroup {
		return rl.roundTripErrorLimited(req, transport, logger)
	}
	return rl.roundTripRateLimited(req, transport, bucket, group, logger)
}

func (rl *RateLimiter) roundTripErrorLimited(req *http.Request, transport http.RoundTripper, logger *slog.Logger) (*http.Response, error) {
	rl.mu.Lock()
	wait := time.Until(rl.errorsBlocked)
	rl.mu.Unlock()
	if wait > 0 {
		resp, err := newBlockedResponse(req, StatusTooManyErrors, fmt.Sprintf("error limit timeout: %s", wait))
		if err != nil {
			return nil, err
		}
		resp.Header.Set(headerErrorLimitReset, strconv.Itoa(int(wait.Seconds())+1))
		resp.Header.Set(headerErrorLimitRemain, "0")
		logger.Warn("Blocked request due to error limit timeout", "wait", wait)
		return resp, nil
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	minRemain := rl.MinErrorsRemain
	if minRemain <= 0 || minRemain >= 100 {
		minRemain = minErrorsRemainDefault
	}
	remain, hasRemain := parseIntHeader(resp, headerErrorLimitRemain)
	if resp.StatusCode == StatusTooManyErrors || hasRemain && remain <= minRemain {
		timeout := errorLimitResetFallback
		if v, ok := parseIntHeader(resp, headerErrorLimitReset); ok {
			timeout = time.Duration(v) * time.Second
		}
		rl.mu.Lock()
		rl.errorsBlocked = time.Now().Add(timeout)
		rl.mu.Unlock()
		logger.Warn("Blocking requests due to ESI error limit", "status", resp.StatusCode, "timeout", timeout)
	}
	return resp, nil
}

func (rl *RateLimiter) roundTripRateLimited(req *http.Request, transport http.RoundTripper, bucket string, group rateLimitGroup, logger *slog.Logger) (*http.Response, error) {
	rl.mu.Lock()
	if rl.bucketBlocked == nil {
		rl.bucketBlocked = make(map[string]time.Time)
	}
	if rl.bucketLimiters == nil {
		rl.bucketLimiters = make(map[string]*rate.Limiter)
	}
	wait := time.Until(rl.bucketBlocked[bucket])
	lim, ok := rl.bucketLimiters[bucket]
	if !ok {
		// each request consumes up to 2 tokens and 5xx responses consume more
		d := group.windowSize / time.Duration(max(group.maxTokens/2, 1))
		lim = rate.NewLimiter(rate.Every(time.Duration(float64(d)*1.1)), 1)
		rl.bucketLimiters[bucket] = lim
	}
	rl.mu.Unlock()
	if wait > 0 {
		resp, err := newBlockedResponse(req, http.StatusTooManyRequests, fmt.Sprintf("rate limit timeout for %s: %s", bucket, wait))
		if err != nil {
			return nil, err
		}
		resp.Header.Set(headerRetryAfter, strconv.Itoa(int(wait.Seconds())+1))
		logger.Warn("Blocked request due to rate limit timeout", "bucket", bucket, "wait", wait)
		return resp, nil
	}
	if err := lim.Wait(req.Context()); err != nil {
		return nil, err
	}
	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		timeout := retryAfterFallback
		if v, ok := parseIntHeader(resp, headerRetryAfter); ok {
			timeout = time.Duration(v) * time.Second
		}
		rl.mu.Lock()
		rl.bucketBlocked[bucket] = time.Now().Add(timeout)
		rl.mu.Unlock()
		logger.Warn("Blocking rate limit bucket", "bucket", bucket, "timeout", timeout)
	}
	return resp, nil
}

// parseIntHeader returns the value of a header holding a non-negative integer
// and reports whether it was found and valid.
func parseIntHeader(resp *http.Response, key string) (int, bool) {
	v, err := strconv.Atoi(resp.Header.Get(key))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func rateLimitBucket(ctx context.Context) (string, rateLimitGroup, bool, error) {
	operationID, found := ctx.Value(contextOperationID).(string)
	if !found {
		return "", rateLimitGroup{}, false, nil
	}
	name, found := operationRateLimitGroups[operationID]
	if !found {
		return "", rateLimitGroup{}, false, fmt.Errorf("ratelimiter: %s: unknown operation", operationID)
	}
	if name == "" {
		return "", rateLimitGroup{}, false, nil
	}
	characterID, found := ctx.Value(contextCharacterID).(int32)
	if ContextHasAccessToken(ctx) && !found {
		return "", rateLimitGroup{}, false, fmt.Errorf("ratelimiter: %s: missing character ID for authed request", operationID)
	}
	group := rateLimitGroups[name]
	return fmt.Sprintf("%s-%d", name, characterID), group, true, nil
}
