package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/googleapis/gax-go/v2/apierror"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GuardConfig bounds every call made to a hosted model provider.
type GuardConfig struct {
	Timeout    time.Duration // per attempt; 0 leaves the caller's deadline alone
	MaxRetries int           // extra attempts after the first failure
	Backoff    time.Duration // first wait, doubling per retry
	RateLimit  float64       // requests per second; 0 is unlimited
}

// Guard applies the rate limit, timeout and retry policy to provider calls.
type Guard struct {
	config  GuardConfig
	limiter *rate.Limiter
}

func NewGuard(config GuardConfig) *Guard {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Backoff == 0 {
		config.Backoff = 500 * time.Millisecond
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Guard{
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Do runs fn until it succeeds, the error is permanent, or the retries run out.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(g.newBackOff(), uint64(g.config.MaxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := g.attempt(ctx, fn)
		if err != nil && (ctx.Err() != nil || !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		log.Printf("Provider call failed, retrying in %s: %v", wait, err)
	})
}

// Once runs fn a single time under the limiter and timeout. Streaming calls
// use it because a retry would replay chunks already delivered.
func (g *Guard) Once(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.attempt(ctx, fn)
}

func (g *Guard) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (g *Guard) newBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(g.config.Backoff),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(30*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
}

// retryable reports whether err is worth another attempt: network failures,
// attempt timeouts, rate limiting and server errors. Anything else, including
// errors that cannot be classified, is treated as permanent.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrEmptyCompletion):
		return false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	}

	if code, ok := httpStatus(err); ok {
		return code == http.StatusTooManyRequests || code >= 500
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// langchaingo's openai client reports failures only as text.
var statusInMessage = regexp.MustCompile(`status code: (\d{3})`)

// httpStatus extracts the HTTP status a provider answered with.
func httpStatus(err error) (int, bool) {
	var oaAPIErr *goopenai.APIError
	if errors.As(err, &oaAPIErr) {
		return oaAPIErr.HTTPStatusCode, true
	}
	var oaReqErr *goopenai.RequestError
	if errors.As(err, &oaReqErr) {
		return oaReqErr.HTTPStatusCode, true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code, true
	}
	var gaxErr *apierror.APIError
	if errors.As(err, &gaxErr) && gaxErr.HTTPCode() > 0 {
		return gaxErr.HTTPCode(), true
	}

	if m := statusInMessage.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code, true
	}
	return 0, false
}
