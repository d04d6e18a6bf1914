package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vvka-141/redismcp/internal/retry"
	"github.com/vvka-141/redismcp/pkg/redismcp"
)

// State describes the lifecycle of the refresher.
type State int32

const (
	// StateIdle means Start has not run yet.
	StateIdle State = iota
	// StateAcquiring means the first acquisition is in flight.
	StateAcquiring
	// StateValid means an unexpired credential is published.
	StateValid
	// StateDegraded means the published credential expired and renewal keeps
	// failing. Readers receive ErrAuthFailed until a refresh succeeds.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateValid:
		return "valid"
	case StateDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Refresher keeps a current credential published for concurrent readers and
// renews expiring tokens in the background.
//
// The published credential is an immutable snapshot swapped atomically on
// every successful acquisition; Current never blocks on a refresh. A stale
// but unexpired credential keeps being served while renewal attempts fail.
// Once it expires with renewal still failing, Current returns ErrAuthFailed
// until a later attempt succeeds.
type Refresher struct {
	provider CredentialProvider
	logger   redismcp.Logger

	ratio      float64
	lowerBound time.Duration

	acquireExec *retry.Executor
	loopBackoff redismcp.BackoffStrategy

	current atomic.Pointer[redismcp.Credential]
	state   atomic.Int32

	// onRefresh, when set, observes every published credential.
	onRefresh func(*redismcp.Credential)

	// now is a test seam.
	now func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// RefresherOption configures optional Refresher behavior.
type RefresherOption func(*Refresher)

// WithOnRefresh installs a hook observing every published credential. The
// hook runs on the renewal goroutine and must not block.
func WithOnRefresh(hook func(*redismcp.Credential)) RefresherOption {
	return func(r *Refresher) {
		r.onRefresh = hook
	}
}

// NewRefresher creates a Refresher for the given provider. Renewal timing and
// retry tuning come from the selection; the logger may be nil.
func NewRefresher(provider CredentialProvider, selection *redismcp.AuthFlowSelection, logger redismcp.Logger, opts ...RefresherOption) *Refresher {
	ratio := selection.ExpirationRefreshRatio
	if ratio <= 0 {
		ratio = redismcp.DefaultExpirationRefreshRatio
	}
	lowerBound := selection.LowerRefreshBound
	if lowerBound <= 0 {
		lowerBound = redismcp.DefaultLowerRefreshBound
	}
	retryDelay := selection.RetryDelay
	if retryDelay <= 0 {
		retryDelay = redismcp.DefaultRetryInitialDelay
	}
	maxAttempts := selection.RetryMaxAttempts
	if maxAttempts == 0 {
		maxAttempts = redismcp.DefaultRetryMaxAttempts
	}

	// Each acquisition retries transient token endpoint failures a bounded
	// number of times; the renewal loop itself keeps retrying with its own
	// capped backoff until the credential is replaced or the context ends.
	acquireStrategy := retry.NewExponentialBackoff(maxAttempts,
		retry.WithInitialDelay(retryDelay),
		retry.WithMaxDelay(redismcp.DefaultRetryMaxDelay),
	)
	loopStrategy := retry.NewExponentialBackoff(-1,
		retry.WithInitialDelay(retryDelay),
		retry.WithMaxDelay(redismcp.DefaultRetryMaxDelay),
	)

	r := &Refresher{
		provider:    provider,
		logger:      logger,
		ratio:       ratio,
		lowerBound:  lowerBound,
		acquireExec: retry.NewExecutor(tokenErrorClassifier{}, acquireStrategy),
		loopBackoff: loopStrategy,
		now:         time.Now,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start performs the first acquisition synchronously and, for expiring
// credentials, launches the renewal goroutine. A provider that issues
// non-expiring credentials is called exactly once and no goroutine runs.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("refresher already started")
	}
	r.started = true
	r.mu.Unlock()

	r.state.Store(int32(StateAcquiring))
	r.verbose("acquiring initial credential via %s", r.provider)

	cred, err := r.acquire(ctx)
	if err != nil {
		r.state.Store(int32(StateDegraded))
		close(r.done)
		return fmt.Errorf("initial credential acquisition via %s failed: %w", r.provider, err)
	}
	r.publish(cred)

	if !cred.Expires() {
		r.verbose("credential does not expire, renewal disabled")
		close(r.done)
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(loopCtx)
	return nil
}

// Stop ends the renewal goroutine and waits for it to exit. Safe to call
// multiple times and before Start.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	started := r.started
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-r.done
	}
}

// Current returns the published credential. It never blocks on a refresh.
func (r *Refresher) Current() (*redismcp.Credential, error) {
	cred := r.current.Load()
	if cred == nil {
		return nil, fmt.Errorf("no credential acquired yet: %w", redismcp.ErrAuthFailed)
	}
	if cred.ExpiredAt(r.now()) {
		return nil, fmt.Errorf("credential expired at %s and renewal has not succeeded: %w",
			cred.ExpiresAt.Format(time.RFC3339), redismcp.ErrAuthFailed)
	}
	return cred, nil
}

// State returns the current lifecycle state.
func (r *Refresher) State() State {
	return State(r.state.Load())
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)

	for {
		cred := r.current.Load()
		wait := r.renewalDeadline(cred).Sub(r.now())
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !r.refreshUntilReplaced(ctx) {
			return
		}
	}
}

// renewalDeadline computes when the credential should be renewed: the
// configured fraction of its lifetime after acquisition, but never later
// than the lower bound before expiry.
func (r *Refresher) renewalDeadline(c *redismcp.Credential) time.Time {
	lifetime := c.ExpiresAt.Sub(c.AcquiredAt)
	deadline := c.AcquiredAt.Add(time.Duration(float64(lifetime) * r.ratio))
	if latest := c.ExpiresAt.Add(-r.lowerBound); deadline.After(latest) {
		deadline = latest
	}
	return deadline
}

// refreshUntilReplaced retries acquisition until a new credential is
// published or the context ends. Returns false when the context ended.
func (r *Refresher) refreshUntilReplaced(ctx context.Context) bool {
	for attempt := 0; ; attempt++ {
		cred, err := r.acquire(ctx)
		if err == nil {
			r.publish(cred)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		r.errorf("credential refresh via %s failed: %v", r.provider, err)

		// Serve the stale credential while it is still valid; flag
		// degradation once it lapses.
		if prev := r.current.Load(); prev != nil && prev.ExpiredAt(r.now()) {
			r.state.Store(int32(StateDegraded))
		}

		delay := r.loopBackoff.NextDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

func (r *Refresher) acquire(ctx context.Context) (*redismcp.Credential, error) {
	var cred *redismcp.Credential
	err := r.acquireExec.Execute(ctx, func(ctx context.Context) error {
		var err error
		cred, err = r.provider.Acquire(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

func (r *Refresher) publish(cred *redismcp.Credential) {
	r.current.Store(cred)
	r.state.Store(int32(StateValid))
	if cred.Expires() {
		r.verbose("credential published, expires %s", cred.ExpiresAt.Format(time.RFC3339))
	}
	if r.onRefresh != nil {
		r.onRefresh(cred)
	}
}

func (r *Refresher) verbose(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Verbose(format, args...)
	}
}

func (r *Refresher) errorf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Error(format, args...)
	}
}

// tokenErrorClassifier treats token endpoint failures as retryable unless
// they indicate rejected client configuration, which no retry can fix.
type tokenErrorClassifier struct{}

func (tokenErrorClassifier) IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid_client"),
		strings.Contains(msg, "unauthorized_client"),
		strings.Contains(msg, "aadsts7000215"), // invalid client secret
		strings.Contains(msg, "aadsts700016"), // application not found
		strings.Contains(msg, "aadsts90002"): // tenant not found
		return false
	}

	// Network failures, 5xx responses and throttling are worth retrying.
	return true
}
