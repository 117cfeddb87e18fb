// Package verifier replays the interactions of a contract against a live provider and
// checks every response it gets back against the declared one.
package verifier

import (
	"context"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultWorkers    = 1
	defaultAttempts   = 3
	defaultRetryDelay = 200 * time.Millisecond
	defaultTimeout    = 30 * time.Second
)

type (
	config struct {
		logger       logrus.FieldLogger
		client       *http.Client
		workers      int
		attempts     int
		retryDelay   time.Duration
		stateHandler StateHandler
	}

	// Option is a function that can modify the default verifier configuration
	Option func(c *config)
)

// WithLogger overrides the default logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithHTTPClient overrides the client used to call the provider
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithWorkers sets how many interactions are replayed at the same time
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithAttempts sets how many times a request failing with a network error is sent
func WithAttempts(n int) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithRetryDelay sets the base of the linear backoff between attempts
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) {
		c.retryDelay = d
	}
}

// WithStateHandler sets the hook called for interactions that declare a provider state
func WithStateHandler(h StateHandler) Option {
	return func(c *config) {
		c.stateHandler = h
	}
}

type Verifier struct {
	log          logrus.FieldLogger
	baseURL      string
	client       *http.Client
	workers      int
	attempts     int
	retryDelay   time.Duration
	stateHandler StateHandler
}

func New(baseURL string, options ...Option) (*Verifier, error) {
	if baseURL == "" {
		return nil, errors.New("provider base url is required")
	}

	c := &config{logger: logrus.StandardLogger()}
	for _, applyOption := range options {
		applyOption(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: defaultTimeout}
	}
	if c.workers < 1 {
		c.workers = defaultWorkers
	}
	if c.attempts < 1 {
		c.attempts = defaultAttempts
	}
	if c.retryDelay == 0 {
		c.retryDelay = defaultRetryDelay
	}

	return &Verifier{
		log:          c.logger.WithField("provider_url", baseURL),
		baseURL:      baseURL,
		client:       c.client,
		workers:      c.workers,
		attempts:     c.attempts,
		retryDelay:   c.retryDelay,
		stateHandler: c.stateHandler,
	}, nil
}

// Verify replays every interaction of artifact. A failing interaction never stops
// the others. Once ctx is done, interactions not yet started are reported skipped
// and finished results are kept.
func (v *Verifier) Verify(ctx context.Context, artifact *contract.Artifact) Report {
	report := Report{
		Consumer: artifact.Consumer.Name,
		Provider: artifact.Provider.Name,
		Results:  make([]Result, len(artifact.Interactions)),
	}
	for i, interaction := range artifact.Interactions {
		report.Results[i] = Result{Interaction: interaction.Identity(), Status: StatusSkipped}
	}

	sem := make(chan struct{}, v.workers)
	var wg sync.WaitGroup

	for i := range artifact.Interactions {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Results[i] = v.verifyInteraction(ctx, report.Consumer, artifact.Interactions[i])
		}(i)
	}
	wg.Wait()

	v.log.WithFields(logrus.Fields{
		"consumer": report.Consumer,
		"passed":   report.Count(StatusPassed),
		"failed":   report.Count(StatusFailed),
		"skipped":  report.Count(StatusSkipped),
	}).Info("verification finished")
	return report
}

func (v *Verifier) verifyInteraction(ctx context.Context, consumer string, interaction contract.Interaction) (result Result) {
	start := time.Now()
	result = Result{Interaction: interaction.Identity(), Status: StatusSkipped}
	log := v.log.WithFields(logrus.Fields{
		"interaction":    interaction.Description,
		"provider_state": interaction.ProviderState,
	})

	defer func() {
		result.Duration = time.Since(start)
	}()

	if interaction.ProviderState != "" {
		if v.stateHandler == nil {
			log.Debug("no state handler, provider state not set up")
		} else if err := v.stateHandler(ctx, consumer, interaction.ProviderState); err != nil {
			if ctx.Err() != nil {
				return result
			}
			result.fail(&ProviderStateError{
				Description:   interaction.Description,
				ProviderState: interaction.ProviderState,
				Err:           err,
			})
			log.WithError(err).Warn("provider state setup failed")
			return result
		}
	}

	actual, attempts, err := v.replay(ctx, log, interaction)
	result.Attempts = attempts
	if err != nil {
		if ctx.Err() != nil {
			return result
		}
		result.fail(err)
		log.WithError(err).Warn("interaction failed")
		return result
	}

	declared := interaction.Response
	match := matching.MatchResponse(declared.Message(), actual, declared.MatchingRules)
	if !match.Matched {
		result.Mismatches = match.Mismatches
		result.fail(&matching.MismatchError{
			Description:   interaction.Description,
			ProviderState: interaction.ProviderState,
			Result:        match,
		})
		log.Infof("response does not match.\n\n%s", match)
		return result
	}

	result.Status = StatusPassed
	log.Info("interaction verified")
	return result
}

// replay sends the interaction's request, retrying network failures with a linear
// backoff. It returns how many attempts were made.
func (v *Verifier) replay(ctx context.Context, log logrus.FieldLogger, interaction contract.Interaction) (matching.Response, int, error) {
	url := v.baseURL + interaction.Request.URL()
	attempts := 0

	response, err := retry.DoWithData(func() (matching.Response, error) {
		attempts++
		req, err := newRequest(ctx, v.baseURL, interaction.Request)
		if err != nil {
			return matching.Response{}, retry.Unrecoverable(err)
		}

		res, err := v.client.Do(req)
		if err != nil {
			return matching.Response{}, err
		}
		defer res.Body.Close()

		response, err := readResponse(res)
		if err != nil {
			return matching.Response{}, retry.Unrecoverable(err)
		}
		return response, nil
	},
		retry.Context(ctx),
		retry.Attempts(uint(v.attempts)),
		retry.DelayType(linearBackoff(v.retryDelay)),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithField("attempt", n+1).WithError(err).Warn("provider request failed")
		}),
	)
	if err == nil {
		return response, attempts, nil
	}

	if isTransient(err) {
		return matching.Response{}, attempts, &ProviderUnreachableError{
			Description:   interaction.Description,
			ProviderState: interaction.ProviderState,
			URL:           url,
			Attempts:      attempts,
			Err:           err,
		}
	}
	return matching.Response{}, attempts, errors.Wrapf(err, "interaction '%s'", interaction.Description)
}

// linearBackoff waits base after the first failure, twice base after the second and
// so on.
func linearBackoff(base time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return time.Duration(n+1) * base
	}
}

// isTransient reports the network failures worth sending a request again for.
func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
