// Package pact is the consumer facing API: declare interactions, serve them from a
// mock provider while the consumer's tests run, then write the contract file that
// the provider is verified against.
package pact

import (
	"context"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/form3tech-oss/pact-engine/internal/app/mockserver"
	"github.com/form3tech-oss/pact-engine/internal/app/verifier"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	Interaction        = contract.Interaction
	Builder            = contract.Builder
	RequestDefinition  = contract.RequestDefinition
	ResponseDefinition = contract.ResponseDefinition
	Matcher            = matching.Matcher
	PathMode           = matching.PathMode
)

const (
	PathStrict  = matching.PathStrict
	PathTypedID = matching.PathTypedID
)

// Like matches example loosely: containers by shape, leaves by type.
func Like(example interface{}) Matcher { return matching.Like(example) }

// EachLike matches a list whose every element is like example.
func EachLike(example interface{}) Matcher { return matching.EachLike(example) }

func Type(example interface{}) Matcher { return matching.Type(example) }

func Integer(example int) Matcher { return matching.Integer(example) }

func Term(example, pattern string) Matcher { return matching.Term(example, pattern) }

func Equal(example interface{}) Matcher { return matching.Equal(example) }

func Absent() Matcher { return matching.Absent() }

func Given(providerState string) Builder { return contract.Given(providerState) }

func UponReceiving(description string) Builder { return contract.UponReceiving(description) }

type (
	config struct {
		dir      string
		pathMode matching.PathMode
		logger   logrus.FieldLogger
	}

	// Option is a function that can modify the default pact configuration
	Option func(c *config)
)

// WithDir sets where the contract file is written, pacts by default
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithPathMatching sets how the mock server compares literal request paths
func WithPathMatching(mode PathMode) Option {
	return func(c *config) {
		c.pathMode = mode
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// Pact is the contract between one consumer and one provider under construction.
type Pact struct {
	*contract.Pact

	config config
	server *mockserver.Server
}

func New(consumer, provider string, options ...Option) *Pact {
	c := config{pathMode: matching.PathStrict, logger: logrus.StandardLogger()}
	for _, applyOption := range options {
		applyOption(&c)
	}
	return &Pact{
		Pact:   contract.NewPact(consumer, provider, c.dir),
		config: c,
	}
}

// Start serves the interactions added so far on host:port and returns the URL the
// consumer should call. Port 0 picks a free port. Finalize stops the server.
func (p *Pact) Start(host string, port int) (string, error) {
	if p.server != nil {
		return "", errors.New("mock server already started")
	}

	server, err := mockserver.New(p.Interactions(),
		mockserver.WithLogger(p.config.logger),
		mockserver.WithPathMatching(p.config.pathMode),
	)
	if err != nil {
		return "", err
	}
	if err := server.Start(host, port); err != nil {
		return "", err
	}
	if err := p.Attach(server); err != nil {
		_ = server.Stop(context.Background())
		return "", err
	}

	p.server = server
	return server.URL(), nil
}

// Server is the running mock server, nil before Start.
func (p *Pact) Server() *mockserver.Server {
	return p.server
}

type (
	VerifyOption       = verifier.Option
	StateHandler       = verifier.StateHandler
	VerificationReport = verifier.Report
)

var (
	WithWorkers        = verifier.WithWorkers
	WithAttempts       = verifier.WithAttempts
	WithRetryDelay     = verifier.WithRetryDelay
	WithStateHandler   = verifier.WithStateHandler
	WithStateChangeURL = func(url string) VerifyOption { return verifier.WithStateHandler(verifier.StateChangeURL(url)) }
)

// VerifyProvider replays the contract file at pactFile against the provider at
// baseURL. The error is set when the file can not be read or any interaction failed.
func VerifyProvider(ctx context.Context, pactFile, baseURL string, options ...VerifyOption) (VerificationReport, error) {
	artifact, err := contract.ReadFile(pactFile)
	if err != nil {
		return verifier.Report{}, err
	}

	v, err := verifier.New(baseURL, options...)
	if err != nil {
		return verifier.Report{}, err
	}

	report := v.Verify(ctx, artifact)
	report.Source = pactFile
	return report, report.Err()
}
