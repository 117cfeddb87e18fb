// Package mockserver serves the interactions of a contract over HTTP in place of the
// real provider and records every call it receives.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second

	// ControlHeader marks requests addressed to the server itself rather than to the
	// provider it stands in for.
	ControlHeader = "X-Pact-Mock-Service"
)

// AddressInUseError is returned when the server cannot bind its address.
type AddressInUseError struct {
	Address string
	Err     error
}

func (e *AddressInUseError) Error() string {
	return fmt.Sprintf("address %s already in use", e.Address)
}

func (e *AddressInUseError) Unwrap() error {
	return e.Err
}

type (
	config struct {
		logger       logrus.FieldLogger
		pathMode     matching.PathMode
		waitDelay    time.Duration
		waitDuration time.Duration
	}

	// Option is a function that can modify the default server configuration
	Option func(c *config)
)

// WithLogger overrides the default logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithPathMatching sets how literal request paths are compared
func WithPathMatching(mode matching.PathMode) Option {
	return func(c *config) {
		c.pathMode = mode
	}
}

// WithWait sets the polling delay and the timeout of the wait endpoint
func WithWait(delay, duration time.Duration) Option {
	return func(c *config) {
		c.waitDelay = delay
		c.waitDuration = duration
	}
}

// Server is one mock provider. Its interactions are fixed when it is created.
type Server struct {
	log          logrus.FieldLogger
	pathMode     matching.PathMode
	delay        time.Duration
	duration     time.Duration
	interactions *Interactions
	calls        callLog
	notify       *notify
	echo         *echo.Echo
	control      *echo.Echo

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	url      string
}

// New validates the interactions and builds the server's index. Interactions must
// have distinct identities.
func New(interactions []contract.Interaction, options ...Option) (*Server, error) {
	c := &config{
		logger:   logrus.StandardLogger(),
		pathMode: matching.PathStrict,
	}
	for _, applyOption := range options {
		applyOption(c)
	}
	if c.waitDelay == 0 {
		c.waitDelay = defaultDelay
	}
	if c.waitDuration == 0 {
		c.waitDuration = defaultDuration
	}

	seen := make(map[contract.Identity]struct{}, len(interactions))
	for _, interaction := range interactions {
		if err := interaction.Validate(); err != nil {
			return nil, err
		}
		id := interaction.Identity()
		if _, ok := seen[id]; ok {
			return nil, &contract.DuplicateInteractionError{Description: id.Description, ProviderState: id.ProviderState}
		}
		seen[id] = struct{}{}
	}

	s := &Server{
		log:          c.logger,
		pathMode:     c.pathMode,
		delay:        c.waitDelay,
		duration:     c.waitDuration,
		interactions: newInteractions(interactions, c.pathMode),
		notify:       newNotify(),
	}
	s.control = s.controlAPI()

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Any("/*", s.indexHandler)
	return s, nil
}

// Start binds host:port and serves in the background. Port 0 picks a free port.
func (s *Server) Start(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.Errorf("mock server already running at %s", s.url)
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return &AddressInUseError{Address: address, Err: err}
		}
		return errors.Wrapf(err, "unable to listen on %s", address)
	}

	s.listener = listener
	s.url = serverURL(host, listener.Addr())
	s.server = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("mock server stopped")
		}
	}(s.server)

	s.log.WithFields(logrus.Fields{
		"url":          s.url,
		"interactions": len(s.interactions.All()),
	}).Info("mock server started")
	return nil
}

func serverURL(host string, addr net.Addr) string {
	port := strconv.Itoa(addr.(*net.TCPAddr).Port)
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// URL is the base URL consumers should call, empty until the server is started.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Stop shuts the server down, waiting for in-flight requests until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	s.log.WithField("url", s.url).Info("stopping mock server")
	return server.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted without binding a listener of its own.
func (s *Server) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	s.echo.ServeHTTP(res, req)
}

// Calls returns every call received so far, in arrival order.
func (s *Server) Calls() []RecordedCall {
	return s.calls.all()
}

func (s *Server) Report() Report {
	calls := s.calls.all()
	report := Report{
		Calls:  calls,
		Unused: s.interactions.Unused(),
	}
	for _, r := range s.interactions.All() {
		report.Interactions = append(report.Interactions, InteractionCalls{Identity: r.identity(), Calls: r.RequestCount()})
	}
	for _, call := range calls {
		if !call.Matched() {
			report.Unmatched = append(report.Unmatched, call)
		}
		if call.Warning != nil {
			report.Warnings = append(report.Warnings, *call.Warning)
		}
	}
	return report
}

// Verify returns an error for every unmatched call and every interaction that was
// never called.
func (s *Server) Verify() error {
	return s.Report().Err()
}

func (s *Server) WriteReport(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s.Report())
}

// WaitFor blocks until the interaction described by description was called count
// times, or the configured wait duration passed.
func (s *Server) WaitFor(ctx context.Context, description string, count int) (bool, error) {
	r, ok := s.interactions.Load(description)
	if !ok {
		return false, errors.Errorf("interaction '%s' not found", description)
	}
	return waitFor(ctx, s.notify, func() bool { return r.HasRequests(count) }, s.delay, s.duration), nil
}

// WaitForAll blocks until every interaction was called at least once, or the
// configured wait duration passed.
func (s *Server) WaitForAll(ctx context.Context) bool {
	return waitFor(ctx, s.notify, s.interactions.AllHaveRequests, s.delay, s.duration)
}

// AddModifier overrides part of the response of an interaction from now on.
func (s *Server) AddModifier(modifier *Modifier) error {
	if err := modifier.validate(); err != nil {
		return err
	}
	r, ok := s.interactions.Load(modifier.Interaction)
	if !ok {
		return errors.Errorf("unable to find interaction for modifier. %s", modifier.Interaction)
	}
	s.log.WithField("interaction", modifier.Interaction).Infof("adding modifier for %s", modifier.Path)
	r.modifiers.add(modifier)
	return nil
}
