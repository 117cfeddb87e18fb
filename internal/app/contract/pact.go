package contract

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Session is a mock server run serving the interactions of a pact.
type Session interface {
	// Verify reports unmatched calls and interactions that were never called.
	Verify() error
	// WriteReport writes the record of the run, it is stored beside the artifact.
	WriteReport(w io.Writer) error
	Stop(ctx context.Context) error
}

// Pact accumulates the interactions between one consumer and one provider.
type Pact struct {
	Consumer string
	Provider string

	dir string

	mu           sync.Mutex
	interactions []Interaction
	index        map[Identity]int
	session      Session
	finalized    bool
}

func NewPact(consumer, provider, dir string) *Pact {
	if dir == "" {
		dir = "pacts"
	}
	return &Pact{
		Consumer: consumer,
		Provider: provider,
		dir:      dir,
		index:    map[Identity]int{},
	}
}

// AddInteraction registers an interaction. Adding the same interaction twice is a
// no-op, adding a different one under an existing description and provider state
// fails with DuplicateInteractionError.
func (p *Pact) AddInteraction(interaction Interaction) error {
	if err := interaction.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil || p.finalized {
		return errors.Errorf("cannot add interaction '%s' once the mock server is running", interaction.Description)
	}

	id := interaction.Identity()
	if i, ok := p.index[id]; ok {
		if p.interactions[i].SameAs(interaction) {
			log.WithField("interaction", id.Description).Debug("interaction already added")
			return nil
		}
		return &DuplicateInteractionError{Description: id.Description, ProviderState: id.ProviderState}
	}

	p.index[id] = len(p.interactions)
	p.interactions = append(p.interactions, interaction)
	log.WithFields(log.Fields{
		"interaction":    id.Description,
		"provider_state": id.ProviderState,
	}).Debug("interaction added")
	return nil
}

// Interactions returns the added interactions in registration order.
func (p *Pact) Interactions() []Interaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Interaction(nil), p.interactions...)
}

// WritePact returns where the artifact is stored on Finalize.
func (p *Pact) WritePact() string {
	return filepath.Join(p.dir, FileName(p.Consumer, p.Provider))
}

// ReportPath returns where the run report of an attached session is stored.
func (p *Pact) ReportPath() string {
	return strings.TrimSuffix(p.WritePact(), ".json") + ".report.json"
}

// Attach binds a mock server session to the pact. No interactions can be added
// afterwards.
func (p *Pact) Attach(session Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		return errors.New("a mock server session is already attached")
	}
	p.session = session
	return nil
}

// Finalize stops an attached session, stores its report and writes the artifact. The
// artifact is not written when the session reports unmatched calls or unused
// interactions, those failures are returned instead.
func (p *Pact) Finalize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.interactions) == 0 {
		return &NoInteractionsError{Consumer: p.Consumer, Provider: p.Provider}
	}

	var errs []error
	if p.session != nil {
		if err := p.session.Verify(); err != nil {
			errs = append(errs, err)
		}
		if err := p.writeReport(p.session); err != nil {
			errs = append(errs, err)
		}
		if err := p.session.Stop(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "unable to stop mock server"))
		}
		p.session = nil
	}
	p.finalized = true
	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}

	path := p.WritePact()
	if err := WriteFile(path, NewArtifact(p.Consumer, p.Provider, p.interactions)); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"path":         path,
		"interactions": len(p.interactions),
	}).Info("pact written")
	return nil
}

func (p *Pact) writeReport(session Session) error {
	var buf bytes.Buffer
	if err := session.WriteReport(&buf); err != nil {
		return errors.Wrap(err, "unable to encode run report")
	}
	return writeAtomically(p.ReportPath(), buf.Bytes())
}
