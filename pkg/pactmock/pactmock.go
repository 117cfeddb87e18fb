// Package pactmock is a client for the control API of a running mock server and for
// the admin API that starts mock servers from contract files.
package pactmock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/mockserver"
	"github.com/pkg/errors"
)

type (
	InteractionStatus = mockserver.InteractionStatus
	Report            = mockserver.Report
	Modifier          = mockserver.Modifier
)

type PactMock struct {
	client http.Client
	url    string
}

type InteractionSetup struct {
	interaction string
	pactMock    *PactMock
}

func New(url string) *PactMock {
	return &PactMock{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

func (p *PactMock) URL() string {
	return p.url
}

func (p *PactMock) ForInteraction(interaction string) *InteractionSetup {
	return &InteractionSetup{
		interaction: interaction,
		pactMock:    p,
	}
}

// do sends a control request, marked so the mock server does not take it for
// consumer traffic.
func (p *PactMock) do(method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, p.url+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set(mockserver.ControlHeader, "true")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.client.Do(req)
}

func (p *PactMock) addModifier(modifier Modifier) error {
	res, err := p.do(http.MethodPost, "/interactions/modifiers", modifier)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return errorFrom(res, "failed to add modifier")
	}
	return nil
}

func (p *PactMock) IsReady() error {
	res, err := p.do(http.MethodGet, "/ready", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("mock server not ready. %d", res.StatusCode)
	}
	return nil
}

func (p *PactMock) WaitForAll() error {
	res, err := p.do(http.MethodGet, "/interactions/wait", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.New("timeout waiting for interactions")
	}
	return nil
}

func (p *PactMock) WaitForInteraction(interaction string, count int) error {
	q := url.Values{}
	q.Add("interaction", interaction)
	q.Add("count", strconv.Itoa(count))

	res, err := p.do(http.MethodGet, "/interactions/wait?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errorFrom(res, "failed waiting for interaction '"+interaction+"'")
	}
	return nil
}

func (p *PactMock) Interactions() ([]InteractionStatus, error) {
	res, err := p.do(http.MethodGet, "/interactions", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, errorFrom(res, "failed to list interactions")
	}

	var statuses []InteractionStatus
	if err := json.NewDecoder(res.Body).Decode(&statuses); err != nil {
		return nil, errors.Wrap(err, "failed to decode interactions")
	}
	return statuses, nil
}

// Verification returns the run report. The error is set when the report lists
// unmatched calls or unused interactions.
func (p *PactMock) Verification() (*Report, error) {
	res, err := p.do(http.MethodGet, "/interactions/verification", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	report := &Report{}
	if err := json.NewDecoder(res.Body).Decode(report); err != nil {
		return nil, errors.Wrap(err, "failed to decode verification report")
	}
	if res.StatusCode != http.StatusOK {
		return report, errors.Errorf("verification failed: %d unmatched calls, %d unused interactions", len(report.Unmatched), len(report.Unused))
	}
	return report, nil
}

func (s InteractionSetup) AddModifier(path, value string, attempt *int) error {
	return s.pactMock.addModifier(Modifier{
		Interaction: s.interaction,
		Path:        path,
		Value:       value,
		Attempt:     attempt,
	})
}

func errorFrom(res *http.Response, message string) error {
	var apiErr struct {
		ErrorMessage string `json:"error_message"`
	}
	if body, err := io.ReadAll(res.Body); err == nil && json.Unmarshal(body, &apiErr) == nil && apiErr.ErrorMessage != "" {
		return errors.Errorf("%s. %d: %s", message, res.StatusCode, apiErr.ErrorMessage)
	}
	return errors.Errorf("%s. %d", message, res.StatusCode)
}
