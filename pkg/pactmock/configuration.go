package pactmock

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/configuration"
	"github.com/pkg/errors"
)

type (
	Config     = configuration.MockConfig
	MockStatus = configuration.MockStatus
)

type MockConfiguration struct {
	client http.Client
	url    string
}

// Configuration returns a client for the admin API at url.
func Configuration(url string) *MockConfiguration {
	return &MockConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

// StartMock serves the contract at pactFile on address and returns a client for the
// new mock server.
func (conf *MockConfiguration) StartMock(pactFile, address string) (*PactMock, error) {
	return conf.StartMockWithConfig(&Config{PactFile: pactFile, Address: address})
}

func (conf *MockConfiguration) StartMockWithConfig(config *Config) (*PactMock, error) {
	content, err := json.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}

	req, err := http.NewRequest(http.MethodPost, conf.url+"/mocks", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := conf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return nil, errorFrom(res, "failed to start mock server")
	}

	var status MockStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return nil, errors.Wrap(err, "failed to decode mock server status")
	}
	return New(status.URL), nil
}

func (conf *MockConfiguration) Mocks() ([]MockStatus, error) {
	res, err := conf.client.Get(conf.url + "/mocks")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, errorFrom(res, "failed to list mock servers")
	}

	var statuses []MockStatus
	if err := json.NewDecoder(res.Body).Decode(&statuses); err != nil {
		return nil, errors.Wrap(err, "failed to decode mock servers")
	}
	return statuses, nil
}

// Reset stops every mock server started through the admin API.
func (conf *MockConfiguration) Reset() error {
	req, err := http.NewRequest(http.MethodDelete, conf.url+"/mocks", nil)
	if err != nil {
		return err
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.New("error resetting mock servers")
	}
	return nil
}
