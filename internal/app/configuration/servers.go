package configuration

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/mockserver"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var servers sync.Map

// MockConfig asks for a mock server serving every interaction of a contract file.
type MockConfig struct {
	PactFile     string `json:"pactFile"`
	Address      string `json:"address"` // host:port, port 0 picks a free one
	PathMatching string `json:"pathMatching,omitempty"`
}

// MockStatus describes a running mock server.
type MockStatus struct {
	Address      string `json:"address"`
	URL          string `json:"url"`
	PactFile     string `json:"pactFile"`
	Consumer     string `json:"consumer"`
	Provider     string `json:"provider"`
	Interactions int    `json:"interactions"`
}

type runningMock struct {
	server *mockserver.Server
	status MockStatus
}

// StartMock loads the contract and serves it on the requested address. Two mock
// servers can not share an address.
func StartMock(config MockConfig, options ...mockserver.Option) (MockStatus, error) {
	host, port, err := splitAddress(config.Address)
	if err != nil {
		return MockStatus{}, err
	}
	if port != 0 {
		if _, loaded := servers.Load(config.Address); loaded {
			return MockStatus{}, &mockserver.AddressInUseError{Address: config.Address}
		}
	}

	artifact, err := contract.ReadFile(config.PactFile)
	if err != nil {
		return MockStatus{}, err
	}

	if config.PathMatching != "" {
		mode, err := ParsePathMode(config.PathMatching)
		if err != nil {
			return MockStatus{}, err
		}
		options = append(options, mockserver.WithPathMatching(mode))
	}

	server, err := mockserver.New(artifact.Interactions, options...)
	if err != nil {
		return MockStatus{}, errors.Wrapf(err, "unable to load %s", config.PactFile)
	}
	if err := server.Start(host, port); err != nil {
		return MockStatus{}, err
	}

	url := server.URL()
	address := config.Address
	if port == 0 {
		address = strings.TrimPrefix(url, "http://")
	}
	status := MockStatus{
		Address:      address,
		URL:          url,
		PactFile:     config.PactFile,
		Consumer:     artifact.Consumer.Name,
		Provider:     artifact.Provider.Name,
		Interactions: len(artifact.Interactions),
	}
	if _, loaded := servers.LoadOrStore(address, &runningMock{server: server, status: status}); loaded {
		_ = server.Stop(context.Background())
		return MockStatus{}, &mockserver.AddressInUseError{Address: address}
	}

	log.WithFields(log.Fields{
		"url":      url,
		"consumer": status.Consumer,
		"provider": status.Provider,
	}).Infof("serving %s", config.PactFile)
	return status, nil
}

// StartMocks serves each file on its own port, counting up from port. Port 0 gives
// every file a free port.
func StartMocks(files []string, host string, port int, options ...mockserver.Option) ([]MockStatus, error) {
	statuses := make([]MockStatus, 0, len(files))
	for i, file := range files {
		p := port
		if port != 0 {
			p = port + i
		}
		status, err := StartMock(MockConfig{PactFile: file, Address: net.JoinHostPort(host, strconv.Itoa(p))}, options...)
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Mocks lists the running mock servers by address.
func Mocks() []MockStatus {
	var statuses []MockStatus
	servers.Range(func(_, value interface{}) bool {
		statuses = append(statuses, value.(*runningMock).status)
		return true
	})
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Address < statuses[j].Address })
	return statuses
}

func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, _ interface{}) bool {
		mock, loaded := servers.LoadAndDelete(key)
		if loaded {
			if err := mock.(*runningMock).server.Stop(ctx); err != nil {
				log.Error(err)
			}
		}
		return true
	})
}

func splitAddress(address string) (string, int, error) {
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid address %s", address)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid port in address %s", address)
	}
	return host, port, nil
}
