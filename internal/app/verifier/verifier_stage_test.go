package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pact-foundation/pact-go/utils"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	getEmployee    = "a request for an employee"
	createEmployee = "a request to create an employee"
)

type VerifierStage struct {
	t       *testing.T
	assert  *assert.Assertions
	require *require.Assertions

	interactions []contract.Interaction
	options      []Option
	mux          *http.ServeMux
	provider     *httptest.Server
	baseURL      string
	ctx          context.Context

	mu          sync.Mutex
	states      []string
	calls       int32
	inFlight    int32
	maxInFlight int32

	report Report
}

func NewVerifierStage(t *testing.T) (*VerifierStage, *VerifierStage, *VerifierStage) {
	s := &VerifierStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		mux:     http.NewServeMux(),
		ctx:     context.Background(),
	}
	s.provider = httptest.NewServer(s.mux)
	s.baseURL = s.provider.URL

	t.Cleanup(s.provider.Close)

	return s, s, s
}

func (s *VerifierStage) and() *VerifierStage {
	return s
}

func (s *VerifierStage) interaction(builder contract.Builder, request contract.RequestDefinition, response contract.ResponseDefinition) *VerifierStage {
	interaction, err := builder.WithRequest(request).WillRespondWith(response)
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *VerifierStage) an_interaction_for_employee_(id int) *VerifierStage {
	return s.interaction(
		contract.Given(fmt.Sprintf("employee %d exists", id)).UponReceiving(getEmployee),
		contract.RequestDefinition{Method: "GET", Path: fmt.Sprintf("/employees/%d", id)},
		contract.ResponseDefinition{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body: map[string]interface{}{
				"id":   id,
				"name": matching.Like("John Doe"),
				"age":  matching.Type(30),
			},
		},
	)
}

func (s *VerifierStage) an_interaction_to_create_an_employee() *VerifierStage {
	return s.interaction(
		contract.UponReceiving(createEmployee),
		contract.RequestDefinition{
			Method:  "POST",
			Path:    "/employees",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"name": "New Employee", "age": 22},
		},
		contract.ResponseDefinition{
			Status: 201,
			Body:   map[string]interface{}{"id": matching.Integer(3), "name": "New Employee", "age": 22},
		},
	)
}

func (s *VerifierStage) n_interactions_for_different_employees(n int) *VerifierStage {
	for id := 1; id <= n; id++ {
		s.interaction(
			contract.UponReceiving(fmt.Sprintf("a request for employee %d", id)),
			contract.RequestDefinition{Method: "GET", Path: fmt.Sprintf("/employees/%d", id)},
			contract.ResponseDefinition{
				Status: 200,
				Body:   map[string]interface{}{"id": matching.Integer(id)},
			},
		)
	}
	return s
}

func (s *VerifierStage) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *VerifierStage) a_provider_that_serves_employee_1() *VerifierStage {
	s.mux.HandleFunc("/employees/1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": 1, "name": "Jane Roe", "age": 41})
	})
	return s
}

func (s *VerifierStage) a_provider_that_does_not_know_employee_1() *VerifierStage {
	s.mux.HandleFunc("/employees/1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})
	return s
}

func (s *VerifierStage) a_provider_that_creates_employees() *VerifierStage {
	s.mux.HandleFunc("/employees", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		var body map[string]interface{}
		if r.Method != http.MethodPost || json.NewDecoder(r.Body).Decode(&body) != nil || body["name"] != "New Employee" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 7, "name": body["name"], "age": body["age"]})
	})
	return s
}

func (s *VerifierStage) a_provider_that_answers_invalid_json() *VerifierStage {
	s.mux.HandleFunc("/employees/1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":`))
	})
	return s
}

func (s *VerifierStage) a_provider_that_is_slow_on_the_first_call() *VerifierStage {
	s.mux.HandleFunc("/employees/1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&s.calls, 1) == 1 {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": 1, "name": "Jane Roe", "age": 41})
	})
	s.options = append(s.options, WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	return s
}

func (s *VerifierStage) a_provider_that_serves_any_employee_slowly() *VerifierStage {
	s.mux.HandleFunc("/employees/", func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&s.inFlight, 1)
		defer atomic.AddInt32(&s.inFlight, -1)
		for {
			peak := atomic.LoadInt32(&s.maxInFlight)
			if current <= peak || atomic.CompareAndSwapInt32(&s.maxInFlight, peak, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		var id int
		_, _ = fmt.Sscanf(r.URL.Path, "/employees/%d", &id)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"id": id})
	})
	return s
}

func (s *VerifierStage) an_unreachable_provider() *VerifierStage {
	port, err := utils.GetFreePort()
	s.require.NoError(err)
	s.baseURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	return s
}

func (s *VerifierStage) a_state_change_url() *VerifierStage {
	s.mux.HandleFunc("/_states", func(w http.ResponseWriter, r *http.Request) {
		var change stateChange
		if err := json.NewDecoder(r.Body).Decode(&change); err != nil || change.Action != "setup" || change.Consumer != "dashboard" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.states = append(s.states, change.State)
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	s.options = append(s.options, WithStateHandler(StateChangeURL(s.provider.URL+"/_states")))
	return s
}

func (s *VerifierStage) a_state_handler_that_fails_for_(state string) *VerifierStage {
	s.options = append(s.options, WithStateHandler(func(ctx context.Context, consumer, st string) error {
		if st == state {
			return errors.New("fixture could not be loaded")
		}
		return nil
	}))
	return s
}

func (s *VerifierStage) fast_retries() *VerifierStage {
	s.options = append(s.options, WithRetryDelay(time.Millisecond))
	return s
}

func (s *VerifierStage) n_workers(n int) *VerifierStage {
	s.options = append(s.options, WithWorkers(n))
	return s
}

func (s *VerifierStage) a_cancelled_context() *VerifierStage {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ctx = ctx
	return s
}

func (s *VerifierStage) the_provider_is_verified() *VerifierStage {
	v, err := New(s.baseURL, s.options...)
	s.require.NoError(err)
	s.report = v.Verify(s.ctx, contract.NewArtifact("dashboard", "employee_service", s.interactions))
	return s
}

func (s *VerifierStage) result(description string) Result {
	for _, result := range s.report.Results {
		if result.Interaction.Description == description {
			return result
		}
	}
	s.t.Fatalf("no result for interaction '%s'", description)
	return Result{}
}

func (s *VerifierStage) the_interaction_passed(description string) *VerifierStage {
	result := s.result(description)
	s.assert.Equal(StatusPassed, result.Status, result.Error)
	s.assert.NoError(result.Err())
	return s
}

func (s *VerifierStage) the_interaction_failed_with_mismatches_(description string, paths ...string) *VerifierStage {
	result := s.result(description)
	s.assert.Equal(StatusFailed, result.Status)

	var mismatch *matching.MismatchError
	s.require.True(errors.As(result.Err(), &mismatch), "got %v", result.Err())
	s.assert.Equal(description, mismatch.Description)
	s.assert.Equal(paths, mismatch.Result.Paths())
	s.assert.Len(result.Mismatches, len(paths))
	return s
}

func (s *VerifierStage) the_interaction_failed_without_retrying(description string) *VerifierStage {
	result := s.result(description)
	s.assert.Equal(StatusFailed, result.Status)
	s.assert.Equal(1, result.Attempts)
	s.assert.Empty(result.Mismatches)
	s.assert.NotEmpty(result.Error)
	return s
}

func (s *VerifierStage) the_interaction_failed_on_its_provider_state(description string) *VerifierStage {
	result := s.result(description)
	s.assert.Equal(StatusFailed, result.Status)
	var stateErr *ProviderStateError
	s.require.True(errors.As(result.Err(), &stateErr), "got %v", result.Err())
	s.assert.Equal(description, stateErr.Description)
	s.assert.Zero(result.Attempts)
	return s
}

func (s *VerifierStage) the_provider_is_unreachable_after_(description string, attempts int) *VerifierStage {
	result := s.result(description)
	s.assert.Equal(StatusFailed, result.Status)
	var unreachable *ProviderUnreachableError
	s.require.True(errors.As(result.Err(), &unreachable), "got %v", result.Err())
	s.assert.Equal(attempts, unreachable.Attempts)
	s.assert.Equal(attempts, result.Attempts)
	return s
}

func (s *VerifierStage) the_interaction_took_attempts_(description string, attempts int) *VerifierStage {
	s.assert.Equal(attempts, s.result(description).Attempts)
	return s
}

func (s *VerifierStage) the_states_were_set_up(states ...string) *VerifierStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assert.ElementsMatch(states, s.states)
	return s
}

func (s *VerifierStage) the_report_failed() *VerifierStage {
	s.assert.True(s.report.Failed())
	s.assert.Error(s.report.Err())
	return s
}

func (s *VerifierStage) the_report_passed() *VerifierStage {
	s.assert.False(s.report.Failed())
	s.assert.NoError(s.report.Err())
	return s
}

func (s *VerifierStage) every_interaction_is_skipped() *VerifierStage {
	s.require.Len(s.report.Results, len(s.interactions))
	for _, result := range s.report.Results {
		s.assert.Equal(StatusSkipped, result.Status)
	}
	s.assert.Zero(atomic.LoadInt32(&s.calls))
	return s
}

func (s *VerifierStage) no_more_than_n_requests_were_in_flight(n int32) *VerifierStage {
	s.assert.LessOrEqual(atomic.LoadInt32(&s.maxInFlight), n)
	s.assert.Greater(atomic.LoadInt32(&s.maxInFlight), int32(0))
	return s
}
