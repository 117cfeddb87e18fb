package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	getEmployees   = "a request for all employees"
	createEmployee = "a request to create an employee"
	employeesBody  = `{"employees":[{"id":1,"name":"John Doe","age":30}]}`
)

type ServerStage struct {
	t            *testing.T
	assert       *assert.Assertions
	require      *require.Assertions
	interactions []contract.Interaction
	options      []Option
	server       *Server
	responses    []*http.Response
	bodies       [][]byte
	mu           sync.Mutex
}

func NewServerStage(t *testing.T) (*ServerStage, *ServerStage, *ServerStage) {
	s := &ServerStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
	}

	t.Cleanup(func() {
		if s.server != nil {
			_ = s.server.Stop(context.Background())
		}
	})

	return s, s, s
}

func (s *ServerStage) and() *ServerStage {
	return s
}

func (s *ServerStage) interaction(builder contract.Builder, request contract.RequestDefinition, response contract.ResponseDefinition) *ServerStage {
	interaction, err := builder.WithRequest(request).WillRespondWith(response)
	s.require.NoError(err)
	s.interactions = append(s.interactions, interaction)
	return s
}

func (s *ServerStage) an_interaction_for_all_employees_with_age_matched_by_type() *ServerStage {
	return s.interaction(
		contract.Given("employees exist").UponReceiving(getEmployees),
		contract.RequestDefinition{Method: "GET", Path: "/employees"},
		contract.ResponseDefinition{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body: map[string]interface{}{
				"employees": []interface{}{
					map[string]interface{}{"id": 1, "name": "John Doe", "age": matching.Type(30)},
				},
			},
		},
	)
}

func (s *ServerStage) an_interaction_to_create_an_employee() *ServerStage {
	return s.interaction(
		contract.UponReceiving(createEmployee),
		contract.RequestDefinition{
			Method:  "POST",
			Path:    "/employees",
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"name": "New Employee", "age": 22},
		},
		contract.ResponseDefinition{
			Status:  201,
			Headers: map[string]interface{}{"Content-Type": "application/json"},
			Body:    map[string]interface{}{"id": 3, "name": "New Employee", "age": 22},
		},
	)
}

func (s *ServerStage) an_interaction_for_employee_(id int) *ServerStage {
	return s.interaction(
		contract.Given(fmt.Sprintf("employee %d exists", id)).UponReceiving("a request for an employee"),
		contract.RequestDefinition{Method: "GET", Path: fmt.Sprintf("/employees/%d", id)},
		contract.ResponseDefinition{
			Status: 200,
			Body:   map[string]interface{}{"id": id, "name": "John Doe", "age": 30},
		},
	)
}

func (s *ServerStage) an_interaction_that_serves_plain_text() *ServerStage {
	return s.interaction(
		contract.UponReceiving("a request for the motto"),
		contract.RequestDefinition{Method: "GET", Path: "/motto"},
		contract.ResponseDefinition{
			Status:  200,
			Headers: map[string]interface{}{"Content-Type": "text/plain"},
			Body:    "work hard",
		},
	)
}

func (s *ServerStage) two_interactions_for_the_same_request() *ServerStage {
	for _, state := range []string{"employees exist", "employees are cached"} {
		s.interaction(
			contract.Given(state).UponReceiving(getEmployees),
			contract.RequestDefinition{Method: "GET", Path: "/employees"},
			contract.ResponseDefinition{
				Status: 200,
				Body:   map[string]interface{}{"source": state},
			},
		)
	}
	return s
}

func (s *ServerStage) typed_id_path_matching() *ServerStage {
	s.options = append(s.options, WithPathMatching(matching.PathTypedID))
	return s
}

func (s *ServerStage) a_short_wait_duration() *ServerStage {
	s.options = append(s.options, WithWait(10*time.Millisecond, 200*time.Millisecond))
	return s
}

func (s *ServerStage) the_mock_server_is_running() *ServerStage {
	server, err := New(s.interactions, s.options...)
	s.require.NoError(err)
	s.require.NoError(server.Start("127.0.0.1", 0))
	s.server = server
	return s
}

func (s *ServerStage) a_modifier_is_added(modifier string) *ServerStage {
	req, err := http.NewRequest(http.MethodPost, s.server.URL()+"/interactions/modifiers", strings.NewReader(modifier))
	s.require.NoError(err)
	req.Header.Set(ControlHeader, "true")
	res, err := http.DefaultClient.Do(req)
	s.require.NoError(err)
	defer res.Body.Close()
	s.require.Equal(http.StatusNoContent, res.StatusCode)
	return s
}

func (s *ServerStage) do(method, path, body string, control bool) (*http.Response, error) {
	req, err := http.NewRequest(method, s.server.URL()+path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if control {
		req.Header.Set(ControlHeader, "true")
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.responses = append(s.responses, res)
	s.bodies = append(s.bodies, data)
	s.mu.Unlock()
	return res, nil
}

func (s *ServerStage) send(method, path, body string, control bool) *http.Response {
	res, err := s.do(method, path, body, control)
	s.require.NoError(err)
	return res
}

func (s *ServerStage) a_request_is_sent(method, path, body string) *ServerStage {
	s.send(method, path, body, false)
	return s
}

func (s *ServerStage) n_requests_are_sent_concurrently(n int, method, path string) *ServerStage {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.do(method, path, "", false)
			s.assert.NoError(err)
		}()
	}
	wg.Wait()
	return s
}

func (s *ServerStage) a_request_is_sent_after_(delay time.Duration, method, path string) *ServerStage {
	go func() {
		time.Sleep(delay)
		req, _ := http.NewRequest(method, s.server.URL()+path, nil)
		if res, err := http.DefaultClient.Do(req); err == nil {
			res.Body.Close()
		}
	}()
	return s
}

func (s *ServerStage) a_control_request_is_sent(method, path string) *ServerStage {
	s.send(method, path, "", true)
	return s
}

func (s *ServerStage) the_response_is_(status int) *ServerStage {
	s.require.NotEmpty(s.responses)
	s.assert.Equal(status, s.responses[len(s.responses)-1].StatusCode)
	return s
}

func (s *ServerStage) the_nth_response_is_(n, status int) *ServerStage {
	s.require.Greater(len(s.responses), n-1)
	s.assert.Equal(status, s.responses[n-1].StatusCode)
	return s
}

func (s *ServerStage) every_response_is_(status int) *ServerStage {
	for _, res := range s.responses {
		s.assert.Equal(status, res.StatusCode)
	}
	return s
}

func (s *ServerStage) the_response_body_is_(expected string) *ServerStage {
	s.require.NotEmpty(s.bodies)
	s.assert.JSONEq(expected, string(s.bodies[len(s.bodies)-1]))
	return s
}

func (s *ServerStage) the_raw_response_body_is_(expected string) *ServerStage {
	s.require.NotEmpty(s.bodies)
	s.assert.Equal(expected, string(s.bodies[len(s.bodies)-1]))
	return s
}

func (s *ServerStage) the_response_body_field_is_(field string, expected interface{}) *ServerStage {
	var body map[string]interface{}
	s.require.NoError(json.Unmarshal(s.bodies[len(s.bodies)-1], &body))
	s.assert.Equal(expected, body[field])
	return s
}

func (s *ServerStage) the_served_body_still_matches_with_(field string, value interface{}) *ServerStage {
	return s.served_body_with_(field, value, true)
}

func (s *ServerStage) the_served_body_does_not_match_with_(field string, value interface{}) *ServerStage {
	return s.served_body_with_(field, value, false)
}

func (s *ServerStage) served_body_with_(field string, value interface{}, matched bool) *ServerStage {
	var body map[string]interface{}
	s.require.NoError(json.Unmarshal(s.bodies[len(s.bodies)-1], &body))
	body["employees"].([]interface{})[0].(map[string]interface{})[field] = value

	declared := s.interactions[0].Response
	result := matching.MatchResponse(declared.Message(), matching.Response{
		Status:  200,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, declared.MatchingRules)

	s.assert.Equal(matched, result.Matched, result.String())
	if !matched {
		s.assert.Equal([]string{"$.body.employees[0]." + field}, result.Paths())
	}
	return s
}

func (s *ServerStage) the_last_call_is_matched_to_(description string) *ServerStage {
	calls := s.server.Calls()
	s.require.NotEmpty(calls)
	last := calls[len(calls)-1]
	s.require.True(last.Matched(), "call was not matched: %s", last.Result)
	s.assert.Equal(description, last.Interaction.Description)
	s.assert.True(last.Result.Matched)
	return s
}

func (s *ServerStage) the_last_call_is_unmatched_citing_(paths ...string) *ServerStage {
	calls := s.server.Calls()
	s.require.NotEmpty(calls)
	last := calls[len(calls)-1]
	s.assert.False(last.Matched())
	s.assert.False(last.Result.Matched)
	s.assert.Equal(paths, last.Result.Paths())
	return s
}

func (s *ServerStage) the_report_lists_(unmatched, unused int) *ServerStage {
	report := s.server.Report()
	s.assert.Len(report.Unmatched, unmatched)
	s.assert.Len(report.Unused, unused)
	s.assert.Equal(unmatched > 0 || unused > 0, report.Failed())
	return s
}

func (s *ServerStage) the_interaction_was_called_(description string, times int) *ServerStage {
	for _, i := range s.server.Report().Interactions {
		if i.Description == description {
			s.assert.Equal(times, i.Calls)
			return s
		}
	}
	s.t.Errorf("interaction '%s' not in report", description)
	return s
}

func (s *ServerStage) verification_succeeds() *ServerStage {
	s.assert.NoError(s.server.Verify())
	return s
}

func (s *ServerStage) verification_reports_a_mismatch_of_(description, path string) *ServerStage {
	err := s.server.Verify()
	var unmatched *UnmatchedRequestError
	s.require.True(errors.As(err, &unmatched), "got %v", err)
	var mismatch *matching.MismatchError
	s.require.True(errors.As(err, &mismatch), "got %v", err)
	s.assert.Equal(description, mismatch.Description)
	s.assert.Equal([]string{path}, mismatch.Result.Paths())
	return s
}

func (s *ServerStage) verification_reports_unused_(description string) *ServerStage {
	err := s.server.Verify()
	var unused *contract.UnusedInteractionError
	s.require.True(errors.As(err, &unused), "got %v", err)
	s.assert.Equal(description, unused.Description)
	return s
}

func (s *ServerStage) an_ambiguity_warning_is_reported() *ServerStage {
	warnings := s.server.Report().Warnings
	s.require.Len(warnings, 1)
	s.assert.Len(warnings[0].Candidates, 2)
	return s
}
