package mockserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// indexHandler serves every request that is not a control request: it finds the
// interactions registered for the route, matches the request against each of them and
// serves the response of the first one that matches.
func (s *Server) indexHandler(c echo.Context) error {
	req := c.Request()
	if req.Header.Get(ControlHeader) == "true" {
		s.control.ServeHTTP(c.Response(), req)
		return nil
	}

	call := RecordedCall{ID: uuid.NewString(), Time: time.Now().UTC()}
	log := s.log.WithFields(logrus.Fields{
		"call_id": call.ID,
		"method":  req.Method,
		"path":    req.URL.Path,
	})

	request, err := readRequest(req)
	call.Request = request
	if err != nil {
		apiErr := httpresponse.Errorf("unable to read request %s %s. %s", req.Method, req.URL.Path, err.Error())
		call.Result = matching.Result{Mismatches: []matching.Mismatch{{Path: "$.body", Reason: err.Error()}}}
		return s.reject(c, call, http.StatusBadRequest, apiErr)
	}

	var matched []*registered
	for _, candidate := range s.interactions.Candidates(request.Method, request.Path) {
		result := matching.MatchRequest(
			candidate.interaction.Request.Message(),
			request.Message(),
			candidate.interaction.Request.MatchingRules,
			s.pathMode,
		)
		if result.Matched {
			matched = append(matched, candidate)
			continue
		}
		call.Candidates = append(call.Candidates, CandidateMismatch{
			Interaction: candidate.identity(),
			Mismatches:  result.Mismatches,
		})
	}

	if len(matched) == 0 {
		return s.rejectUnmatched(c, log, call)
	}

	chosen := matched[0]
	if len(matched) > 1 {
		call.Warning = ambiguity(request, matched)
		log.Warn(call.Warning.Error())
	}

	response, attempt, err := chosen.serve()
	if err != nil {
		apiErr := httpresponse.Errorf("unable to serve '%s'. %s", chosen.interaction.Description, err.Error())
		return s.reject(c, call, http.StatusInternalServerError, apiErr)
	}

	id := chosen.identity()
	call.Interaction = &id
	call.Result = matching.Result{Matched: true}
	call.Response = recordedResponse(response)
	s.record(call)

	log.WithFields(logrus.Fields{
		"interaction":    id.Description,
		"provider_state": id.ProviderState,
		"attempt":        attempt,
	}).Info("served interaction")

	for name, value := range response.headers {
		c.Response().Header().Set(name, value)
	}
	c.Response().WriteHeader(response.status)
	if len(response.body) > 0 {
		_, err = c.Response().Write(response.body)
	}
	return err
}

func (s *Server) rejectUnmatched(c echo.Context, log logrus.FieldLogger, call RecordedCall) error {
	closest := call.closest()
	if closest == nil {
		call.Result = matching.Result{Mismatches: []matching.Mismatch{{
			Path:   "$.path",
			Actual: call.Request.Path,
			Reason: "no interaction registered for " + call.Request.Method + " " + call.Request.Path,
		}}}
	} else {
		call.Result = matching.Result{Mismatches: closest.Mismatches}
	}

	for _, candidate := range call.Candidates {
		log.WithField("interaction", candidate.Interaction.Description).
			Infof("request does not match.\n\n%s", matching.Result{Mismatches: candidate.Mismatches})
	}

	apiErr := httpresponse.Errorf("unable to find interaction to match '%s %s'", call.Request.Method, call.Request.Path).
		WithDetails(call.Candidates)
	return s.reject(c, call, http.StatusInternalServerError, apiErr)
}

// reject records the call as unmatched and serves a diagnostic body.
func (s *Server) reject(c echo.Context, call RecordedCall, status int, apiErr *httpresponse.APIError) error {
	body, _ := json.Marshal(apiErr)
	var recorded interface{}
	_ = json.Unmarshal(body, &recorded)

	call.Response = RecordedResponse{
		Status:  status,
		Headers: map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON},
		Body:    recorded,
	}
	s.record(call)
	return c.JSON(status, apiErr)
}

func (s *Server) record(call RecordedCall) {
	s.calls.append(call)
	s.notify.Notify()
}

func ambiguity(request RecordedRequest, matched []*registered) *contract.AmbiguousInteractionWarning {
	warning := &contract.AmbiguousInteractionWarning{
		Method: request.Method,
		Path:   request.Path,
		Served: matched[0].identity().String(),
	}
	for _, r := range matched {
		warning.Candidates = append(warning.Candidates, r.identity().String())
	}
	return warning
}

func recordedResponse(response servedResponse) RecordedResponse {
	recorded := RecordedResponse{Status: response.status, Headers: response.headers}
	if len(response.body) == 0 {
		return recorded
	}
	if isJSON(headerValue(response.headers, echo.HeaderContentType)) {
		var body interface{}
		if err := json.Unmarshal(response.body, &body); err == nil {
			recorded.Body = body
			return recorded
		}
	}
	recorded.Body = string(response.body)
	return recorded
}
