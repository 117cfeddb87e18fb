package mockserver

import (
	"encoding/json"
	"mime"
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/pkg/errors"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

// registered is an interaction being served, together with what happened to it.
type registered struct {
	seq         int
	interaction contract.Interaction
	modifiers   modifiers

	mu    sync.RWMutex
	calls int
}

func (r *registered) identity() contract.Identity {
	return r.interaction.Identity()
}

// serve renders the response for the next attempt. The call is only counted when the
// response could be rendered.
func (r *registered) serve() (servedResponse, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt := r.calls + 1
	response, err := r.respond(attempt)
	if err != nil {
		return servedResponse{}, attempt, err
	}
	r.calls = attempt
	return response, attempt, nil
}

func (r *registered) HasRequests(count int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls >= count
}

func (r *registered) RequestCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}

// servedResponse is the declared response rendered for the wire.
type servedResponse struct {
	status  int
	headers map[string]string
	body    []byte
}

// respond renders the declared response for the given attempt, applying modifiers.
func (r *registered) respond(attempt int) (servedResponse, error) {
	declared := r.interaction.Response
	headers := make(map[string]string, len(declared.Headers)+1)
	for k, v := range declared.Headers {
		headers[k] = v
	}

	body, err := encodeBody(declared.Body, headers)
	if err != nil {
		return servedResponse{}, errors.Wrapf(err, "unable to encode response of '%s'", r.interaction.Description)
	}

	status, body, err := r.modifiers.apply(attempt, declared.Status, body)
	if err != nil {
		return servedResponse{}, err
	}
	return servedResponse{status: status, headers: headers, body: body}, nil
}

// encodeBody writes strings verbatim unless the declared content type is JSON, every
// other value is encoded as JSON. A missing Content-Type is filled in.
func encodeBody(body interface{}, headers map[string]string) ([]byte, error) {
	if body == nil {
		return nil, nil
	}

	contentType := headerValue(headers, "Content-Type")
	if s, ok := body.(string); ok && contentType != "" && !isJSON(contentType) {
		return []byte(s), nil
	}
	if contentType == "" {
		headers["Content-Type"] = mediaTypeJSON
	}
	return json.Marshal(body)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}
