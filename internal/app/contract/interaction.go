// Package contract holds the interaction model, the builder used by consumer tests to
// declare interactions and the persisted contract artifact.
package contract

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pkg/errors"
)

type Request struct {
	Method        string              `json:"method"`
	Path          string              `json:"path"`
	Query         map[string][]string `json:"query,omitempty"`
	Headers       map[string]string   `json:"headers,omitempty"`
	Body          interface{}         `json:"body,omitempty"`
	MatchingRules matching.Rules      `json:"matchingRules,omitempty"`
}

// UnmarshalJSON accepts the query either as an object of string arrays or, as older
// pact files write it, as an encoded query string.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var doc struct {
		plain
		Query json.RawMessage `json:"query,omitempty"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = Request(doc.plain)

	query, err := decodeQuery(doc.Query)
	if err != nil {
		return err
	}
	r.Query = query
	return nil
}

func decodeQuery(raw json.RawMessage) (map[string][]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return nil, nil
		}
		values, err := url.ParseQuery(s)
		if err != nil {
			return nil, errors.Wrap(err, "invalid query string")
		}
		return values, nil
	}

	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, errors.Wrap(err, "invalid query")
	}
	query := make(map[string][]string, len(values))
	for k, v := range values {
		switch v := v.(type) {
		case string:
			query[k] = []string{v}
		case []interface{}:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, errors.Errorf("query parameter %q must hold strings", k)
				}
				query[k] = append(query[k], s)
			}
		default:
			return nil, errors.Errorf("query parameter %q must be a string or an array of strings", k)
		}
	}
	return query, nil
}

// Message returns the request in the form the matching engine compares.
func (r Request) Message() matching.Request {
	return matching.Request{
		Method:  r.Method,
		Path:    r.Path,
		Query:   r.Query,
		Headers: r.Headers,
		Body:    r.Body,
	}
}

// URL returns the request path with its query, ready to be resolved against a base URL.
func (r Request) URL() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + url.Values(r.Query).Encode()
}

type Response struct {
	Status        int               `json:"status"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          interface{}       `json:"body,omitempty"`
	MatchingRules matching.Rules    `json:"matchingRules,omitempty"`
}

func (r Response) Message() matching.Response {
	return matching.Response{
		Status:  r.Status,
		Headers: r.Headers,
		Body:    r.Body,
	}
}

// Interaction is one expected request and the response the provider gives to it when
// it is in ProviderState.
type Interaction struct {
	ProviderState string   `json:"providerState,omitempty"`
	Description   string   `json:"description"`
	Request       Request  `json:"request"`
	Response      Response `json:"response"`
}

// Identity is what tells two interactions of one contract apart.
type Identity struct {
	Description   string `json:"description"`
	ProviderState string `json:"providerState,omitempty"`
}

func (i Identity) String() string {
	if i.ProviderState == "" {
		return i.Description
	}
	return i.Description + " (given " + i.ProviderState + ")"
}

func (i Interaction) Identity() Identity {
	return Identity{Description: i.Description, ProviderState: i.ProviderState}
}

func (i Interaction) Validate() error {
	if strings.TrimSpace(i.Description) == "" {
		return errors.New("interaction has no description")
	}
	if i.Request.Method == "" {
		return errors.Errorf("interaction '%s' has no request method", i.Description)
	}
	if !strings.HasPrefix(i.Request.Path, "/") {
		return errors.Errorf("interaction '%s' request path %q must start with /", i.Description, i.Request.Path)
	}
	if i.Response.Status < 100 || i.Response.Status > 599 {
		return errors.Errorf("interaction '%s' has invalid response status %d", i.Description, i.Response.Status)
	}
	if err := i.Request.MatchingRules.Validate(); err != nil {
		return errors.Wrapf(err, "interaction '%s' request rules", i.Description)
	}
	if err := i.Response.MatchingRules.Validate(); err != nil {
		return errors.Wrapf(err, "interaction '%s' response rules", i.Description)
	}
	return nil
}

// SameAs reports whether other has exactly the same content, rules included.
func (i Interaction) SameAs(other Interaction) bool {
	a, errA := json.Marshal(i)
	b, errB := json.Marshal(other)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}
