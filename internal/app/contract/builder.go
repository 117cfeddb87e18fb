package contract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/pkg/errors"
)

// RequestDefinition describes the request of an interaction. Path, query values,
// header values and the body may hold matchers.
type RequestDefinition struct {
	Method  string
	Path    interface{}
	Query   map[string]interface{}
	Headers map[string]interface{}
	Body    interface{}
}

// ResponseDefinition describes the response of an interaction. Header values and the
// body may hold matchers.
type ResponseDefinition struct {
	Status  int
	Headers map[string]interface{}
	Body    interface{}
}

// Builder composes one interaction. Every step returns a new Builder, so a partially
// built chain can be shared between tests.
type Builder struct {
	providerState string
	description   string
	request       *RequestDefinition
}

func Given(providerState string) Builder {
	return Builder{}.Given(providerState)
}

func UponReceiving(description string) Builder {
	return Builder{}.UponReceiving(description)
}

func (b Builder) Given(providerState string) Builder {
	b.providerState = providerState
	return b
}

func (b Builder) UponReceiving(description string) Builder {
	b.description = description
	return b
}

func (b Builder) WithRequest(request RequestDefinition) Builder {
	b.request = &request
	return b
}

// WillRespondWith ends the chain. Matchers are replaced by their examples and their
// rules are keyed by the location they were found at.
func (b Builder) WillRespondWith(response ResponseDefinition) (Interaction, error) {
	if b.request == nil {
		return Interaction{}, errors.Errorf("interaction '%s' has no request", b.description)
	}

	request, err := buildRequest(*b.request)
	if err != nil {
		return Interaction{}, errors.Wrapf(err, "interaction '%s'", b.description)
	}
	resp, err := buildResponse(response)
	if err != nil {
		return Interaction{}, errors.Wrapf(err, "interaction '%s'", b.description)
	}

	interaction := Interaction{
		ProviderState: b.providerState,
		Description:   b.description,
		Request:       request,
		Response:      resp,
	}
	if err := interaction.Validate(); err != nil {
		return Interaction{}, err
	}
	return interaction, nil
}

func buildRequest(def RequestDefinition) (Request, error) {
	rules := matching.Rules{}
	request := Request{Method: strings.ToUpper(def.Method)}

	path, pathRules, err := matching.Extract("$.path", def.Path)
	if err != nil {
		return Request{}, err
	}
	p, ok := path.(string)
	if !ok {
		return Request{}, errors.Errorf("request path must be a string, got %T", path)
	}
	request.Path = p
	rules = rules.Merge(pathRules)

	if len(def.Query) > 0 {
		request.Query = make(map[string][]string, len(def.Query))
		for _, name := range sortedNames(def.Query) {
			tree, queryRules, err := matching.Extract(matching.JoinKey("$.query", name), def.Query[name])
			if err != nil {
				return Request{}, err
			}
			values, err := queryValues(name, tree)
			if err != nil {
				return Request{}, err
			}
			request.Query[name] = values
			rules = rules.Merge(queryRules)
		}
	}

	headers, headerRules, err := buildHeaders(def.Headers)
	if err != nil {
		return Request{}, err
	}
	request.Headers = headers
	rules = rules.Merge(headerRules)

	body, bodyRules, err := matching.Extract("$.body", def.Body)
	if err != nil {
		return Request{}, err
	}
	request.Body = body
	request.MatchingRules = nonEmpty(rules.Merge(bodyRules))
	return request, nil
}

func buildResponse(def ResponseDefinition) (Response, error) {
	headers, rules, err := buildHeaders(def.Headers)
	if err != nil {
		return Response{}, err
	}
	body, bodyRules, err := matching.Extract("$.body", def.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Status:        def.Status,
		Headers:       headers,
		Body:          body,
		MatchingRules: nonEmpty(rules.Merge(bodyRules)),
	}, nil
}

func buildHeaders(defs map[string]interface{}) (map[string]string, matching.Rules, error) {
	if len(defs) == 0 {
		return nil, nil, nil
	}
	headers := make(map[string]string, len(defs))
	rules := matching.Rules{}
	for _, name := range sortedNames(defs) {
		tree, headerRules, err := matching.Extract(matching.JoinKey("$.headers", name), defs[name])
		if err != nil {
			return nil, nil, err
		}
		rules = rules.Merge(headerRules)
		if tree == nil {
			continue
		}
		switch v := tree.(type) {
		case string:
			headers[name] = v
		case float64, bool:
			headers[name] = fmt.Sprint(v)
		default:
			return nil, nil, errors.Errorf("header %q must be a single value, got %T", name, tree)
		}
	}
	return headers, rules, nil
}

func queryValues(name string, tree interface{}) ([]string, error) {
	switch v := tree.(type) {
	case string:
		return []string{v}, nil
	case float64, bool:
		return []string{fmt.Sprint(v)}, nil
	case []interface{}:
		values := make([]string, 0, len(v))
		for _, item := range v {
			s, err := queryValues(name, item)
			if err != nil {
				return nil, err
			}
			values = append(values, s...)
		}
		return values, nil
	}
	return nil, errors.Errorf("query parameter %q must be a string or a list of strings, got %T", name, tree)
}

func sortedNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func nonEmpty(rules matching.Rules) matching.Rules {
	if len(rules) == 0 {
		return nil
	}
	return rules
}
