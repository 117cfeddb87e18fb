package matching

import (
	"mime"
	"regexp"
	"sort"
	"strings"
)

// PathMode selects how a literal expected request path is compared.
type PathMode string

const (
	// PathStrict compares literal paths as exact strings.
	PathStrict PathMode = "strict"
	// PathTypedID lets a trailing all-digit segment match any other all-digit segment,
	// so /employees/1 also matches /employees/42.
	PathTypedID PathMode = "typed-id"
)

const (
	pathRule   = "$.path"
	statusRule = "$.status"
)

var numericSegment = regexp.MustCompile(`^[0-9]+$`)

// Request is the comparable part of an HTTP request.
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string]string
	Body    interface{}
}

// Response is the comparable part of an HTTP response.
type Response struct {
	Status  int
	Headers map[string]string
	Body    interface{}
}

// MatchRequest compares an actual request against an expected one. Rules are keyed by
// full request paths: $.path, $.query.<name>, $.headers.<Name>, $.body...
func MatchRequest(expected, actual Request, rules Rules, mode PathMode) Result {
	set := compile(rules)
	result := newResult()

	if !strings.EqualFold(expected.Method, actual.Method) {
		result.add("$.method", expected.Method, actual.Method, "expected method %s but got %s", strings.ToUpper(expected.Method), strings.ToUpper(actual.Method))
	}
	matchPath(result, set, expected.Path, actual.Path, mode)
	matchQuery(result, set, expected.Query, actual.Query)
	matchHeaders(result, set, expected.Headers, actual.Headers)
	matchBody(result, set, expected.Body, actual.Body)
	return *result
}

// MatchResponse compares an actual response against an expected one. Extra headers
// are never a mismatch.
func MatchResponse(expected, actual Response, rules Rules) Result {
	set := compile(rules)
	result := newResult()

	if expected.Status != actual.Status {
		result.add(statusRule, expected.Status, actual.Status, "expected status %d but got %d", expected.Status, actual.Status)
	}
	matchHeaders(result, set, expected.Headers, actual.Headers)
	matchBody(result, set, expected.Body, actual.Body)
	return *result
}

// PathTemplate returns the key a request path is indexed under for the given mode.
func PathTemplate(path string, mode PathMode) string {
	if mode != PathTypedID {
		return path
	}
	i := strings.LastIndexByte(path, '/')
	if i < 0 || !numericSegment.MatchString(path[i+1:]) {
		return path
	}
	return path[:i+1] + "{id}"
}

func matchPath(result *Result, set ruleSet, expected, actual string, mode PathMode) {
	if rule, ok := set.lookup([]token{keyToken("path")}); ok {
		switch rule.rule.Kind {
		case KindRegex:
			if !rule.regex.MatchString(actual) {
				result.add(pathRule, rule.rule.Regex, actual, "expected path matching %q but got %q", rule.rule.Regex, actual)
			}
			return
		case KindType, KindLike:
			return
		}
	}

	if expected == actual {
		return
	}
	if mode == PathTypedID && PathTemplate(expected, mode) != expected && PathTemplate(expected, mode) == PathTemplate(actual, mode) {
		return
	}
	result.add(pathRule, expected, actual, "expected path %q but got %q", expected, actual)
}

func matchQuery(result *Result, set ruleSet, expected, actual map[string][]string) {
	if len(expected) == 0 && len(actual) == 0 {
		return
	}
	for _, name := range sortedStringKeys(expected) {
		path := []token{keyToken("query"), keyToken(name)}
		values, present := actual[name]
		if !present {
			result.add(formatPath(path), expected[name], nil, "expected query parameter %q is missing", name)
			continue
		}
		if rule, ok := set.lookup(path); ok && rule.rule.Kind != KindEquality {
			for _, v := range values {
				w := &walker{rules: set, result: result}
				w.compare(path, firstOr(expected[name], ""), v)
			}
			continue
		}
		if strings.Join(expected[name], "\x00") != strings.Join(values, "\x00") {
			result.add(formatPath(path), expected[name], values, "expected query parameter %q to be %v but got %v", name, expected[name], values)
		}
	}
	for _, name := range sortedStringKeys(actual) {
		if _, ok := expected[name]; !ok {
			result.add(formatPath([]token{keyToken("query"), keyToken(name)}), nil, actual[name], "unexpected query parameter %q", name)
		}
	}
}

// matchHeaders is a subset check: every expected header must be present with a
// matching value, header names compare case-insensitively.
func matchHeaders(result *Result, set ruleSet, expected, actual map[string]string) {
	lowered := make(map[string]string, len(actual))
	for k, v := range actual {
		lowered[strings.ToLower(k)] = v
	}

	for _, name := range sortedStringKeysOf(expected) {
		path := []token{keyToken("headers"), keyToken(name)}
		value, present := lowered[strings.ToLower(name)]
		if !present {
			result.add(formatPath(path), expected[name], nil, "expected header %q is missing", name)
			continue
		}
		if rule, ok := set.lookup(path); ok && rule.rule.Kind != KindEquality {
			w := &walker{rules: set, result: result}
			w.compare(path, expected[name], value)
			continue
		}
		if !headerValueEqual(name, expected[name], value) {
			result.add(formatPath(path), expected[name], value, "expected header %q to be %q but got %q", name, expected[name], value)
		}
	}
}

func headerValueEqual(name, expected, actual string) bool {
	if strings.EqualFold(name, "Content-Type") {
		em, eparams, eerr := mime.ParseMediaType(expected)
		am, aparams, aerr := mime.ParseMediaType(actual)
		if eerr == nil && aerr == nil {
			if em != am {
				return false
			}
			for k, v := range eparams {
				if !strings.EqualFold(aparams[k], v) {
					return false
				}
			}
			return true
		}
	}
	return normalizeHeaderValue(expected) == normalizeHeaderValue(actual)
}

func normalizeHeaderValue(v string) string {
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

func matchBody(result *Result, set ruleSet, expected, actual interface{}) {
	if expected == nil {
		return
	}
	root := []token{keyToken("body")}
	if actual == nil {
		result.add(formatPath(root), expected, nil, "expected a body but got none")
		return
	}
	result.merge(matchTree(root, expected, actual, set))
}

func sortedStringKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}
