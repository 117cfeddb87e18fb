package matching

import (
	"sort"

	"github.com/PaesslerAG/jsonpath"
)

// Match compares actual against expected, both rooted at $, and reports every path
// that violates the rules. It never stops at the first failure.
func Match(expected, actual interface{}, rules Rules) Result {
	return MatchAt("$", expected, actual, rules)
}

// MatchAt compares trees located at root (e.g. $.body) so that rules written
// against full message paths apply.
func MatchAt(root string, expected, actual interface{}, rules Rules) Result {
	tokens, err := parsePath(root)
	if err != nil {
		result := newResult()
		result.add(root, nil, nil, "invalid root path: %s", err)
		return *result
	}
	return matchTree(tokens, expected, actual, compile(rules))
}

func matchTree(root []token, expected, actual interface{}, set ruleSet) Result {
	w := &walker{rules: set, result: newResult()}
	w.compare(root, expected, actual)
	w.checkAbsent(root, actual)
	return *w.result
}

type walker struct {
	rules  ruleSet
	result *Result
}

func (w *walker) compare(path []token, expected, actual interface{}) {
	rule, ok := w.rules.lookup(path)
	if !ok {
		w.equal(path, expected, actual)
		return
	}

	switch rule.rule.Kind {
	case KindAbsent:
		// reported by checkAbsent
	case KindRegex:
		s, isString := actual.(string)
		if !isString {
			w.mismatch(path, rule.rule.Regex, actual, "expected a string matching %q but got %s", rule.rule.Regex, kindOf(actual))
			return
		}
		if !rule.regex.MatchString(s) {
			w.mismatch(path, rule.rule.Regex, actual, "expected %q to match %q", s, rule.rule.Regex)
		}
	case KindInteger:
		if !isInteger(actual) {
			w.mismatch(path, expected, actual, "expected an integer but got %s", describe(actual))
		}
	case KindType, KindLike:
		w.sameType(path, expected, actual)
	default:
		w.equal(path, expected, actual)
	}
}

// sameType accepts any value of the expected kind. Containers are also compared
// structurally: expected keys must be present (extra keys are allowed) and every
// element of a sequence is compared against the first expected element.
func (w *walker) sameType(path []token, expected, actual interface{}) {
	ek, ak := kindOf(expected), kindOf(actual)
	if ek != ak {
		w.mismatch(path, expected, actual, "expected %s but got %s", ek, ak)
		return
	}

	switch ek {
	case kindMapping:
		exp, act := expected.(map[string]interface{}), actual.(map[string]interface{})
		for _, k := range sortedKeys(exp) {
			child := appendToken(path, keyToken(k))
			av, present := act[k]
			if !present {
				if !w.absentAt(child) {
					w.mismatch(child, exp[k], nil, "expected key %q is missing", k)
				}
				continue
			}
			w.compare(child, exp[k], av)
		}
	case kindSequence:
		exp, act := expected.([]interface{}), actual.([]interface{})
		if len(exp) == 0 {
			return
		}
		for i, av := range act {
			w.compare(appendToken(path, indexToken(i)), exp[0], av)
		}
	}
}

func (w *walker) equal(path []token, expected, actual interface{}) {
	ek, ak := kindOf(expected), kindOf(actual)
	if ek != ak {
		w.mismatch(path, expected, actual, "expected %s but got %s", ek, ak)
		return
	}

	switch ek {
	case kindMapping:
		exp, act := expected.(map[string]interface{}), actual.(map[string]interface{})
		for _, k := range sortedKeys(exp) {
			child := appendToken(path, keyToken(k))
			av, present := act[k]
			if !present {
				if !w.absentAt(child) {
					w.mismatch(child, exp[k], nil, "expected key %q is missing", k)
				}
				continue
			}
			w.compare(child, exp[k], av)
		}
		for _, k := range sortedKeys(act) {
			if _, expectedKey := exp[k]; expectedKey {
				continue
			}
			child := appendToken(path, keyToken(k))
			if rule, ok := w.rules.lookup(child); ok && len(rule.tokens) == len(child) {
				// a rule selecting this key declares a policy for it
				switch rule.rule.Kind {
				case KindRegex, KindInteger:
					w.compare(child, nil, act[k])
					continue
				case KindType, KindLike, KindAbsent:
					continue
				}
			}
			w.mismatch(child, nil, act[k], "unexpected key %q", k)
		}
	case kindSequence:
		exp, act := expected.([]interface{}), actual.([]interface{})
		if len(exp) != len(act) {
			w.mismatch(path, len(exp), len(act), "expected %d elements but got %d", len(exp), len(act))
		}
		for i := 0; i < len(exp) && i < len(act); i++ {
			w.compare(appendToken(path, indexToken(i)), exp[i], act[i])
		}
	default:
		if !primitiveEqual(expected, actual) {
			w.mismatch(path, expected, actual, "expected %s but got %s", describe(expected), describe(actual))
		}
	}
}

func (w *walker) absentAt(path []token) bool {
	rule, ok := w.rules.lookup(path)
	return ok && rule.rule.Kind == KindAbsent
}

// checkAbsent resolves every absent rule below root against the actual tree.
func (w *walker) checkAbsent(root []token, actual interface{}) {
	absent := w.rules.absentRules(root)
	if len(absent) == 0 {
		return
	}

	document := actual
	for i := len(root) - 1; i >= 0; i-- {
		document = map[string]interface{}{root[i].key: document}
	}

	for _, c := range absent {
		if hasWildcard(c.tokens) {
			for _, found := range resolve(c.tokens, document) {
				w.result.add(c.path, nil, found, "expected no value but found %s", describe(found))
			}
			continue
		}
		found, err := jsonpath.Get(jsonPath(c.tokens), document)
		if err != nil {
			continue
		}
		w.result.add(c.path, nil, found, "expected no value but found %s", describe(found))
	}
}

// resolve returns the values at every location the pattern selects in v.
func resolve(pattern []token, v interface{}) []interface{} {
	if len(pattern) == 0 {
		return []interface{}{v}
	}
	t, rest := pattern[0], pattern[1:]
	var found []interface{}
	switch node := v.(type) {
	case map[string]interface{}:
		if t.kind == tokenAnyKey {
			for _, k := range sortedKeys(node) {
				found = append(found, resolve(rest, node[k])...)
			}
		} else if child, ok := node[t.key]; ok && t.kind == tokenKey {
			found = resolve(rest, child)
		}
	case []interface{}:
		if t.kind == tokenAnyIndex {
			for _, child := range node {
				found = append(found, resolve(rest, child)...)
			}
		} else if t.kind == tokenIndex && t.index < len(node) {
			found = resolve(rest, node[t.index])
		}
	}
	return found
}

func (w *walker) mismatch(path []token, expected, actual interface{}, format string, args ...interface{}) {
	w.result.add(formatPath(path), expected, actual, format, args...)
}

func hasWildcard(tokens []token) bool {
	for _, t := range tokens {
		if t.wildcard() {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
