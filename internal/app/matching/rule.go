// Package matching compares actual HTTP messages and JSON value trees against
// expected ones, relaxed per path by matching rules.
package matching

import (
	"encoding/json"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	KindEquality Kind = "equality"
	KindType     Kind = "type"
	KindInteger  Kind = "integer"
	KindRegex    Kind = "regex"
	KindLike     Kind = "like"
	KindAbsent   Kind = "absent"
)

// Rule relaxes (or tightens) how the value at a path is compared.
// Regex is only meaningful for KindRegex and Recursive for KindLike.
type Rule struct {
	Kind      Kind
	Regex     string
	Recursive bool
}

func Equality() Rule { return Rule{Kind: KindEquality} }

func TypeMatch() Rule { return Rule{Kind: KindType} }

func IntegerMatch() Rule { return Rule{Kind: KindInteger} }

func RegexMatch(pattern string) Rule { return Rule{Kind: KindRegex, Regex: pattern} }

func LikeMatch(recursive bool) Rule { return Rule{Kind: KindLike, Recursive: recursive} }

func AbsentMatch() Rule { return Rule{Kind: KindAbsent} }

type ruleDocument struct {
	Match     string `json:"match,omitempty"`
	Regex     string `json:"regex,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

func (r Rule) MarshalJSON() ([]byte, error) {
	doc := ruleDocument{Match: string(r.Kind)}
	switch r.Kind {
	case KindRegex:
		doc.Regex = r.Regex
	case KindLike:
		doc.Recursive = r.Recursive
	}
	return json.Marshal(doc)
}

// UnmarshalJSON accepts {"match": "<kind>", ...} as well as the older
// {"regex": "<expression>"} form that omits the match key.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unable to parse matching rule")
	}

	kind := Kind(doc.Match)
	if kind == "" {
		if doc.Regex == "" {
			return errors.New("matching rule has neither a match type nor a regex")
		}
		kind = KindRegex
	}

	switch kind {
	case KindEquality, KindType, KindInteger, KindAbsent:
		*r = Rule{Kind: kind}
	case KindRegex:
		if doc.Regex == "" {
			return errors.New("regex matching rule has no regex")
		}
		*r = RegexMatch(doc.Regex)
	case KindLike:
		*r = LikeMatch(doc.Recursive)
	default:
		return errors.Errorf("unsupported matching rule type %q", doc.Match)
	}
	return nil
}

func (r Rule) cascades() bool {
	return r.Kind == KindLike && r.Recursive
}

// Rules maps path expressions (e.g. $.body.employees[*].age) to the rule that applies there.
type Rules map[string]Rule

// Validate reports rule paths that cannot be parsed and regexes that do not compile.
func (r Rules) Validate() error {
	for _, path := range r.paths() {
		if _, err := parsePath(path); err != nil {
			return err
		}
		if rule := r[path]; rule.Kind == KindRegex {
			if _, err := regexp.Compile(anchor(rule.Regex)); err != nil {
				return errors.Wrapf(err, "invalid regex for %s", path)
			}
		}
	}
	return nil
}

// Merge returns a copy of r with the rules of other added, other winning on conflicts.
func (r Rules) Merge(other Rules) Rules {
	merged := make(Rules, len(r)+len(other))
	for k, v := range r {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// CascadeContainerTypes returns a copy of r in which every type rule selecting an
// object or array of document is a recursive like rule. Pact v2 files rely on a type
// rule covering everything below the container it is set on.
func (r Rules) CascadeContainerTypes(document interface{}) Rules {
	if len(r) == 0 {
		return r
	}
	upgraded := make(Rules, len(r))
	for path, rule := range r {
		upgraded[path] = rule
		if rule.Kind != KindType {
			continue
		}
		tokens, err := parsePath(path)
		if err != nil {
			continue
		}
		for _, found := range resolve(tokens, document) {
			if k := kindOf(found); k == kindMapping || k == kindSequence {
				upgraded[path] = LikeMatch(true)
				break
			}
		}
	}
	return upgraded
}

func (r Rules) paths() []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type compiledRule struct {
	path        string
	tokens      []token
	rule        Rule
	regex       *regexp.Regexp
	specificity int
}

type ruleSet []compiledRule

func compile(rules Rules) ruleSet {
	set := make(ruleSet, 0, len(rules))
	for _, path := range rules.paths() {
		tokens, err := parsePath(path)
		if err != nil {
			log.WithError(err).Debugf("ignoring matching rule for %s", path)
			continue
		}
		rule := rules[path]
		c := compiledRule{path: path, tokens: tokens, rule: rule}
		for _, t := range tokens {
			if !t.wildcard() {
				c.specificity++
			}
		}
		if rule.Kind == KindRegex {
			c.regex, err = regexp.Compile(anchor(rule.Regex))
			if err != nil {
				log.WithError(err).Debugf("ignoring matching rule for %s", path)
				continue
			}
		}
		set = append(set, c)
	}
	return set
}

// lookup returns the rule governing a concrete location: a rule whose path selects
// the location exactly, or failing that the closest recursive like rule above it.
func (s ruleSet) lookup(path []token) (*compiledRule, bool) {
	var direct, inherited *compiledRule
	for i := range s {
		c := &s[i]
		if len(c.tokens) > len(path) || !prefixMatches(c.tokens, path) {
			continue
		}
		if len(c.tokens) == len(path) {
			if direct == nil || c.specificity > direct.specificity {
				direct = c
			}
			continue
		}
		if !c.rule.cascades() {
			continue
		}
		if inherited == nil || len(c.tokens) > len(inherited.tokens) ||
			(len(c.tokens) == len(inherited.tokens) && c.specificity > inherited.specificity) {
			inherited = c
		}
	}
	if direct != nil {
		return direct, true
	}
	return inherited, inherited != nil
}

func (s ruleSet) absentRules(root []token) []compiledRule {
	var absent []compiledRule
	for _, c := range s {
		if c.rule.Kind == KindAbsent && len(c.tokens) > len(root) && prefixMatches(root, c.tokens) {
			absent = append(absent, c)
		}
	}
	return absent
}

func prefixMatches(pattern, path []token) bool {
	for i, t := range pattern {
		if !t.matches(path[i]) {
			return false
		}
	}
	return true
}

func anchor(pattern string) string {
	return "^(?:" + pattern + ")$"
}
