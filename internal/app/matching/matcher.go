package matching

import (
	"encoding/json"
	"reflect"
	"sort"

	"github.com/pkg/errors"
)

// Matcher is an example value annotated with the rule it is matched by. Matchers may
// be nested anywhere inside a body, header or query value given to the builder.
type Matcher struct {
	Rule    Rule
	Example interface{}
}

// MarshalJSON renders the example, so a matcher encodes as the value it stands for.
func (m Matcher) MarshalJSON() ([]byte, error) {
	tree, _, err := Extract("$", m.Example)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// Like matches any value with the same shape as example: numbers and strings match by
// type, objects by their keys and arrays by their first element.
func Like(example interface{}) Matcher {
	return Matcher{Rule: LikeMatch(true), Example: example}
}

// EachLike matches an array whose every element is like example.
func EachLike(example interface{}) Matcher {
	return Matcher{Rule: LikeMatch(true), Example: []interface{}{example}}
}

func Type(example interface{}) Matcher {
	return Matcher{Rule: TypeMatch(), Example: example}
}

func Integer(example int) Matcher {
	return Matcher{Rule: IntegerMatch(), Example: example}
}

// Term matches strings against pattern, example is what the mock serves and the
// verifier sends.
func Term(example, pattern string) Matcher {
	return Matcher{Rule: RegexMatch(pattern), Example: example}
}

func Equal(example interface{}) Matcher {
	return Matcher{Rule: Equality(), Example: example}
}

// Absent declares that the key it is assigned to must not be present.
func Absent() Matcher {
	return Matcher{Rule: AbsentMatch()}
}

// Extract walks v, replacing matchers by their examples, and returns the resulting
// value tree together with the rules the matchers declared, keyed under root.
func Extract(root string, v interface{}) (interface{}, Rules, error) {
	rules := Rules{}
	tree, _, err := extract(root, reflect.ValueOf(v), rules, false)
	if err != nil {
		return nil, nil, err
	}
	return tree, rules, nil
}

// extract reports false as its second result when the value is an Absent matcher and
// the enclosing key must be dropped from the example. like is set below a recursive
// like rule, where sequences are templates.
func extract(path string, v reflect.Value, rules Rules, like bool) (interface{}, bool, error) {
	if !v.IsValid() {
		return nil, true, nil
	}

	if m, ok := asMatcher(v); ok {
		rules[path] = m.Rule
		if m.Rule.Kind == KindAbsent {
			return nil, false, nil
		}
		return extract(path, reflect.ValueOf(m.Example), rules, m.Rule.cascades())
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Ptr:
		if v.IsNil() {
			return nil, true, nil
		}
		return extract(path, v.Elem(), rules, like)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false, errors.Errorf("unsupported map key type %s at %s", v.Type().Key(), path)
		}
		out := make(map[string]interface{}, v.Len())
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			child, keep, err := extract(JoinKey(path, k.String()), v.MapIndex(k), rules, like)
			if err != nil {
				return nil, false, err
			}
			if keep {
				out[k.String()] = child
			}
		}
		return out, true, nil
	case reflect.Slice, reflect.Array:
		if isSequence(v) {
			return extractSequence(path, v, rules, like)
		}
	}

	tree, err := Normalize(v.Interface())
	if err != nil {
		return nil, false, errors.Wrapf(err, "unable to encode value at %s", path)
	}
	return tree, true, nil
}

// isSequence excludes byte slices, they encode as base64 strings.
func isSequence(v reflect.Value) bool {
	return v.Type().Elem().Kind() != reflect.Uint8
}

// extractSequence extracts the elements of a slice or array. Under a recursive like
// rule the first element is the template of every actual element, so its rules are
// keyed by [*] instead of [0].
func extractSequence(path string, v reflect.Value, rules Rules, template bool) (interface{}, bool, error) {
	if v.Kind() == reflect.Slice && v.IsNil() {
		return nil, true, nil
	}

	out := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		childPath := JoinIndex(path, i)
		if template && i == 0 {
			childPath = JoinAnyIndex(path)
		}
		child, keep, err := extract(childPath, v.Index(i), rules, template)
		if err != nil {
			return nil, false, err
		}
		if keep {
			out = append(out, child)
		}
	}
	return out, true, nil
}

func asMatcher(v reflect.Value) (Matcher, bool) {
	if !v.CanInterface() {
		return Matcher{}, false
	}
	switch m := v.Interface().(type) {
	case Matcher:
		return m, true
	case *Matcher:
		if m != nil {
			return *m, true
		}
	}
	return Matcher{}, false
}
