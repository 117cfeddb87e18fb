package matching

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokenKey tokenKind = iota
	tokenIndex
	tokenAnyKey
	tokenAnyIndex
)

type token struct {
	kind  tokenKind
	key   string
	index int
}

func keyToken(key string) token {
	return token{kind: tokenKey, key: key}
}

func indexToken(i int) token {
	return token{kind: tokenIndex, index: i}
}

func (t token) matches(concrete token) bool {
	switch t.kind {
	case tokenAnyKey:
		return concrete.kind == tokenKey
	case tokenAnyIndex:
		return concrete.kind == tokenIndex
	case tokenKey:
		return concrete.kind == tokenKey && concrete.key == t.key
	default:
		return concrete.kind == tokenIndex && concrete.index == t.index
	}
}

func (t token) wildcard() bool {
	return t.kind == tokenAnyKey || t.kind == tokenAnyIndex
}

// parsePath parses expressions of the form $.body.items[*].name, $.headers['X-Id'] or $.body.*
func parsePath(path string) ([]token, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, errors.Errorf("path %q must start with $", path)
	}

	var tokens []token
	rest := path[1:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			name := rest[:end]
			if name == "" {
				return nil, errors.Errorf("path %q has an empty segment", path)
			}
			if name == "*" {
				tokens = append(tokens, token{kind: tokenAnyKey})
			} else {
				tokens = append(tokens, keyToken(name))
			}
			rest = rest[end:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, errors.Errorf("path %q has an unterminated [", path)
			}
			inner := rest[1:end]
			switch {
			case inner == "*":
				tokens = append(tokens, token{kind: tokenAnyIndex})
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				tokens = append(tokens, keyToken(inner[1:len(inner)-1]))
			default:
				i, err := strconv.Atoi(inner)
				if err != nil || i < 0 {
					return nil, errors.Errorf("path %q has an invalid index %q", path, inner)
				}
				tokens = append(tokens, indexToken(i))
			}
			rest = rest[end+1:]
		default:
			return nil, errors.Errorf("path %q has unexpected character %q", path, rest[0])
		}
	}
	return tokens, nil
}

func formatPath(tokens []token) string {
	var b strings.Builder
	b.WriteString("$")
	for _, t := range tokens {
		switch t.kind {
		case tokenAnyKey:
			b.WriteString(".*")
		case tokenAnyIndex:
			b.WriteString("[*]")
		case tokenIndex:
			b.WriteString("[" + strconv.Itoa(t.index) + "]")
		default:
			if plainKey(t.key) {
				b.WriteString("." + t.key)
			} else {
				b.WriteString("['" + t.key + "']")
			}
		}
	}
	return b.String()
}

// jsonPath renders tokens in the bracket notation understood by PaesslerAG/jsonpath,
// which would otherwise read a header such as Content-Type as an expression.
func jsonPath(tokens []token) string {
	var b strings.Builder
	b.WriteString("$")
	for _, t := range tokens {
		switch t.kind {
		case tokenAnyKey, tokenAnyIndex:
			b.WriteString("[*]")
		case tokenIndex:
			b.WriteString("[" + strconv.Itoa(t.index) + "]")
		default:
			b.WriteString("[" + strconv.Quote(t.key) + "]")
		}
	}
	return b.String()
}

func plainKey(key string) bool {
	if key == "" || key == "*" {
		return false
	}
	return !strings.ContainsAny(key, ".[]'\" ")
}

// JoinKey appends a mapping key to a path expression.
func JoinKey(path, key string) string {
	if plainKey(key) {
		return path + "." + key
	}
	return path + "['" + key + "']"
}

// JoinIndex appends a sequence index to a path expression.
func JoinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func appendToken(path []token, t token) []token {
	next := make([]token, len(path), len(path)+1)
	copy(next, path)
	return append(next, t)
}

// JoinAnyIndex appends a wildcard index selecting every element of a sequence.
func JoinAnyIndex(path string) string {
	return path + "[*]"
}
