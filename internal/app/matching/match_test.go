package matching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tree(t *testing.T, data string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &v))
	return v
}

const employees = `{"employees":[{"id":1,"name":"John Doe","age":30}]}`

func TestMatchBody(t *testing.T) {
	ageByType := Rules{"$.body.employees[*].age": TypeMatch()}

	tests := []struct {
		name      string
		expected  string
		actual    string
		rules     Rules
		wantPaths []string
	}{
		{
			name:     "identical trees match",
			expected: employees,
			actual:   employees,
		},
		{
			name:     "type rule accepts a different number",
			expected: employees,
			actual:   `{"employees":[{"id":1,"name":"John Doe","age":99}]}`,
			rules:    ageByType,
		},
		{
			name:      "equality is the default for paths without a rule",
			expected:  employees,
			actual:    `{"employees":[{"id":1,"name":42,"age":30}]}`,
			rules:     ageByType,
			wantPaths: []string{"$.body.employees[0].name"},
		},
		{
			name:      "type rule rejects a different kind",
			expected:  employees,
			actual:    `{"employees":[{"id":1,"name":"John Doe","age":"thirty"}]}`,
			rules:     ageByType,
			wantPaths: []string{"$.body.employees[0].age"},
		},
		{
			name:      "every violation is reported",
			expected:  `{"name":"New Employee","age":22}`,
			actual:    `{"name":"Old Employee","age":23}`,
			wantPaths: []string{"$.body.age", "$.body.name"},
		},
		{
			name:      "extra keys are a mismatch under equality",
			expected:  `{"name":"New Employee"}`,
			actual:    `{"name":"New Employee","age":23}`,
			wantPaths: []string{"$.body.age"},
		},
		{
			name:      "missing keys are a mismatch",
			expected:  `{"name":"New Employee","age":22}`,
			actual:    `{"name":"New Employee"}`,
			wantPaths: []string{"$.body.age"},
		},
		{
			name:      "sequences are compared in order and by length",
			expected:  `[1,2,3]`,
			actual:    `[1,3]`,
			wantPaths: []string{"$.body", "$.body[1]"},
		},
		{
			name:     "wildcard rule declares a policy for extra keys",
			expected: `{"name":"New Employee"}`,
			actual:   `{"name":"New Employee","age":23}`,
			rules:    Rules{"$.body.*": TypeMatch()},
		},
		{
			name:     "integers compare equal to their float form",
			expected: `{"age":22}`,
			actual:   `{"age":22.0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MatchAt("$.body", tree(t, tt.expected), tree(t, tt.actual), tt.rules)

			assert.Equal(t, len(tt.wantPaths) == 0, result.Matched, result.String())
			assert.ElementsMatch(t, tt.wantPaths, result.Paths())
		})
	}
}

func TestMatchLike(t *testing.T) {
	rules := Rules{"$.body": LikeMatch(true)}
	expected := tree(t, `{"employees":[{"id":1,"name":"John Doe","age":30}],"total":1}`)

	tests := []struct {
		name      string
		actual    string
		wantPaths []string
	}{
		{
			name:   "same shape with other values matches",
			actual: `{"employees":[{"id":7,"name":"Jane","age":25},{"id":8,"name":"Bob","age":41}],"total":2}`,
		},
		{
			name:   "extra keys are allowed",
			actual: `{"employees":[{"id":7,"name":"Jane","age":25,"team":"x"}],"total":1,"page":1}`,
		},
		{
			name:   "empty sequences match the template",
			actual: `{"employees":[],"total":0}`,
		},
		{
			name:      "each element is checked against the first expected element",
			actual:    `{"employees":[{"id":7,"name":"Jane","age":25},{"id":"8","name":"Bob","age":41}],"total":2}`,
			wantPaths: []string{"$.body.employees[1].id"},
		},
		{
			name:      "missing keys are reported",
			actual:    `{"employees":[{"id":7,"age":25}]}`,
			wantPaths: []string{"$.body.employees[0].name", "$.body.total"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MatchAt("$.body", expected, tree(t, tt.actual), rules)

			assert.Equal(t, len(tt.wantPaths) == 0, result.Matched, result.String())
			assert.ElementsMatch(t, tt.wantPaths, result.Paths())
		})
	}
}

func TestMatchLikeStopsAtExplicitRule(t *testing.T) {
	rules := Rules{
		"$.body":      LikeMatch(true),
		"$.body.kind": Equality(),
	}
	expected := tree(t, `{"kind":"employee","id":1}`)

	result := MatchAt("$.body", expected, tree(t, `{"kind":"manager","id":2}`), rules)

	require.False(t, result.Matched)
	assert.Equal(t, []string{"$.body.kind"}, result.Paths())
}

func TestMatchRegexAndInteger(t *testing.T) {
	rules := Rules{
		"$.body.date": RegexMatch(`\d{4}-\d{2}-\d{2}`),
		"$.body.id":   IntegerMatch(),
	}
	expected := tree(t, `{"date":"2020-01-01","id":1}`)

	result := MatchAt("$.body", expected, tree(t, `{"date":"2023-12-31","id":42}`), rules)
	assert.True(t, result.Matched, result.String())

	result = MatchAt("$.body", expected, tree(t, `{"date":"31/12/2023","id":4.2}`), rules)
	assert.ElementsMatch(t, []string{"$.body.date", "$.body.id"}, result.Paths())

	result = MatchAt("$.body", expected, tree(t, `{"date":20231231,"id":1}`), rules)
	assert.Equal(t, []string{"$.body.date"}, result.Paths())
}

func TestMatchAbsent(t *testing.T) {
	rules := Rules{
		"$.body.password":           AbsentMatch(),
		"$.body.employees[*].token": AbsentMatch(),
	}
	expected := tree(t, `{"name":"x","employees":[{"id":1}]}`)

	result := MatchAt("$.body", expected, tree(t, `{"name":"x","employees":[{"id":1}]}`), rules)
	assert.True(t, result.Matched, result.String())

	result = MatchAt("$.body", expected, tree(t, `{"name":"x","password":"secret","employees":[{"id":1,"token":"t"}]}`), rules)
	assert.ElementsMatch(t, []string{"$.body.password", "$.body.employees[*].token"}, result.Paths())
}

func TestMatchIgnoresUnresolvedAndInvalidRules(t *testing.T) {
	rules := Rules{
		"$.body.nothing.here": TypeMatch(),
		"body.name":           TypeMatch(),
	}

	result := MatchAt("$.body", tree(t, `{"name":"a"}`), tree(t, `{"name":"a"}`), rules)

	assert.True(t, result.Matched, result.String())
}

func TestMatchRequest(t *testing.T) {
	expected := Request{
		Method:  "POST",
		Path:    "/employees",
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    tree(t, `{"name":"New Employee","age":22}`),
	}

	tests := []struct {
		name      string
		actual    Request
		rules     Rules
		mode      PathMode
		wantPaths []string
	}{
		{
			name: "exact request matches",
			actual: Request{
				Method:  "post",
				Path:    "/employees",
				Headers: map[string]string{"content-type": "application/json; charset=utf-8", "X-Trace": "1"},
				Body:    tree(t, `{"name":"New Employee","age":22}`),
			},
		},
		{
			name: "a wrong body field is cited by path",
			actual: Request{
				Method:  "POST",
				Path:    "/employees",
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    tree(t, `{"name":"New Employee","age":23}`),
			},
			wantPaths: []string{"$.body.age"},
		},
		{
			name: "method, path, header and body are all reported",
			actual: Request{
				Method:  "PUT",
				Path:    "/employees/1",
				Headers: map[string]string{"Content-Type": "text/plain"},
			},
			wantPaths: []string{"$.method", "$.path", "$.headers.Content-Type", "$.body"},
		},
		{
			name: "path regex rule",
			actual: Request{
				Method:  "POST",
				Path:    "/v2/employees",
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    tree(t, `{"name":"New Employee","age":22}`),
			},
			rules: Rules{"$.path": RegexMatch(`/(v\d/)?employees`)},
		},
		{
			name: "unexpected query parameters are a mismatch",
			actual: Request{
				Method:  "POST",
				Path:    "/employees",
				Query:   map[string][]string{"dryRun": {"true"}},
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    tree(t, `{"name":"New Employee","age":22}`),
			},
			wantPaths: []string{"$.query.dryRun"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MatchRequest(expected, tt.actual, tt.rules, tt.mode)

			assert.Equal(t, len(tt.wantPaths) == 0, result.Matched, result.String())
			assert.ElementsMatch(t, tt.wantPaths, result.Paths())
		})
	}
}

func TestMatchRequestPathModes(t *testing.T) {
	expected := Request{Method: "GET", Path: "/employees/1"}

	strict := MatchRequest(expected, Request{Method: "GET", Path: "/employees/2"}, nil, PathStrict)
	assert.Equal(t, []string{"$.path"}, strict.Paths())

	typed := MatchRequest(expected, Request{Method: "GET", Path: "/employees/2"}, nil, PathTypedID)
	assert.True(t, typed.Matched, typed.String())

	typed = MatchRequest(expected, Request{Method: "GET", Path: "/employees/abc"}, nil, PathTypedID)
	assert.Equal(t, []string{"$.path"}, typed.Paths())

	assert.Equal(t, "/employees/{id}", PathTemplate("/employees/7", PathTypedID))
	assert.Equal(t, "/employees", PathTemplate("/employees", PathTypedID))
	assert.Equal(t, "/employees/7", PathTemplate("/employees/7", PathStrict))
}

func TestMatchResponse(t *testing.T) {
	expected := Response{
		Status:  200,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    tree(t, `{"id":1,"name":"John Doe","age":30}`),
	}

	result := MatchResponse(expected, Response{Status: 404, Headers: map[string]string{}}, nil)

	assert.ElementsMatch(t, []string{"$.status", "$.headers.Content-Type", "$.body"}, result.Paths())

	result = MatchResponse(expected, Response{
		Status:  200,
		Headers: map[string]string{"Content-Type": "application/json; charset=UTF-8", "Date": "today"},
		Body:    tree(t, `{"id":2,"name":"Jane","age":31}`),
	}, Rules{"$.body": LikeMatch(true)})

	assert.True(t, result.Matched, result.String())
}
