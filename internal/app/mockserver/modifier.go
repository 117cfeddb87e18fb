package mockserver

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

const (
	statusPath     = "$.status"
	bodyPathPrefix = "$.body."
)

// Modifier overrides part of the response served for an interaction, either on every
// call or only on the given attempt.
type Modifier struct {
	Interaction string `json:"interaction"`
	Path        string `json:"path"`
	Value       string `json:"value"`
	Attempt     *int   `json:"attempt,omitempty"`
}

func loadModifier(data []byte) (*Modifier, error) {
	modifier := &Modifier{}
	if err := json.Unmarshal(data, modifier); err != nil {
		return nil, errors.Wrap(err, "unable to parse modifier from data")
	}
	if err := modifier.validate(); err != nil {
		return nil, err
	}
	return modifier, nil
}

func (m *Modifier) validate() error {
	if m.Interaction == "" {
		return errors.New("modifier has no interaction")
	}
	switch {
	case m.Path == statusPath:
		if _, err := strconv.Atoi(m.Value); err != nil {
			return errors.Errorf("invalid status %q", m.Value)
		}
	case strings.HasPrefix(m.Path, bodyPathPrefix) && len(m.Path) > len(bodyPathPrefix):
	default:
		return errors.Errorf("invalid path: %s, expected %s or %s<field>", m.Path, statusPath, bodyPathPrefix)
	}
	if m.Attempt != nil && *m.Attempt < 1 {
		return errors.Errorf("invalid attempt %d", *m.Attempt)
	}
	return nil
}

func (m *Modifier) key() string {
	return m.Path
}

func (m *Modifier) appliesTo(attempt int) bool {
	return m.Attempt == nil || *m.Attempt == attempt
}

// modifiers holds the modifiers of one interaction, the latest one per path wins.
type modifiers struct {
	mu        sync.Mutex
	modifiers map[string]*Modifier
}

func (m *modifiers) add(modifier *Modifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modifiers == nil {
		m.modifiers = map[string]*Modifier{}
	}
	m.modifiers[modifier.key()] = modifier
}

func (m *modifiers) all() []*Modifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Modifier, 0, len(m.modifiers))
	for _, modifier := range m.modifiers {
		result = append(result, modifier)
	}
	return result
}

// apply returns status and body with the modifiers for the given attempt applied. The
// body is expected to be JSON when a body modifier applies.
func (m *modifiers) apply(attempt, status int, body []byte) (int, []byte, error) {
	for _, modifier := range m.all() {
		if !modifier.appliesTo(attempt) {
			continue
		}
		if modifier.Path == statusPath {
			code, err := strconv.Atoi(modifier.Value)
			if err != nil {
				return 0, nil, err
			}
			status = code
			continue
		}

		var err error
		body, err = sjson.SetBytes(body, modifier.Path[len(bodyPathPrefix):], modifiedValue(modifier.Value))
		if err != nil {
			return 0, nil, errors.Wrapf(err, "unable to apply modifier %s", modifier.Path)
		}
	}
	return status, body, nil
}

// modifiedValue keeps JSON literals typed, so a value of 42 sets a number and "42"
// quoted sets a string.
func modifiedValue(value string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		return v
	}
	return value
}
