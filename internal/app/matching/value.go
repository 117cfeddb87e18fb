package matching

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindNumber
	kindString
	kindSequence
	kindMapping
	kindUnknown
)

func (k valueKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindBool:
		return "boolean"
	case kindNumber:
		return "number"
	case kindString:
		return "string"
	case kindSequence:
		return "array"
	case kindMapping:
		return "object"
	default:
		return "unknown"
	}
}

func kindOf(v interface{}) valueKind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return kindNumber
	case string:
		return kindString
	case []interface{}:
		return kindSequence
	case map[string]interface{}:
		return kindMapping
	default:
		return kindUnknown
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func isInteger(v interface{}) bool {
	f, ok := toFloat(v)
	return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
}

func primitiveEqual(expected, actual interface{}) bool {
	if kindOf(expected) == kindNumber {
		e, _ := toFloat(expected)
		a, ok := toFloat(actual)
		return ok && e == a
	}
	return expected == actual
}

// Normalize converts a Go value into a value tree made only of nil, bool, float64,
// string, []interface{} and map[string]interface{}.
func Normalize(v interface{}) (interface{}, error) {
	switch kindOf(v) {
	case kindNull, kindBool, kindString:
		return v, nil
	case kindNumber:
		f, _ := toFloat(v)
		return f, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func describe(v interface{}) string {
	switch kindOf(v) {
	case kindNull:
		return "null"
	case kindMapping, kindSequence:
		data, err := json.Marshal(v)
		if err != nil {
			return kindOf(v).String()
		}
		return string(data)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return kindOf(v).String() + " " + string(data)
	}
}
