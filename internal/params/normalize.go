// Package params flattens heterogeneous command arguments into the flat
// string map the wire protocol expects, and computes the HMAC-SHA1 request
// signature over it.
package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// Normalize flattens an argument map into a flat string-to-string map.
//
// A nil value drops the key entirely. Scalars are stringified canonically.
// An empty slice or map drops the key. A slice of scalars is comma-joined in
// order. A slice of maps expands to indexed dotted keys ("key[0].field");
// a bare map is treated as a one-element slice. Any other value type is a
// fatal input error, raised before any network activity.
//
// Normalize is idempotent: its output re-normalizes to itself.
func Normalize(args map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(args))

	for key, value := range args {
		if value == nil {
			continue
		}

		if s, ok := scalarString(value); ok {
			out[key] = s

			continue
		}

		switch v := value.(type) {
		case map[string]any:
			if len(v) == 0 {
				continue
			}

			if err := expandMaps(out, key, []map[string]any{v}); err != nil {
				return nil, err
			}
		case []map[string]any:
			if len(v) == 0 {
				continue
			}

			if err := expandMaps(out, key, v); err != nil {
				return nil, err
			}
		default:
			elems, ok := sliceElements(value)
			if !ok {
				return nil, &cloudstack.UnsupportedTypeError{Key: key, Value: value}
			}

			if len(elems) == 0 {
				continue
			}

			if maps, ok := mapElements(elems); ok {
				if err := expandMaps(out, key, maps); err != nil {
					return nil, err
				}

				continue
			}

			joined, err := joinScalars(key, elems)
			if err != nil {
				return nil, err
			}

			out[key] = joined
		}
	}

	return out, nil
}

// scalarString converts a scalar argument to its canonical wire form.
func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		// Untyped JSON decoding produces float64 for every number.
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// sliceElements generalizes the supported slice kinds to []any.
func sliceElements(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		elems := make([]any, len(v))
		for i, s := range v {
			elems[i] = s
		}

		return elems, true
	case []int:
		elems := make([]any, len(v))
		for i, n := range v {
			elems[i] = n
		}

		return elems, true
	case []int64:
		elems := make([]any, len(v))
		for i, n := range v {
			elems[i] = n
		}

		return elems, true
	case []bool:
		elems := make([]any, len(v))
		for i, b := range v {
			elems[i] = b
		}

		return elems, true
	default:
		return nil, false
	}
}

// mapElements reports whether every element of a generic slice is a map,
// returning the converted slice when so.
func mapElements(elems []any) ([]map[string]any, bool) {
	if _, ok := elems[0].(map[string]any); !ok {
		return nil, false
	}

	maps := make([]map[string]any, 0, len(elems))

	for _, elem := range elems {
		m, ok := elem.(map[string]any)
		if !ok {
			return nil, false
		}

		maps = append(maps, m)
	}

	return maps, true
}

// joinScalars comma-joins a slice of scalars in original order.
func joinScalars(key string, elems []any) (string, error) {
	parts := make([]string, 0, len(elems))

	for _, elem := range elems {
		s, ok := scalarString(elem)
		if !ok {
			return "", &cloudstack.UnsupportedTypeError{Key: key, Value: elem}
		}

		parts = append(parts, s)
	}

	return strings.Join(parts, ","), nil
}

// expandMaps flattens a slice of maps into indexed dotted keys.
func expandMaps(out map[string]string, key string, maps []map[string]any) error {
	for index, m := range maps {
		for field, value := range m {
			s, ok := scalarString(value)
			if !ok {
				return &cloudstack.UnsupportedTypeError{
					Key:   fmt.Sprintf("%s[%d].%s", key, index, field),
					Value: value,
				}
			}

			out[fmt.Sprintf("%s[%d].%s", key, index, field)] = s
		}
	}

	return nil
}
