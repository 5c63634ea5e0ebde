package message

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Undefined is the decoded form of an undefined typed token. It is distinct
// from nil, which decodes from a null token.
var Undefined = undefined{}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Typed encodes a single native value as a typed token.
func Typed(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return string(typeNull), nil
	case undefined:
		return string(typeUndefined), nil
	case string:
		return string(typeString) + v, nil
	case bool:
		if v {
			return string(typeTrue), nil
		}
		return string(typeFalse), nil
	case int:
		return string(typeNumber) + strconv.FormatInt(int64(v), 10), nil
	case int64:
		return string(typeNumber) + strconv.FormatInt(v, 10), nil
	case float64:
		return string(typeNumber) + strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return string(typeNumber) + strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	}

	// Maps, slices and structs all serialize as object tokens.
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("cannot encode typed value %T: %w", value, err)
	}
	return string(typeObject) + string(encoded), nil
}

// ConvertTyped decodes a typed token back into a native value. Numbers decode
// as float64 and object tokens as the usual decoded-JSON shapes, matching
// what encoding/json produces elsewhere in the client.
func ConvertTyped(token string) (any, error) {
	if token == "" {
		return nil, fmt.Errorf("empty typed token")
	}
	rest := token[1:]
	switch token[0] {
	case typeString:
		return rest, nil
	case typeObject:
		var value any
		if err := json.Unmarshal([]byte(rest), &value); err != nil {
			return nil, fmt.Errorf("malformed object token: %w", err)
		}
		return value, nil
	case typeNumber:
		n, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed number token %q: %w", rest, err)
		}
		return n, nil
	case typeTrue:
		return true, nil
	case typeFalse:
		return false, nil
	case typeNull:
		return nil, nil
	case typeUndefined:
		return Undefined, nil
	}
	return nil, fmt.Errorf("unknown typed token prefix %q", token[0])
}
