package model

import "encoding/json"

// NullValue is a string which instructs the server to clear the field.
// It's the Unicode DEL symbol "␡" U+2421.
const NullValue = "␡"

// IsNull checks if the value is the null sentinel.
func IsNull(val any) bool {
	switch v := val.(type) {
	case string:
		return v == NullValue
	case *string:
		return v != nil && *v == NullValue
	case json.RawMessage:
		return string(v) == `"`+NullValue+`"`
	}
	return false
}
