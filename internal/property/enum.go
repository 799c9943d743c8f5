package property

import "slices"

// Enum is implemented by string types with a closed set of canonical
// lowercase tokens. Such fields are validated on both encode and decode.
type Enum interface {
	EnumValues() []string
}

// CheckEnum returns an UnknownEnumValueError when token is not one of allowed.
func CheckEnum(path, token string, allowed []string) error {
	if slices.Contains(allowed, token) {
		return nil
	}
	return &UnknownEnumValueError{Path: path, Value: token, Allowed: allowed}
}
