package dyndb

import (
	"fmt"
	"regexp"
)

// InvalidIdentifierError is returned when a user-supplied table or column
// name fails the allow-list check. It is always fatal to the operation.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier: %q", e.Name)
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SafeIdent returns the identifier unchanged when it is safe to interpolate
// into statement text. Anything outside [A-Za-z0-9_] is rejected outright,
// never stripped. Reserved words are the caller's problem.
func SafeIdent(name string) (string, error) {
	if name == "" || !identPattern.MatchString(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return name, nil
}

// SafeIdents sanitizes a list of identifiers, failing on the first bad one.
func SafeIdents(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		s, err := SafeIdent(n)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
