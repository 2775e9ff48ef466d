package profile

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName wraps every ValidateName failure.
var ErrInvalidName = errors.New("invalid profile name")

// Profile names become directory names and appear after --profile, so they
// must start with a letter or digit.
var nameRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName checks that name is usable as a profile directory.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of a-z, 0-9, '-' or '_', starting with a letter or digit", ErrInvalidName, name)
	}
	return nil
}
