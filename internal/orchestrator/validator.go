package orchestrator

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidAction rejects a registration with a bad name or nil handler.
	ErrInvalidAction = errors.New("invalid action")
	// ErrDuplicateAction rejects a second registration under the same name.
	ErrDuplicateAction = errors.New("duplicate action")
)

var actionNameRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// ValidateActionName checks that name is an upper-case identifier such as
// SPEAK or SEND_DIGEST.
func ValidateActionName(name string) error {
	if !actionNameRe.MatchString(name) {
		return fmt.Errorf("%w: name %q must match %s", ErrInvalidAction, name, actionNameRe)
	}
	return nil
}

func validateRegistration(name string, h HandlerFunc) error {
	if err := ValidateActionName(name); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidAction, name)
	}
	return nil
}
