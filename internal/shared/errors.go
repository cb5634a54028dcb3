package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a record with the same natural key exists.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidState occurs when a document is not in a status that allows the operation.
	ErrInvalidState = errors.New("invalid document state")
	// ErrBusinessRule is matched by every RuleViolation.
	ErrBusinessRule = errors.New("business rule violated")
)

// RuleViolation is raised inside a transaction body to abort it. Message is
// shown to the user as-is.
type RuleViolation struct {
	Rule    string
	Message string
}

// NewRuleViolation formats a RuleViolation.
func NewRuleViolation(rule, format string, args ...any) *RuleViolation {
	return &RuleViolation{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func (v *RuleViolation) Error() string {
	return v.Message
}

// Is lets errors.Is(err, ErrBusinessRule) match any violation.
func (v *RuleViolation) Is(target error) bool {
	return target == ErrBusinessRule
}

// AsRuleViolation unwraps err into a RuleViolation when possible.
func AsRuleViolation(err error) (*RuleViolation, bool) {
	var v *RuleViolation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// InvalidTransition builds an ErrInvalidState error for status changes.
func InvalidTransition(entity, from, to string) error {
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidState, entity, from, to)
}
