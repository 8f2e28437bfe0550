package vote

import (
	"errors"
	"fmt"
)

var (
	ErrCooldownActive    = errors.New("vote cooldown active")
	ErrInvalidUsername   = errors.New("minecraft username must be 3-16 characters of letters, digits or underscore")
	ErrInvalidUUID       = errors.New("invalid minecraft uuid")
	ErrServerNotApproved = errors.New("server is not accepting votes")
	ErrServerNotFound    = errors.New("server not found")
	ErrVoteNotFound      = errors.New("vote not found")
	ErrAlreadyClaimed    = errors.New("vote already claimed")
	ErrUnauthorized      = errors.New("unauthorized")
)

// CooldownError reports how long the caller still has to wait.
type CooldownError struct {
	Remaining int64 // seconds
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %ds remaining", ErrCooldownActive, e.Remaining)
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}
