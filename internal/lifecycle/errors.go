package lifecycle

import (
	"errors"
	"fmt"

	"github.com/inklift/inklift/internal/models"
)

// ErrConcurrentModification reports a lost serialization race on a
// post. The caller should reload the post and retry the operation.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// InvalidTransitionError reports a transition request that is not in
// the legal-transition table. The post's status is unchanged.
type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// PreconditionFailedError reports a legal transition whose guard
// condition is unmet. Reason names the specific condition so the
// caller can resolve it and retry.
type PreconditionFailedError struct {
	From   models.Status
	To     models.Status
	Reason string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("cannot transition from %q to %q: %s", e.From, e.To, e.Reason)
}

// OutlineLockedError reports a structural mutation attempted on a
// locked outline. Body edits are still permitted.
type OutlineLockedError struct {
	PostID string
}

func (e *OutlineLockedError) Error() string {
	return fmt.Sprintf("outline for post %s is locked: section structure is immutable", e.PostID)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsPreconditionFailed reports whether err is a PreconditionFailedError.
func IsPreconditionFailed(err error) bool {
	var target *PreconditionFailedError
	return errors.As(err, &target)
}

// IsOutlineLocked reports whether err is an OutlineLockedError.
func IsOutlineLocked(err error) bool {
	var target *OutlineLockedError
	return errors.As(err, &target)
}
