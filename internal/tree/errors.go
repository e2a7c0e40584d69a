package tree

import (
	"errors"
	"fmt"

	"treenote/internal/db"
)

// Failure categories of engine operations. Returned errors wrap exactly one of
// them; use errors.Is to tell them apart.
var (
	// ErrNotFound: the node or parent does not exist or belongs to another owner.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidOperation: a note used as parent, self-parenting, bad arguments.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrCycleDetected: the move would make a node its own ancestor.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrConstraintViolation: the store rejected the write.
	ErrConstraintViolation = errors.New("constraint violation")
)

// storeErr lifts store failures into the engine's categories. Other errors,
// including db.ErrBusy, pass through untouched.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrCycleDetected), errors.Is(err, ErrConstraintViolation):
		return err
	case errors.Is(err, db.ErrConstraint):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	case errors.Is(err, db.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
