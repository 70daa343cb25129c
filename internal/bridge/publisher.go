// internal/bridge/publisher.go
package bridge

import (
	"context"
	"errors"

	"github.com/javajoker/broadcast-backend/internal/models"
)

// Publisher hands one outbox event to the order system. Delivery is at least
// once; receivers deduplicate on the event id.
type Publisher interface {
	Publish(ctx context.Context, event models.BridgeEvent) error
}

// PermanentError marks a failure that retrying will not fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
