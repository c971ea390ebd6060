package crm

import (
	"errors"
	"fmt"

	"github.com/jmehdipour/agency-crm/internal/db"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"go.uber.org/zap"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	ErrAgencyNotFound = fmt.Errorf("agency %w", ErrNotFound)
	ErrClientNotFound = fmt.Errorf("client %w", ErrNotFound)
	ErrAgencyMismatch = fmt.Errorf("%w: client does not belong to this agency", ErrConflict)
	ErrDuplicate      = fmt.Errorf("%w: record already exists", ErrConflict)

	// ErrBootstrapClosed rejects a token-less agency create once the first
	// agency exists.
	ErrBootstrapClosed = errors.New("bootstrap closed")
)

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// storeErr folds MySQL constraint violations into the service errors. The
// driver message is logged, never returned.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsForeignKeyViolation(err):
		return ErrAgencyNotFound
	case db.IsDuplicateKey(err):
		logger.Log.Warn("duplicate key on write", zap.Error(err))
		return ErrDuplicate
	case db.IsDataTooLarge(err):
		logger.Log.Warn("value rejected by column", zap.Error(err))
		return validationErr("a field value does not fit its column")
	}
	return err
}
