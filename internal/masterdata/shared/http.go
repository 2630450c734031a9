package shared

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aegisfm/aegisfm/internal/platform/httpx"
	internalShared "github.com/aegisfm/aegisfm/internal/shared"
)

// Scope extracts the authenticated actor or writes a 401 and returns false.
func Scope(w http.ResponseWriter, r *http.Request) (internalShared.ActorContext, bool) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: company scope required", httpx.ErrUnauthorized))
		return internalShared.ActorContext{}, false
	}
	return actor, true
}

// HTTPError folds master data errors into the shared HTTP taxonomy.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrDuplicate):
		return fmt.Errorf("%w: %v", httpx.ErrDuplicate, err)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidID), errors.Is(err, ErrRequiredField):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, ErrInUse):
		return fmt.Errorf("%w: %v", httpx.ErrPrecondition, err)
	}
	return err
}
