package admins

import (
	"errors"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
)

func httpxNotFound(err error) bool {
	return errors.Is(err, httpx.ErrNotFound)
}

func isDomainError(err error) bool {
	for _, target := range []error{httpx.ErrNotFound, httpx.ErrDuplicate, httpx.ErrValidation, httpx.ErrForbidden, httpx.ErrUnauthorized} {
		if errors.Is(err, target) && !errors.Is(err, ErrRollbackFailed) {
			return true
		}
	}
	return false
}
