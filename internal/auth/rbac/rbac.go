package rbac

import (
	"slices"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
)

// Authorize is the role guard: a pure predicate over verified claims, safe
// to evaluate on every request. A nil credential is an unauthenticated
// caller. requireElevated additionally demands that the credential was
// established through the QR step-up handshake, not plain password login;
// high-sensitivity pages ask for it.
func Authorize(credential *domain.Credential, allowedRoles []string, requireElevated bool) error {
	if credential == nil {
		return serrors.ErrUnauthenticated
	}

	if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, credential.Role) {
		return serrors.ErrForbidden
	}

	if requireElevated && !credential.Elevated {
		return serrors.ErrForbidden
	}

	return nil
}
