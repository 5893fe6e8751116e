package auth

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/lumora/supportdesk/internal/domain"
	"github.com/lumora/supportdesk/internal/repository"
	apperrors "github.com/lumora/supportdesk/pkg/util"
)

const principalKey = "auth_principal"

// HeaderUserID carries the caller's numeric user id. Verifying that the id
// actually belongs to the caller happens upstream of this service; here it
// only resolves the account and its role.
const HeaderUserID = "X-User-Id"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
}

// IsStaff reports whether the caller holds a staff role.
func (p *Principal) IsStaff() bool {
	return p != nil && p.User != nil && p.User.Role.IsStaff()
}

// IdentityMiddleware resolves the X-User-Id header into a Principal.
type IdentityMiddleware struct {
	users repository.UserRepository
}

// NewIdentityMiddleware constructs middleware.
func NewIdentityMiddleware(users repository.UserRepository) *IdentityMiddleware {
	return &IdentityMiddleware{users: users}
}

// Handle enforces identity for protected routes.
func (m *IdentityMiddleware) Handle(c *fiber.Ctx) error {
	raw := c.Get(HeaderUserID)
	if raw == "" {
		return apperrors.NewUnauthorized("missing " + HeaderUserID + " header")
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return apperrors.NewUnauthorized("invalid " + HeaderUserID + " header")
	}

	user, err := m.users.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewUnauthorized("unknown user")
		}
		return apperrors.MapError(err)
	}

	c.Locals(principalKey, &Principal{User: user})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
