package session

import (
	"github.com/goliatone/go-print"
)

// Credential is the persisted access/refresh token pair. It is owned by the
// CredentialStore: written on login/refresh success, cleared on logout or
// unrecoverable refresh failure. Last write wins; there is no merge.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Clone returns a copy so snapshots never alias the engine's credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	dup := *c
	return &dup
}

// Identity is the resolved authenticated principal. It is derived, never
// persisted: recomputed from a profile fetch or a login response payload.
type Identity struct {
	ID                  string   `json:"user_id"`
	Username            string   `json:"username"`
	Email               string   `json:"email"`
	FullName            string   `json:"full_name,omitempty"`
	Role                Role     `json:"role"`
	TenantID            string   `json:"tenant_id,omitempty"`
	DepartmentID        string   `json:"department_id,omitempty"`
	Permissions         []string `json:"permissions,omitempty"`
	ForcePasswordChange bool     `json:"force_password_change,omitempty"`
}

// HasPermission checks for an exact permission match.
func (i *Identity) HasPermission(permission string) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Clone returns a deep copy suitable for immutable snapshots.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	dup := *i
	if len(i.Permissions) > 0 {
		dup.Permissions = append([]string(nil), i.Permissions...)
	}
	return &dup
}

// Diagnostic renders the identity for the unauthorized page's diagnostic
// display.
func (i *Identity) Diagnostic() string {
	if i == nil {
		return "<no identity>"
	}
	return print.MaybePrettyJSON(i)
}

// TenantMetadata is the authenticated tenant detail payload.
type TenantMetadata struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Domain   string         `json:"domain,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// PublicTenantInfo is the unauthenticated, limited tenant payload.
type PublicTenantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// InviteInfo is the result of validating an invite token: the prospective
// identity plus the tenant the invite belongs to.
type InviteInfo struct {
	Email      string `json:"email"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	TokenType  string `json:"token_type"`
}

// LoginRequest is the login payload. TenantID is empty for maintainer logins.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TenantID   string `json:"tenant_id,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

// Wire payloads. Field names match the backend contract exactly.

type loginResponse struct {
	AccessToken         string `json:"access_token"`
	RefreshToken        string `json:"refresh_token"`
	ExpiresIn           int    `json:"expires_in"`
	UserID              string `json:"user_id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	FullName            string `json:"full_name,omitempty"`
	Role                string `json:"role"`
	TenantID            string `json:"tenant_id,omitempty"`
	DepartmentID        string `json:"department_id,omitempty"`
	ForcePasswordChange bool   `json:"force_password_change,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

type profileResponse struct {
	UserID              string `json:"user_id"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	FullName            string `json:"full_name,omitempty"`
	Role                string `json:"role"`
	TenantID            string `json:"tenant_id,omitempty"`
	DepartmentID        string `json:"department_id,omitempty"`
	ForcePasswordChange bool   `json:"force_password_change,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type acceptInviteRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type passwordResetRequest struct {
	Email    string `json:"email"`
	TenantID string `json:"tenant_id,omitempty"`
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (r loginResponse) credential() *Credential {
	return &Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresIn:    r.ExpiresIn,
	}
}

func (r loginResponse) identity(accessToken string) *Identity {
	role, _ := ParseRole(r.Role)
	return newIdentity(r.UserID, r.Username, r.Email, r.FullName, role,
		r.TenantID, r.DepartmentID, r.ForcePasswordChange, accessToken)
}

func (r profileResponse) identity(accessToken string) *Identity {
	role, _ := ParseRole(r.Role)
	return newIdentity(r.UserID, r.Username, r.Email, r.FullName, role,
		r.TenantID, r.DepartmentID, r.ForcePasswordChange, accessToken)
}

// newIdentity assembles an Identity, sourcing permissions from the access
// token's claims when present and falling back to the role defaults.
func newIdentity(id, username, email, fullName string, role Role,
	tenantID, departmentID string, forceChange bool, accessToken string) *Identity {

	permissions := permissionsFromToken(accessToken)
	if len(permissions) == 0 {
		permissions = DefaultPermissions(role)
	}

	return &Identity{
		ID:                  id,
		Username:            username,
		Email:               email,
		FullName:            fullName,
		Role:                role,
		TenantID:            tenantID,
		DepartmentID:        departmentID,
		Permissions:         permissions,
		ForcePasswordChange: forceChange,
	}
}
