package principal

// Defaults applied when a request or principal does not name its tenant coordinates.
const (
	DefaultTenant   = "saas"
	DefaultPlatform = "saas"
	DefaultApp      = "boss"
	DefaultClient   = "web"

	AnonymousUsername = "anonymous"
)

// UserType classifies the account behind a principal.
type UserType int

const (
	TypeBoss        UserType = 1
	TypeOAuthClient UserType = 2
)

// Status is the account lifecycle state.
type Status int

const (
	StatusUnactivated Status = 1
	StatusActivated   Status = 2
	StatusFrozen      Status = 4
	StatusForbidden   Status = 8
	StatusExpired     Status = 16
	StatusLocked      Status = 32
)

// AuthenticationStatus tracks where a principal is in the authentication flow.
type AuthenticationStatus int

const (
	Unauthenticated      AuthenticationStatus = 1
	Authenticating       AuthenticationStatus = 2
	Authenticated        AuthenticationStatus = 4
	AuthenticationFailed AuthenticationStatus = 8
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusUnactivated:
		return "unactivated"
	case StatusActivated:
		return "activated"
	case StatusFrozen:
		return "frozen"
	case StatusForbidden:
		return "forbidden"
	case StatusExpired:
		return "expired"
	case StatusLocked:
		return "locked"
	default:
		return "unknown"
	}
}
