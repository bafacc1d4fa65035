package auth

type contextKey string

// SessionContextKey carries the authenticated *store.SessionRecord through
// request contexts.
const SessionContextKey contextKey = "trustgate.session"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RequestContext is the explicit per-request state every core operation
// receives. Nothing in the core reads ambient request globals.
type RequestContext struct {
	IP           string
	UserAgent    string
	SessionToken string
	CSRFToken    string
}
