package relay

import "strings"

// Authorizer decides whether a (username, group) pair may join. It is a pure
// policy: no side effects, no access to relay state. A nil error authorizes
// the join.
type Authorizer interface {
	Authorize(username, group string) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(username, group string) error

func (f AuthorizerFunc) Authorize(username, group string) error {
	return f(username, group)
}

// NonEmptyAuthorizer authorizes any join whose username and group are
// non-blank after trimming. This is an intentionally permissive placeholder
// policy; deployments with real identity swap in their own Authorizer.
type NonEmptyAuthorizer struct{}

func (NonEmptyAuthorizer) Authorize(username, group string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(group) == "" {
		return ErrNotAuthorized
	}
	return nil
}

// AllowAllAuthorizer authorizes every join. Used by broadcast mode, where the
// implicit global group has no admission policy.
type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(username, group string) error { return nil }
