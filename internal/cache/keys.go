package cache

import "strings"

// Keys builds every cache key used by the service from a common prefix.
// Deletion and lookup rely on exact keys, so the layout is fixed:
//
//	<prefix>:verification:<email>
//	<prefix>:reset:<email>
//	<prefix>:user:<email>:accessToken
//	<prefix>:user:<email>:refreshToken
//	<prefix>:ratelimit:<op>:<identity>[:locked]
type Keys struct {
	prefix string
}

// NewKeys returns a key builder for prefix.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

func (k Keys) join(parts ...string) string {
	return k.prefix + ":" + strings.Join(parts, ":")
}

func (k Keys) Verification(email string) string { return k.join("verification", email) }

func (k Keys) Reset(email string) string { return k.join("reset", email) }

func (k Keys) AccessToken(email string) string { return k.join("user", email, "accessToken") }

func (k Keys) RefreshToken(email string) string { return k.join("user", email, "refreshToken") }

// UserTokens matches every session key of one user.
func (k Keys) UserTokens(email string) string {
	return k.join("user", EscapePattern(email), "*")
}

// RateLimit is the attempt counter for op and identity.
func (k Keys) RateLimit(op, identity string) string { return k.join("ratelimit", op, identity) }

// RateLimitLock is the lock flag set once the counter passes its limit.
func (k Keys) RateLimitLock(op, identity string) string {
	return k.RateLimit(op, identity) + ":locked"
}

// EscapePattern escapes redis glob metacharacters in s.
func EscapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPattern(key string) bool {
	return strings.ContainsAny(key, "*?[")
}
