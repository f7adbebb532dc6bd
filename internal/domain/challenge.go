package domain

import "time"

// MaxChallengeAttempts is how many wrong codes or reset tokens are accepted
// before the challenge refuses further guesses.
const MaxChallengeAttempts = 3

// VerificationData is the cached email verification challenge.
type VerificationData struct {
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expiresAt"` // epoch milliseconds
	Attempts  int    `json:"attempts"`
}

// Expired reports whether the code is past its deadline at now.
func (v VerificationData) Expired(now time.Time) bool {
	return now.UnixMilli() > v.ExpiresAt
}

// Exhausted reports whether no further attempts are allowed.
func (v VerificationData) Exhausted() bool {
	return v.Attempts >= MaxChallengeAttempts
}

// ResetPasswordData is the cached password reset challenge.
type ResetPasswordData struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"` // epoch milliseconds
	Attempts  int    `json:"attempts"`
}

// Expired reports whether the token is past its deadline at now.
func (r ResetPasswordData) Expired(now time.Time) bool {
	return now.UnixMilli() > r.ExpiresAt
}

// Exhausted reports whether no further attempts are allowed.
func (r ResetPasswordData) Exhausted() bool {
	return r.Attempts >= MaxChallengeAttempts
}
