package domain

import "time"

// LockPolicy configures temporary lockout after repeated failed logins.
type LockPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockPolicy locks an account for 15 minutes after 5 failures.
func DefaultLockPolicy() LockPolicy {
	return LockPolicy{MaxAttempts: 5, Duration: 15 * time.Minute}
}

// IsLocked reports whether the account is locked at now. A lock whose
// deadline has passed is void even if AccountLocked is still set.
func (u User) IsLocked(now time.Time) bool {
	return u.AccountLocked && u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now)
}

// RecordFailedLogin returns u with one more failed attempt recorded. Once the
// policy threshold is reached the returned user is locked until
// now+policy.Duration. An expired lock restarts the count.
func RecordFailedLogin(u User, now time.Time, policy LockPolicy) User {
	if u.AccountLocked && !u.IsLocked(now) {
		u.FailedLoginAttempts = 0
		u.AccountLocked = false
		u.AccountLockedUntil = nil
	}

	u.FailedLoginAttempts++
	u.LastFailedLogin = timePtr(now)

	if u.FailedLoginAttempts >= policy.MaxAttempts {
		u.AccountLocked = true
		u.AccountLockedUntil = timePtr(now.Add(policy.Duration))
	}
	return u
}

// RecordSuccessfulLogin returns u with the failure counter and lock cleared
// and LastLogin set to now.
func RecordSuccessfulLogin(u User, now time.Time) User {
	u.FailedLoginAttempts = 0
	u.LastFailedLogin = nil
	u.AccountLocked = false
	u.AccountLockedUntil = nil
	u.LastLogin = timePtr(now)
	return u
}

func timePtr(t time.Time) *time.Time {
	return &t
}
