package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/utafrali/authgate/internal/domain"
	apperrors "github.com/utafrali/authgate/pkg/errors"
)

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

const (
	verificationCodeBytes = 3
	resetTokenBytes       = 20
)

// CanModifyRole reports whether a user with role acting may move a user
// holding target to newRole.
//
// A super admin may do anything except touch the super admin role itself.
// An admin may only move users between ranked roles below admin. A
// moderator may only reassign customers as customers. Seller is unranked,
// so only a super admin can target or assign it.
func CanModifyRole(acting, target, newRole domain.Role) bool {
	switch acting {
	case domain.RoleSuperAdmin:
		return target != domain.RoleSuperAdmin && newRole != domain.RoleSuperAdmin
	case domain.RoleAdmin:
		t, n := target.Rank(), newRole.Rank()
		return t > 0 && n > 0 && t < domain.RoleAdmin.Rank() && n < domain.RoleAdmin.Rank()
	case domain.RoleModerator:
		return target == domain.RoleCustomer && newRole == domain.RoleCustomer
	default:
		return false
	}
}

// validatePassword requires minPasswordLength characters, at most
// maxPasswordBytes bytes, and at least one upper-case letter, lower-case
// letter, digit and special character.
func validatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return weakPassword()
	}
	if len(password) > maxPasswordBytes {
		return apperrors.InvalidInput(fmt.Sprintf("Password must not exceed %d bytes", maxPasswordBytes))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		case unicode.IsPunct(ch), unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return weakPassword()
	}
	return nil
}

func weakPassword() error {
	return apperrors.InvalidInput("Password does not meet security requirements")
}

// generateVerificationCode returns six upper-case hex characters.
func generateVerificationCode() (string, error) {
	b, err := randomHex(verificationCodeBytes)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(b), nil
}

// generateResetToken returns 40 lower-case hex characters.
func generateResetToken() (string, error) {
	return randomHex(resetTokenBytes)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
