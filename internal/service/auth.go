package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/pkg/logger"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	maxPasswordBytes = 72
)

// passwordCost is lowered in tests
var passwordCost = bcrypt.DefaultCost

// unknownUserHash is compared against when the email is unknown so both
// failure paths spend the same bcrypt time.
var unknownUserHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), bcrypt.DefaultCost)

func validPassword(v *ValidationError, password string) {
	switch {
	case len(password) < minPasswordLength:
		v.add("password", "must be at least 8 characters")
	case len(password) > maxPasswordBytes:
		v.add("password", "must be at most 72 bytes")
	}
}

// HashPassword returns the bcrypt hash stored for a user
func HashPassword(password string) (string, error) {
	v := &ValidationError{}
	validPassword(v, password)
	if err := v.err(); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Authenticate checks an email and password pair and returns the user.
// Unknown emails, users without a password and wrong passwords all fail
// with ErrInvalidCredentials; reason tells them apart for metrics.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user *model.User, reason string, err error) {
	log := logger.FromCtx(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "invalid_request", invalid("credentials", "email and password are required")
	}

	user, err = s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", err
		}
		_ = bcrypt.CompareHashAndPassword(unknownUserHash, []byte(password))
		log.Warn("Login for unknown email", zap.String("email", email))
		return nil, "user_not_found", ErrInvalidCredentials
	}
	if user.PasswordHash == "" {
		log.Warn("Login for user without password", zap.String("user_id", user.ID))
		return nil, "no_password", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Warn("Invalid password", zap.String("user_id", user.ID))
		return nil, "invalid_password", ErrInvalidCredentials
	}
	return user, "", nil
}
