package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidRole          = errors.New("invalid role")
	ErrInvalidAccountNumber = errors.New("invalid account number")
	ErrInvalidSecret        = errors.New("invalid secret")
	ErrInvalidTitle         = errors.New("invalid title")
)

var (
	emailRegex         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex      = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	accountNumberRegex = regexp.MustCompile(`^[A-Z0-9]{8,20}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateRole(role string) error {
	switch role {
	case "learner", "instructor", "admin":
		return nil
	}
	return ErrInvalidRole
}

func ValidateAccountNumber(number string) error {
	if !accountNumberRegex.MatchString(number) {
		return ErrInvalidAccountNumber
	}
	return nil
}

func ValidateAccountSecret(secret string) error {
	if len(secret) < 4 || len(secret) > 72 {
		return ErrInvalidSecret
	}
	return nil
}

func ValidateCourseTitle(title string) error {
	if len(title) < 3 || len(title) > 200 {
		return ErrInvalidTitle
	}
	return nil
}
