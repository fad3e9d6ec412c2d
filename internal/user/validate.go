package user

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	mobileRe   = regexp.MustCompile(`^\+?[1-9]\d{9,14}$`)
	mobileJunk = regexp.MustCompile(`[\s\-\(\)]`)
)

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// RegisterInput is the validated shape of a registration request.
type RegisterInput struct {
	Username     string
	Email        string
	MobileNumber string
	Password     string
}

// Validate normalizes and checks all fields in place. The first violation is
// returned as a *ValidationError.
func (in *RegisterInput) Validate() error {
	username, err := ValidateUsername(in.Username)
	if err != nil {
		return err
	}
	email, err := ValidateEmail(in.Email)
	if err != nil {
		return err
	}
	mobile, err := ValidateMobileNumber(in.MobileNumber)
	if err != nil {
		return err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	in.Username = username
	in.Email = email
	in.MobileNumber = mobile
	return nil
}

// ValidateUsername enforces 3-50 characters, letters/digits/underscores only,
// no leading or trailing underscore. Returns the trimmed value.
func ValidateUsername(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", &ValidationError{Field: "username", Reason: "cannot be empty"}
	}
	if len(v) < 3 {
		return "", &ValidationError{Field: "username", Reason: "must be at least 3 characters long"}
	}
	if len(v) > 50 {
		return "", &ValidationError{Field: "username", Reason: "cannot be longer than 50 characters"}
	}
	if !usernameRe.MatchString(v) {
		return "", &ValidationError{Field: "username", Reason: "can only contain letters, numbers, and underscores"}
	}
	if strings.HasPrefix(v, "_") || strings.HasSuffix(v, "_") {
		return "", &ValidationError{Field: "username", Reason: "cannot start or end with underscore"}
	}
	return v, nil
}

// ValidateEmail trims, lower-cases and pattern-checks the address.
func ValidateEmail(v string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", &ValidationError{Field: "email", Reason: "cannot be empty"}
	}
	if !emailRe.MatchString(v) {
		return "", &ValidationError{Field: "email", Reason: "must be a valid email address"}
	}
	return v, nil
}

// ValidateMobileNumber strips spaces, dashes and parentheses, then requires
// 10-15 digits with an optional leading plus. Returns the normalized value.
func ValidateMobileNumber(v string) (string, error) {
	cleaned := mobileJunk.ReplaceAllString(v, "")
	if cleaned == "" {
		return "", &ValidationError{Field: "mobile_number", Reason: "cannot be empty"}
	}
	if !mobileRe.MatchString(cleaned) {
		return "", &ValidationError{Field: "mobile_number", Reason: "must contain only digits (10-15 digits), e.g. 1234567890 or +1234567890"}
	}
	return cleaned, nil
}

// ValidatePassword requires at least 8 ASCII characters including one upper,
// one lower, one digit, and one special character.
func ValidatePassword(v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Field: "password", Reason: "cannot be empty"}
	}
	if len(v) < 8 {
		return &ValidationError{Field: "password", Reason: "must be at least 8 characters long"}
	}
	var upper, lower, digit, special bool
	for _, r := range v {
		if r > unicode.MaxASCII {
			return &ValidationError{Field: "password", Reason: "can only contain English letters, numbers, and special characters"}
		}
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	switch {
	case !upper:
		return &ValidationError{Field: "password", Reason: "must contain at least one uppercase letter (A-Z)"}
	case !lower:
		return &ValidationError{Field: "password", Reason: "must contain at least one lowercase letter (a-z)"}
	case !digit:
		return &ValidationError{Field: "password", Reason: "must contain at least one number (0-9)"}
	case !special:
		return &ValidationError{Field: "password", Reason: `must contain at least one special character (!@#$%^&*(),.?":{}|<>)`}
	}
	return nil
}

// Rules describes the validation constraints for clients.
func Rules() map[string]any {
	return map[string]any{
		"username": map[string]any{
			"min_length":    3,
			"max_length":    50,
			"allowed_chars": "letters, numbers, underscores only",
			"restrictions":  "cannot start or end with underscore",
		},
		"password": map[string]any{
			"min_length": 8,
			"requirements": []string{
				"At least 1 uppercase letter",
				"At least 1 lowercase letter",
				"At least 1 digit",
				`At least 1 special character (!@#$%^&*(),.?":{}|<>)`,
				"ASCII characters only (no emojis or special language characters)",
			},
		},
		"mobile_number": map[string]any{
			"format":  "10-15 digits",
			"example": "+1234567890 or 9876543210",
		},
	}
}
