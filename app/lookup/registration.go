package lookup

import (
	"regexp"
	"strings"

	"example/regcheck-api/app/apperr"
)

var registrationPattern = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)

// ErrInvalidRegistration matches apperr.ErrInvalidInput.
var ErrInvalidRegistration = apperr.Invalid("invalid registration")

// NormalizeRegistration upper-cases a UK registration and strips whitespace.
func NormalizeRegistration(raw string) (string, error) {
	reg := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if !registrationPattern.MatchString(reg) {
		return "", ErrInvalidRegistration
	}
	return reg, nil
}
