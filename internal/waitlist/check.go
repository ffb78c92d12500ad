package waitlist

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/safespora/safespora-admin/internal/platform/httpx"
)

var (
	personNamePattern = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)
	cityPattern       = regexp.MustCompile(`^[a-zA-Z\s\-',.]*$`)
	repeatedDots      = regexp.MustCompile(`\.{2,}`)
)

var blockedDomains = map[string]struct{}{
	"mailinator.com": {}, "guerrillamail.com": {}, "tempmail.com": {}, "10minutemail.com": {},
	"throwawaymail.com": {}, "yopmail.com": {}, "sharklasers.com": {}, "grr.la": {},
	"mailcatch.com": {}, "spam4.me": {}, "trashmail.com": {}, "temp-mail.org": {},
	"fakeinbox.com": {}, "maildrop.cc": {}, "getnada.com": {}, "tmpmail.net": {},
	"discard.email": {}, "emailondeck.com": {}, "mohmal.com": {}, "dispostable.com": {},
	"guerrillamail.net": {}, "guerrillamailblock.com": {}, "mintemail.com": {}, "spambog.com": {},
}

var spamLocalParts = []string{"test", "spam", "fake", "noreply", "no-reply", "mailer-daemon", "postmaster"}

var spamNameKeywords = []string{"test", "asdf", "qwerty", "1234", "aaaa"}

// newValidator registers the name and city rules used by JoinRequest.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("cityname", func(fl validator.FieldLevel) bool {
		return cityPattern.MatchString(fl.Field().String())
	})
	return v
}

// CheckEmail rejects malformed, disposable and obvious throwaway addresses.
func CheckEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, "<> ") {
		return fmt.Errorf("%w: invalid email format", httpx.ErrValidation)
	}
	if len(email) > 254 {
		return fmt.Errorf("%w: email is too long", httpx.ErrValidation)
	}
	local, domain, _ := strings.Cut(strings.ToLower(email), "@")
	if _, blocked := blockedDomains[domain]; blocked {
		return fmt.Errorf("%w: temporary or disposable email addresses are not allowed", httpx.ErrValidation)
	}
	for _, p := range spamLocalParts {
		if strings.Contains(local, p) {
			return fmt.Errorf("%w: this email appears to be a test or spam address", httpx.ErrValidation)
		}
	}
	if repeatedDots.MatchString(local) || strings.ContainsAny(local, "!#$%^&*()+") {
		return fmt.Errorf("%w: email contains invalid characters", httpx.ErrValidation)
	}
	return nil
}

// CheckName rejects names made of keyboard mashing or test keywords.
func CheckName(name string) error {
	lower := strings.ToLower(name)
	for _, k := range spamNameKeywords {
		if strings.Contains(lower, k) {
			return fmt.Errorf("%w: please enter a valid name", httpx.ErrValidation)
		}
	}
	return nil
}

func joinValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: invalid request", httpx.ErrValidation)
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Name":
		switch fe.Tag() {
		case "min", "required":
			return fmt.Errorf("%w: name must be at least 2 characters", httpx.ErrValidation)
		case "max":
			return fmt.Errorf("%w: name is too long", httpx.ErrValidation)
		}
		return fmt.Errorf("%w: name contains invalid characters", httpx.ErrValidation)
	case "Email":
		if fe.Tag() == "max" {
			return fmt.Errorf("%w: email is too long", httpx.ErrValidation)
		}
		return fmt.Errorf("%w: invalid email address", httpx.ErrValidation)
	case "City":
		if fe.Tag() == "max" {
			return fmt.Errorf("%w: city name is too long", httpx.ErrValidation)
		}
		return fmt.Errorf("%w: city contains invalid characters", httpx.ErrValidation)
	}
	return fmt.Errorf("%w: %s is invalid", httpx.ErrValidation, strings.ToLower(fe.Field()))
}
