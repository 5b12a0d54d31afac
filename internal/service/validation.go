package service

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLen = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLen = 72
	otpLength      = 6
)

type fieldCheck struct {
	errs FieldErrors
}

func newFieldCheck() *fieldCheck {
	return &fieldCheck{errs: FieldErrors{}}
}

func (c *fieldCheck) required(field, v string) bool {
	if strings.TrimSpace(v) == "" {
		c.errs.add(field, "is required")
		return false
	}
	return true
}

func (c *fieldCheck) length(field, v string, min, max int) {
	if !c.required(field, v) {
		return
	}
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n < min || n > max {
		c.errs.add(field, lengthReason(min, max))
	}
}

func (c *fieldCheck) email(field, v string) {
	if !c.required(field, v) {
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(v))
	if err != nil || addr.Address != strings.TrimSpace(v) {
		c.errs.add(field, "must be a valid email address")
	}
}

func (c *fieldCheck) contact(field, v string) {
	c.length(field, v, 13, 14)
	v = strings.TrimSpace(v)
	if _, bad := c.errs[field]; bad {
		return
	}
	if !strings.HasPrefix(v, "+") || strings.Trim(v[1:], "0123456789") != "" {
		c.errs.add(field, "must be an international phone number")
	}
}

func (c *fieldCheck) password(field, v string) {
	if !c.required(field, v) {
		return
	}
	if len(v) < minPasswordLen || len(v) > maxPasswordLen {
		c.errs.add(field, lengthReason(minPasswordLen, maxPasswordLen))
	}
}

func (c *fieldCheck) code(field, v string) {
	if !c.required(field, v) {
		return
	}
	if len(v) != otpLength || strings.Trim(v, "0123456789") != "" {
		c.errs.add(field, "must be a 6 digit code")
	}
}

func (c *fieldCheck) err() error {
	if len(c.errs) == 0 {
		return nil
	}
	return validationError(c.errs)
}

func lengthReason(min, max int) string {
	return fmt.Sprintf("must be between %d and %d characters", min, max)
}

func normalizeContact(v string) string {
	return strings.TrimSpace(v)
}
