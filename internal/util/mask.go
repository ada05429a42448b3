// Package util tiene helpers chicos sin dependencias del dominio.
package util

import (
	"net/url"
	"strings"
)

// MaskDSN oculta la password de un DSN de postgres (URL o key=value) para loguearlo.
func MaskDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}

	fields := strings.Fields(s)
	for i, f := range fields {
		if k, _, ok := strings.Cut(f, "="); ok && strings.EqualFold(k, "password") {
			fields[i] = k + "=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}

// MaskSecret deja ver sólo el largo aproximado de un secreto.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***"
	default:
		return s[:1] + "…" + s[len(s)-1:]
	}
}
