// Package access decides which authenticated principals may administer links.
package access

import (
	"strings"

	"github.com/abdusco/qrlink/internal"
	"github.com/samber/lo"
)

// Guard holds the admin allow-list. An empty list admits every authenticated
// principal.
type Guard struct {
	admins map[string]struct{}
}

// NewGuard builds a Guard from a comma-separated list of emails.
func NewGuard(adminEmails string) *Guard {
	emails := lo.FilterMap(strings.Split(adminEmails, ","), func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != ""
	})

	return &Guard{admins: lo.SliceToMap(emails, func(e string) (string, struct{}) {
		return e, struct{}{}
	})}
}

// OpenAccess reports whether the allow-list is empty.
func (g *Guard) OpenAccess() bool {
	return len(g.admins) == 0
}

func (g *Guard) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if g.OpenAccess() {
		return true
	}
	_, ok := g.admins[email]
	return ok
}

func (g *Guard) Validate(email string) error {
	if !g.IsAdmin(email) {
		return internal.ErrUnauthorized
	}
	return nil
}

// Principal evaluates email against the allow-list.
func (g *Guard) Principal(email string) internal.Principal {
	return internal.Principal{Email: email, IsAdmin: g.IsAdmin(email)}
}
