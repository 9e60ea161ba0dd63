// Package session wraps github.com/localnerve/authorizer-go, the fork of
// the teacher's Authorizer SDK dependency, into the single ValidateSession
// call spec.md §1 treats the auth session middleware itself as a non-goal
// for: this repo only consumes the external service's verdict. Grounded on
// the teacher's internal/services/auth_service.go singleton-client shape.
package session

import (
	"fmt"
	"sync"

	authorizer "github.com/localnerve/authorizer-go"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/utils"
)

var (
	client *authorizer.AuthorizerClient
	once   sync.Once
)

// Init creates the singleton Authorizer client, pinging the service first
// exactly as the teacher's InitAuthorizer does.
func Init(cfg *config.Config, redirectURL string) error {
	var initErr error
	once.Do(func() {
		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			initErr = fmt.Errorf("authorizer ping failed: %w", err)
			return
		}
		c, err := authorizer.NewAuthorizerClient(cfg.AuthzClientID, cfg.AuthzURL, redirectURL, nil)
		if err != nil {
			initErr = fmt.Errorf("failed to create authorizer client: %w", err)
			return
		}
		client = c
	})
	return initErr
}

// User is the subset of the Authorizer session's user record this repo
// needs to stamp createdBy/updatedBy and decide isSuperUser.
type User struct {
	ID    string
	Email string
	Roles []string
}

// Session is the verdict Validate returns for a cookie.
type Session struct {
	User        User
	IsSuperUser bool
}

// Validate checks cookie against the Authorizer service and reports the
// user identity plus whether any of its roles is one of superUserRoles
// (spec.md §4.3's "a super-user bypasses all checks").
func Validate(cookie string, superUserRoles []string) (*Session, error) {
	if client == nil {
		return nil, apperr.Internal(fmt.Errorf("authorizer client not initialized"))
	}
	if cookie == "" {
		return nil, apperr.Unauthorized("session cookie is required")
	}

	res, err := client.ValidateSession(&authorizer.ValidateSessionInput{Cookie: cookie})
	if err != nil {
		return nil, apperr.Unauthorized("invalid session: %v", err)
	}
	if res == nil || !res.IsValid || res.User == nil {
		return nil, apperr.Unauthorized("session is not valid")
	}

	roles := make([]string, 0, len(res.User.Roles))
	for _, r := range res.User.Roles {
		if r != nil {
			roles = append(roles, *r)
		}
	}

	sess := &Session{User: User{ID: res.User.ID, Email: res.User.Email, Roles: roles}}
	sess.IsSuperUser = hasAny(roles, superUserRoles)
	return sess, nil
}

func hasAny(roles, wanted []string) bool {
	set := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		set[w] = true
	}
	for _, r := range roles {
		if set[r] {
			return true
		}
	}
	return false
}
