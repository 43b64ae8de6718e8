package keycloak

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Claims is the decoded payload of a verified realm access token
type Claims map[string]any

// RealmAccess mirrors the Keycloak realm_access claim
type RealmAccess struct {
	Roles []string
}

// rawRealmAccess keeps role entries untyped so a stray non-string entry does not
// invalidate the whole claim.
type rawRealmAccess struct {
	Roles []interface{} `mapstructure:"roles"`
}

// RealmAccess decodes the realm_access claim. A missing or ill-typed claim yields an empty value.
func (c Claims) RealmAccess() RealmAccess {
	raw, ok := c["realm_access"]
	if !ok {
		return RealmAccess{}
	}

	var decoded rawRealmAccess
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:    &decoded,
		MatchName: exactName,
	})
	if err != nil {
		return RealmAccess{}
	}
	if err := decoder.Decode(raw); err != nil {
		return RealmAccess{}
	}

	roles := make([]string, 0, len(decoded.Roles))
	for _, r := range decoded.Roles {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return RealmAccess{Roles: roles}
}

// exactName replaces mapstructure's case-insensitive key fallback; only "roles" is read.
func exactName(mapKey, fieldName string) bool {
	return mapKey == fieldName
}

// Roles returns the realm roles sorted for display
func (c Claims) Roles() []string {
	roles := c.RealmAccess().Roles
	sort.Strings(roles)
	return roles
}

// HasRole reports whether the realm role set contains role
func (c Claims) HasRole(role string) bool {
	for _, r := range c.RealmAccess().Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasRole reports whether claims grant the realm role. Nil claims grant nothing.
func HasRole(claims Claims, role string) bool {
	if claims == nil {
		return false
	}
	return claims.HasRole(role)
}

// String returns a string-valued claim, or "" when absent or not a string
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Claims) Subject() string {
	return c.String("sub")
}

func (c Claims) Username() string {
	return c.String("preferred_username")
}

func (c Claims) Email() string {
	return c.String("email")
}

func (c Claims) Name() string {
	return c.String("name")
}

// ExpiresAt returns the exp claim, or the zero time when absent
func (c Claims) ExpiresAt() time.Time {
	switch v := c["exp"].(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0)
		}
	}
	return time.Time{}
}
