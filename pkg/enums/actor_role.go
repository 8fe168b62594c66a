package enums

import "fmt"

// ActorRole identifies the kind of caller behind an access token.
type ActorRole string

const (
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleSubscriber ActorRole = "subscriber"
	ActorRoleMerchant   ActorRole = "merchant"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleSubscriber,
	ActorRoleMerchant,
}

func (r ActorRole) String() string {
	return string(r)
}

func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
