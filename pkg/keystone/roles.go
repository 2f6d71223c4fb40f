// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

const (
	RoleAdmin  = "admin"
	RoleMember = "_member_"
)

// Get the effective role out of the roles keystone returned for a token.
// admin beats _member_, which beats everything else. Without either, the
// first role wins. Keystone does not document an order for the role list,
// so this fallback depends on whatever order the response happens to have.
func HighestRole(roles []string) string {
	var hasMember bool
	for _, role := range roles {
		switch role {
		case RoleAdmin:
			return RoleAdmin
		case RoleMember:
			hasMember = true
		}
	}
	if hasMember {
		return RoleMember
	}
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}
