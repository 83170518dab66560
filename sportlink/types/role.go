// sportlink/types/role.go
package types

import "strings"

// Role is one of the two fixed participant roles of a chat thread.
type Role string

const (
	RoleCliente    Role = "cliente"
	RoleEntrenador Role = "entrenador"
)

// ParseRole accepts the role names used by the frontend and the identity token.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cliente", "client":
		return RoleCliente, true
	case "entrenador", "trainer":
		return RoleEntrenador, true
	}
	return "", false
}

func (r Role) Valid() bool {
	return r == RoleCliente || r == RoleEntrenador
}

// Counterpart returns the other role of the thread.
func (r Role) Counterpart() Role {
	if r == RoleEntrenador {
		return RoleCliente
	}
	return RoleEntrenador
}

// Actor is the authenticated user asking for data.
type Actor struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}
