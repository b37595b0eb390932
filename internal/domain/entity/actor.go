package entity

// Alcances de rol.
const (
	ScopeCentral = "CENTRAL"
	ScopeStore   = "STORE"
)

// Role rol de un actor con su alcance.
type Role struct {
	Name  string
	Scope string
}

// Actor quien invoca una operación: id, roles y tiendas asignadas (para roles STORE).
type Actor struct {
	ID       string
	Roles    []Role
	StoreIDs []string
}

// HasCentralScope indica si alguno de los roles tiene alcance CENTRAL.
func (a Actor) HasCentralScope() bool {
	for _, r := range a.Roles {
		if r.Scope == ScopeCentral {
			return true
		}
	}
	return false
}

// AssignedTo indica si el actor tiene un rol STORE y storeID está entre sus tiendas.
func (a Actor) AssignedTo(storeID string) bool {
	hasStoreRole := false
	for _, r := range a.Roles {
		if r.Scope == ScopeStore {
			hasStoreRole = true
			break
		}
	}
	if !hasStoreRole {
		return false
	}
	for _, s := range a.StoreIDs {
		if s == storeID {
			return true
		}
	}
	return false
}
