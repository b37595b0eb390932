// Package access decide qué actor puede leer o modificar qué tienda.
package access

import (
	"fmt"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// Action acción sobre una tienda.
type Action string

const (
	ActionRead       Action = "READ"
	ActionWrite      Action = "WRITE"
	ActionReportRead Action = "REPORT_READ"
	ActionSyncIngest Action = "SYNC_INGEST"
	// ActionAdmin alta y mantenimiento del catálogo de tiendas y productos.
	ActionAdmin      Action = "ADMIN"
)

// Guard evalúa permisos a partir de los roles del actor. No tiene estado.
type Guard struct{}

// NewGuard construye el guard.
func NewGuard() *Guard { return &Guard{} }

// Check devuelve nil si actor puede ejecutar action sobre storeID.
// Roles CENTRAL alcanzan cualquier tienda; roles STORE solo sus tiendas asignadas.
// REPORT_READ, SYNC_INGEST y ADMIN exigen alcance CENTRAL.
func (g *Guard) Check(actor entity.Actor, storeID string, action Action) error {
	if actor.ID == "" {
		return domain.ErrUnauthorized
	}
	switch action {
	case ActionReportRead, ActionSyncIngest, ActionAdmin:
		if actor.HasCentralScope() {
			return nil
		}
		return fmt.Errorf("%w: %s requiere alcance CENTRAL", domain.ErrForbidden, action)
	case ActionRead, ActionWrite:
		if actor.HasCentralScope() || actor.AssignedTo(storeID) {
			return nil
		}
		return fmt.Errorf("%w: %s sobre tienda %s", domain.ErrForbidden, action, storeID)
	default:
		return fmt.Errorf("%w: acción desconocida %q", domain.ErrForbidden, action)
	}
}
