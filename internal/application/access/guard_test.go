package access_test

import (
	"testing"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestGuard_Check(t *testing.T) {
	g := access.NewGuard()
	admin := entity.Actor{ID: "admin", Roles: []entity.Role{{Name: "admin", Scope: entity.ScopeCentral}}}
	cashier := entity.Actor{ID: "c1", Roles: []entity.Role{{Name: "cajero", Scope: entity.ScopeStore}}, StoreIDs: []string{"A"}}
	noRoles := entity.Actor{ID: "x", StoreIDs: []string{"A"}}

	tests := []struct {
		name    string
		actor   entity.Actor
		store   string
		action  access.Action
		wantErr error
	}{
		{"central escribe cualquier tienda", admin, "B", access.ActionWrite, nil},
		{"central lee reportes", admin, "", access.ActionReportRead, nil},
		{"central ingesta", admin, "", access.ActionSyncIngest, nil},
		{"cajero escribe su tienda", cashier, "A", access.ActionWrite, nil},
		{"cajero lee su tienda", cashier, "A", access.ActionRead, nil},
		{"cajero otra tienda", cashier, "B", access.ActionWrite, domain.ErrForbidden},
		{"cajero reportes", cashier, "A", access.ActionReportRead, domain.ErrForbidden},
		{"cajero ingesta", cashier, "A", access.ActionSyncIngest, domain.ErrForbidden},
		{"central administra catálogo", admin, "", access.ActionAdmin, nil},
		{"cajero administra catálogo", cashier, "A", access.ActionAdmin, domain.ErrForbidden},
		{"sin roles", noRoles, "A", access.ActionRead, domain.ErrForbidden},
		{"sin actor", entity.Actor{}, "A", access.ActionRead, domain.ErrUnauthorized},
		{"acción desconocida", admin, "A", access.Action("DELETE"), domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.actor, tt.store, tt.action)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
