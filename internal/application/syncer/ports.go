// Package syncer reconcilia las tiendas EDGE con la central: la EDGE sella y envía
// sobres ordenados de operaciones; la central los reproduce en orden y registra conflictos.
package syncer

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

// Guard autoriza acciones sobre tiendas.
type Guard interface {
	Check(actor entity.Actor, storeID string, action access.Action) error
}

// SaleReplayer entradas transaccionales del Sale Applier.
type SaleReplayer interface {
	ApplyInTx(ctx context.Context, tx repository.Tx, actorID string, in sale.ApplyInput) (*sale.Result, error)
	VoidByClientKeyInTx(ctx context.Context, tx repository.Tx, actorID, storeID, clientKey string) (*sale.Result, error)
}

// TransferReplayer entradas transaccionales del Transfer Engine.
type TransferReplayer interface {
	CreateInTx(ctx context.Context, tx repository.Tx, actorID string, in transfer.CreateInput) (*transfer.Result, error)
	DispatchInTx(ctx context.Context, tx repository.Tx, actorID, transferID string) (*transfer.Result, error)
	ReceiveInTx(ctx context.Context, tx repository.Tx, actorID, transferID string) (*transfer.Result, error)
	CancelInTx(ctx context.Context, tx repository.Tx, actorID, transferID string) (*transfer.Result, error)
}

// AdjustmentReplayer entrada transaccional de los ajustes.
type AdjustmentReplayer interface {
	RegisterAdjustmentInTx(ctx context.Context, tx repository.Tx, actorID string, in inventory.AdjustmentInput, kind string) (*inventory.AdjustmentResult, error)
}

// EdgeLocker candado entre instancias de la central por tienda EDGE.
// Lock devuelve domain.ErrOverloaded si otra instancia lo tiene.
type EdgeLocker interface {
	Lock(ctx context.Context, edgeStoreID string) (release func(), err error)
}

// LoadGauge ocupación del limitador de admisión.
type LoadGauge interface {
	InFlight() int64
	Capacity() int64
}

// Journal registro local de una tienda EDGE: operaciones pendientes y sobres sellados.
type Journal interface {
	repository.OperationJournal

	// Seal mueve hasta maxOps operaciones pendientes, en orden, a un sobre nuevo con
	// sequence = último producido + 1. Devuelve nil si no hay pendientes.
	Seal(ctx context.Context, edgeStoreID string, maxOps int) (*entity.SyncEnvelope, error)

	// Unacknowledged sobres sellados aún no confirmados por la central, por secuencia ascendente.
	Unacknowledged(ctx context.Context) ([]*entity.SyncEnvelope, error)

	// Acknowledge marca confirmados todos los sobres con sequence <= upTo.
	Acknowledge(ctx context.Context, upTo int64) error

	LastProduced(ctx context.Context) (int64, error)
	PendingCount(ctx context.Context) (int, error)
}

// Transport envía un sobre a la central. Con OUT_OF_ORDER u OVERLOADED puede devolver
// el resultado (último aceptado, backoff) junto con el error.
type Transport interface {
	Send(ctx context.Context, envelope *entity.SyncEnvelope) (*IngestResult, error)
}
