package repository

import "context"

// Tx agrupa los repositorios atados a una misma transacción.
// Todo lo que se escribe a través de un Tx se confirma o se descarta como unidad.
type Tx interface {
	Stores() StoreRepository
	Products() ProductRepository
	Positions() PositionRepository
	Movements() MovementRepository
	Sales() SaleRepository
	Transfers() TransferRepository
	Sync() SyncRepository
	Reports() ReportRepository

	// Savepoint ejecuta fn en una sub-transacción: si fn falla solo se deshace lo hecho dentro de fn.
	Savepoint(ctx context.Context, fn func(tx Tx) error) error

	// OnCommit registra fn para ejecutarse después de un Commit exitoso de la transacción raíz.
	// Si la transacción (o el savepoint que lo registró) se deshace, fn no se ejecuta.
	OnCommit(fn func())
}

// TxRunner abre transacciones. Run hace Commit si fn devuelve nil y Rollback en otro caso.
// ReadOnly abre una transacción de solo lectura con una única instantánea (REPEATABLE READ).
type TxRunner interface {
	Run(ctx context.Context, fn func(tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(tx Tx) error) error
}
