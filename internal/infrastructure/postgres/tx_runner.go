package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.TxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run inicia una transacción, ejecuta fn con repos atados a la tx y hace Commit o Rollback.
// Los hooks OnCommit corren solo si el Commit tuvo éxito.
func (r *TxRunner) Run(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t := &txn{tx: tx}
	if err := fn(t); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	for _, h := range t.hooks {
		h()
	}
	return nil
}

// ReadOnly abre una transacción REPEATABLE READ de solo lectura: todas las consultas
// de fn ven la misma instantánea.
func (r *TxRunner) ReadOnly(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txn{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txn struct {
	tx    pgx.Tx
	hooks []func()
}

func (t *txn) Stores() repository.StoreRepository       { return NewStoreRepository(t.tx) }
func (t *txn) Products() repository.ProductRepository   { return NewProductRepository(t.tx) }
func (t *txn) Positions() repository.PositionRepository { return NewPositionRepository(t.tx) }
func (t *txn) Movements() repository.MovementRepository { return NewMovementRepository(t.tx) }
func (t *txn) Sales() repository.SaleRepository         { return NewSaleRepository(t.tx) }
func (t *txn) Transfers() repository.TransferRepository { return NewTransferRepository(t.tx) }
func (t *txn) Sync() repository.SyncRepository          { return NewSyncRepository(t.tx) }
func (t *txn) Reports() repository.ReportRepository     { return NewReportRepository(t.tx) }

// Savepoint usa la transacción anidada de pgx (SAVEPOINT / ROLLBACK TO SAVEPOINT).
func (t *txn) Savepoint(ctx context.Context, fn func(tx repository.Tx) error) error {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	child := &txn{tx: nested}
	if err := fn(child); err != nil {
		_ = nested.Rollback(ctx)
		return err
	}
	if err := nested.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	t.hooks = append(t.hooks, child.hooks...)
	return nil
}

func (t *txn) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }
