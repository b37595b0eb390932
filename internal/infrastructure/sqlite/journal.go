// Package sqlite guarda el journal de una tienda EDGE en un archivo local,
// así las operaciones y sobres sin confirmar sobreviven a un reinicio.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	sqlite3 "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion se guarda en PRAGMA user_version.
// 1 - esquema inicial (pending_ops, envelopes, journal_state)
// 2 - staged_ops
const currentSchemaVersion = 2

var _ syncer.Journal = (*Journal)(nil)

// Journal implementa syncer.Journal sobre SQLite en modo WAL.
type Journal struct {
	db    *sql.DB
	clock clock.Clock
}

// Open crea o abre el journal en path. Es idempotente.
func Open(path string, clk clock.Clock) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("abrir journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("conectar journal: %w", err)
	}
	// SQLite admite un solo escritor.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, clock: clk}, nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("ejecutar %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("leer user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal con esquema %d, más nuevo que %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("aplicar esquema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("fijar user_version: %w", err)
	}
	return nil
}

// Record deja la operación en espera; Seal no la toma hasta Commit.
func (j *Journal) Record(ctx context.Context, op entity.Operation) error {
	op.RecordedAt = op.RecordedAt.UTC()
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("codificar operación: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `INSERT INTO staged_ops (op_id, payload, staged_at) VALUES (?, ?, ?)`,
		op.ID, string(payload), j.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return mapInsertErr(err, op.ID, "registrar operación")
	}
	return nil
}

// Commit pasa la operación al final de la cola pendiente. El orden de sellado es el de Commit.
func (j *Journal) Commit(ctx context.Context, opID string) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO pending_ops (op_id, payload) SELECT op_id, payload FROM staged_ops WHERE op_id = ?`, opID)
	if err != nil {
		return mapInsertErr(err, opID, "liberar operación")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: operación %s no está en espera", domain.ErrNotFound, opID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM staged_ops WHERE op_id = ?`, opID); err != nil {
		return fmt.Errorf("liberar operación: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit operación: %w", err)
	}
	return nil
}

// Discard quita una operación en espera; si ya no está no hace nada.
func (j *Journal) Discard(ctx context.Context, opID string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM staged_ops WHERE op_id = ?`, opID); err != nil {
		return fmt.Errorf("descartar operación: %w", err)
	}
	return nil
}

func mapInsertErr(err error, opID, what string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: operación %s ya registrada", domain.ErrDuplicate, opID)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Seal sella en una transacción: lee las pendientes, inserta el sobre, las borra y avanza last_produced.
func (j *Journal) Seal(ctx context.Context, edgeStoreID string, maxOps int) (*entity.SyncEnvelope, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin seal: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	limit := -1
	if maxOps > 0 {
		limit = maxOps
	}
	rows, err := tx.QueryContext(ctx, `SELECT pos, payload FROM pending_ops ORDER BY pos LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("leer pendientes: %w", err)
	}
	var (
		ops     []entity.Operation
		lastPos int64
	)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&lastPos, &payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("leer pendiente: %w", err)
		}
		var op entity.Operation
		if err := json.Unmarshal([]byte(payload), &op); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decodificar pendiente: %w", err)
		}
		ops = append(ops, op)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leer pendientes: %w", err)
	}
	if len(ops) == 0 {
		return nil, nil
	}

	var lastProduced int64
	if err := tx.QueryRowContext(ctx, `SELECT last_produced FROM journal_state WHERE id = 1`).Scan(&lastProduced); err != nil {
		return nil, fmt.Errorf("leer estado: %w", err)
	}
	hash, err := entity.HashOperations(ops)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("codificar sobre: %w", err)
	}
	env := &entity.SyncEnvelope{
		ID:          j.clock.NewID(),
		EdgeStoreID: edgeStoreID,
		Sequence:    lastProduced + 1,
		Operations:  ops,
		Hash:        hash,
		ProducedAt:  j.clock.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO envelopes (sequence, id, edge_store_id, operations, hash, produced_at) VALUES (?, ?, ?, ?, ?, ?)`,
		env.Sequence, env.ID, env.EdgeStoreID, string(encoded), env.Hash, env.ProducedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insertar sobre: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_ops WHERE pos <= ?`, lastPos); err != nil {
		return nil, fmt.Errorf("borrar pendientes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE journal_state SET last_produced = ? WHERE id = 1`, env.Sequence); err != nil {
		return nil, fmt.Errorf("avanzar secuencia: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit seal: %w", err)
	}
	return env, nil
}

func (j *Journal) Unacknowledged(ctx context.Context) ([]*entity.SyncEnvelope, error) {
	query := `
		SELECT e.sequence, e.id, e.edge_store_id, e.operations, e.hash, e.produced_at
		FROM envelopes e, journal_state s
		WHERE s.id = 1 AND e.sequence > s.acknowledged
		ORDER BY e.sequence`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listar sobres: %w", err)
	}
	defer rows.Close()
	var out []*entity.SyncEnvelope
	for rows.Next() {
		var (
			env        entity.SyncEnvelope
			ops        string
			producedAt string
		)
		if err := rows.Scan(&env.Sequence, &env.ID, &env.EdgeStoreID, &ops, &env.Hash, &producedAt); err != nil {
			return nil, fmt.Errorf("leer sobre: %w", err)
		}
		if err := json.Unmarshal([]byte(ops), &env.Operations); err != nil {
			return nil, fmt.Errorf("decodificar sobre %d: %w", env.Sequence, err)
		}
		if env.ProducedAt, err = time.Parse(time.RFC3339Nano, producedAt); err != nil {
			return nil, fmt.Errorf("fecha de sobre %d: %w", env.Sequence, err)
		}
		out = append(out, &env)
	}
	return out, rows.Err()
}

// Acknowledge nunca retrocede la marca.
func (j *Journal) Acknowledge(ctx context.Context, upTo int64) error {
	_, err := j.db.ExecContext(ctx, `UPDATE journal_state SET acknowledged = max(acknowledged, ?) WHERE id = 1`, upTo)
	if err != nil {
		return fmt.Errorf("confirmar sobres: %w", err)
	}
	return nil
}

func (j *Journal) LastProduced(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT last_produced FROM journal_state WHERE id = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("leer estado: %w", err)
	}
	return n, nil
}

func (j *Journal) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT count(*) FROM pending_ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("contar pendientes: %w", err)
	}
	return n, nil
}

// StagedCount operaciones registradas que nunca se confirmaron ni descartaron.
// Con la API detenida, distinto de cero indica una caída entre la transacción local y Commit.
func (j *Journal) StagedCount(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT count(*) FROM staged_ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("contar en espera: %w", err)
	}
	return n, nil
}

// Acknowledged última secuencia confirmada por la central.
func (j *Journal) Acknowledged(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT acknowledged FROM journal_state WHERE id = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("leer estado: %w", err)
	}
	return n, nil
}
