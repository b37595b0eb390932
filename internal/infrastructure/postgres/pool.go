package postgres

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/jhoicas/pos-multitienda/pkg/config"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/rs/zerolog"
)

// NewPool crea el pool de conexiones. Usa DATABASE_URL si está definido; si no, el DSN de DB_*.
// log recibe las consultas que pgx reporte como warn o error.
func NewPool(ctx context.Context, cfg config.DBConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Las transacciones del ledger toman locks de fila; el pool acota cuántas compiten a la vez.
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "pos-multitienda"
	poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   pgxLogger{log: log.Named("pgx")},
		LogLevel: tracelog.LogLevelWarn,
	}

	// NUMERIC -> shopspring/decimal en todas las conexiones (precios y totales de venta).
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("crear pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return pool, nil
}

// pgxLogger adapta tracelog.Logger al logger de la aplicación.
type pgxLogger struct {
	log *logger.Logger
}

func (l pgxLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelError:
		ev = l.log.Error()
	case tracelog.LogLevelWarn:
		ev = l.log.Warn()
	case tracelog.LogLevelInfo:
		ev = l.log.Info()
	default:
		ev = l.log.Debug()
	}
	ev.Fields(data).Msg(msg)
}
