// Package pg implementa sobre PostgreSQL los colaboradores externos del núcleo
// de identidad: Directory Service, Actor Registry y las tres fuentes de ownership.
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dropDatabas3/persona/internal/observability/logger"
)

// ErrNotFound indica que la fila buscada no existe.
var ErrNotFound = errors.New("pg: not found")

// IsNotFound helper para verificar si el error es por fila inexistente.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

type Store struct{ pool *pgxpool.Pool }

// PoolConfig ajusta el pool. Los ceros dejan el default de pgxpool.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// New abre el pool y verifica la conexión.
func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.From(ctx).Info("postgres pool ready",
		logger.Layer("store"),
		logger.Component("pg"),
		logger.Count(int(pcfg.MaxConns)),
	)
	return &Store{pool: pool}, nil
}

// NewFromPool envuelve un pool existente.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool expone el pool interno (migraciones).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (s *Store) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("store"),
		logger.Component("pg"),
		logger.Op(op),
	)
}
