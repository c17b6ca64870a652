package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/chainride/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Save(ctx context.Context, rec models.FallbackPayment) error {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO fallback_payments(ride_id, client_id, payer_account, amount, transaction_ref, recorded_at)
		 VALUES($1,$2,$3,$4,$5,$6) ON CONFLICT (ride_id, client_id) DO NOTHING`,
		int64(rec.RideID), int64(rec.ClientID), rec.PayerAccount, rec.Amount, rec.TransactionRef, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert fallback payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, rideID, clientID uint64) (models.FallbackPayment, bool, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT ride_id, client_id, payer_account, amount, transaction_ref, recorded_at
		 FROM fallback_payments WHERE ride_id=$1 AND client_id=$2`, int64(rideID), int64(clientID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FallbackPayment{}, false, nil
	}
	if err != nil {
		return models.FallbackPayment{}, false, fmt.Errorf("select fallback payment: %w", err)
	}
	return rec, true, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]models.FallbackPayment, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT ride_id, client_id, payer_account, amount, transaction_ref, recorded_at
		 FROM fallback_payments ORDER BY ride_id, client_id`)
	if err != nil {
		return nil, fmt.Errorf("list fallback payments: %w", err)
	}
	defer rows.Close()
	var out []models.FallbackPayment
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (models.FallbackPayment, error) {
	var (
		rec              models.FallbackPayment
		rideID, clientID int64
	)
	if err := s.Scan(&rideID, &clientID, &rec.PayerAccount, &rec.Amount, &rec.TransactionRef, &rec.RecordedAt); err != nil {
		return models.FallbackPayment{}, err
	}
	rec.RideID, rec.ClientID = uint64(rideID), uint64(clientID)
	rec.RecordedAt = rec.RecordedAt.UTC()
	return rec, nil
}
