package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Transaction is one on-chain transaction touching a wallet.
// BlockTime is unix seconds; zero means the chain did not report a time.
type Transaction struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
	BlockTime     int64  `json:"block_time"`
	Status        bool   `json:"status"`
	Fee           int64  `json:"fee"`
}

// TokenMovement is a transfer of a single mint inside a transaction.
// Amount is in raw base units; Decimals is nil when the indexer did not
// record it and the token registry must supply it.
type TokenMovement struct {
	ID            int64  `json:"id,omitempty"`
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
	Mint          string `json:"mint"`
	Amount        int64  `json:"amount"`
	Decimals      *int32 `json:"decimals,omitempty"`
	Source        string `json:"source"`
	Destination   string `json:"destination"`
	BlockTime     int64  `json:"block_time"`
}

// ListTransactions returns every transaction recorded for wallet, oldest first.
// Rows without a block time sort ahead of the rest.
func (s *Store) ListTransactions(ctx context.Context, wallet string) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, signature, COALESCE(block_time, 0), status, fee
		FROM transactions
		WHERE wallet_address = $1
		ORDER BY block_time ASC NULLS FIRST, signature ASC`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transaction, error) {
		var t Transaction
		err := row.Scan(&t.WalletAddress, &t.Signature, &t.BlockTime, &t.Status, &t.Fee)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan transactions: %w", err)
	}
	return txs, nil
}

// ListTokenMovements returns every token movement recorded for wallet, oldest first.
func (s *Store) ListTokenMovements(ctx context.Context, wallet string) ([]TokenMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, wallet_address, signature, mint, amount, decimals, source, destination, COALESCE(block_time, 0)
		FROM token_movements
		WHERE wallet_address = $1
		ORDER BY block_time ASC NULLS FIRST, signature ASC, id ASC`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list token movements: %w", err)
	}
	movs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TokenMovement, error) {
		var m TokenMovement
		var decimals pgtype.Int4
		err := row.Scan(&m.ID, &m.WalletAddress, &m.Signature, &m.Mint, &m.Amount,
			&decimals, &m.Source, &m.Destination, &m.BlockTime)
		m.Decimals = int32PtrFromPgInt4(decimals)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan token movements: %w", err)
	}
	return movs, nil
}

// WriteWalletRecords upserts transactions and replaces the token movements of
// every signature being written, all inside one database transaction.
// Re-indexing the same history leaves the store unchanged.
func (s *Store) WriteWalletRecords(ctx context.Context, wallet string, txs []Transaction, movs []TokenMovement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	signatures := make([]string, 0, len(txs))
	batch := &pgx.Batch{}
	for _, t := range txs {
		signatures = append(signatures, t.Signature)
		batch.Queue(`
			INSERT INTO transactions (wallet_address, signature, block_time, status, fee)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (wallet_address, signature) DO UPDATE
			SET block_time = EXCLUDED.block_time, status = EXCLUDED.status, fee = EXCLUDED.fee`,
			wallet, t.Signature, pgInt8FromUnix(t.BlockTime), t.Status, t.Fee)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert transactions: %w", err)
		}
	}

	for _, m := range movs {
		signatures = append(signatures, m.Signature)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM token_movements WHERE wallet_address = $1 AND signature = ANY($2)`,
		wallet, signatures); err != nil {
		return fmt.Errorf("failed to clear token movements: %w", err)
	}

	if len(movs) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"token_movements"},
			[]string{"wallet_address", "signature", "mint", "amount", "decimals", "source", "destination", "block_time"},
			pgx.CopyFromSlice(len(movs), func(i int) ([]any, error) {
				m := movs[i]
				return []any{wallet, m.Signature, m.Mint, m.Amount, pgInt4FromInt32Ptr(m.Decimals),
					m.Source, m.Destination, pgInt8FromUnix(m.BlockTime)}, nil
			}))
		if err != nil {
			return fmt.Errorf("failed to insert token movements: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit wallet records: %w", err)
	}
	return nil
}

// CountRecords returns the number of transactions and token movements stored for wallet.
func (s *Store) CountRecords(ctx context.Context, wallet string) (txCount int64, movCount int64, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM transactions WHERE wallet_address = $1),
			(SELECT COUNT(*) FROM token_movements WHERE wallet_address = $1)`, wallet).
		Scan(&txCount, &movCount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count records: %w", err)
	}
	return txCount, movCount, nil
}

// CachedAnalytics is a persisted analytics result.
type CachedAnalytics struct {
	WalletAddress string
	Data          json.RawMessage
	UpdatedAt     time.Time
}

// SaveAnalytics stores the serialized analytics result for wallet, replacing any previous one.
func (s *Store) SaveAnalytics(ctx context.Context, wallet string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallet_analytics (wallet_address, analytics_json, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (wallet_address) DO UPDATE
		SET analytics_json = EXCLUDED.analytics_json, updated_at = EXCLUDED.updated_at`,
		wallet, data)
	if err != nil {
		return fmt.Errorf("failed to save analytics: %w", err)
	}
	return nil
}

// GetAnalytics returns the last saved analytics result for wallet, or ErrNotFound.
func (s *Store) GetAnalytics(ctx context.Context, wallet string) (*CachedAnalytics, error) {
	var (
		c         CachedAnalytics
		data      []byte
		updatedAt pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, `
		SELECT wallet_address, analytics_json, updated_at
		FROM wallet_analytics
		WHERE wallet_address = $1`, wallet).Scan(&c.WalletAddress, &data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}
	c.Data = json.RawMessage(data)
	c.UpdatedAt = updatedAt.Time
	return &c, nil
}

// Conversion helpers

func pgInt8FromUnix(t int64) pgtype.Int8 {
	if t == 0 {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: t, Valid: true}
}

func pgInt4FromInt32Ptr(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}

func int32PtrFromPgInt4(v pgtype.Int4) *int32 {
	if !v.Valid {
		return nil
	}
	return &v.Int32
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

// RecordBatch is one page of history converted into store records.
// Cursor is the signature to continue from; empty means the history is exhausted.
type RecordBatch struct {
	Transactions []Transaction   `json:"transactions"`
	Movements    []TokenMovement `json:"movements"`
	Cursor       string          `json:"cursor,omitempty"`
}
