package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSource reads records from a standalone SQLite file produced by an
// offline indexer. The file holds a single wallet's history, so the wallet
// argument of the list methods only labels the returned rows.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens path read-only.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return &SQLiteSource{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// ListTransactions returns all transactions in the file, oldest first.
func (s *SQLiteSource) ListTransactions(ctx context.Context, wallet string) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT signature, block_time, status, fee FROM transactions ORDER BY block_time ASC, signature ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			sig       sql.NullString
			blockTime sql.NullInt64
			status    any
			fee       sql.NullInt64
		)
		if err := rows.Scan(&sig, &blockTime, &status, &fee); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, Transaction{
			WalletAddress: wallet,
			Signature:     sig.String,
			BlockTime:     blockTime.Int64,
			Status:        parseStatus(status),
			Fee:           fee.Int64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// ListTokenMovements returns all token movements in the file, oldest first.
func (s *SQLiteSource) ListTokenMovements(ctx context.Context, wallet string) ([]TokenMovement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signature, mint, amount, decimals, source, destination, block_time
		FROM token_movements
		ORDER BY block_time ASC, signature ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list token movements: %w", err)
	}
	defer rows.Close()

	var movs []TokenMovement
	for rows.Next() {
		var (
			sig, mint, source, destination sql.NullString
			amount                         sql.NullFloat64
			decimals                       sql.NullInt64
			blockTime                      sql.NullInt64
		)
		if err := rows.Scan(&sig, &mint, &amount, &decimals, &source, &destination, &blockTime); err != nil {
			return nil, fmt.Errorf("failed to scan token movement: %w", err)
		}
		m := TokenMovement{
			WalletAddress: wallet,
			Signature:     sig.String,
			Mint:          mint.String,
			Amount:        int64(math.Round(amount.Float64)),
			Source:        source.String,
			Destination:   destination.String,
			BlockTime:     blockTime.Int64,
		}
		if decimals.Valid {
			d := int32(decimals.Int64)
			m.Decimals = &d
		}
		movs = append(movs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list token movements: %w", err)
	}
	return movs, nil
}

// parseStatus accepts the encodings offline indexers have used for the
// success flag: booleans, 0/1 integers, and "Success"/"Failed" text.
// A NULL status is falsy and counts as a failure.
func parseStatus(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []byte:
		return parseStatusText(string(val))
	case string:
		return parseStatusText(val)
	default:
		return true
	}
}

func parseStatusText(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "success", "succeeded", "ok", "true", "confirmed", "finalized":
		return true
	case "failed", "failure", "error", "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n != 0
	}
	return true
}
