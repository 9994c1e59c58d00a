package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrUnsafeQuery is returned when a generated query is not a single read-only statement.
var ErrUnsafeQuery = errors.New("query rejected")

// QueryResult holds the rows of an ad-hoc read-only query.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
}

// QueryOptions bounds an ad-hoc query.
type QueryOptions struct {
	Timeout time.Duration
	MaxRows int
}

var (
	leadingKeyword = regexp.MustCompile(`(?is)^(with\s+recursive|with|select)\b`)
	forbiddenRefs  = regexp.MustCompile(`(?i)\b(public|pg_catalog|information_schema)\s*\.|\bpg_[a-z_]+\s*\(|\b(wallet_analytics|index_jobs)\b`)
	forbiddenNames = regexp.MustCompile(`(?i)^(public|pg_catalog|information_schema|wallet_analytics|index_jobs|pg_.*)$`)
	quotedIdent    = regexp.MustCompile(`(?i)(u&)?"((?:[^"]|"")*)"(\s*\.)?`)
)

// checkQuotedIdents rejects unicode-escaped identifiers, quoted qualifiers,
// and quoted names that the unquoted deny-list would have caught.
func checkQuotedIdents(q string) error {
	for _, m := range quotedIdent.FindAllStringSubmatch(q, -1) {
		if m[1] != "" {
			return fmt.Errorf("%w: unicode escaped identifiers are not allowed", ErrUnsafeQuery)
		}
		if m[3] != "" {
			return fmt.Errorf("%w: quoted qualified names are not allowed", ErrUnsafeQuery)
		}
		name := strings.TrimSpace(strings.ReplaceAll(m[2], `""`, `"`))
		if forbiddenNames.MatchString(name) {
			return fmt.Errorf("%w: query references tables outside the wallet scope", ErrUnsafeQuery)
		}
	}
	return nil
}

// walletScope shadows the record tables with views restricted to a single
// wallet, so generated SQL can only see that wallet's rows.
const walletScope = `transactions AS (
	SELECT signature, block_time, CASE WHEN status THEN 'Success' ELSE 'Failed' END AS status, fee
	FROM public.transactions WHERE wallet_address = $1
), token_movements AS (
	SELECT signature, mint, amount, decimals, source, destination, block_time
	FROM public.token_movements WHERE wallet_address = $1
)`

// ScopeQuery validates a generated query and rewrites it so every reference
// to transactions or token_movements resolves to the wallet-scoped views.
// The returned statement takes the wallet address as $1.
func ScopeQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimRight(q, "; \t\n")
	if q == "" {
		return "", fmt.Errorf("%w: empty query", ErrUnsafeQuery)
	}
	if strings.Contains(q, ";") {
		return "", fmt.Errorf("%w: multiple statements", ErrUnsafeQuery)
	}
	if strings.Contains(q, "$") {
		return "", fmt.Errorf("%w: placeholders are not allowed", ErrUnsafeQuery)
	}
	if strings.Contains(q, "--") || strings.Contains(q, "/*") {
		return "", fmt.Errorf("%w: comments are not allowed", ErrUnsafeQuery)
	}
	if forbiddenRefs.MatchString(q) {
		return "", fmt.Errorf("%w: query references tables outside the wallet scope", ErrUnsafeQuery)
	}
	if err := checkQuotedIdents(q); err != nil {
		return "", err
	}
	kw := leadingKeyword.FindString(q)
	if kw == "" {
		return "", fmt.Errorf("%w: only SELECT queries are allowed", ErrUnsafeQuery)
	}
	rest := strings.TrimSpace(q[len(kw):])
	switch strings.ToLower(strings.Join(strings.Fields(kw), " ")) {
	case "with recursive":
		return "WITH RECURSIVE " + walletScope + ", " + rest, nil
	case "with":
		return "WITH " + walletScope + ", " + rest, nil
	default:
		return "WITH " + walletScope + " " + q, nil
	}
}

// QueryReadOnly runs a generated query against the wallet's records inside a
// read-only transaction with a statement timeout and a row cap.
func (s *Store) QueryReadOnly(ctx context.Context, wallet, query string, opts QueryOptions) (*QueryResult, error) {
	stmt, err := ScopeQuery(query)
	if err != nil {
		return nil, err
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", opts.Timeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, stmt, wallet)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	result := &QueryResult{Rows: []map[string]any{}}
	for _, fd := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, fd.Name)
	}
	for rows.Next() {
		if len(result.Rows) >= opts.MaxRows {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]any, len(values))
		for i, v := range values {
			row[result.Columns[i]] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return result, nil
}

// normalizeValue converts driver values into plain JSON-friendly values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int32:
		return int64(val)
	case int16:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return val
	}
}
