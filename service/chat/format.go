package chat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/solana"
)

const (
	solanaIcon  = "https://cryptologos.cc/logos/solana-sol-logo.png?v=029"
	genericIcon = "https://cdn-icons-png.flaticon.com/512/1006/1006771.png"

	summaryItems = 5
)

var chatSymbols = map[string]string{
	solana.WrappedSOLMint: "SOL",
	solana.USDCMint:       "USDC",
	solana.USDTMint:       "USDT",
}

// shape turns query rows into a summary for the model and, unless the result
// is a single value, a visualization for the client.
func (s *Service) shape(result *db.QueryResult, vizType string) (string, *Visualization) {
	if len(result.Rows) == 1 && len(result.Columns) == 1 {
		col := result.Columns[0]
		return fmt.Sprintf("The result is %s.", scalar(col, result.Rows[0][col])), nil
	}

	now := s.now()
	items := make([]Item, 0, len(result.Rows))
	for i, row := range result.Rows {
		items = append(items, rowItem(result.Columns, row, i, now))
	}

	top := items[:min(len(items), summaryItems)]
	parts := make([]string, 0, len(top))
	for _, item := range top {
		parts = append(parts, fmt.Sprintf("%s (%s)", item.Description, item.Time))
	}
	summary := fmt.Sprintf("Found %d records. Top items: %s.", len(items), strings.Join(parts, "; "))

	return summary, &Visualization{Type: vizType, Data: items, Title: "Query Results"}
}

func rowItem(columns []string, row map[string]any, index int, now time.Time) Item {
	item := Item{ID: strconv.Itoa(index), Type: "info", Status: "success"}
	if sig, ok := row["signature"].(string); ok && sig != "" {
		item.ID = sig
	}

	_, hasSig := row["signature"]
	_, hasTime := row["block_time"]
	if !hasSig || !hasTime {
		parts := make([]string, 0, len(columns))
		for _, col := range columns {
			if v := row[col]; v != nil {
				parts = append(parts, col+": "+formatValue(v))
			}
		}
		item.Description = strings.Join(parts, ", ")
		item.Icon = genericIcon
		return item
	}

	item.Time = relativeTime(row["block_time"], now)
	item.Icon = solanaIcon
	if amount, ok := row["amount"]; ok && amount != nil {
		symbol := "TOKENS"
		if mint, ok := row["mint"].(string); ok {
			if sym, ok := chatSymbols[mint]; ok {
				symbol = sym
			}
		}
		item.Description = fmt.Sprintf("Transferred %s %s", formatValue(amount), symbol)
	} else {
		sig := formatValue(row["signature"])
		item.Description = fmt.Sprintf("Transaction %s...", sig[:min(len(sig), 8)])
	}
	return item
}

// relativeTime renders a unix timestamp relative to now.
func relativeTime(v any, now time.Time) string {
	ts, ok := toInt64(v)
	if !ok || ts <= 0 {
		return "Unknown time"
	}
	diff := now.Sub(time.Unix(ts, 0))
	if diff < 0 {
		return "Just now"
	}
	if days := int(diff / (24 * time.Hour)); days > 0 {
		return fmt.Sprintf("%d days ago", days)
	}
	secs := int(diff / time.Second)
	switch {
	case secs > 3600:
		return fmt.Sprintf("%d hours ago", secs/3600)
	case secs > 60:
		return fmt.Sprintf("%d minutes ago", secs/60)
	}
	return "Just now"
}

// scalar formats a single-value result; USD-valued columns are shown as money.
func scalar(column string, v any) string {
	col := strings.ToLower(column)
	if strings.HasSuffix(col, "_usd") || col == "usd" {
		if f, ok := toFloat64(v); ok {
			return prices.FormatUSD(f)
		}
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}
