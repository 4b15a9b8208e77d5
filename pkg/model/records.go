package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one entry of the per-user transaction log, stored in the
// users/{id}/transactions sub-collection ordered by date descending.
type Transaction struct {
	ID       string
	Type     string
	Ticker   string
	Shares   decimal.Decimal
	Price    decimal.Decimal
	Currency string
	Date     time.Time
}

// Document converts the transaction into its stored shape. Decimal amounts are
// stored as strings so the remote store never rounds them.
func (t Transaction) Document() map[string]any {
	return map[string]any{
		"type":     t.Type,
		"ticker":   t.Ticker,
		"shares":   t.Shares.String(),
		"price":    t.Price.String(),
		"currency": t.Currency,
		"date":     t.Date.UTC().Format(time.RFC3339),
	}
}

// TransactionFromDocument decodes one stored row back into a Transaction.
func TransactionFromDocument(doc map[string]any) (Transaction, error) {
	t := Transaction{
		ID:       stringField(doc, "id"),
		Type:     stringField(doc, "type"),
		Ticker:   stringField(doc, "ticker"),
		Currency: stringField(doc, "currency"),
	}

	var err error
	if t.Shares, err = decimalField(doc, "shares"); err != nil {
		return Transaction{}, err
	}
	if t.Price, err = decimalField(doc, "price"); err != nil {
		return Transaction{}, err
	}
	if raw := stringField(doc, "date"); raw != "" {
		if t.Date, err = time.Parse(time.RFC3339, raw); err != nil {
			return Transaction{}, fmt.Errorf("transaction date: %w", err)
		}
	}
	return t, nil
}

// TransactionsFrom decodes a pushed row set, skipping rows that do not decode.
func TransactionsFrom(rows []map[string]any) []Transaction {
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := TransactionFromDocument(row)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ChartPoint is one valuation sample of the users/{id}/chartData
// sub-collection, ordered by timestamp descending.
type ChartPoint struct {
	ID        string
	Timestamp time.Time
	Value     decimal.Decimal
}

func (p ChartPoint) Document() map[string]any {
	return map[string]any{
		"timestamp": p.Timestamp.UTC().Format(time.RFC3339),
		"value":     p.Value.String(),
	}
}

// HistoryProfile is one saved dashboard configuration of the
// users/{id}/historyProfiles sub-collection, ordered by savedAt descending.
type HistoryProfile struct {
	ID      string
	Name    string
	SavedAt time.Time
	Fields  map[string]any
}

func (p HistoryProfile) Document() map[string]any {
	return map[string]any{
		"name":    p.Name,
		"savedAt": p.SavedAt.UTC().Format(time.RFC3339),
		"fields":  p.Fields,
	}
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func decimalField(doc map[string]any, key string) (decimal.Decimal, error) {
	switch v := doc[key].(type) {
	case nil:
		return decimal.Zero, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("field %s: %w", key, err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("field %s: unsupported type %T", key, v)
	}
}
