// Package http serves the JSON API over the local ledger.
//
// This file holds request decoding helpers. Bodies are size-limited and
// user-entered strings are sanitized before they reach the ledger.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"budgetsync/internal/core"
)

const (
	maxJSONBody     = 1 << 20
	maxSnapshotBody = 32 << 20
)

var errBodyTooLarge = errors.New("request body too large")

// readBody reads at most limit bytes and fails when the body is longer.
func readBody(r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// decodeJSON decodes a single JSON object into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	body, err := readBody(r, maxJSONBody)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// amountText accepts an amount as a JSON number or string and keeps its
// text so it can be parsed exactly.
type amountText string

func (a *amountText) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountText(s)
		return nil
	}
	*a = amountText(bytes.TrimSpace(data))
	return nil
}

// transactionRequest is the body accepted by POST /api/transactions.
type transactionRequest struct {
	ID          string     `json:"id"`
	AccountID   string     `json:"accountId"`
	CategoryID  string     `json:"categoryId"`
	Type        string     `json:"type"`
	Amount      amountText `json:"amount"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Notes       string     `json:"notes"`
}

// toTransaction converts the request to a transaction. Type defaults to
// expense and date to today.
func (req transactionRequest) toTransaction(now time.Time) (core.Transaction, error) {
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", req.Amount, err)
	}
	f, _ := amount.Float64()

	tx := core.Transaction{
		ID:          sanitizeInput(req.ID),
		AccountID:   sanitizeInput(req.AccountID),
		CategoryID:  sanitizeInput(req.CategoryID),
		Type:        core.TransactionType(strings.ToLower(sanitizeInput(req.Type))),
		Amount:      f,
		Date:        sanitizeInput(req.Date),
		Description: sanitizeInput(req.Description),
		Notes:       sanitizeInput(req.Notes),
	}
	if tx.Type == "" {
		tx.Type = core.TransactionExpense
	}
	if tx.Date == "" {
		tx.Date = now.UTC().Format("2006-01-02")
	}
	return tx, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
