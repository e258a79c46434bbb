// Package export renders snapshots for download and reads them back in.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/snapshot"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// maxImportSize caps the bytes read by Import.
const maxImportSize = 32 << 20

var csvHeader = []string{"date", "account", "category", "type", "amount", "description", "updatedAt"}

var (
	ErrRuleNotFound = errors.New("export rule not found")
	ErrRuleDisabled = errors.New("export rule is disabled")
	ErrRuleFormat   = errors.New("export rule targets another format")
)

// Filter narrows the exported transactions. Empty lists match all.
type Filter struct {
	CategoryIDs []string
	AccountIDs  []string
}

// FilterFromRule builds a filter from a smart export rule.
func FilterFromRule(rule core.SmartExportRule) Filter {
	return Filter{CategoryIDs: rule.CategoryIDs, AccountIDs: rule.AccountIDs}
}

// RuleFilter resolves ruleID against the rules of s for an export in format.
// An empty ruleID selects everything. The rule must be enabled and written
// for the same format.
func RuleFilter(s core.Snapshot, ruleID, format string) (Filter, error) {
	if ruleID == "" {
		return Filter{}, nil
	}
	rule, ok := core.FindByID(s.SmartExportRules, ruleID)
	if !ok {
		return Filter{}, fmt.Errorf("%w: %s", ErrRuleNotFound, ruleID)
	}
	if !rule.Enabled {
		return Filter{}, fmt.Errorf("%w: %s", ErrRuleDisabled, ruleID)
	}
	if rule.Format != format {
		return Filter{}, fmt.Errorf("%w: %s exports %s", ErrRuleFormat, ruleID, rule.Format)
	}
	return FilterFromRule(rule), nil
}

func (f Filter) empty() bool {
	return len(f.CategoryIDs) == 0 && len(f.AccountIDs) == 0
}

// apply returns s with only the matching transactions.
func (f Filter) apply(s core.Snapshot) core.Snapshot {
	if f.empty() {
		return s
	}
	txs := make([]core.Transaction, 0, len(s.Transactions))
	for _, tx := range s.Transactions {
		if f.match(tx) {
			txs = append(txs, tx)
		}
	}
	s.Transactions = txs
	return s
}

func (f Filter) match(tx core.Transaction) bool {
	if len(f.CategoryIDs) > 0 && !slices.Contains(f.CategoryIDs, tx.CategoryID) {
		return false
	}
	if len(f.AccountIDs) > 0 && !slices.Contains(f.AccountIDs, tx.AccountID) {
		return false
	}
	return true
}

// IsFormat reports whether format names a supported export format.
func IsFormat(format string) bool {
	return format == FormatJSON || format == FormatCSV
}

// FileName returns the download name for an export taken at now.
func FileName(format string, now time.Time) string {
	return fmt.Sprintf("budget_%s.%s", now.UTC().Format("2006-01-02_150405"), format)
}

// JSON writes the canonical snapshot, indented. The output normalizes back
// to an equal snapshot.
func JSON(w io.Writer, s core.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// CSV writes one row per matching transaction, ordered by date then id, and
// returns the number of rows written. Account and category ids are replaced
// by their names when known.
func CSV(w io.Writer, s core.Snapshot, filter Filter) (int, error) {
	accounts := make(map[string]string, len(s.Accounts))
	for _, a := range s.Accounts {
		accounts[a.ID] = a.Name
	}
	categories := make(map[string]string, len(s.Categories))
	for _, c := range s.Categories {
		categories[c.ID] = c.Name
	}

	txs := slices.Clone(filter.apply(s).Transactions)
	slices.SortFunc(txs, func(a, b core.Transaction) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	for _, tx := range txs {
		row := []string{
			tx.Date,
			nameOr(accounts, tx.AccountID),
			nameOr(categories, tx.CategoryID),
			string(tx.Type),
			core.FormatAmount(tx.Amount),
			tx.Description,
			tx.UpdatedAt,
		}
		if err := writer.Write(row); err != nil {
			return 0, fmt.Errorf("write csv row %s: %w", tx.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(txs), nil
}

func nameOr(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

// Write dispatches on format and returns the number of transactions
// exported. A JSON export with a filter keeps only the matching transactions.
func Write(w io.Writer, format string, s core.Snapshot, filter Filter) (int, error) {
	switch format {
	case FormatJSON:
		s = filter.apply(s)
		return len(s.Transactions), JSON(w, s)
	case FormatCSV:
		return CSV(w, s, filter)
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
}

// Import reads a JSON document of any snapshot shape. The result still has
// to go through snapshot.Normalize.
func Import(r io.Reader) (snapshot.Raw, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportSize+1))
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	if len(data) > maxImportSize {
		return nil, fmt.Errorf("import larger than %d bytes", maxImportSize)
	}
	return snapshot.ParseRaw(data)
}
