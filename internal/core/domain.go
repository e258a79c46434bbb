package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	AccountCash       AccountType = "cash"
	AccountChecking   AccountType = "checking"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
	AccountRetirement AccountType = "retirement"
	AccountCredit     AccountType = "credit"
	AccountLoan       AccountType = "loan"

	TransactionExpense  TransactionType = "expense"
	TransactionIncome   TransactionType = "income"
	TransactionTransfer TransactionType = "transfer"

	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"

	AdjustmentManual      = "manual"
	AdjustmentRolloverIn  = "rollover-in"
	AdjustmentRolloverOut = "rollover-out"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type (
	AccountType     string
	TransactionType string
	Frequency       string

	// Timestamps is embedded by every entity that takes part in
	// last-writer-wins resolution.
	Timestamps struct {
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}

	// Profile is nil until the user has been onboarded.
	Profile struct {
		Currency           string `json:"currency"`
		FinancialStartDate string `json:"financialStartDate"`
		OpeningBalanceNote string `json:"openingBalanceNote"`
		Timestamps
	}

	Account struct {
		ID          string      `json:"id"`
		Name        string      `json:"name"`
		Type        AccountType `json:"type"`
		Balance     float64     `json:"balance"`
		Currency    string      `json:"currency,omitempty"`
		Institution string      `json:"institution,omitempty"`
		Notes       string      `json:"notes,omitempty"`
		Timestamps
	}

	// CategoryBudgets holds optional per-period baselines. A nil pointer
	// means no baseline was configured for that period.
	CategoryBudgets struct {
		Monthly *float64 `json:"monthly,omitempty"`
		Yearly  *float64 `json:"yearly,omitempty"`
	}

	Category struct {
		ID       string           `json:"id"`
		Name     string           `json:"name"`
		Type     TransactionType  `json:"type"`
		ParentID string           `json:"parentId,omitempty"`
		Color    string           `json:"color,omitempty"`
		Icon     string           `json:"icon,omitempty"`
		Tags     []string         `json:"tags"`
		Budgets  *CategoryBudgets `json:"budgets,omitempty"`
		Timestamps
	}

	Transaction struct {
		ID          string          `json:"id"`
		AccountID   string          `json:"accountId"`
		CategoryID  string          `json:"categoryId"`
		Type        TransactionType `json:"type"`
		Amount      float64         `json:"amount"`
		Date        string          `json:"date"`
		Description string          `json:"description"`
		Notes       string          `json:"notes,omitempty"`
		Timestamps
	}

	MonthlyIncome struct {
		ID         string  `json:"id"`
		Month      string  `json:"month"`
		Source     string  `json:"source"`
		Amount     float64 `json:"amount"`
		AccountID  string  `json:"accountId,omitempty"`
		ReceivedAt string  `json:"receivedAt,omitempty"`
		Notes      string  `json:"notes,omitempty"`
		Timestamps
	}

	// PlannedExpense is the legacy flat planning shape. Snapshots that carry
	// no budget months are bridged from these.
	PlannedExpense struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		CategoryID   string   `json:"categoryId"`
		Amount       float64  `json:"amount"`
		DueDate      string   `json:"dueDate"`
		ActualAmount *float64 `json:"actualAmount,omitempty"`
		Status       string   `json:"status,omitempty"`
		Notes        string   `json:"notes,omitempty"`
		Timestamps
	}

	RecurringExpense struct {
		ID          string    `json:"id"`
		Name        string    `json:"name"`
		CategoryID  string    `json:"categoryId"`
		AccountID   string    `json:"accountId,omitempty"`
		Amount      float64   `json:"amount"`
		Frequency   Frequency `json:"frequency"`
		NextDueDate string    `json:"nextDueDate,omitempty"`
		// AnchorDay is the day of month the series is due on. Months
		// shorter than it clamp to their last day.
		AnchorDay int  `json:"anchorDay,omitempty"`
		Active    bool `json:"active"`
		Timestamps
	}

	Goal struct {
		ID            string  `json:"id"`
		Name          string  `json:"name"`
		TargetAmount  float64 `json:"targetAmount"`
		CurrentAmount float64 `json:"currentAmount"`
		TargetDate    string  `json:"targetDate,omitempty"`
		Priority      int     `json:"priority"`
		Timestamps
	}

	SmartExportRule struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Format      string   `json:"format"`
		CategoryIDs []string `json:"categoryIds"`
		AccountIDs  []string `json:"accountIds"`
		Enabled     bool     `json:"enabled"`
		Timestamps
	}

	ExportRecord struct {
		ID         string `json:"id"`
		RuleID     string `json:"ruleId,omitempty"`
		Format     string `json:"format"`
		FileName   string `json:"fileName"`
		ItemCount  int    `json:"itemCount"`
		ExportedAt string `json:"exportedAt"`
		Timestamps
	}

	BudgetPlannedItem struct {
		ID         string  `json:"id"`
		CategoryID string  `json:"categoryId"`
		Name       string  `json:"name"`
		Amount     float64 `json:"amount"`
		DueDate    string  `json:"dueDate,omitempty"`
		Notes      string  `json:"notes,omitempty"`
		Timestamps
	}

	BudgetActual struct {
		ID            string  `json:"id"`
		PlannedItemID string  `json:"plannedItemId,omitempty"`
		CategoryID    string  `json:"categoryId,omitempty"`
		TransactionID string  `json:"transactionId,omitempty"`
		Amount        float64 `json:"amount"`
		Date          string  `json:"date,omitempty"`
		Description   string  `json:"description,omitempty"`
		Timestamps
	}

	RecurringAllocation struct {
		ID                 string  `json:"id"`
		RecurringExpenseID string  `json:"recurringExpenseId"`
		CategoryID         string  `json:"categoryId,omitempty"`
		Amount             float64 `json:"amount"`
		Timestamps
	}

	BudgetAdjustment struct {
		ID     string  `json:"id"`
		Kind   string  `json:"kind"`
		Amount float64 `json:"amount"`
		Note   string  `json:"note,omitempty"`
		Timestamps
	}

	BudgetTotals struct {
		Planned     float64 `json:"planned"`
		Actual      float64 `json:"actual"`
		Difference  float64 `json:"difference"`
		RolloverIn  float64 `json:"rolloverIn"`
		RolloverOut float64 `json:"rolloverOut"`
	}

	BudgetMonth struct {
		Month                string                `json:"month"`
		PlannedItems         []BudgetPlannedItem   `json:"plannedItems"`
		Actuals              []BudgetActual        `json:"actuals"`
		UnassignedActuals    []BudgetActual        `json:"unassignedActuals"`
		RecurringAllocations []RecurringAllocation `json:"recurringAllocations"`
		Adjustments          []BudgetAdjustment    `json:"adjustments"`
		Totals               BudgetTotals          `json:"totals"`
		Timestamps
	}

	// WealthMetrics is derived from the rest of the snapshot on every
	// mutation and is never edited directly.
	WealthMetrics struct {
		CapitalEfficiencyScore float64  `json:"capitalEfficiencyScore"`
		OpportunityCostAlerts  []string `json:"opportunityCostAlerts"`
		InsuranceGap           string   `json:"insuranceGap"`
		UpdatedAt              string   `json:"updatedAt"`
	}

	Insight struct {
		ID       string `json:"id"`
		Kind     string `json:"kind"`
		Severity string `json:"severity"`
		Title    string `json:"title"`
		Message  string `json:"message"`
		Subject  string `json:"subject,omitempty"`
		Timestamps
	}

	// Snapshot is the complete state of one user's financial data.
	Snapshot struct {
		Profile           *Profile               `json:"profile"`
		Accounts          []Account              `json:"accounts"`
		Categories        []Category             `json:"categories"`
		Transactions      []Transaction          `json:"transactions"`
		MonthlyIncomes    []MonthlyIncome        `json:"monthlyIncomes"`
		PlannedExpenses   []PlannedExpense       `json:"plannedExpenses"`
		RecurringExpenses []RecurringExpense     `json:"recurringExpenses"`
		Goals             []Goal                 `json:"goals"`
		SmartExportRules  []SmartExportRule      `json:"smartExportRules"`
		ExportHistory     []ExportRecord         `json:"exportHistory"`
		BudgetMonths      map[string]BudgetMonth `json:"budgetMonths"`
		WealthMetrics     WealthMetrics          `json:"wealthMetrics"`
		Insights          []Insight              `json:"insights"`
		Revision          int64                  `json:"revision"`
		LastLocalChangeAt string                 `json:"lastLocalChangeAt"`
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyName     = errors.New("empty name")
	ErrMissingID     = errors.New("missing id")
	ErrUnknownType   = errors.New("unknown type")
	ErrTooLong       = errors.New("too long")
)

// Updated returns the last-modified timestamp used for conflict resolution.
func (t Timestamps) Updated() string { return t.UpdatedAt }

// Touch marks the entity as modified at now, setting createdAt on first write.
func (t *Timestamps) Touch(now string) {
	if t.CreatedAt == "" {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

func (a Account) EntityID() string             { return a.ID }
func (c Category) EntityID() string            { return c.ID }
func (t Transaction) EntityID() string         { return t.ID }
func (m MonthlyIncome) EntityID() string       { return m.ID }
func (p PlannedExpense) EntityID() string      { return p.ID }
func (r RecurringExpense) EntityID() string    { return r.ID }
func (g Goal) EntityID() string                { return g.ID }
func (r SmartExportRule) EntityID() string     { return r.ID }
func (e ExportRecord) EntityID() string        { return e.ID }
func (p BudgetPlannedItem) EntityID() string   { return p.ID }
func (a BudgetActual) EntityID() string        { return a.ID }
func (r RecurringAllocation) EntityID() string { return r.ID }
func (a BudgetAdjustment) EntityID() string    { return a.ID }
func (i Insight) EntityID() string             { return i.ID }

// IsOnboarded reports whether a profile has been created.
func (s Snapshot) IsOnboarded() bool {
	return s.Profile != nil
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	data, err := json.Marshal(s)
	if err != nil {
		return s
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return s
	}
	return out
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	switch a.Type {
	case AccountCash, AccountChecking, AccountSavings, AccountInvestment,
		AccountRetirement, AccountCredit, AccountLoan:
	default:
		return ErrUnknownType
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !IsDate(t.Date) {
		return ErrInvalidDate
	}
	if len(t.Description) > 200 {
		return fmt.Errorf("description: %w (max 200 characters)", ErrTooLong)
	}
	switch t.Type {
	case TransactionExpense, TransactionIncome, TransactionTransfer:
	default:
		return ErrUnknownType
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	switch c.Type {
	case TransactionExpense, TransactionIncome:
	default:
		return ErrUnknownType
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.TargetAmount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
