package snapshot

import (
	"math"
	"sort"
	"strings"
	"time"

	"budgetsync/internal/core"
)

type normalizer struct {
	now   string
	month string
}

// Normalize upgrades a partial or legacy snapshot into the canonical shape.
//
// It never fails: anything that does not match the expected shape is treated
// as absent and replaced by a default. Missing createdAt/updatedAt values are
// stamped with now; existing timestamps are never touched. Entities without
// an id are dropped. Normalizing a canonical snapshot again with the same now
// yields the same snapshot.
func Normalize(raw Raw, now time.Time) core.Snapshot {
	n := normalizer{now: core.FormatTimestamp(now), month: core.MonthKey(now)}
	m, _ := object(raw)

	s := core.Snapshot{
		Profile:           n.profile(m["profile"]),
		Accounts:          collect(m["accounts"], n.account),
		Categories:        collect(m["categories"], n.category),
		Transactions:      collect(m["transactions"], n.transaction),
		MonthlyIncomes:    collect(m["monthlyIncomes"], n.monthlyIncome),
		PlannedExpenses:   collect(m["plannedExpenses"], n.plannedExpense),
		RecurringExpenses: collect(m["recurringExpenses"], n.recurringExpense),
		Goals:             collect(m["goals"], n.goal),
		SmartExportRules:  collect(m["smartExportRules"], n.smartExportRule),
		ExportHistory:     collect(m["exportHistory"], n.exportRecord),
		WealthMetrics:     n.wealthMetrics(m["wealthMetrics"]),
		Insights:          collect(m["insights"], n.insight),
		Revision:          revision(m),
		LastLocalChangeAt: str(m, "lastLocalChangeAt"),
	}
	s.BudgetMonths = n.budgetMonths(m["budgetMonths"], s.PlannedExpenses)
	return s
}

// DeriveMonthKey returns the "YYYY-MM" prefix of value, or fallback when
// value does not start with one.
func DeriveMonthKey(value, fallback string) string {
	if core.HasMonthPrefix(value) {
		return value[:7]
	}
	return fallback
}

// collect decodes an array of entity objects. Non-objects and entities the
// decoder rejects are skipped; duplicate ids keep the later updatedAt at the
// position of the first occurrence.
func collect[T core.Entity](v any, decode func(map[string]any) (T, bool)) []T {
	out := []T{}
	index := map[string]int{}
	for _, item := range array(v) {
		m, ok := object(item)
		if !ok {
			continue
		}
		e, ok := decode(m)
		if !ok {
			continue
		}
		if i, dup := index[e.EntityID()]; dup {
			if core.Later(e.Updated(), out[i].Updated()) {
				out[i] = e
			}
			continue
		}
		index[e.EntityID()] = len(out)
		out = append(out, e)
	}
	return out
}

func entityID(m map[string]any) (string, bool) {
	id := str(m, "id")
	return id, strings.TrimSpace(id) != ""
}

func revision(m map[string]any) int64 {
	f, ok := number(m, "revision")
	if !ok || f < 0 {
		return 0
	}
	// float64 cannot represent every int64; clamp well inside the range.
	if f >= 1<<62 {
		return 1 << 62
	}
	return int64(math.Floor(f))
}

func (n normalizer) profile(v any) *core.Profile {
	m, ok := object(v)
	if !ok {
		return nil
	}
	return &core.Profile{
		Currency:           str(m, "currency"),
		FinancialStartDate: str(m, "financialStartDate"),
		OpeningBalanceNote: str(m, "openingBalanceNote"),
		Timestamps:         stamps(m, n.now),
	}
}

func (n normalizer) account(m map[string]any) (core.Account, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.Account{}, false
	}
	return core.Account{
		ID:          id,
		Name:        str(m, "name"),
		Type:        core.AccountType(str(m, "type")),
		Balance:     numberOr(m, "balance", 0),
		Currency:    str(m, "currency"),
		Institution: str(m, "institution"),
		Notes:       str(m, "notes"),
		Timestamps:  stamps(m, n.now),
	}, true
}

func (n normalizer) category(m map[string]any) (core.Category, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.Category{}, false
	}
	c := core.Category{
		ID:         id,
		Name:       str(m, "name"),
		Type:       core.TransactionType(str(m, "type")),
		ParentID:   str(m, "parentId"),
		Color:      str(m, "color"),
		Icon:       str(m, "icon"),
		Tags:       sanitizeTags(m["tags"]),
		Budgets:    sanitizeBudgets(m["budgets"]),
		Timestamps: stamps(m, n.now),
	}
	if c.Type == "" {
		c.Type = core.TransactionExpense
	}
	if c.ParentID == c.ID {
		c.ParentID = ""
	}
	return c, true
}

// sanitizeTags trims, lower-cases and de-duplicates tags, keeping first-seen
// order. A legacy comma-separated string is accepted too.
func sanitizeTags(v any) []string {
	var candidates []any
	switch t := v.(type) {
	case []any:
		candidates = t
	case string:
		for _, part := range strings.Split(t, ",") {
			candidates = append(candidates, part)
		}
	}
	out := []string{}
	seen := map[string]struct{}{}
	for _, c := range candidates {
		s, ok := c.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sanitizeBudgets(v any) *core.CategoryBudgets {
	m, ok := object(v)
	if !ok {
		return nil
	}
	b := core.CategoryBudgets{
		Monthly: nonNegative(m, "monthly"),
		Yearly:  nonNegative(m, "yearly"),
	}
	if b.Monthly == nil && b.Yearly == nil {
		return nil
	}
	return &b
}

func nonNegative(m map[string]any, key string) *float64 {
	f := optionalNumber(m, key)
	if f == nil || *f < 0 {
		return nil
	}
	return f
}

func (n normalizer) transaction(m map[string]any) (core.Transaction, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.Transaction{}, false
	}
	t := core.Transaction{
		ID:          id,
		AccountID:   str(m, "accountId"),
		CategoryID:  str(m, "categoryId"),
		Type:        core.TransactionType(str(m, "type")),
		Amount:      numberOr(m, "amount", 0),
		Date:        str(m, "date"),
		Description: str(m, "description"),
		Notes:       str(m, "notes"),
		Timestamps:  stamps(m, n.now),
	}
	if t.Type == "" {
		t.Type = core.TransactionExpense
	}
	return t, true
}

func (n normalizer) monthlyIncome(m map[string]any) (core.MonthlyIncome, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.MonthlyIncome{}, false
	}
	in := core.MonthlyIncome{
		ID:         id,
		Month:      str(m, "month"),
		Source:     str(m, "source"),
		Amount:     numberOr(m, "amount", 0),
		AccountID:  str(m, "accountId"),
		ReceivedAt: str(m, "receivedAt"),
		Notes:      str(m, "notes"),
		Timestamps: stamps(m, n.now),
	}
	if !core.IsMonthKey(in.Month) {
		in.Month = DeriveMonthKey(in.Month, DeriveMonthKey(in.ReceivedAt, DeriveMonthKey(in.CreatedAt, n.month)))
	}
	return in, true
}

func (n normalizer) plannedExpense(m map[string]any) (core.PlannedExpense, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.PlannedExpense{}, false
	}
	return core.PlannedExpense{
		ID:           id,
		Name:         str(m, "name"),
		CategoryID:   str(m, "categoryId"),
		Amount:       numberOr(m, "amount", 0),
		DueDate:      str(m, "dueDate"),
		ActualAmount: optionalNumber(m, "actualAmount"),
		Status:       str(m, "status"),
		Notes:        str(m, "notes"),
		Timestamps:   stamps(m, n.now),
	}, true
}

func (n normalizer) recurringExpense(m map[string]any) (core.RecurringExpense, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.RecurringExpense{}, false
	}
	r := core.RecurringExpense{
		ID:          id,
		Name:        str(m, "name"),
		CategoryID:  str(m, "categoryId"),
		AccountID:   str(m, "accountId"),
		Amount:      numberOr(m, "amount", 0),
		Frequency:   core.Frequency(str(m, "frequency")),
		NextDueDate: str(m, "nextDueDate"),
		Active:      boolean(m, "active", true),
		Timestamps:  stamps(m, n.now),
	}
	switch r.Frequency {
	case core.Daily, core.Weekly, core.Monthly, core.Yearly:
	default:
		r.Frequency = core.Monthly
	}
	r.AnchorDay = anchorDay(m, r.NextDueDate)
	return r, true
}

// anchorDay keeps a stored day of month in 1..31 and otherwise falls back to
// the day of the next due date.
func anchorDay(m map[string]any, nextDueDate string) int {
	if v, ok := number(m, "anchorDay"); ok && v == math.Trunc(v) && v >= 1 && v <= 31 {
		return int(v)
	}
	if due, err := time.Parse("2006-01-02", nextDueDate); err == nil {
		return due.Day()
	}
	return 0
}

func (n normalizer) goal(m map[string]any) (core.Goal, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.Goal{}, false
	}
	return core.Goal{
		ID:            id,
		Name:          str(m, "name"),
		TargetAmount:  numberOr(m, "targetAmount", 0),
		CurrentAmount: numberOr(m, "currentAmount", 0),
		TargetDate:    str(m, "targetDate"),
		Priority:      int(numberOr(m, "priority", 0)),
		Timestamps:    stamps(m, n.now),
	}, true
}

func (n normalizer) smartExportRule(m map[string]any) (core.SmartExportRule, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.SmartExportRule{}, false
	}
	r := core.SmartExportRule{
		ID:          id,
		Name:        str(m, "name"),
		Format:      strings.ToLower(str(m, "format")),
		CategoryIDs: stringList(m, "categoryIds"),
		AccountIDs:  stringList(m, "accountIds"),
		Enabled:     boolean(m, "enabled", true),
		Timestamps:  stamps(m, n.now),
	}
	if r.Format != "csv" {
		r.Format = "json"
	}
	return r, true
}

func (n normalizer) exportRecord(m map[string]any) (core.ExportRecord, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.ExportRecord{}, false
	}
	e := core.ExportRecord{
		ID:         id,
		RuleID:     str(m, "ruleId"),
		Format:     str(m, "format"),
		FileName:   str(m, "fileName"),
		ItemCount:  int(numberOr(m, "itemCount", 0)),
		ExportedAt: str(m, "exportedAt"),
		Timestamps: stamps(m, n.now),
	}
	if e.ExportedAt == "" {
		e.ExportedAt = e.CreatedAt
	}
	return e, true
}

func (n normalizer) insight(m map[string]any) (core.Insight, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.Insight{}, false
	}
	i := core.Insight{
		ID:         id,
		Kind:       str(m, "kind"),
		Severity:   str(m, "severity"),
		Title:      str(m, "title"),
		Message:    str(m, "message"),
		Subject:    str(m, "subject"),
		Timestamps: stamps(m, n.now),
	}
	if i.Severity == "" {
		i.Severity = core.SeverityInfo
	}
	return i, true
}

func (n normalizer) wealthMetrics(v any) core.WealthMetrics {
	m, _ := object(v)
	w := core.WealthMetrics{
		CapitalEfficiencyScore: numberOr(m, "capitalEfficiencyScore", 0),
		OpportunityCostAlerts:  stringList(m, "opportunityCostAlerts"),
		InsuranceGap:           str(m, "insuranceGap"),
		UpdatedAt:              str(m, "updatedAt"),
	}
	if w.UpdatedAt == "" {
		w.UpdatedAt = n.now
	}
	return w
}

type rawMonth struct {
	key string
	m   map[string]any
}

// budgetMonths accepts a map keyed by month or a legacy array of month
// objects. The result is never empty.
func (n normalizer) budgetMonths(v any, planned []core.PlannedExpense) map[string]core.BudgetMonth {
	var entries []rawMonth
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m, ok := object(t[k])
			if !ok {
				continue
			}
			src := k
			if !core.HasMonthPrefix(src) {
				src = str(m, "month")
			}
			entries = append(entries, rawMonth{key: DeriveMonthKey(src, n.month), m: m})
		}
	case []any:
		for _, item := range t {
			m, ok := object(item)
			if !ok {
				continue
			}
			entries = append(entries, rawMonth{key: DeriveMonthKey(str(m, "month"), n.month), m: m})
		}
	}

	out := map[string]core.BudgetMonth{}
	for _, e := range entries {
		month := n.budgetMonth(e.key, e.m)
		if existing, ok := out[e.key]; ok {
			month = combineMonths(existing, month)
		}
		out[e.key] = month
	}
	if len(out) == 0 {
		out = n.bridgePlannedExpenses(planned)
	}
	if len(out) == 0 {
		out[n.month] = n.emptyMonth(n.month)
	}
	return out
}

func (n normalizer) budgetMonth(key string, m map[string]any) core.BudgetMonth {
	bm := core.BudgetMonth{
		Month:                key,
		PlannedItems:         collect(m["plannedItems"], n.plannedItem),
		Actuals:              collect(m["actuals"], n.actual),
		UnassignedActuals:    collect(m["unassignedActuals"], n.actual),
		RecurringAllocations: collect(m["recurringAllocations"], n.allocation),
		Adjustments:          collect(m["adjustments"], n.adjustment),
		Timestamps:           stamps(m, n.now),
	}
	totals, _ := object(m["totals"])
	bm.Totals = resolveTotals(totals, bm)
	return bm
}

func (n normalizer) emptyMonth(key string) core.BudgetMonth {
	return core.BudgetMonth{
		Month:                key,
		PlannedItems:         []core.BudgetPlannedItem{},
		Actuals:              []core.BudgetActual{},
		UnassignedActuals:    []core.BudgetActual{},
		RecurringAllocations: []core.RecurringAllocation{},
		Adjustments:          []core.BudgetAdjustment{},
		Timestamps:           core.Timestamps{CreatedAt: n.now, UpdatedAt: n.now},
	}
}

// bridgePlannedExpenses converts the legacy flat planned-expense list into
// month buckets keyed by due month.
func (n normalizer) bridgePlannedExpenses(planned []core.PlannedExpense) map[string]core.BudgetMonth {
	out := map[string]core.BudgetMonth{}
	for _, pe := range planned {
		key := DeriveMonthKey(pe.DueDate, n.month)
		bm, ok := out[key]
		if !ok {
			bm = n.emptyMonth(key)
		}
		bm.PlannedItems = append(bm.PlannedItems, core.BudgetPlannedItem{
			ID:         pe.ID,
			CategoryID: pe.CategoryID,
			Name:       pe.Name,
			Amount:     pe.Amount,
			DueDate:    pe.DueDate,
			Notes:      pe.Notes,
			Timestamps: pe.Timestamps,
		})
		if pe.ActualAmount != nil {
			bm.Actuals = append(bm.Actuals, core.BudgetActual{
				ID:            pe.ID + "-actual",
				PlannedItemID: pe.ID,
				CategoryID:    pe.CategoryID,
				Amount:        *pe.ActualAmount,
				Date:          pe.DueDate,
				Description:   pe.Name,
				Timestamps:    pe.Timestamps,
			})
		}
		out[key] = bm
	}
	for key, bm := range out {
		bm.Totals = resolveTotals(nil, bm)
		out[key] = bm
	}
	return out
}

func (n normalizer) plannedItem(m map[string]any) (core.BudgetPlannedItem, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.BudgetPlannedItem{}, false
	}
	return core.BudgetPlannedItem{
		ID:         id,
		CategoryID: str(m, "categoryId"),
		Name:       str(m, "name"),
		Amount:     numberOr(m, "amount", 0),
		DueDate:    str(m, "dueDate"),
		Notes:      str(m, "notes"),
		Timestamps: stamps(m, n.now),
	}, true
}

func (n normalizer) actual(m map[string]any) (core.BudgetActual, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.BudgetActual{}, false
	}
	return core.BudgetActual{
		ID:            id,
		PlannedItemID: str(m, "plannedItemId"),
		CategoryID:    str(m, "categoryId"),
		TransactionID: str(m, "transactionId"),
		Amount:        numberOr(m, "amount", 0),
		Date:          str(m, "date"),
		Description:   str(m, "description"),
		Timestamps:    stamps(m, n.now),
	}, true
}

func (n normalizer) allocation(m map[string]any) (core.RecurringAllocation, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.RecurringAllocation{}, false
	}
	return core.RecurringAllocation{
		ID:                 id,
		RecurringExpenseID: str(m, "recurringExpenseId"),
		CategoryID:         str(m, "categoryId"),
		Amount:             numberOr(m, "amount", 0),
		Timestamps:         stamps(m, n.now),
	}, true
}

func (n normalizer) adjustment(m map[string]any) (core.BudgetAdjustment, bool) {
	id, ok := entityID(m)
	if !ok {
		return core.BudgetAdjustment{}, false
	}
	a := core.BudgetAdjustment{
		ID:         id,
		Kind:       str(m, "kind"),
		Amount:     numberOr(m, "amount", 0),
		Note:       str(m, "note"),
		Timestamps: stamps(m, n.now),
	}
	if a.Kind == "" {
		a.Kind = core.AdjustmentManual
	}
	return a, true
}

// resolveTotals trusts caller-supplied numeric totals and recomputes the
// rest from the month's items.
func resolveTotals(supplied map[string]any, bm core.BudgetMonth) core.BudgetTotals {
	planned, ok := number(supplied, "planned")
	if !ok {
		planned = sumAmounts(bm.PlannedItems, func(p core.BudgetPlannedItem) float64 { return p.Amount })
	}
	actual, ok := number(supplied, "actual")
	if !ok {
		actual = sumAmounts(bm.Actuals, func(a core.BudgetActual) float64 { return a.Amount })
	}
	difference, ok := number(supplied, "difference")
	if !ok {
		difference = core.Sub(planned, actual)
	}
	rolloverIn, ok := number(supplied, "rolloverIn")
	if !ok {
		rolloverIn = sumAdjustments(bm.Adjustments, core.AdjustmentRolloverIn)
	}
	rolloverOut, ok := number(supplied, "rolloverOut")
	if !ok {
		rolloverOut = sumAdjustments(bm.Adjustments, core.AdjustmentRolloverOut)
	}
	return core.BudgetTotals{
		Planned:     planned,
		Actual:      actual,
		Difference:  difference,
		RolloverIn:  rolloverIn,
		RolloverOut: rolloverOut,
	}
}

func sumAmounts[T any](items []T, amount func(T) float64) float64 {
	values := make([]float64, 0, len(items))
	for _, item := range items {
		values = append(values, amount(item))
	}
	return core.Sum(values...)
}

func sumAdjustments(adjustments []core.BudgetAdjustment, kind string) float64 {
	var values []float64
	for _, a := range adjustments {
		if a.Kind == kind {
			values = append(values, a.Amount)
		}
	}
	return core.Sum(values...)
}

// combineMonths folds two raw entries that coerced to the same key.
func combineMonths(a, b core.BudgetMonth) core.BudgetMonth {
	out := core.BudgetMonth{
		Month:                a.Month,
		PlannedItems:         unionByID(a.PlannedItems, b.PlannedItems),
		Actuals:              unionByID(a.Actuals, b.Actuals),
		UnassignedActuals:    unionByID(a.UnassignedActuals, b.UnassignedActuals),
		RecurringAllocations: unionByID(a.RecurringAllocations, b.RecurringAllocations),
		Adjustments:          unionByID(a.Adjustments, b.Adjustments),
		Timestamps: core.Timestamps{
			CreatedAt: minTimestamp(a.CreatedAt, b.CreatedAt),
			UpdatedAt: core.MaxTimestamp(a.UpdatedAt, b.UpdatedAt),
		},
	}
	out.Totals = resolveTotals(nil, out)
	return out
}

// unionByID keeps every item of primary and appends items of secondary whose
// id primary does not have.
func unionByID[T core.Entity](primary, secondary []T) []T {
	out := make([]T, 0, len(primary)+len(secondary))
	seen := map[string]struct{}{}
	for _, item := range primary {
		seen[item.EntityID()] = struct{}{}
		out = append(out, item)
	}
	for _, item := range secondary {
		if _, ok := seen[item.EntityID()]; ok {
			continue
		}
		seen[item.EntityID()] = struct{}{}
		out = append(out, item)
	}
	return out
}

func minTimestamp(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case core.Later(a, b):
		return b
	default:
		return a
	}
}

// RecomputeTotals recalculates every total of bm from its items.
func RecomputeTotals(bm *core.BudgetMonth) {
	bm.Totals = resolveTotals(nil, *bm)
}
