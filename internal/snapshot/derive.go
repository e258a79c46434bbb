package snapshot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetsync/internal/core"
)

var (
	idleCashMonths      = decimal.NewFromInt(6)
	emergencyFundMonths = decimal.NewFromInt(3)
	hundred             = decimal.NewFromInt(100)
)

// Derive recomputes the advisory wealth metrics and insights from the rest
// of the snapshot. It always works on the full snapshot; collections are
// small enough that incremental bookkeeping is not worth it.
func Derive(s core.Snapshot, now time.Time) (core.WealthMetrics, []core.Insight) {
	stamp := core.FormatTimestamp(now)
	f := computeFlows(s)

	metrics := core.WealthMetrics{
		CapitalEfficiencyScore: f.score(),
		OpportunityCostAlerts:  f.alerts(),
		InsuranceGap:           insuranceGap(s),
		UpdatedAt:              stamp,
	}

	d := deriver{s: s, f: f, month: core.MonthKey(now), now: now, stamp: stamp}
	insights := d.insights()
	sort.Slice(insights, func(i, j int) bool { return insights[i].ID < insights[j].ID })
	return metrics, insights
}

// Refresh replaces the derived view of s in place.
func Refresh(s *core.Snapshot, now time.Time) {
	s.WealthMetrics, s.Insights = Derive(*s, now)
}

type flows struct {
	liquid   decimal.Decimal
	invested decimal.Decimal
	debt     decimal.Decimal
	income   decimal.Decimal
	outflow  decimal.Decimal
}

func computeFlows(s core.Snapshot) flows {
	var f flows
	for _, a := range s.Accounts {
		bal := decimal.NewFromFloat(a.Balance)
		switch {
		case a.Type == core.AccountCredit || a.Type == core.AccountLoan:
			f.debt = f.debt.Add(bal.Abs())
		case bal.IsNegative():
			f.debt = f.debt.Add(bal.Abs())
		case a.Type == core.AccountInvestment || a.Type == core.AccountRetirement:
			f.invested = f.invested.Add(bal)
		default:
			f.liquid = f.liquid.Add(bal)
		}
	}

	latestIncome := ""
	for _, in := range s.MonthlyIncomes {
		latestIncome = max(latestIncome, in.Month)
	}
	for _, in := range s.MonthlyIncomes {
		if in.Month == latestIncome {
			f.income = f.income.Add(decimal.NewFromFloat(in.Amount))
		}
	}

	for _, r := range s.RecurringExpenses {
		if r.Active {
			f.outflow = f.outflow.Add(monthlyEquivalent(r))
		}
	}
	latestSpend := ""
	for _, t := range s.Transactions {
		if t.Type == core.TransactionExpense {
			latestSpend = max(latestSpend, DeriveMonthKey(t.Date, ""))
		}
	}
	for _, t := range s.Transactions {
		if t.Type == core.TransactionExpense && latestSpend != "" && DeriveMonthKey(t.Date, "") == latestSpend {
			f.outflow = f.outflow.Add(decimal.NewFromFloat(t.Amount).Abs())
		}
	}
	return f
}

func monthlyEquivalent(r core.RecurringExpense) decimal.Decimal {
	amount := decimal.NewFromFloat(r.Amount).Abs()
	twelve := decimal.NewFromInt(12)
	switch r.Frequency {
	case core.Daily:
		return amount.Mul(decimal.NewFromInt(365)).Div(twelve)
	case core.Weekly:
		return amount.Mul(decimal.NewFromInt(52)).Div(twelve)
	case core.Yearly:
		return amount.Div(twelve)
	default:
		return amount
	}
}

func (f flows) assets() decimal.Decimal {
	return f.liquid.Add(f.invested)
}

func (f flows) savingsRate() (decimal.Decimal, bool) {
	if !f.income.IsPositive() {
		return decimal.Zero, false
	}
	return f.income.Sub(f.outflow).Div(f.income), true
}

// score is 50 points for the invested share of assets, 30 for the savings
// rate and 20 for low leverage, rounded to one decimal.
func (f flows) score() float64 {
	assets := f.assets()
	total := decimal.Zero
	if assets.IsPositive() {
		total = total.Add(decimal.NewFromInt(50).Mul(f.invested.Div(assets)))
		leverage := decimal.NewFromInt(1).Sub(f.debt.Div(assets))
		total = total.Add(decimal.NewFromInt(20).Mul(clamp01(leverage)))
	}
	if rate, ok := f.savingsRate(); ok {
		total = total.Add(decimal.NewFromInt(30).Mul(clamp01(rate)))
	}
	score, _ := decimal.Min(total, hundred).Round(1).Float64()
	return score
}

func (f flows) alerts() []string {
	alerts := []string{}
	if f.outflow.IsPositive() {
		threshold := f.outflow.Mul(idleCashMonths)
		if f.liquid.GreaterThan(threshold) {
			alerts = append(alerts, fmt.Sprintf(
				"Idle cash of %s exceeds six months of spending; %s could be invested",
				f.liquid.StringFixed(2), f.liquid.Sub(threshold).StringFixed(2)))
		}
	}
	if f.debt.IsPositive() && f.debt.GreaterThan(f.liquid) {
		alerts = append(alerts, fmt.Sprintf(
			"Outstanding debt of %s exceeds liquid assets of %s",
			f.debt.StringFixed(2), f.liquid.StringFixed(2)))
	}
	return alerts
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, decimal.Min(d, decimal.NewFromInt(1)))
}

func insuranceGap(s core.Snapshot) string {
	insured := map[string]bool{}
	for _, c := range s.Categories {
		if mentionsInsurance(c.Name) {
			insured[c.ID] = true
			continue
		}
		for _, tag := range c.Tags {
			if mentionsInsurance(tag) {
				insured[c.ID] = true
			}
		}
	}
	for _, r := range s.RecurringExpenses {
		if r.Active && (mentionsInsurance(r.Name) || insured[r.CategoryID]) {
			return ""
		}
	}
	return "No insurance premiums found among active recurring expenses"
}

func mentionsInsurance(s string) bool {
	return strings.Contains(strings.ToLower(s), "insurance")
}

type deriver struct {
	s     core.Snapshot
	f     flows
	month string
	now   time.Time
	stamp string
}

func (d deriver) insight(id, kind, severity, title, message, subject string) core.Insight {
	return core.Insight{
		ID:         id,
		Kind:       kind,
		Severity:   severity,
		Title:      title,
		Message:    message,
		Subject:    subject,
		Timestamps: core.Timestamps{CreatedAt: d.stamp, UpdatedAt: d.stamp},
	}
}

func (d deriver) insights() []core.Insight {
	out := []core.Insight{}
	out = append(out, d.overspend()...)
	out = append(out, d.baselines()...)
	out = append(out, d.emergencyFund()...)
	out = append(out, d.missingIncome()...)
	out = append(out, d.goalsBehind()...)
	out = append(out, d.uncategorized()...)
	out = append(out, d.negativeSavings()...)
	return out
}

func (d deriver) categoryName(id string) string {
	if c, ok := core.FindByID(d.s.Categories, id); ok && c.Name != "" {
		return c.Name
	}
	return id
}

// overspend compares actuals against planned items per category for the
// current month.
func (d deriver) overspend() []core.Insight {
	bm, ok := d.s.BudgetMonths[d.month]
	if !ok {
		return nil
	}
	planned := map[string]decimal.Decimal{}
	for _, p := range bm.PlannedItems {
		planned[p.CategoryID] = planned[p.CategoryID].Add(decimal.NewFromFloat(p.Amount))
	}
	plannedCategory := map[string]string{}
	for _, p := range bm.PlannedItems {
		plannedCategory[p.ID] = p.CategoryID
	}
	actual := map[string]decimal.Decimal{}
	for _, a := range append(append([]core.BudgetActual{}, bm.Actuals...), bm.UnassignedActuals...) {
		cat := a.CategoryID
		if cat == "" {
			cat = plannedCategory[a.PlannedItemID]
		}
		actual[cat] = actual[cat].Add(decimal.NewFromFloat(a.Amount))
	}

	var out []core.Insight
	for cat, spent := range actual {
		budget, ok := planned[cat]
		if cat == "" || !ok || !budget.IsPositive() || !spent.GreaterThan(budget) {
			continue
		}
		name := d.categoryName(cat)
		out = append(out, d.insight("insight-overspend-"+cat, "overspend", core.SeverityWarning,
			"Over budget in "+name,
			fmt.Sprintf("Spent %s of %s planned for %s in %s", spent.StringFixed(2), budget.StringFixed(2), name, d.month),
			cat))
	}
	return out
}

// baselines checks expense transactions of the current month against the
// categories' monthly budget baselines.
func (d deriver) baselines() []core.Insight {
	spent := map[string]decimal.Decimal{}
	for _, t := range d.s.Transactions {
		if t.Type == core.TransactionExpense && DeriveMonthKey(t.Date, "") == d.month {
			spent[t.CategoryID] = spent[t.CategoryID].Add(decimal.NewFromFloat(t.Amount).Abs())
		}
	}
	var out []core.Insight
	for _, c := range d.s.Categories {
		if c.Budgets == nil || c.Budgets.Monthly == nil {
			continue
		}
		limit := decimal.NewFromFloat(*c.Budgets.Monthly)
		if total, ok := spent[c.ID]; ok && total.GreaterThan(limit) {
			out = append(out, d.insight("insight-baseline-"+c.ID, "baseline", core.SeverityWarning,
				"Monthly baseline exceeded for "+c.Name,
				fmt.Sprintf("Spent %s against a monthly baseline of %s", total.StringFixed(2), limit.StringFixed(2)),
				c.ID))
		}
	}
	return out
}

func (d deriver) emergencyFund() []core.Insight {
	if !d.f.outflow.IsPositive() {
		return nil
	}
	target := d.f.outflow.Mul(emergencyFundMonths)
	if !d.f.liquid.LessThan(target) {
		return nil
	}
	severity := core.SeverityWarning
	if d.f.liquid.LessThan(d.f.outflow) {
		severity = core.SeverityCritical
	}
	return []core.Insight{d.insight("insight-emergency-fund", "emergency-fund", severity,
		"Emergency fund below three months",
		fmt.Sprintf("Liquid assets of %s cover less than three months of spending (%s)", d.f.liquid.StringFixed(2), target.StringFixed(2)),
		"")}
}

func (d deriver) missingIncome() []core.Insight {
	if len(d.s.MonthlyIncomes) == 0 {
		return nil
	}
	for _, in := range d.s.MonthlyIncomes {
		if in.Month == d.month {
			return nil
		}
	}
	return []core.Insight{d.insight("insight-missing-income", "missing-income", core.SeverityInfo,
		"No income recorded this month",
		"No income has been logged for "+d.month, "")}
}

// goalsBehind flags goals whose progress lags the time elapsed between the
// goal's creation and its target date.
func (d deriver) goalsBehind() []core.Insight {
	var out []core.Insight
	for _, g := range d.s.Goals {
		if g.TargetAmount <= 0 || g.CurrentAmount >= g.TargetAmount {
			continue
		}
		target, err := time.Parse(core.DateLayout, g.TargetDate)
		if err != nil {
			continue
		}
		progress := decimal.NewFromFloat(g.CurrentAmount).Div(decimal.NewFromFloat(g.TargetAmount))
		if !d.now.Before(target) {
			out = append(out, d.insight("insight-goal-"+g.ID, "goal", core.SeverityCritical,
				"Goal missed: "+g.Name,
				fmt.Sprintf("Target date %s passed at %s%% of the target", g.TargetDate, progress.Mul(hundred).StringFixed(0)),
				g.ID))
			continue
		}
		start, err := time.Parse(time.RFC3339Nano, g.CreatedAt)
		if err != nil || !target.After(start) {
			continue
		}
		elapsed := decimal.NewFromFloat(d.now.Sub(start).Hours()).Div(decimal.NewFromFloat(target.Sub(start).Hours()))
		if progress.LessThan(clamp01(elapsed)) {
			out = append(out, d.insight("insight-goal-"+g.ID, "goal", core.SeverityWarning,
				"Goal behind schedule: "+g.Name,
				fmt.Sprintf("%s%% saved with %s%% of the time elapsed", progress.Mul(hundred).StringFixed(0), clamp01(elapsed).Mul(hundred).StringFixed(0)),
				g.ID))
		}
	}
	return out
}

func (d deriver) uncategorized() []core.Insight {
	count := 0
	for _, t := range d.s.Transactions {
		if t.Type == core.TransactionTransfer {
			continue
		}
		if _, ok := core.FindByID(d.s.Categories, t.CategoryID); !ok {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []core.Insight{d.insight("insight-uncategorized", "uncategorized", core.SeverityInfo,
		"Uncategorized transactions",
		fmt.Sprintf("%d transaction(s) have no known category", count), "")}
}

func (d deriver) negativeSavings() []core.Insight {
	rate, ok := d.f.savingsRate()
	if !ok || !rate.IsNegative() {
		return nil
	}
	return []core.Insight{d.insight("insight-negative-savings", "savings-rate", core.SeverityWarning,
		"Spending exceeds income",
		fmt.Sprintf("Monthly outflow of %s exceeds income of %s", d.f.outflow.StringFixed(2), d.f.income.StringFixed(2)), "")}
}
