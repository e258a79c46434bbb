package snapshot

import (
	"sort"
	"time"

	"budgetsync/internal/core"
)

// Merge reconciles a local and a remote canonical snapshot.
//
// Entity collections are unioned by id; when both sides hold the same id the
// later updatedAt wins and ties keep the remote copy. Absence on one side is
// never read as a deletion, so an entity removed locally comes back if the
// remote still has it. Budget month totals follow the side whose month was
// updated last. The result is normalized before it is returned.
func Merge(local, remote core.Snapshot) core.Snapshot {
	merged := core.Snapshot{
		Profile:           mergeProfile(local.Profile, remote.Profile),
		Accounts:          mergeEntities(local.Accounts, remote.Accounts),
		Categories:        mergeEntities(local.Categories, remote.Categories),
		Transactions:      mergeEntities(local.Transactions, remote.Transactions),
		MonthlyIncomes:    mergeEntities(local.MonthlyIncomes, remote.MonthlyIncomes),
		PlannedExpenses:   mergeEntities(local.PlannedExpenses, remote.PlannedExpenses),
		RecurringExpenses: mergeEntities(local.RecurringExpenses, remote.RecurringExpenses),
		Goals:             mergeEntities(local.Goals, remote.Goals),
		SmartExportRules:  mergeEntities(local.SmartExportRules, remote.SmartExportRules),
		ExportHistory:     mergeEntities(local.ExportHistory, remote.ExportHistory),
		BudgetMonths:      mergeBudgetMonths(local.BudgetMonths, remote.BudgetMonths),
		Revision:          max(local.Revision, remote.Revision),
		LastLocalChangeAt: core.MaxTimestamp(local.LastLocalChangeAt, remote.LastLocalChangeAt),
	}
	merged.WealthMetrics, merged.Insights = mergeDerived(local, remote)

	return Normalize(ToRaw(merged), mergeClock(merged.LastLocalChangeAt))
}

// mergeEntities is last-writer-wins by updatedAt with remote as tie-break,
// sorted ascending by updatedAt.
func mergeEntities[T core.Entity](local, remote []T) []T {
	byID := make(map[string]T, len(local)+len(remote))
	for _, e := range remote {
		byID[e.EntityID()] = e
	}
	for _, e := range local {
		existing, ok := byID[e.EntityID()]
		if !ok || core.Later(e.Updated(), existing.Updated()) {
			byID[e.EntityID()] = e
		}
	}

	out := make([]T, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Updated() != out[j].Updated() {
			return out[i].Updated() < out[j].Updated()
		}
		return out[i].EntityID() < out[j].EntityID()
	})
	return out
}

func mergeProfile(local, remote *core.Profile) *core.Profile {
	switch {
	case local == nil && remote == nil:
		return nil
	case local == nil:
		p := *remote
		return &p
	case remote == nil:
		p := *local
		return &p
	}
	chosen, other := *remote, *local
	if core.Later(local.UpdatedAt, remote.UpdatedAt) {
		chosen, other = *local, *remote
	}
	if chosen.Currency == "" {
		chosen.Currency = other.Currency
	}
	return &chosen
}

func mergeBudgetMonths(local, remote map[string]core.BudgetMonth) map[string]core.BudgetMonth {
	out := make(map[string]core.BudgetMonth, len(local)+len(remote))
	for key, month := range remote {
		out[key] = month
	}
	for key, month := range local {
		if r, ok := out[key]; ok {
			out[key] = mergeMonth(month, r)
			continue
		}
		out[key] = month
	}
	return out
}

// mergeMonth unions sub-items by id with remote winning on presence. Totals
// come from whichever side touched the month last, remote on a tie.
func mergeMonth(local, remote core.BudgetMonth) core.BudgetMonth {
	authority := remote
	if core.Later(local.UpdatedAt, remote.UpdatedAt) {
		authority = local
	}
	return core.BudgetMonth{
		Month:                remote.Month,
		PlannedItems:         unionByID(remote.PlannedItems, local.PlannedItems),
		Actuals:              unionByID(remote.Actuals, local.Actuals),
		UnassignedActuals:    unionByID(remote.UnassignedActuals, local.UnassignedActuals),
		RecurringAllocations: unionByID(remote.RecurringAllocations, local.RecurringAllocations),
		Adjustments:          unionByID(remote.Adjustments, local.Adjustments),
		Totals:               authority.Totals,
		Timestamps: core.Timestamps{
			CreatedAt: minTimestamp(local.CreatedAt, remote.CreatedAt),
			UpdatedAt: core.MaxTimestamp(local.UpdatedAt, remote.UpdatedAt),
		},
	}
}

// mergeDerived keeps the derived view of whichever side computed it last.
// It is recomputed on the next local mutation anyway.
func mergeDerived(local, remote core.Snapshot) (core.WealthMetrics, []core.Insight) {
	if core.Later(local.WealthMetrics.UpdatedAt, remote.WealthMetrics.UpdatedAt) {
		return local.WealthMetrics, local.Insights
	}
	return remote.WealthMetrics, remote.Insights
}

// mergeClock picks the normalization time for a merge result so Merge stays
// a pure function of its inputs.
func mergeClock(lastChange string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, lastChange); err == nil {
		return t
	}
	return time.Unix(0, 0).UTC()
}
