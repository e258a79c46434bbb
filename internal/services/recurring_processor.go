package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"budgetsync/internal/core"
	blog "budgetsync/internal/log"
)

// maxCatchUp bounds how many missed occurrences a single run posts per
// series.
const maxCatchUp = 400

// RecurringProcessor posts due recurring expenses as transactions.
type RecurringProcessor struct {
	ledger *LedgerService
}

func NewRecurringProcessor(ledger *LedgerService) *RecurringProcessor {
	return &RecurringProcessor{ledger: ledger}
}

// ProcessDueExpenses books every occurrence due on or before now, records a
// recurring allocation in the month it falls in and advances the series.
// Transaction and allocation ids are derived from the series id and date,
// so two devices posting the same occurrence converge on one entity after a
// merge. Nothing is committed when no series is due.
func (p *RecurringProcessor) ProcessDueExpenses(ctx context.Context, now time.Time) (int, error) {
	if p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	current, err := p.ledger.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	due := 0
	for _, re := range current.RecurringExpenses {
		if re.Active && IsDue(re.NextDueDate, now) {
			due++
		}
	}
	if due == 0 {
		slog.DebugContext(ctx, "No recurring expenses due",
			"total_active", len(current.RecurringExpenses),
			"processing_date", now.Format(dateLayout))
		return 0, nil
	}

	posted := 0
	_, err = p.ledger.Apply(ctx, blog.OpCreate, func(snap *core.Snapshot, stamp string) error {
		posted = 0
		for i, re := range snap.RecurringExpenses {
			if !re.Active || !IsDue(re.NextDueDate, now) {
				continue
			}
			n, err := postSeries(snap, &re, now, stamp)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to post recurring expense",
					"recurrent_id", re.ID, blog.FieldError, err)
				continue
			}
			snap.RecurringExpenses[i] = re
			posted += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("post recurring expenses: %w", err)
	}

	slog.InfoContext(ctx, "Recurring expense processing complete",
		"processed", posted,
		"series_due", due)
	return posted, nil
}

func postSeries(snap *core.Snapshot, re *core.RecurringExpense, now time.Time, stamp string) (int, error) {
	schedule, err := GetSchedule(re.Frequency)
	if err != nil {
		return 0, err
	}
	dueDate, err := time.Parse(dateLayout, re.NextDueDate)
	if err != nil {
		return 0, fmt.Errorf("next due date %q: %w", re.NextDueDate, core.ErrInvalidDate)
	}
	anchor := re.AnchorDay
	if anchor < 1 || anchor > 31 {
		anchor = dueDate.Day()
	}
	today := truncateDay(now)

	posted := 0
	for !dueDate.After(today) && posted < maxCatchUp {
		date := dueDate.Format(dateLayout)
		tx := core.Transaction{
			ID:          fmt.Sprintf("rec-%s-%s", re.ID, date),
			AccountID:   re.AccountID,
			CategoryID:  re.CategoryID,
			Type:        core.TransactionExpense,
			Amount:      re.Amount,
			Date:        date,
			Description: re.Name,
		}
		if _, exists := core.FindByID(snap.Transactions, tx.ID); !exists {
			tx.Touch(stamp)
			snap.Transactions = append(snap.Transactions, tx)
			allocate(snap, *re, core.MonthKey(dueDate), stamp)
		}

		dueDate = schedule.Next(dueDate, anchor)
		posted++
	}
	re.NextDueDate = dueDate.Format(dateLayout)
	re.AnchorDay = anchor
	re.Touch(stamp)
	return posted, nil
}

// allocate adds one allocation per series and month; a second occurrence in
// the same month raises its amount.
func allocate(snap *core.Snapshot, re core.RecurringExpense, month, stamp string) {
	bm := budgetMonth(snap, month)
	id := fmt.Sprintf("alloc-%s-%s", re.ID, month)
	alloc, ok := core.FindByID(bm.RecurringAllocations, id)
	if ok {
		alloc.Amount = core.Sum(alloc.Amount, re.Amount)
	} else {
		alloc = core.RecurringAllocation{
			ID:                 id,
			RecurringExpenseID: re.ID,
			CategoryID:         re.CategoryID,
			Amount:             re.Amount,
		}
	}
	alloc.Touch(stamp)
	bm.RecurringAllocations = core.Upsert(bm.RecurringAllocations, alloc)
	commitMonth(snap, bm, stamp)
}
