package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/core"
)

func TestRecurringProcessor_NothingDue(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	_, err := f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "rent", Name: "Rent", Amount: 900, Frequency: core.Monthly, NextDueDate: "2024-04-01", Active: true,
	})
	require.NoError(t, err)
	saves := f.store.saves

	n, err := NewRecurringProcessor(f.ledger).ProcessDueExpenses(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, saves, f.store.saves, "no commit when nothing is due")
}

func TestRecurringProcessor_PostsAndCatchesUp(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "rent", Name: "Rent", CategoryID: "housing", AccountID: "checking",
		Amount: 900, Frequency: core.Monthly, NextDueDate: "2024-01-31", Active: true,
	})
	require.NoError(t, err)
	_, err = f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "paused", Name: "Gym", Amount: 30, Frequency: core.Weekly, NextDueDate: "2024-01-01", Active: false,
	})
	require.NoError(t, err)

	n, err := NewRecurringProcessor(f.ledger).ProcessDueExpenses(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "January and February occurrences are posted")

	snap, _ := f.ledger.Snapshot(ctx)
	jan, ok := core.FindByID(snap.Transactions, "rec-rent-2024-01-31")
	require.True(t, ok)
	assert.Equal(t, core.TransactionExpense, jan.Type)
	assert.Equal(t, 900.0, jan.Amount)
	assert.Equal(t, "housing", jan.CategoryID)
	_, ok = core.FindByID(snap.Transactions, "rec-rent-2024-02-29")
	assert.True(t, ok, "month end is clamped")
	assert.Len(t, snap.Transactions, 2)

	rent, _ := core.FindByID(snap.RecurringExpenses, "rent")
	assert.Equal(t, "2024-03-31", rent.NextDueDate)
	paused, _ := core.FindByID(snap.RecurringExpenses, "paused")
	assert.Equal(t, "2024-01-01", paused.NextDueDate)

	feb := snap.BudgetMonths["2024-02"]
	require.Len(t, feb.RecurringAllocations, 1)
	assert.Equal(t, "alloc-rent-2024-02", feb.RecurringAllocations[0].ID)
	assert.Equal(t, 900.0, feb.RecurringAllocations[0].Amount)

	// running again the same day posts nothing new
	n, err = NewRecurringProcessor(f.ledger).ProcessDueExpenses(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecurringProcessor_MonthEndAnchorSurvivesRuns(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	_, err := f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "rent", Name: "Rent", Amount: 900, Frequency: core.Monthly, NextDueDate: "2024-01-31", Active: true,
	})
	require.NoError(t, err)

	processor := NewRecurringProcessor(f.ledger)
	runs := []struct {
		day      string
		wantNext string
	}{
		{"2024-01-31", "2024-02-29"},
		{"2024-02-29", "2024-03-31"},
		{"2024-03-31", "2024-04-30"},
		{"2024-04-30", "2024-05-31"},
	}
	for _, run := range runs {
		day, err := time.Parse(dateLayout, run.day)
		require.NoError(t, err)
		n, err := processor.ProcessDueExpenses(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 1, n, run.day)

		snap, _ := f.ledger.Snapshot(ctx)
		rent, _ := core.FindByID(snap.RecurringExpenses, "rent")
		assert.Equal(t, run.wantNext, rent.NextDueDate, "after run on %s", run.day)
		assert.Equal(t, 31, rent.AnchorDay)
	}

	snap, _ := f.ledger.Snapshot(ctx)
	for _, id := range []string{"rec-rent-2024-01-31", "rec-rent-2024-02-29", "rec-rent-2024-03-31", "rec-rent-2024-04-30"} {
		_, ok := core.FindByID(snap.Transactions, id)
		assert.True(t, ok, id)
	}
	assert.Len(t, snap.Transactions, 4)
}

func TestRecurringProcessor_EditKeepsAnchor(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	_, err := f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "rent", Name: "Rent", Amount: 900, Frequency: core.Monthly, NextDueDate: "2024-01-31", Active: true,
	})
	require.NoError(t, err)
	_, err = NewRecurringProcessor(f.ledger).ProcessDueExpenses(ctx, time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// renaming the series keeps the clamped due date and the anchor
	_, err = f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "rent", Name: "Flat rent", Amount: 950, Frequency: core.Monthly, NextDueDate: "2024-02-29", Active: true,
	})
	require.NoError(t, err)
	snap, _ := f.ledger.Snapshot(ctx)
	rent, _ := core.FindByID(snap.RecurringExpenses, "rent")
	assert.Equal(t, 31, rent.AnchorDay)

	// moving the due date re-anchors the series
	_, err = f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "rent", Name: "Flat rent", Amount: 950, Frequency: core.Monthly, NextDueDate: "2024-03-15", Active: true,
	})
	require.NoError(t, err)
	snap, _ = f.ledger.Snapshot(ctx)
	rent, _ = core.FindByID(snap.RecurringExpenses, "rent")
	assert.Equal(t, 15, rent.AnchorDay)
}

func TestRecurringProcessor_WeeklyAllocationsAccumulate(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	_, err := f.ledger.SaveRecurringExpense(ctx, core.RecurringExpense{
		ID: "coffee", Name: "Coffee beans", Amount: 12.5, Frequency: core.Weekly, NextDueDate: "2024-03-01", Active: true,
	})
	require.NoError(t, err)

	n, err := NewRecurringProcessor(f.ledger).ProcessDueExpenses(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	snap, _ := f.ledger.Snapshot(ctx)
	mar := snap.BudgetMonths["2024-03"]
	alloc, ok := core.FindByID(mar.RecurringAllocations, "alloc-coffee-2024-03")
	require.True(t, ok)
	assert.Equal(t, 25.0, alloc.Amount)
}

func TestRecurringProcessor_Uninitialized(t *testing.T) {
	_, err := NewRecurringProcessor(nil).ProcessDueExpenses(context.Background(), time.Now())
	assert.Error(t, err)
}
