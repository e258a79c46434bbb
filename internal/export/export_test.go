package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"budgetsync/internal/core"
	"budgetsync/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func sampleSnapshot() core.Snapshot {
	raw, _ := snapshot.ParseRaw([]byte(`{
		"profile": {"currency": "EUR", "financialStartDate": "2024-01-01"},
		"accounts": [{"id": "acc-1", "name": "Checking", "type": "checking", "balance": 1200}],
		"categories": [{"id": "cat-1", "name": "Food", "type": "expense"}],
		"transactions": [
			{"id": "tx-2", "accountId": "acc-1", "categoryId": "cat-1", "type": "expense", "amount": 12.5, "date": "2024-03-02", "description": "Lunch, office"},
			{"id": "tx-1", "accountId": "acc-1", "categoryId": "cat-9", "type": "income", "amount": 2000, "date": "2024-03-01", "description": "Salary"},
			{"id": "tx-3", "accountId": "acc-2", "categoryId": "cat-1", "type": "expense", "amount": 7, "date": "2024-03-02", "description": "Coffee"}
		]
	}`))
	return snapshot.Normalize(raw, fixedNow)
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	n, err := CSV(&buf, sampleSnapshot(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "date,account,category,type,amount,description,updatedAt", lines[0])
	assert.Equal(t, "2024-03-01,Checking,cat-9,income,2000.00,Salary,2024-03-10T09:30:00Z", lines[1])
	assert.Equal(t, `2024-03-02,Checking,Food,expense,12.50,"Lunch, office",2024-03-10T09:30:00Z`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "2024-03-02,acc-2,Food,expense,7.00,Coffee"))
}

func TestCSVFilter(t *testing.T) {
	rule := core.SmartExportRule{ID: "r1", CategoryIDs: []string{"cat-1"}, AccountIDs: []string{"acc-1"}}

	var buf bytes.Buffer
	n, err := CSV(&buf, sampleSnapshot(), FilterFromRule(rule))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "Lunch, office")
	assert.NotContains(t, buf.String(), "Coffee")
}

func TestRuleFilter(t *testing.T) {
	s := sampleSnapshot()
	s.SmartExportRules = []core.SmartExportRule{
		{ID: "food", Format: FormatJSON, CategoryIDs: []string{"cat-1"}, Enabled: true},
		{ID: "paused", Format: FormatJSON, Enabled: false},
		{ID: "sheet", Format: FormatCSV, Enabled: true},
	}

	filter, err := RuleFilter(s, "", FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, Filter{}, filter)

	_, err = RuleFilter(s, "missing", FormatJSON)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	_, err = RuleFilter(s, "paused", FormatJSON)
	assert.ErrorIs(t, err, ErrRuleDisabled)
	_, err = RuleFilter(s, "sheet", FormatJSON)
	assert.ErrorIs(t, err, ErrRuleFormat)

	filter, err = RuleFilter(s, "food", FormatJSON)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Write(&buf, FormatJSON, s, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "Lunch, office")
	assert.NotContains(t, buf.String(), "Salary")
}

func TestJSONRoundTrip(t *testing.T) {
	original := sampleSnapshot()

	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, original))
	assert.Contains(t, buf.String(), "\n  \"accounts\"")

	raw, err := Import(&buf)
	require.NoError(t, err)
	assert.Equal(t, original, snapshot.Normalize(raw, fixedNow))
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	_, err := Import(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, "xlsx", sampleSnapshot(), Filter{})
	assert.Error(t, err)

	n, err := Write(&buf, FormatJSON, sampleSnapshot(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.True(t, IsFormat("csv"))
	assert.False(t, IsFormat("pdf"))
	assert.Equal(t, "budget_2024-03-10_093000.csv", FileName(FormatCSV, fixedNow))
}
