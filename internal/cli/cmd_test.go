package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetsync/internal/config"
	"budgetsync/internal/core"
	blog "budgetsync/internal/log"
)

// testOpener returns an OpenFunc backed by one SQLite file and a memory
// remote, so state survives between commands like it does between runs.
func testOpener(t *testing.T) OpenFunc {
	t.Helper()
	cfg := &config.Config{
		SQLiteDBPath:   filepath.Join(t.TempDir(), "budget.db"),
		SnapshotKey:    "default",
		SyncBackend:    config.BackendMemory,
		SyncBatchSize:  10,
		SyncInterval:   time.Second,
		SyncMaxRetries: 3,
	}
	logger := blog.New(blog.Config{Output: io.Discard})
	return func(ctx context.Context) (*App, error) {
		return NewApp(ctx, cfg, logger, AppOptions{Enqueue: true})
	}
}

func executeCmd(t *testing.T, open OpenFunc, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(open)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const legacyDoc = `{
  "accounts": [{"id": "acc-1", "name": "Checking", "type": "checking", "balance": 1200}],
  "categories": [{"id": "cat-1", "name": "Groceries", "type": "expense"}],
  "transactions": [
    {"id": "tx-1", "accountId": "acc-1", "categoryId": "cat-1", "type": "expense",
     "amount": 42.5, "date": "2024-03-09", "description": "Market",
     "createdAt": "2024-03-09T10:00:00Z", "updatedAt": "2024-03-09T10:00:00Z"}
  ],
  "plannedExpenses": [
    {"id": "pe-1", "categoryId": "cat-1", "name": "Rent", "amount": 900, "dueDate": "2024-03-01"}
  ]
}`

func TestNormalizeCmd(t *testing.T) {
	path := writeFile(t, "legacy.json", legacyDoc)
	notCalled := func(context.Context) (*App, error) {
		t.Fatal("normalize must not open the app")
		return nil, nil
	}

	out, err := executeCmd(t, notCalled, "normalize", path)
	require.NoError(t, err)

	var snap core.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Len(t, snap.Transactions, 1)
	require.Contains(t, snap.BudgetMonths, "2024-03")
	assert.Len(t, snap.BudgetMonths["2024-03"].PlannedItems, 1)
	assert.Equal(t, 900.0, snap.BudgetMonths["2024-03"].Totals.Planned)
}

func TestNormalizeCmd_ReadsStdin(t *testing.T) {
	root := NewRootCmd(nil)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetIn(strings.NewReader(`{"accounts": [{"id": "a", "name": "Cash", "type": "cash"}]}`))
	root.SetArgs([]string{"normalize", "-"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), `"name": "Cash"`)
}

func TestNormalizeCmd_BadJSON(t *testing.T) {
	path := writeFile(t, "broken.json", `{"accounts": [`)
	_, err := executeCmd(t, nil, "normalize", path)
	require.Error(t, err)
}

func TestMergeCmd_LastWriterWins(t *testing.T) {
	local := writeFile(t, "local.json", `{"accounts": [
	  {"id": "a", "name": "Local name", "type": "cash", "updatedAt": "2024-03-02T00:00:00Z"},
	  {"id": "only-local", "name": "Wallet", "type": "cash", "updatedAt": "2024-03-01T00:00:00Z"}
	]}`)
	remote := writeFile(t, "remote.json", `{"accounts": [
	  {"id": "a", "name": "Remote name", "type": "cash", "updatedAt": "2024-03-01T00:00:00Z"}
	]}`)

	out, err := executeCmd(t, nil, "merge", local, remote)
	require.NoError(t, err)

	var snap core.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.Accounts, 2)
	a, ok := core.FindByID(snap.Accounts, "a")
	require.True(t, ok)
	assert.Equal(t, "Local name", a.Name)
	_, ok = core.FindByID(snap.Accounts, "only-local")
	assert.True(t, ok)
}

func TestMergeCmd_RequiresTwoFiles(t *testing.T) {
	_, err := executeCmd(t, nil, "merge", "one.json")
	require.Error(t, err)
}

func TestDeriveCmd(t *testing.T) {
	path := writeFile(t, "legacy.json", legacyDoc)
	out, err := executeCmd(t, nil, "derive", path)
	require.NoError(t, err)

	var body struct {
		WealthMetrics core.WealthMetrics `json:"wealthMetrics"`
		Insights      []core.Insight     `json:"insights"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.NotEmpty(t, body.WealthMetrics.UpdatedAt)
}

func TestTxAddAndRemove(t *testing.T) {
	open := testOpener(t)

	out, err := executeCmd(t, open, "tx", "add",
		"--id", "tx-cli",
		"--amount", "12,50",
		"--date", "2024-03-10",
		"--description", "Coffee beans")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved transaction tx-cli")
	assert.Contains(t, out, "12.50")

	out, err = executeCmd(t, open, "export", "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, "Coffee beans")

	out, err = executeCmd(t, open, "tx", "rm", "tx-cli")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted transaction tx-cli")

	_, err = executeCmd(t, open, "tx", "rm", "tx-cli")
	require.Error(t, err)
	assert.True(t, IsUserError(err))
}

func TestTxAdd_Validation(t *testing.T) {
	open := testOpener(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing amount", []string{"tx", "add", "--description", "x"}},
		{"bad amount", []string{"tx", "add", "--amount", "abc"}},
		{"negative amount", []string{"tx", "add", "--amount=-5"}},
		{"bad type", []string{"tx", "add", "--amount", "5", "--type", "gift"}},
		{"bad date", []string{"tx", "add", "--amount", "5", "--date", "10/03/2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCmd(t, open, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	open := testOpener(t)
	path := writeFile(t, "legacy.json", legacyDoc)

	out, err := executeCmd(t, open, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 accounts, 1 transactions")

	target := filepath.Join(t.TempDir(), "out.json")
	_, err = executeCmd(t, open, "export", "--format", "json", "-o", target, "--record")
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	var snap core.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Len(t, snap.Transactions, 1)

	out, err = executeCmd(t, open, "export")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	require.Len(t, snap.ExportHistory, 1)
	assert.Equal(t, target, snap.ExportHistory[0].FileName)
	assert.Equal(t, 1, snap.ExportHistory[0].ItemCount)
}

func TestExportCmd_Errors(t *testing.T) {
	open := testOpener(t)

	_, err := executeCmd(t, open, "export", "--format", "xml")
	require.Error(t, err)

	_, err = executeCmd(t, open, "export", "--rule", "missing")
	require.Error(t, err)
	assert.True(t, IsUserError(err))
}

func TestSyncAndQueueCmds(t *testing.T) {
	open := testOpener(t)

	_, err := executeCmd(t, open, "tx", "add", "--amount", "3", "--date", "2024-03-10")
	require.NoError(t, err)

	out, err := executeCmd(t, open, "queue", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "pending=1")

	out, err = executeCmd(t, open, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "pushed: true")

	_, err = executeCmd(t, open, "queue", "retry")
	require.NoError(t, err)
}

func TestRecurringPostCmd(t *testing.T) {
	open := testOpener(t)
	out, err := executeCmd(t, open, "recurring", "post")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted 0 recurring transactions")
}
