package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conti/internal/core"
	"conti/internal/storage"
)

func setTestEnv(t *testing.T, backend, dbPath string) {
	t.Helper()
	t.Setenv("DATA_BACKEND", backend)
	t.Setenv("SQLITE_DB_PATH", dbPath)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("PORT", "8081")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("RECURRING_PROCESSOR_INTERVAL", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand("test", &rootOptions{logOutput: io.Discard})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedTemplate(t *testing.T, dbPath, userID string) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()

	_, err = repo.CreateTransaction(context.Background(), core.Transaction{
		UserID:         userID,
		Title:          "Rent",
		Amount:         core.Money{Cents: 95000},
		Date:           core.NewDate(2024, 1, 31),
		Status:         core.StatusPaid,
		RecurrenceType: core.Monthly,
		IsRecurring:    true,
	})
	require.NoError(t, err)
}

func TestMaterializeCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conti.db")
	setTestEnv(t, "sqlite", dbPath)
	seedTemplate(t, dbPath, "u1")

	out, err := execute(t, "materialize", "--user", "u1", "--date", "2024-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "created 3 transactions")

	out, err = execute(t, "materialize", "--user", "u1", "--date", "2024-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "created 0 transactions")
}

func TestMaterializeCommand_AllUsers(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "conti.db")
	setTestEnv(t, "sqlite", dbPath)
	seedTemplate(t, dbPath, "alice")
	seedTemplate(t, dbPath, "bob")

	out, err := execute(t, "materialize", "--date", "2024-02-29")
	require.NoError(t, err)
	assert.Contains(t, out, "created 4 transactions")
}

func TestMaterializeCommand_InvalidDate(t *testing.T) {
	setTestEnv(t, "memory", "")

	_, err := execute(t, "materialize", "--date", "31/03/2024")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --date")
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "conti.db")
	setTestEnv(t, "sqlite", dbPath)

	_, err := execute(t, "migrate")
	require.NoError(t, err)
	assert.FileExists(t, dbPath)

	setTestEnv(t, "memory", "")
	_, err = execute(t, "migrate")
	assert.Error(t, err)
}

func TestInvalidConfigFailsStartup(t *testing.T) {
	setTestEnv(t, "memory", "")
	t.Setenv("PORT", "not-a-port")

	_, err := execute(t, "materialize")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand("1.0.0")
	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "worker", "materialize", "migrate"}, names)
}
