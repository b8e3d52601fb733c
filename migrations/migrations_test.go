package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestSchemaCoversMessagingTables(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)

	var schema strings.Builder
	for _, name := range ups {
		b, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		schema.Write(b)
	}
	for _, table := range []string{
		"patients", "professionals", "appointments", "message_templates",
		"message_logs", "campaigns", "campaign_messages", "webhook_audit_logs",
	} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
