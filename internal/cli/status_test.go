package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_UnknownBase(t *testing.T) {
	stdout, _, err := execute(t, "status", "--data-dir", t.TempDir(), "--base", "ghost")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Knowledge base "ghost" not found`)
}

func TestStatusCmd(t *testing.T) {
	dataDir := indexedDataDir(t)

	stdout, _, err := execute(t, "status", "--data-dir", dataDir, "--base", "kb")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Knowledge base: kb")
	assert.Contains(t, stdout, "(2 files)")
	assert.Contains(t, stdout, "Documents: 2 indexed, 0 pending")
	assert.Contains(t, stdout, "Embedding: local/")
	assert.Contains(t, stdout, "healthy=true")
	assert.NotContains(t, stdout, "Last indexed: never")
}

func TestStatusCmd_AllAndJSON(t *testing.T) {
	dataDir := indexedDataDir(t)
	writeDoc(t, documentsDir(dataDir, "other"), "notes.txt", gardenText)

	stdout, _, err := execute(t, "status", "--data-dir", dataDir, "--all")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Knowledge base: kb")
	assert.Contains(t, stdout, "Knowledge base: other")

	stdout, _, err = execute(t, "status", "--data-dir", dataDir, "--all", "--json")
	require.NoError(t, err)

	var statuses []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, "kb", statuses[0]["BaseName"])
	assert.Equal(t, float64(2), statuses[0]["DocumentsCount"])
	assert.Equal(t, "other", statuses[1]["BaseName"])
	assert.Equal(t, float64(0), statuses[1]["DocumentsCount"])
	assert.Equal(t, float64(1), statuses[1]["FilesInFolder"])
}

func TestStatusCmd_AllEmpty(t *testing.T) {
	stdout, _, err := execute(t, "status", "--data-dir", t.TempDir(), "--all")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No knowledge bases in")
}
