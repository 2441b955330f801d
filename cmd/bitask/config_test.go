package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitask.yaml")
	content := []byte("path: /tmp/db\ndata_file_size: 1048576\nmmap_reads: true\nverbose: true\n")
	require.Nil(t, os.WriteFile(path, content, 0644))

	cfg, err := LoadConfig(path)
	require.Nil(t, err)
	assert.Equal(t, "/tmp/db", cfg.Path)
	assert.Equal(t, int64(1048576), cfg.DataFileSize)
	assert.True(t, cfg.MmapReads)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfig_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Nil(t, err)
	assert.Equal(t, "", cfg.Path)
	assert.Equal(t, int64(0), cfg.DataFileSize)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitask.yaml")
	require.Nil(t, os.WriteFile(path, []byte("path: [unclosed"), 0644))

	_, err := LoadConfig(path)
	assert.NotNil(t, err)
}
