package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"resolve", "discover", "enrich", "export", "serve", "migrate", "runs", "tiers", "followups"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "probate-link", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestResolveCommand_Flags(t *testing.T) {
	require.NotNil(t, resolveCmd.Flags().Lookup("out"))
	flag := resolveCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
	assert.Error(t, resolveCmd.Args(resolveCmd, nil), "resolve requires a leads file")
}

func TestExportCommand_Flags(t *testing.T) {
	for _, name := range []string{"out", "format", "review"} {
		assert.NotNil(t, exportCmd.Flags().Lookup(name), "export should have --%s flag", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestTiersCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range tiersCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"show", "validate", "stats"} {
		assert.True(t, names[name], "tiers should have subcommand %q", name)
	}
}

func TestFollowupsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range followupsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["retry"])
}
