package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/trip-cli/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"plan", "batch", "serve", "runs", "seed", "export"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "trip-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentPreRunE)
}

func TestPlanCommand_Flags(t *testing.T) {
	flag := planCmd.Flags().Lookup("request")
	require.NotNil(t, flag, "plan command should have --request flag")
	assert.Equal(t, "", flag.DefValue)

	format := planCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "json", format.DefValue)
}

func TestBatchCommand_Flags(t *testing.T) {
	flag := batchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "batch command should have --limit flag")
	assert.Equal(t, "100", flag.DefValue)
	assert.NotNil(t, batchCmd.Flags().Lookup("out"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "runs should have subcommand %q", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "runs.xlsx", flag.DefValue)
}

func TestApplyFlagOverrides(t *testing.T) {
	c := &config.Config{
		Log:   config.LogConfig{Level: "info"},
		Store: config.StoreConfig{Driver: "sqlite"},
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	flags.String("store", "", "")

	applyFlagOverrides(c, flags)
	assert.Equal(t, "info", c.Log.Level, "unset flags leave config alone")
	assert.Equal(t, "sqlite", c.Store.Driver)

	require.NoError(t, flags.Parse([]string{"--log-level", "debug", "--store", "postgres"}))
	applyFlagOverrides(c, flags)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "postgres", c.Store.Driver)
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("store"))
}
