package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePassthroughKeepsCommandFlags(t *testing.T) {
	pass, err := parsePassthrough([]string{"shell", "ls", "-l", "/sdcard"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"shell", "ls", "-l", "/sdcard"}, pass.args)
	assert.False(t, pass.help)
}

func TestParsePassthroughLeadingFlags(t *testing.T) {
	oldDir, oldJSON := rootToolsDir, rootJSON
	t.Cleanup(func() { rootToolsDir, rootJSON = oldDir, oldJSON })

	pass, err := parsePassthrough([]string{"--expert", "--tools-dir", "/opt/pt", "--json", "flash", "-S", "100M", "boot", "boot.img"}, []string{"--expert"})
	require.NoError(t, err)
	assert.True(t, pass.flags["--expert"])
	assert.Equal(t, "/opt/pt", rootToolsDir)
	assert.True(t, rootJSON)
	assert.Equal(t, []string{"flash", "-S", "100M", "boot", "boot.img"}, pass.args)

	pass, err = parsePassthrough([]string{"--", "--help"}, nil)
	require.NoError(t, err)
	assert.False(t, pass.help)
	assert.Equal(t, []string{"--help"}, pass.args)

	pass, err = parsePassthrough([]string{"-h"}, nil)
	require.NoError(t, err)
	assert.True(t, pass.help)
	assert.Empty(t, pass.args)

	_, err = parsePassthrough([]string{"--tools-dir"}, nil)
	assert.Error(t, err)
}

func TestAdbCommandRoutesFlagsToAdb(t *testing.T) {
	cmd, args, err := rootCmd.Find([]string{"adb", "shell", "ls", "-l", "/sdcard"})
	require.NoError(t, err)
	assert.Equal(t, "adb", cmd.Name())
	assert.True(t, cmd.DisableFlagParsing)
	assert.Equal(t, []string{"shell", "ls", "-l", "/sdcard"}, args)

	cmd, _, err = rootCmd.Find([]string{"fastboot", "--expert", "getvar", "all"})
	require.NoError(t, err)
	assert.True(t, cmd.DisableFlagParsing)
}
