package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateThenValidate(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "--dir", dir, "create", "add worker phone")
	require.NoError(t, err)
	assert.Contains(t, out, "created migration:")

	files, err := filepath.Glob(filepath.Join(dir, "*_add_worker_phone.sql"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	out, err = execute(t, "--dir", dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations ok")
}

func TestValidateReportsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oops.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	_, err := execute(t, "--dir", dir, "validate")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid migration filename"), err.Error())
}

func TestToRequiresVersion(t *testing.T) {
	_, err := execute(t, "to")
	require.Error(t, err)
}

func TestUpFailsWithoutConfig(t *testing.T) {
	t.Setenv("ONBOARDING_APP_ENV", "")
	_, err := execute(t, "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
