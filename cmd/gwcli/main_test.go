package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/gwcli/pkg/session"
)

func TestNewLoggerWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := newLogger(&buf, false, "")
	require.NoError(t, err)
	defer closeLog()

	logger.Info("dev1 dev2")
	logger.Debug("hidden")
	assert.Equal(t, "dev1 dev2\n", buf.String())
}

func TestNewLoggerTranscript(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "gwcli.log")
	logger, closeLog, err := newLogger(&buf, false, logFile)
	require.NoError(t, err)

	logger.Debug("GET /things")
	logger.Info("lamp")
	closeLog()

	assert.Equal(t, "lamp\n", buf.String())
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `msg="GET /things"`)
	assert.Contains(t, string(data), "msg=lamp")
}

func TestSaveSessionFailureIsLogged(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	path := filepath.Join(blocker, "session.json")

	sess := session.New(path)
	sess.SetRoot(session.GatewaysKey, "https://gw.local")
	sess.Set("jwt", "token")

	var buf bytes.Buffer
	logger, closeLog, err := newLogger(&buf, false, "")
	require.NoError(t, err)
	defer closeLog()

	saveSession(logger, sess)
	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "Unable to save session path="+path+" err="), line)
	assert.True(t, sess.Dirty())
}
