package ulogger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerJSON(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("chain", ulogger.WithWriter(&buf), ulogger.WithPretty(false), ulogger.WithLevel("INFO"))

	logger.Debugf("hidden %d", 1)
	logger.Infof("block %d accepted", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "chain", entry["service"])
	assert.Equal(t, "block 42 accepted", entry["message"])
}

func TestZeroLoggerChildKeepsWriter(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("daemon", ulogger.WithWriter(&buf), ulogger.WithPretty(false), ulogger.WithLevel("DEBUG"))
	child := logger.New("miner")

	child.Debugf("burst done")

	assert.Contains(t, buf.String(), `"service":"miner"`)
	assert.Contains(t, buf.String(), "burst done")
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("index", ulogger.WithWriter(&buf), ulogger.WithPretty(false))
	logger.SetLogLevel("ERROR")

	logger.Warnf("dropped")
	assert.Empty(t, buf.String())

	logger.Errorf("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestTestLoggerIsSilent(t *testing.T) {
	var logger ulogger.Logger = ulogger.TestLogger{}

	logger.Infof("nothing")
	assert.Equal(t, logger, logger.New("other"))
}
