package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stakedash/pkg/config"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigArg(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		args     []string
		expected string
	}{
		{"flag wins", "a.json", []string{"b.json"}, "a.json"},
		{"positional", "", []string{"b.json"}, "b.json"},
		{"none", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, configArg(tt.flag, tt.args))
		})
	}
}

func TestOpenLogFile_DefaultsNextToConfig(t *testing.T) {
	dir := t.TempDir()
	f, err := openLogFile("", filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(dir, defaultLogFile), f.Name())
	_, err = os.Stat(f.Name())
	assert.NoError(t, err)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, "warn")
	assert.Equal(t, log.WarnLevel, logger.GetLevel())
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	assert.Equal(t, log.InfoLevel, newLogger(&buf, "bogus").GetLevel())
}

func TestRun_UnreachableRPCIsNotFatal(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Network.RPCURL = "http://127.0.0.1:1"
	cfg.Global.AutoConnect = false

	buf := &lockedBuffer{}
	logger := newLogger(buf, "info")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, cfg, logger, true, 0))
	assert.Contains(t, buf.String(), "read rpc unavailable")
}

// lockedBuffer is written by background loops that may outlive run.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
