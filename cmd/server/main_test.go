package main

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/lumberjack-backend/internal/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

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

func TestServe_FlushesLogOnFailure(t *testing.T) {
	out := &lockedBuffer{}
	ws := &zapcore.BufferedWriteSyncer{WS: zapcore.AddSync(out), FlushInterval: time.Hour}
	defer ws.Stop() //nolint:errcheck

	log := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), ws, zap.InfoLevel,
	))

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	cfg.DatabaseURL = ""
	cfg.Database.Host = ""
	cfg.NATSURL = "nats://127.0.0.1:1" // nothing listens here

	require.Equal(t, 1, serve(cfg, log))
	require.Contains(t, out.String(), "server exited")
}
