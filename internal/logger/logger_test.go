package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := setup(EnvProd, &buf)

	ctx := WithRequestID(context.Background(), "req-42")
	log.With(slog.String("op", "orders.ConfirmOrder")).InfoContext(ctx, "order created", Err(errors.New("boom")))

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-42", rec["request_id"])
	assert.Equal(t, "orders.ConfirmOrder", rec["op"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "order created", rec["msg"])
}

func TestSetup_ProdDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	setup(EnvProd, &buf).Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	setup(EnvDev, &buf).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_LocalPretty(t *testing.T) {
	var buf bytes.Buffer
	log := setup(EnvLocal, &buf)

	log.With(slog.String("op", "test")).Warn("careful", slog.Int("attempt", 2))

	out := buf.String()
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, `"op": "test"`)
	assert.Contains(t, out, `"attempt": 2`)
}

func TestRequestID_Empty(t *testing.T) {
	assert.Equal(t, "", RequestID(context.Background()))
}
