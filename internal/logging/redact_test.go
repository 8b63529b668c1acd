package logging

import (
	"testing"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encode(t *testing.T, enc zapcore.Encoder, msg string, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: msg}, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestRedactingEncoder(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encode(t, enc, "alert sent",
		zap.String("token", "abc123"),
		zap.String("header", "Authorization: Bearer eyJhbGciOi"),
		zap.String("identifier", "wf-1--jaffle--dev--complete"),
	)

	assert.NotContains(t, out, "abc123")
	assert.NotContains(t, out, "eyJhbGciOi")
	assert.Contains(t, out, "wf-1--jaffle--dev--complete")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedactingEncoder_Message(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	out := encode(t, enc, "posting with ghp_abcdefghijklmnopqrstuvwxyz")
	assert.NotContains(t, out, "ghp_abcdefghijklmnopqrstuvwxyz")
}

func TestRedactingEncoder_WithFields(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	child := enc.Clone()
	zap.String("secret_key", "minio-secret").AddTo(child)
	out := encode(t, child, "uploading")
	assert.NotContains(t, out, "minio-secret")
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{})
	require.NoError(t, err)

	out := encode(t, enc, "plain", zap.String("token", "visible"))
	assert.Contains(t, out, "visible")
}

func TestSecretField(t *testing.T) {
	logger := NewTestLogger()
	logger.Info(t.Context(), "configured", Secret("github_token", config.Secret("ghp_123456")))
	logger.AssertField(t, "configured", "github_token", "[REDACTED:10]")
}
