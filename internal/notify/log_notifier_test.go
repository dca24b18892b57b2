package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_SendPasscode(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.SendPasscode(context.Background(), "a@b", "123456", time.Now().Add(10*time.Minute))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "a@b", entry["email"])
	assert.Equal(t, "123456", entry["code"])
	assert.Equal(t, "INFO", entry["level"])
}
