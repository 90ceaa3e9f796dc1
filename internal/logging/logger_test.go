package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"chatty", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.level, "json").GetLevel())
		})
	}
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, "info", "json")

	ctx := WithCorrelationID(context.Background(), "abc-123")
	FromContext(ctx, logger).WithField("sku", "FL-40").Info("[SYNC] started")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "[SYNC] started", line["msg"])
	assert.Equal(t, "abc-123", line["correlation_id"])
	assert.Equal(t, "FL-40", line["sku"])
}

func TestNewWithOutput_Text(t *testing.T) {
	var buf bytes.Buffer
	NewWithOutput(&buf, "info", "text").Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestCorrelationID_Missing(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
	logger := logrus.New()
	assert.Equal(t, logrus.FieldLogger(logger), FromContext(context.Background(), logger))
}
