package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_InfoByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)
	log.Debug("hidden")
	log.Info("shown", zap.String("path", "a.png"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "a.png")
}

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, true)
	log.Debug("details")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "details")
}
