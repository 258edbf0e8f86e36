package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, "debug", "json")

	log.WithField(FieldOrigin, "webhook").Info("test message")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test message", entry["msg"])
	assert.Equal(t, "webhook", entry[FieldOrigin])
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
}

func TestNewWithWriter_InvalidLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf, "loud", "text")

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.Contains(t, buf.String(), "Invalid log level")
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("nothing to see")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}
