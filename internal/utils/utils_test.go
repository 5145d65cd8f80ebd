package utils_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/amarnathcjd/hybridgram/internal/utils"
)

func TestRecentSet(t *testing.T) {
	s := utils.NewRecentSet[int64](3)

	assert.True(t, s.Add(1))
	assert.True(t, s.Add(2))
	assert.False(t, s.Add(1))
	assert.True(t, s.Add(3))
	assert.Equal(t, 3, s.Len())

	// evicts 1, the oldest
	assert.True(t, s.Add(4))
	assert.False(t, s.Has(1))
	assert.True(t, s.Has(2))
	assert.True(t, s.Has(4))
	assert.Equal(t, 3, s.Len())

	s.Remove(4)
	assert.False(t, s.Has(4))
	assert.True(t, s.Add(4))

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Add(2))
}

func TestAskForConfirmation(t *testing.T) {
	var out bytes.Buffer

	assert.True(t, utils.AskForConfirmation(strings.NewReader("y\n"), &out, "Delete?", false))
	assert.False(t, utils.AskForConfirmation(strings.NewReader("no\n"), &out, "Delete?", true))
	assert.True(t, utils.AskForConfirmation(strings.NewReader("\n"), &out, "Delete?", true))
	assert.False(t, utils.AskForConfirmation(strings.NewReader(""), &out, "Delete?", false))
	assert.Contains(t, out.String(), "Delete? [Y/n]")
}

func TestLogger_FieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := utils.NewLoggerWithConfig(&utils.LoggerConfig{
		Level:  utils.InfoLevel,
		Prefix: "router",
		Output: &buf,
	})

	log.Debug("hidden")
	log.WithField("bot_id", "main").WithError(errors.New("boom")).Error("dispatch failed for %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "ERROR router dispatch failed for 42 [bot_id=main] error=boom")
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := utils.NewLoggerWithConfig(&utils.LoggerConfig{
		Level:     utils.DebugLevel,
		Output:    &buf,
		Formatter: &utils.JSONFormatter{},
	})

	log.WithField("update_id", 7).Debug("received")
	assert.Contains(t, buf.String(), `"message":"received"`)
	assert.Contains(t, buf.String(), `"update_id":7`)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, utils.DebugLevel, utils.ParseLevel("debug"))
	assert.Equal(t, utils.WarnLevel, utils.ParseLevel("warning"))
	assert.Equal(t, utils.NoLevel, utils.ParseLevel("off"))
	assert.Equal(t, utils.InfoLevel, utils.ParseLevel("whatever"))
}
