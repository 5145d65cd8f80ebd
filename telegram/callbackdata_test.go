package telegram_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarnathcjd/hybridgram"
	"github.com/amarnathcjd/hybridgram/telegram"
)

func TestEncodeCallbackData_SortedAndEscaped(t *testing.T) {
	data, err := telegram.EncodeCallbackData("buy", map[string]string{"qty": "2", "item": "red hat"})
	require.NoError(t, err)
	assert.Equal(t, "buy|item=red%20hat&qty=2", data)

	action, params, err := telegram.DecodeCallbackData(data)
	require.NoError(t, err)
	assert.Equal(t, "buy", action)
	assert.Equal(t, map[string]string{"item": "red hat", "qty": "2"}, params)
}

func TestEncodeCallbackData_Builder(t *testing.T) {
	data, err := telegram.NewCallbackData("page").With("n", 3).With("last", true).With("q", nil).Encode()
	require.NoError(t, err)
	assert.Equal(t, "page|last=1&n=3&q=", data)

	data, err = telegram.EncodeCallbackData("menu", nil)
	require.NoError(t, err)
	assert.Equal(t, "menu", data)
}

func TestEncodeCallbackData_Errors(t *testing.T) {
	_, err := telegram.EncodeCallbackData("", nil)
	assert.Error(t, err)

	_, err = telegram.EncodeCallbackData("a", map[string]string{"": "v"})
	assert.Error(t, err)

	_, err = telegram.EncodeCallbackData("a", map[string]string{"k": strings.Repeat("x", 64)})
	require.Error(t, err)
	assert.Equal(t, hybridgram.ErrCallbackDataSize, errors.Cause(err))
}

func TestDecodeCallbackData(t *testing.T) {
	action, params, err := telegram.DecodeCallbackData("vote|&id=7&&flag")
	require.NoError(t, err)
	assert.Equal(t, "vote", action)
	assert.Equal(t, map[string]string{"id": "7", "flag": ""}, params)

	_, _, err = telegram.DecodeCallbackData("")
	assert.Equal(t, hybridgram.ErrCallbackDataSize, errors.Cause(err))

	_, _, err = telegram.DecodeCallbackData(strings.Repeat("a", 65))
	assert.Equal(t, hybridgram.ErrCallbackDataSize, errors.Cause(err))

	_, _, err = telegram.DecodeCallbackData("a|=v")
	assert.Error(t, err)

	_, _, err = telegram.DecodeCallbackData("a|k=%zz")
	assert.Error(t, err)
}

func TestEncodeCallbackData_MultibyteCountsBytes(t *testing.T) {
	// each Cyrillic letter is two bytes and six escaped characters
	_, err := telegram.EncodeCallbackData("a", map[string]string{"t": strings.Repeat("я", 11)})
	assert.Equal(t, hybridgram.ErrCallbackDataSize, errors.Cause(err))

	data, err := telegram.EncodeCallbackData("a", map[string]string{"t": "яя"})
	require.NoError(t, err)
	assert.Equal(t, "a|t=%D1%8F%D1%8F", data)
}
