package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/amarnathcjd/hybridgram/telegram"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestRoutesCommand_Table(t *testing.T) {
	out := execute(t, "routes")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "BOT"))
	assert.Contains(t, lines[1], "ping")
	assert.Contains(t, lines[2], "start")
	assert.Contains(t, lines[2], "private")
}

func TestRoutesCommand_YAML(t *testing.T) {
	out := execute(t, "routes", "--yaml")

	var infos []telegram.RouteInfo
	require.NoError(t, yaml.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "*", infos[0].BotID)
	assert.Equal(t, "COMMAND", infos[0].Type)
	assert.Equal(t, "ping", infos[0].Pattern)
	assert.Equal(t, "ping", infos[0].Action)
	assert.Equal(t, "start", infos[1].Action)
	assert.Equal(t, 1, infos[1].Middlewares)
}

func TestDescribeStates(t *testing.T) {
	in := telegram.RouteInfo{FromChatState: []string{"a", "b"}, ExceptUserState: []string{"x"}, ToState: "chat:c"}
	assert.Equal(t, "chat=a|b !user=x -> chat:c", describeStates(in))
	assert.Equal(t, "-", orDash(describeStates(telegram.RouteInfo{})))
}

func TestSummary(t *testing.T) {
	u := &telegram.Update{UpdateID: 9, Message: &telegram.Message{
		Chat: telegram.Chat{ID: 5, Type: telegram.ChatPrivate},
		From: &telegram.User{ID: 6},
		Text: strings.Repeat("x", 70),
	}}
	s := summary(u)
	assert.Contains(t, s, "chat=5")
	assert.Contains(t, s, "from=6")
	assert.Contains(t, s, strings.Repeat("x", 60)+"...")
}

func TestWebhookDelete_DeclinedPrompt(t *testing.T) {
	t.Setenv("BOT_TOKEN", "1:a")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader("n\n"))
	cmd.SetArgs([]string{"webhook", "delete"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Delete the webhook of main? [y/N]")
	assert.Contains(t, out.String(), "aborted")
	assert.NotContains(t, out.String(), "deleted")
}
