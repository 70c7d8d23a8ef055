package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellrules/internal/spawn"
	"github.com/roach88/cellrules/internal/testutil"
)

func TestEmail_Notify(t *testing.T) {
	runner := testutil.NewRecordingRunner(spawn.Result{}, nil)
	m := NewEmail("ops@example.com", "Alarm: {}", runner, nil)

	require.NoError(t, m.Notify(context.Background(), "temp too high"))

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, DefaultSendmail, cmds[0].Name)
	assert.Equal(t, []string{"ops@example.com"}, cmds[0].Args)
	assert.True(t, cmds[0].HasInput)
	assert.Equal(t, "Subject: Alarm: temp too high\n\ntemp too high", cmds[0].Input)
	assert.Equal(t, "email:ops@example.com", m.String())
}

func TestEmail_NonZeroExit(t *testing.T) {
	runner := testutil.NewRecordingRunner(spawn.Result{ExitCode: 75, ErrorOutput: "queue full"}, nil)
	m := NewEmail("ops@example.com", "", runner, nil)

	err := m.Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 75")
}

func TestSMS_TextOnStdin(t *testing.T) {
	runner := testutil.NewRecordingRunner(spawn.Result{}, nil)
	s := NewSMS("+79991234567", "", runner, nil)

	require.NoError(t, s.Notify(context.Background(), "hello"))

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"-c", "wb-gsm restart_if_broken && gammu sendsms TEXT '+79991234567' -unicode"}, cmds[0].Args)
	assert.True(t, cmds[0].HasInput)
	assert.Equal(t, "hello", cmds[0].Input)
}

func TestSMS_TextInCommand(t *testing.T) {
	runner := testutil.NewRecordingRunner(spawn.Result{}, nil)
	s := NewSMS("+1", "sms-send '{}' '{}'", runner, nil)

	require.NoError(t, s.Notify(context.Background(), "hi"))

	cmds := runner.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, []string{"-c", "sms-send '+1' 'hi'"}, cmds[0].Args)
	assert.False(t, cmds[0].HasInput)
}
