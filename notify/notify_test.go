package notify_test

import (
	"testing"

	"github.com/jrsteele09/go-rail-auth/notify"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := &notify.Recorder{}
	notify.Success(r, "Login successful!")
	notify.Error(r, "Access forbidden")

	require.Equal(t, []notify.Notification{
		{Level: notify.LevelSuccess, Message: "Login successful!"},
		{Level: notify.LevelError, Message: "Access forbidden"},
	}, r.All())
	require.Equal(t, []string{"Access forbidden"}, r.Errors())
}

func TestSinksNeverAffectCaller(t *testing.T) {
	require.NotPanics(t, func() {
		notify.Error(nil, "no sink")
		notify.Error(notify.Nop{}, "discarded")
		notify.Error(notify.Func(func(notify.Notification) { panic("boom") }), "panicking sink")
	})
}
