package listen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/smartmail/cmd/smartmail/subcmd"
	"github.com/temoto/smartmail/config"
	"github.com/temoto/smartmail/influx"
	"github.com/temoto/smartmail/log2"
	"github.com/temoto/smartmail/notify"
	"github.com/temoto/spq"
)

func TestNewNotifier(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)

	var cfg config.Config
	n, to, err := newNotifier(&cfg, log)
	require.NoError(t, err)
	assert.IsType(t, notify.Noop{}, n)
	assert.Empty(t, to)

	cfg.Threema.Enable = true
	cfg.Threema.From = "*SMARTML"
	cfg.Threema.Secret = "x"
	cfg.Threema.To = []string{"ECHOECHO"}
	n, to, err = newNotifier(&cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &notify.Threema{}, n)
	assert.Equal(t, []string{"ECHOECHO"}, to)

	cfg.Threema.From = "nostar"
	_, _, err = newNotifier(&cfg, log)
	assert.Error(t, err)
}

func TestNewSink(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)

	var cfg config.Config
	s, closeSink, err := newSink(&cfg, log)
	require.NoError(t, err)
	assert.Nil(t, s)
	closeSink()

	cfg.Influx.Enable = true
	cfg.Influx.URL = "http://influx.local:8086"
	cfg.Influx.DB = "mailbox"
	s, closeSink, err = newSink(&cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &influx.Writer{}, s)
	closeSink()

	cfg.Influx.QueuePath = spq.OnlyForTesting
	s, closeSink, err = newSink(&cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &influx.Queue{}, s)
	closeSink()

	cfg.Influx.URL = "::"
	_, _, err = newSink(&cfg, log)
	require.Error(t, err)
	assert.Equal(t, subcmd.ExitConfig, subcmd.ExitCode(err))
}
