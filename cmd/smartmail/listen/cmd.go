package listen

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/temoto/alive/v2"
	"github.com/temoto/smartmail/cmd/smartmail/subcmd"
	"github.com/temoto/smartmail/config"
	"github.com/temoto/smartmail/dispatch"
	"github.com/temoto/smartmail/helpers"
	"github.com/temoto/smartmail/influx"
	"github.com/temoto/smartmail/log2"
	"github.com/temoto/smartmail/mailbox"
	"github.com/temoto/smartmail/notify"
	"github.com/temoto/smartmail/transport"
)

const modName = "listen"

var Mod = subcmd.Mod{Name: modName, Usage: "subscribe to uplinks and notify on mailbox changes", Main: Main}

func Main(ctx context.Context, r *subcmd.Runtime) error {
	log := r.Log
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	if cfg.LogDebug {
		log.SetLevel(log2.LDebug)
	}
	log.Debugf("config ttn.app_id=%s broker=%s threema=%t influxdb=%t threshold=%d",
		cfg.TTN.AppID, cfg.TTN.Broker, cfg.Threema.Enable, cfg.Influx.Enable, cfg.Mailbox.ThresholdMm)

	metrics := dispatch.NewMetrics(prometheus.DefaultRegisterer)
	log.SetErrorFunc(metrics.LoggedError)

	notifier, recipients, err := newNotifier(cfg, log)
	if err != nil {
		return subcmd.Exit(subcmd.ExitNotifier, errors.Annotate(err, "notifier init"))
	}
	sink, closeSink, err := newSink(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	tr, err := transport.New(transport.Options{
		Broker:            cfg.TTN.Broker,
		AppID:             cfg.TTN.AppID,
		AccessKey:         cfg.TTN.AccessKey,
		KeepaliveSec:      cfg.TTN.KeepaliveSec,
		NetworkTimeoutSec: cfg.TTN.NetworkTimeoutSec,
		QueueDepth:        cfg.TTN.QueueDepth,
		LogDebug:          cfg.TTN.LogDebug,
		Log:               log,
	})
	if err != nil {
		return subcmd.Exit(subcmd.ExitConfig, err)
	}
	connectCtx, cancel := context.WithTimeout(ctx, 3*helpers.IntSecondDefault(cfg.TTN.NetworkTimeoutSec, 30*time.Second))
	err = tr.Connect(connectCtx)
	cancel()
	if err != nil {
		return subcmd.Exit(subcmd.ExitTransport, err)
	}
	defer tr.Close()

	d := dispatch.New(dispatch.Options{
		State:         mailbox.NewState(uint16(cfg.Mailbox.ThresholdMm)),
		Notifier:      notifier,
		Recipients:    recipients,
		Sink:          sink,
		PortKeepalive: uint32(cfg.Mailbox.PortKeepalive),
		PortDistance:  uint32(cfg.Mailbox.PortDistance),
		Metrics:       metrics,
		Log:           log,
	})

	a := alive.NewAlive()
	if cfg.MetricsListen != "" {
		srv := &http.Server{Addr: cfg.MetricsListen, Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
		a.Add(1)
		go func() {
			defer a.Done()
			<-a.StopChan()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		go func() {
			log.Infof("metrics listen=%s", cfg.MetricsListen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics listen=%s err=%v", cfg.MetricsListen, err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Infof("signal=%v stopping", s)
		a.Stop()
	}()

	a.Add(1)
	go d.Run(ctx, a, tr.Messages())
	subcmd.SdNotify(daemon.SdNotifyReady)
	log.Infof("listening app=%s threshold=%dmm", cfg.TTN.AppID, cfg.Mailbox.ThresholdMm)

	a.Wait()
	subcmd.SdNotify(daemon.SdNotifyStopping)
	signal.Stop(sigCh)
	log.Infof("stopped")
	return nil
}

func newNotifier(cfg *config.Config, log *log2.Log) (notify.Notifier, []string, error) {
	if !cfg.Threema.Enable {
		log.Infof("threema disabled, transitions are only logged")
		return notify.Noop{}, nil, nil
	}
	th, err := notify.NewThreema(notify.ThreemaOptions{
		URL:    cfg.Threema.URL,
		From:   cfg.Threema.From,
		Secret: cfg.Threema.Secret,
		Client: &http.Client{Timeout: helpers.IntSecondDefault(cfg.Threema.TimeoutSec, notify.DefaultThreemaTimeout)},
		Log:    log,
	})
	if err != nil {
		return nil, nil, err
	}
	return th, cfg.Threema.To, nil
}

// newSink returns nil sink when influxdb is disabled.
func newSink(cfg *config.Config, log *log2.Log) (influx.Sink, func(), error) {
	noClose := func() {}
	if !cfg.Influx.Enable {
		return nil, noClose, nil
	}
	w, err := influx.NewWriter(influx.Options{
		URL:    cfg.Influx.URL,
		DB:     cfg.Influx.DB,
		User:   cfg.Influx.User,
		Pass:   cfg.Influx.Pass,
		Client: &http.Client{Timeout: helpers.IntSecondDefault(cfg.Influx.TimeoutSec, influx.DefaultTimeout)},
		Log:    log,
	})
	if err != nil {
		return nil, noClose, subcmd.Exit(subcmd.ExitConfig, err)
	}
	if cfg.Influx.QueuePath == "" {
		return w, noClose, nil
	}
	q, err := influx.OpenQueue(influx.QueueOptions{
		Path:    cfg.Influx.QueuePath,
		Writer:  w,
		Timeout: helpers.IntSecondDefault(cfg.Influx.TimeoutSec, influx.DefaultTimeout),
		Log:     log,
	})
	if err != nil {
		return nil, noClose, subcmd.Exit(subcmd.ExitTelemetry, err)
	}
	closeQueue := func() {
		if err := q.Close(); err != nil {
			log.Errorf("influx queue close err=%v", err)
		}
	}
	return q, closeQueue, nil
}
