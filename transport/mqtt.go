// Package transport receives The Things Network uplinks over MQTT.
package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/smartmail/helpers"
	"github.com/temoto/smartmail/log2"
)

const (
	DefaultBroker         = "tcp://eu.thethings.network:1883"
	DefaultQueueDepth     = 16
	defaultNetworkTimeout = 30 * time.Second
	defaultKeepalive      = 60 * time.Second
)

type Options struct {
	Broker    string
	AppID     string
	AccessKey string
	// empty means smartmail-<app>-<pid>
	ClientID          string
	KeepaliveSec      int
	NetworkTimeoutSec int
	QueueDepth        int
	LogDebug          bool
	Log               *log2.Log
}

type Message struct {
	Topic   string
	Payload []byte
}

// subset of mqtt.Client used here
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token
}

// Transport delivers messages in broker order through a bounded channel.
// When the channel is full, the paho handler blocks and broker flow control applies.
type Transport struct {
	log            *log2.Log
	m              client
	mopt           *mqtt.ClientOptions
	inbox          chan Message
	networkTimeout time.Duration
	retryMin       time.Duration
	subscribed     uint32 // atomic
	generation     uint32 // atomic, counts reconnects
	stopOnce       sync.Once
	stopCh         chan struct{}
	topics         map[string]byte
}

func New(opt Options) (*Transport, error) {
	return newTransport(opt, func(o *mqtt.ClientOptions) client { return mqtt.NewClient(o) })
}

func newTransport(opt Options, newClient func(*mqtt.ClientOptions) client) (*Transport, error) {
	if opt.AppID == "" || opt.AccessKey == "" {
		return nil, errors.NotValidf("ttn app_id and access_key")
	}
	if opt.Broker == "" {
		opt.Broker = DefaultBroker
	}
	if opt.ClientID == "" {
		opt.ClientID = fmt.Sprintf("smartmail-%s-%d", opt.AppID, os.Getpid())
	}
	if opt.QueueDepth <= 0 {
		opt.QueueDepth = DefaultQueueDepth
	}

	mqttLog := opt.Log
	mqtt.CRITICAL = mqttLog.PrintLogger("critical")
	mqtt.ERROR = mqttLog.PrintLogger("error")
	mqtt.WARN = mqttLog.PrintLogger("warn")
	if opt.LogDebug {
		mqtt.DEBUG = mqttLog.PrintLogger("debug")
	}

	networkTimeout := helpers.IntSecondDefault(opt.NetworkTimeoutSec, defaultNetworkTimeout)
	if networkTimeout < 1*time.Second {
		networkTimeout = 1 * time.Second
	}
	connectTimeout := networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(opt.KeepaliveSec, defaultKeepalive)

	self := &Transport{
		log:            opt.Log,
		inbox:          make(chan Message, opt.QueueDepth),
		networkTimeout: networkTimeout,
		retryMin:       1 * time.Second,
		stopCh:         make(chan struct{}),
		topics: map[string]byte{
			opt.AppID + "/devices/+/up":          0,
			opt.AppID + "/devices/+/activations": 0,
		},
	}
	credFun := func() (string, string) {
		return opt.AppID, opt.AccessKey
	}
	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("unexpected mqtt message topic=%s", msg.Topic())
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(opt.Broker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(opt.ClientID).
		SetConnectTimeout(connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(keepaliveTimeout).
		SetMaxReconnectInterval(connectTimeout).
		SetOnConnectHandler(self.onConnect).
		SetConnectionLostHandler(self.onConnectionLost).
		SetOrderMatters(true).
		SetPingTimeout(networkTimeout).
		SetWriteTimeout(networkTimeout)
	self.m = newClient(self.mopt)
	return self, nil
}

// Messages channel is never closed.
func (self *Transport) Messages() <-chan Message { return self.inbox }

// Connect returns error when first connection or subscription failed.
// After success, reconnects and resubscribes are automatic.
func (self *Transport) Connect(ctx context.Context) error {
	if err := self.tokenWait(ctx, self.m.Connect(), "connect"); err != nil {
		return err
	}
	if err := self.subscribe(ctx); err != nil {
		self.m.Disconnect(0)
		return err
	}
	atomic.StoreUint32(&self.subscribed, 1)
	self.log.Infof("transport subscribed topics=%v", self.topics)
	return nil
}

func (self *Transport) Close() {
	self.stopOnce.Do(func() {
		close(self.stopCh)
		self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
	})
}

func (self *Transport) subscribe(ctx context.Context) error {
	t := self.m.SubscribeMultiple(self.topics, self.onMessage)
	return self.tokenWait(ctx, t, "subscribe")
}

// First connection subscribes in Connect.
// On reconnect, paho calls this in separate goroutine; subscribe is retried
// until success, Close or next reconnect.
func (self *Transport) onConnect(mqtt.Client) {
	if atomic.LoadUint32(&self.subscribed) == 0 {
		return
	}
	gen := atomic.AddUint32(&self.generation, 1)
	self.log.Infof("transport reconnected")
	backoff := helpers.Backoff{Min: self.retryMin, Max: self.networkTimeout, K: 2}
	for {
		ctx, cancel := context.WithTimeout(context.Background(), self.networkTimeout)
		err := self.subscribe(ctx)
		cancel()
		if err == nil {
			self.log.Infof("transport resubscribed topics=%v", self.topics)
			return
		}
		select {
		case <-time.After(backoff.DelayAfter(false)):
		case <-self.stopCh:
			return
		}
		if atomic.LoadUint32(&self.generation) != gen {
			return
		}
	}
}

func (self *Transport) onConnectionLost(_ mqtt.Client, err error) {
	self.log.Errorf("transport connection lost err=%v", err)
}

func (self *Transport) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m := Message{Topic: msg.Topic(), Payload: msg.Payload()}
	select {
	case self.inbox <- m:
		msg.Ack()
	case <-self.stopCh:
		self.log.Debugf("transport stopping, drop topic=%s", m.Topic)
	}
}

func (self *Transport) tokenWait(ctx context.Context, t mqtt.Token, tag string) error {
	select {
	case <-t.Done():
	case <-ctx.Done():
		err := errors.Annotatef(ctx.Err(), "mqtt %s", tag)
		self.log.Errorf("transport %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotatef(err, "mqtt %s", tag)
		self.log.Errorf("transport %s", err.Error())
		return err
	}
	return nil
}
