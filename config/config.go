// Package config reads HCL configuration with includes and environment overrides.
package config

import (
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/smartmail/helpers"
	"github.com/temoto/smartmail/log2"
)

const (
	DefaultBroker         = "tcp://eu.thethings.network:1883"
	DefaultKeepaliveSec   = 60
	DefaultNetworkTimeout = 30
	DefaultQueueDepth     = 16
	DefaultThresholdMm    = 300
	DefaultPortKeepalive  = 101
	DefaultPortDistance   = 102
	DefaultThreemaURL     = "https://msgapi.threema.ch"
	DefaultPath           = "smartmail.hcl"
)

type Config struct {
	// includeSeen contains normalized paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	LogDebug      bool   `hcl:"log_debug"`
	MetricsListen string `hcl:"metrics_listen"`

	TTN struct {
		AppID             string `hcl:"app_id"`
		AccessKey         string `hcl:"access_key"`
		Broker            string `hcl:"broker"`
		KeepaliveSec      int    `hcl:"keepalive_sec"`
		NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
		QueueDepth        int    `hcl:"queue_depth"`
		LogDebug          bool   `hcl:"log_debug"`
	} `hcl:"ttn"`

	Threema struct {
		Enable     bool     `hcl:"enable"`
		From       string   `hcl:"from"`
		To         []string `hcl:"to"`
		Secret     string   `hcl:"secret"`
		URL        string   `hcl:"url"`
		TimeoutSec int      `hcl:"timeout_sec"`
	} `hcl:"threema"`

	Influx struct {
		Enable     bool   `hcl:"enable"`
		URL        string `hcl:"url"`
		DB         string `hcl:"db"`
		User       string `hcl:"user"`
		Pass       string `hcl:"pass"`
		TimeoutSec int    `hcl:"timeout_sec"`
		// empty means synchronous writes without queue
		QueuePath string `hcl:"queue_path"`
	} `hcl:"influxdb"`

	Mailbox struct {
		ThresholdMm   int `hcl:"threshold_mm"`
		PortKeepalive int `hcl:"port_keepalive"`
		PortDistance  int `hcl:"port_distance"`
	} `hcl:"mailbox"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			*errs = append(*errs, errors.NotFoundf("config required name=%s path=%s", source.Name, norm))
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	if err = hcl.Unmarshal(bs, c); err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config unmarshal source=%s", source.Name))
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		if _, ok := c.includeSeen[fs.Normalize(include.Name)]; ok {
			*errs = append(*errs, errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name))
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Load reads sources in order, later values override earlier,
// then applies environment, defaults and validation.
func Load(log *log2.Log, fs FullReader, env Env, sources ...Source) (*Config, error) {
	if osfs, ok := fs.(*OsFullReader); ok && len(sources) > 0 {
		dir, name := filepath.Split(sources[0].Name)
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		sources[0].Name = name
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, source := range sources {
		c.read(log, fs, source, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return nil, err
	}
	if env != nil {
		c.applyEnv(env)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(env Env) {
	set := func(key string, dst *string) bool {
		if v, ok := env(key); ok && v != "" {
			*dst = v
			return true
		}
		return false
	}
	set("TTN_APP_ID", &c.TTN.AppID)
	set("TTN_ACCESS_KEY", &c.TTN.AccessKey)

	from := set("THREEMA_FROM", &c.Threema.From)
	secret := set("THREEMA_SECRET", &c.Threema.Secret)
	var to string
	if set("THREEMA_TO", &to) {
		c.Threema.To = splitList(to)
		if from && secret {
			c.Threema.Enable = true
		}
	}

	user := set("INFLUXDB_USER", &c.Influx.User)
	pass := set("INFLUXDB_PASS", &c.Influx.Pass)
	db := set("INFLUXDB_DB", &c.Influx.DB)
	url := set("INFLUXDB_URL", &c.Influx.URL)
	if user && pass && db && url {
		c.Influx.Enable = true
	}
}

func (c *Config) setDefaults() {
	if c.TTN.Broker == "" {
		c.TTN.Broker = DefaultBroker
	}
	if c.TTN.KeepaliveSec == 0 {
		c.TTN.KeepaliveSec = DefaultKeepaliveSec
	}
	if c.TTN.NetworkTimeoutSec == 0 {
		c.TTN.NetworkTimeoutSec = DefaultNetworkTimeout
	}
	if c.TTN.QueueDepth == 0 {
		c.TTN.QueueDepth = DefaultQueueDepth
	}
	if c.Threema.URL == "" {
		c.Threema.URL = DefaultThreemaURL
	}
	if c.Mailbox.ThresholdMm == 0 {
		c.Mailbox.ThresholdMm = DefaultThresholdMm
	}
	if c.Mailbox.PortKeepalive == 0 {
		c.Mailbox.PortKeepalive = DefaultPortKeepalive
	}
	if c.Mailbox.PortDistance == 0 {
		c.Mailbox.PortDistance = DefaultPortDistance
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.TTN.AppID == "" {
		errs = append(errs, errors.NotValidf("ttn.app_id (env TTN_APP_ID) empty"))
	}
	if c.TTN.AccessKey == "" {
		errs = append(errs, errors.NotValidf("ttn.access_key (env TTN_ACCESS_KEY) empty"))
	}
	if c.TTN.QueueDepth < 0 {
		errs = append(errs, errors.NotValidf("ttn.queue_depth=%d", c.TTN.QueueDepth))
	}
	if c.Threema.Enable {
		if c.Threema.From == "" {
			errs = append(errs, errors.NotValidf("threema.from (env THREEMA_FROM) empty"))
		}
		if c.Threema.Secret == "" {
			errs = append(errs, errors.NotValidf("threema.secret (env THREEMA_SECRET) empty"))
		}
		if len(c.Threema.To) == 0 {
			errs = append(errs, errors.NotValidf("threema.to (env THREEMA_TO) empty"))
		}
	}
	if c.Influx.Enable {
		if c.Influx.URL == "" {
			errs = append(errs, errors.NotValidf("influxdb.url (env INFLUXDB_URL) empty"))
		}
		if c.Influx.DB == "" {
			errs = append(errs, errors.NotValidf("influxdb.db (env INFLUXDB_DB) empty"))
		}
	}
	if c.Mailbox.ThresholdMm < 1 || c.Mailbox.ThresholdMm > 65535 {
		errs = append(errs, errors.NotValidf("mailbox.threshold_mm=%d expected 1..65535", c.Mailbox.ThresholdMm))
	}
	for _, p := range []struct {
		name  string
		value int
	}{{"port_keepalive", c.Mailbox.PortKeepalive}, {"port_distance", c.Mailbox.PortDistance}} {
		if p.value < 1 || p.value > 255 {
			errs = append(errs, errors.NotValidf("mailbox.%s=%d expected 1..255", p.name, p.value))
		}
	}
	if c.Mailbox.PortKeepalive == c.Mailbox.PortDistance {
		errs = append(errs, errors.NotValidf("mailbox port_keepalive=port_distance=%d", c.Mailbox.PortDistance))
	}
	return helpers.FoldErrors(errs)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
