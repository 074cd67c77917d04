package influx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/smartmail/log2"
)

const DefaultTimeout = 10 * time.Second

type Options struct {
	URL    string
	DB     string
	User   string
	Pass   string
	Client *http.Client
	Log    *log2.Log
}

// Writer sends each observation with one synchronous HTTP request.
type Writer struct {
	opt      Options
	writeURL string
}

func NewWriter(opt Options) (*Writer, error) {
	u, err := url.ParseRequestURI(opt.URL)
	if err != nil {
		return nil, errors.Annotatef(err, "config error influxdb url=%s", opt.URL)
	}
	if opt.DB == "" {
		return nil, errors.NotValidf("influxdb db=empty")
	}
	if opt.Client == nil {
		opt.Client = &http.Client{Timeout: DefaultTimeout}
	}
	q := url.Values{"db": {opt.DB}}
	w := &Writer{
		opt:      opt,
		writeURL: strings.TrimRight(u.String(), "/") + "/write?" + q.Encode(),
	}
	return w, nil
}

func (self *Writer) Write(ctx context.Context, name string, tags string, value float64) error {
	p := Point{Name: name, Tags: tags, Value: value}
	return self.WritePoint(ctx, &p)
}

// WritePoint succeeds only on HTTP 204 No Content.
func (self *Writer) WritePoint(ctx context.Context, p *Point) error {
	self.opt.Log.Debugf("influx write %s", p.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, self.writeURL, strings.NewReader(p.Line()))
	if err != nil {
		return errors.Annotate(err, "influx request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if self.opt.User != "" || self.opt.Pass != "" {
		req.SetBasicAuth(self.opt.User, self.opt.Pass)
	}

	response, err := self.opt.Client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "influx write %s", p.Name)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return errors.Annotatef(
			fmt.Errorf("unexpected status=%d body=%s", response.StatusCode, strings.TrimSpace(string(body))),
			"influx write %s", p.Name)
	}
	_, _ = io.Copy(io.Discard, response.Body)
	self.opt.Log.Debugf("influx sent %s db=%s", p.Name, self.opt.DB)
	return nil
}
