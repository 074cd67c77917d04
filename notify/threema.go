package notify

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

const (
	DefaultThreemaURL     = "https://msgapi.threema.ch"
	DefaultThreemaTimeout = 30 * time.Second
	threemaMaxText        = 3500
)

type ThreemaOptions struct {
	URL    string
	From   string // gateway id, starts with '*'
	Secret string
	Client *http.Client
	Log    *log2.Log
}

// Threema Gateway client in basic mode, the gateway encrypts messages on our behalf.
type Threema struct {
	opt ThreemaOptions
	url string
}

func NewThreema(opt ThreemaOptions) (*Threema, error) {
	if opt.URL == "" {
		opt.URL = DefaultThreemaURL
	}
	u, err := url.ParseRequestURI(opt.URL)
	if err != nil {
		return nil, errors.Annotatef(err, "config error threema url=%s", opt.URL)
	}
	if len(opt.From) != 8 || opt.From[0] != '*' {
		return nil, errors.NotValidf("threema from=%s gateway id must be 8 characters starting with *", opt.From)
	}
	if opt.Secret == "" {
		return nil, errors.NotValidf("threema secret=empty")
	}
	if opt.Client == nil {
		opt.Client = &http.Client{Timeout: DefaultThreemaTimeout}
	}
	return &Threema{
		opt: opt,
		url: strings.TrimRight(u.String(), "/") + "/send_simple",
	}, nil
}

func (self *Threema) Send(ctx context.Context, to string, text string) error {
	if len(text) > threemaMaxText {
		return errors.NotValidf("threema text length=%d max=%d", len(text), threemaMaxText)
	}
	form := url.Values{
		"from":   {self.opt.From},
		"to":     {to},
		"secret": {self.opt.Secret},
		"text":   {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, self.url, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Annotate(err, "threema request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	req.Header.Set("Accept", "*/*")

	response, err := self.opt.Client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "threema send to=%s", to)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<10))
	if err != nil {
		return errors.Annotatef(err, "threema read response to=%s", to)
	}
	if response.StatusCode != http.StatusOK {
		return errors.Annotatef(threemaStatusError(response.StatusCode), "threema send to=%s", to)
	}
	self.opt.Log.Debugf("threema sent to=%s message_id=%s", to, strings.TrimSpace(string(body)))
	return nil
}

func threemaStatusError(code int) error {
	switch code {
	case http.StatusBadRequest:
		return errors.NotValidf("recipient identity or message")
	case http.StatusUnauthorized:
		return errors.Unauthorizedf("gateway credentials")
	case http.StatusPaymentRequired:
		return errors.Errorf("no credits remain")
	case http.StatusNotFound:
		return errors.NotFoundf("recipient identity")
	case http.StatusRequestEntityTooLarge:
		return errors.NotValidf("message too long")
	default:
		return fmt.Errorf("unexpected status=%d", code)
	}
}
