package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/smartmail/helpers"
	"github.com/temoto/smartmail/log2"
)

func TestThreemaSend(t *testing.T) {
	t.Parallel()
	var got url.Values
	var gotURL string
	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		b, _ := io.ReadAll(req.Body)
		got, _ = url.ParseQuery(string(b))
		return helpers.MockResponse(req, "200 OK", "0a1b2c3d4e5f6071\n")
	}}
	th, err := NewThreema(ThreemaOptions{
		URL:    "https://gateway.local/",
		From:   "*SMARTML",
		Secret: "s3cret",
		Client: mock.Client(),
		Log:    log2.NewTest(t, log2.LDebug),
	})
	require.NoError(t, err)

	text := "\U0001F4EC Mailbox is full! Distance changed from 31.0cm to 25.0cm."
	require.NoError(t, th.Send(context.Background(), "ECHOECHO", text))
	assert.Equal(t, "https://gateway.local/send_simple", gotURL)
	assert.Equal(t, "*SMARTML", got.Get("from"))
	assert.Equal(t, "ECHOECHO", got.Get("to"))
	assert.Equal(t, "s3cret", got.Get("secret"))
	assert.Equal(t, text, got.Get("text"))
}

func TestThreemaStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status string
		check  func(error) bool
		expect string
	}{
		{"400 Bad Request", errors.IsNotValid, "recipient identity or message"},
		{"401 Unauthorized", errors.IsUnauthorized, "gateway credentials"},
		{"402 Payment Required", nil, "no credits remain"},
		{"404 Not Found", errors.IsNotFound, "recipient identity"},
		{"413 Request Entity Too Large", errors.IsNotValid, "message too long"},
		{"500 Internal Server Error", nil, "unexpected status=500"},
		{"204 No Content", nil, "unexpected status=204"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.status, func(t *testing.T) {
			t.Parallel()
			mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
				return helpers.MockResponse(req, c.status, "")
			}}
			th, err := NewThreema(ThreemaOptions{From: "*SMARTML", Secret: "x", Client: mock.Client()})
			require.NoError(t, err)
			err = th.Send(context.Background(), "ECHOECHO", "hello")
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.expect)
			assert.True(t, strings.HasPrefix(err.Error(), "threema send to=ECHOECHO: "), err.Error())
			if c.check != nil {
				assert.True(t, c.check(errors.Cause(err)), "cause=%v", errors.Cause(err))
			}
		})
	}
}

func TestThreemaNetworkError(t *testing.T) {
	t.Parallel()
	mock := &helpers.MockHTTP{Err: fmt.Errorf("no route to host")}
	th, err := NewThreema(ThreemaOptions{From: "*SMARTML", Secret: "x", Client: mock.Client()})
	require.NoError(t, err)
	err = th.Send(context.Background(), "ECHOECHO", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route to host")
}

func TestThreemaTooLong(t *testing.T) {
	t.Parallel()
	mock := &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		t.Error("request must not be sent")
		return nil, fmt.Errorf("unreachable")
	}}
	th, err := NewThreema(ThreemaOptions{From: "*SMARTML", Secret: "x", Client: mock.Client()})
	require.NoError(t, err)
	err = th.Send(context.Background(), "ECHOECHO", strings.Repeat("a", threemaMaxText+1))
	assert.True(t, errors.IsNotValid(err), "err=%v", err)
}

func TestNewThreemaInvalid(t *testing.T) {
	t.Parallel()
	cases := []ThreemaOptions{
		{From: "SMARTML1", Secret: "x"},
		{From: "*SHORT", Secret: "x"},
		{From: "*SMARTML", Secret: ""},
		{URL: "::bad", From: "*SMARTML", Secret: "x"},
	}
	for _, opt := range cases {
		_, err := NewThreema(opt)
		assert.Error(t, err, "opt=%#v", opt)
	}
}

func TestNoop(t *testing.T) {
	t.Parallel()
	var n Notifier = Noop{}
	assert.NoError(t, n.Send(context.Background(), "ECHOECHO", "hello"))
}
