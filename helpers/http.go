package helpers

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
)

// MockHTTP is http.RoundTripper for testing HTTP collaborators.
// Fun has priority, then Err, then canned Header+Body response.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Header []byte
	Body   []byte
	Err    error
}

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	header := m.Header
	if header == nil {
		header = []byte("HTTP/1.0 200 OK\r\n\r\n")
	}
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}

func (m *MockHTTP) Client() *http.Client { return &http.Client{Transport: m} }

// MockResponse builds raw response for status code with empty headers.
func MockResponse(req *http.Request, status string, body string) (*http.Response, error) {
	raw := "HTTP/1.1 " + status + "\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	return http.ReadResponse(bufio.NewReader(bytes.NewReader([]byte(raw))), req)
}
