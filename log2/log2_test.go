package log2

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog2(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fun  func(t testing.TB, l *Log) string
	}{
		{"caller/debug", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Debugf("packet raw=%x", []byte{1, 0x82})
			return formatCallerShort(1) + "debug: packet raw=0182\n"
		}},
		{"caller/info", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Infof("uplink port=%d", 102)
			return formatCallerShort(1) + "uplink port=102\n"
		}},
		{"caller/warning", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Warningf("incomplete data channel=%d", 1)
			return formatCallerShort(1) + "warning: incomplete data channel=1\n"
		}},
		{"caller/error", func(t testing.TB, l *Log) string {
			l.SetFlags(log.Lshortfile)
			l.Errorf("problem")
			return formatCallerShort(1) + "error: problem\n"
		}},
		{"error-func/error", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			exactError := fmt.Errorf("one particular issue")
			l.Error(exactError)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, exactError, e)
			}
			return "error: one particular issue\n"
		}},
		{"error-func/string", func(t testing.TB, l *Log) string {
			ech := make(chan error, 1)
			l.SetErrorFunc(func(e error) { ech <- e })
			l.SetFlags(0)
			l.Errorf("trouble var=%.1f", 3.4)
			close(ech)
			e := <-ech
			if l == nil {
				assert.Nil(t, e)
			} else {
				assert.Equal(t, "trouble var=3.4", e.Error())
			}
			return "error: trouble var=3.4\n"
		}},
		{"print-logger", func(t testing.TB, l *Log) string {
			l.SetFlags(0)
			pl := l.PrintLogger("warn")
			pl.Printf("reconnect in %ds", 3)
			pl.Println("connection", "lost")
			return "mqtt warn: reconnect in 3s\nmqtt warn: connectionlost\n"
		}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name+"/logger=nil", func(t *testing.T) {
			c.fun(t, nil)
		})
		t.Run(c.name, func(t *testing.T) {
			buf := bytes.NewBuffer(nil)
			l := NewWriter(buf, LAll)
			expect := c.fun(t, l)
			assert.Equal(t, expect, buf.String())
		})
	}
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()

	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, LWarning)
	l.SetFlags(0)
	l.Debugf("hidden")
	l.Infof("hidden")
	l.Warningf("shown")
	l.SetLevel(LDebug)
	l.Debugf("now shown")
	assert.Equal(t, "warning: shown\ndebug: now shown\n", buf.String())

	c := l.Clone(LError)
	require.NotNil(t, c)
	c.Warningf("hidden in clone")
	c.Errorf("clone error")
	assert.Equal(t, "warning: shown\ndebug: now shown\nerror: clone error\n", buf.String())
}

func TestDiscardIsNil(t *testing.T) {
	t.Parallel()
	l := NewWriter(io.Discard, LAll)
	assert.Nil(t, l)
	assert.False(t, l.Enabled(LError))
	l.Errorf("must not panic")
}

func BenchmarkLog2(b *testing.B) {
	call := func(f Func) { f("example log with arg1=%s and arg2=%d", "example-arg", 12345678) }
	const expect string = "example log with arg1=example-arg and arg2=12345678\n"

	prepareStd := func(w io.Writer) Func { return log.New(w, "", 0).Printf }
	prepareMe := func(w io.Writer) Func { l := NewWriter(w, LInfo); l.SetFlags(0); return l.Infof }
	prepareMeSkipLevel := func(w io.Writer) Func { l := NewWriter(w, LError); l.SetFlags(0); return l.Infof }

	type Case struct {
		name    string
		prepare func(w io.Writer) Func
	}
	cases := []Case{
		{"me-skiplevel", prepareMeSkipLevel},
		{"me", prepareMe},
		{"stdlib", prepareStd},
	}
	for _, c := range cases {
		buf := bytes.NewBuffer(nil)
		fun := c.prepare(buf)

		b.Run(c.name, func(b *testing.B) {
			b.ReportAllocs()

			result := benchCapture(call)
			require.Equal(b, expect, result)
			buf.Grow(len(result) * b.N)
			buf.Reset()

			b.SetBytes(int64(len(result)))
			b.ResetTimer()
			for i := 1; i <= b.N; i++ {
				call(fun)
			}
			b.StopTimer()

			if b.N == 1 && !strings.Contains(c.name, "skip") {
				assert.Equal(b, expect, buf.String())
			}
		})
	}
}

func benchCapture(call func(Func)) string {
	s := ""
	call(func(format string, args ...interface{}) {
		s = fmt.Sprintf(format+"\n", args...)
	})
	return s
}

func callerShort(depth int) (file string, line int) {
	var ok bool
	_, file, line, ok = runtime.Caller(depth)
	if !ok {
		file = "???"
		line = 0
	}

	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = short

	return
}

func formatCallerShort(depth int) string {
	file, line := callerShort(depth + 1)
	return fmt.Sprintf("%s:%d: ", file, line-1)
}
