package decode

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/temoto/smartmail/cmd/smartmail/subcmd"
	"github.com/temoto/smartmail/helpers/cli"
	"github.com/temoto/smartmail/lpp"
	"github.com/temoto/smartmail/log2"
)

const modName = "decode"

var Mod = subcmd.Mod{Name: modName, Usage: "print measurements from hex or b64: payload lines", Main: Main}

const b64Prefix = "b64:"

func Main(ctx context.Context, r *subcmd.Runtime) error {
	r.Log.SetLevel(log2.LDebug)
	exec := newExecutor(os.Stdout, r.Log)
	if len(r.Args) > 0 {
		for _, arg := range r.Args {
			exec(arg)
		}
		return nil
	}
	cli.MainLoop(modName, exec, newCompleter())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: b64Prefix, Description: "base64 payload_raw as seen in uplink json"},
	}
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(w io.Writer, log *log2.Log) func(string) {
	return func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		b, err := parsePayload(line)
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		d := lpp.NewDecoder(b, log)
		for _, m := range d.All() {
			fmt.Fprintln(w, m.String())
		}
		if err := d.Anomaly(); err != nil {
			fmt.Fprintf(w, "stopped: %v\n", err)
		}
	}
}

func parsePayload(line string) ([]byte, error) {
	if strings.HasPrefix(line, b64Prefix) {
		b, err := base64.StdEncoding.DecodeString(line[len(b64Prefix):])
		return b, errors.Annotate(err, "base64 decode")
	}
	line = strings.ReplaceAll(line, " ", "")
	// mosquitto_sub wrongly strips leading zero in hex format
	if len(line)%2 == 1 {
		line = "0" + line
	}
	b, err := hex.DecodeString(line)
	return b, errors.Annotate(err, "hex decode")
}
