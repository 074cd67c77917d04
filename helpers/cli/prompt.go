package cli

import (
	"bufio"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// MainLoop runs exec for each input line: interactive prompt on terminal,
// otherwise line by line from stdin until EOF.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		<-signalCh
		os.Exit(1)
	}()

	if isatty.IsTerminal(os.Stdin.Fd()) {
		prompt.New(exec, complete,
			prompt.OptionPrefix(tag+"> "),
			prompt.OptionTitle("smartmail "+tag),
		).Run()
		return
	}
	if err := ReadLines(os.Stdin, exec); err != nil {
		os.Stderr.WriteString(tag + ": stdin: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// ReadLines calls exec with each trimmed non-empty line of r.
func ReadLines(r io.Reader, exec func(line string)) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		if line := strings.TrimSpace(s.Text()); line != "" {
			exec(line)
		}
	}
	return s.Err()
}
