// Support sub-commands in smartmail application.
package subcmd

import (
	"context"
	"fmt"
	"os"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/smartmail/config"
	"github.com/temoto/smartmail/log2"
)

// Process exit codes for start-up failures.
const (
	ExitConfig    = 1
	ExitNotifier  = 2
	ExitTransport = 3
	ExitTelemetry = 4
)

type Mod struct {
	Name  string
	Usage string
	Main  func(context.Context, *Runtime) error
}

// Runtime is what main prepares for every sub-command.
type Runtime struct {
	Log  *log2.Log
	Args []string
	// ConfigExplicit means -config was given and file must exist
	ConfigPath     string
	ConfigExplicit bool
}

func (self *Runtime) Config() (*config.Config, error) {
	source := config.Source{Name: self.ConfigPath, Optional: !self.ConfigExplicit}
	c, err := config.Load(self.Log, config.NewOsFullReader(), os.LookupEnv, source)
	if err != nil {
		return nil, Exit(ExitConfig, errors.Annotate(err, "config"))
	}
	return c, nil
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Cause() error  { return e.Err }

// Exit wraps err with process exit code, nil stays nil.
func Exit(code int, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ExitError); ok {
		return err
	}
	return &ExitError{Code: code, Err: err}
}

// ExitCode is 0 for nil, 1 for errors without explicit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := err.(*ExitError); ok {
		return e.Code
	}
	return 1
}

func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sdnotify:", errors.ErrorStack(err))
		return false
	}
	return ok
}
