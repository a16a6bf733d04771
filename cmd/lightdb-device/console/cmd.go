// Interactive LightDB console, reads commands from terminal or stdin.
package console

import (
	"context"
	"encoding/json"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/devtele/lightdb/cmd/lightdb-device/subcmd"
	"github.com/devtele/lightdb/helpers/cli"
	"github.com/devtele/lightdb/internal/config"
	"github.com/devtele/lightdb/internal/device"
	"github.com/devtele/lightdb/lightdb"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

const usage = `syntax: one command per line
(main)
- get KIND PATH   read value, KIND is state or stream
- set PATH JSON   write JSON value to State
- push PATH JSON  write JSON value to Stream
- stat            show counters

(meta)
- log=yes  enable debug logging
- log=no   disable debug logging
`

var Mod = subcmd.Mod{Name: "console", Usage: "interactive get/set", Main: Main}

type Func func(ctx context.Context, s *device.Session) error

func Main(ctx context.Context, config *config.Config) error {
	s, err := subcmd.NewSession(ctx, config)
	if err != nil {
		return errors.Annotate(err, "console")
	}
	defer s.Close()
	if err := subcmd.ServeMetrics(ctx, config.MetricsListen, s.Stat()); err != nil {
		return errors.Annotate(err, "console")
	}

	cli.MainLoop("lightdb", newExecutor(ctx, s), newCompleter())
	return nil
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: "get", Description: "get state|stream PATH"},
		{Text: "set", Description: "set PATH JSON"},
		{Text: "push", Description: "push PATH JSON"},
		{Text: "stat", Description: "show counters"},
		{Text: "log=yes", Description: "enable debug logging"},
		{Text: "log=no", Description: "disable debug logging"},
		{Text: "help"},
	}

	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context, s *device.Session) func(string) {
	log := log2.ContextValueLogger(ctx)
	return func(line string) {
		f, err := parseLine(line)
		if err != nil {
			log.Error(err)
			return
		}
		if f == nil {
			return
		}
		if err = f(ctx, s); err != nil {
			log.Error(errors.ErrorStack(err))
		}
	}
}

// parseLine returns nil Func for empty line.
func parseLine(line string) (Func, error) {
	cmd, rest := cutWord(line)
	switch cmd {
	case "":
		return nil, nil
	case "help":
		return doUsage, nil
	case "stat":
		return doStat, nil
	case "log=yes":
		return doLogLevel(log2.LDebug), nil
	case "log=no":
		return doLogLevel(log2.LInfo), nil

	case "get":
		kindStr, rest := cutWord(rest)
		path, rest := cutWord(rest)
		if path == "" || rest != "" {
			return nil, errors.Errorf("usage: get KIND PATH")
		}
		kind, err := lightdb.ParseStoreKind(kindStr)
		if err != nil {
			return nil, err
		}
		return newGet(kind, path), nil

	case "set", "push":
		kind := lightdb.State
		if cmd == "push" {
			kind = lightdb.Stream
		}
		path, rest := cutWord(rest)
		if path == "" || rest == "" {
			return nil, errors.Errorf("usage: %s PATH JSON", cmd)
		}
		var value interface{}
		if err := json.Unmarshal([]byte(rest), &value); err != nil {
			return nil, errors.Annotatef(err, "%s value", cmd)
		}
		return newWrite(kind, path, value), nil
	}
	return nil, errors.Errorf("invalid command: '%s'", cmd)
}

func doUsage(ctx context.Context, s *device.Session) error {
	log2.ContextValueLogger(ctx).Info(usage)
	return nil
}

func doStat(ctx context.Context, s *device.Session) error {
	log2.ContextValueLogger(ctx).Infof("stat=%s dials=%d", s.Stat().String(), s.Dials())
	return nil
}

func doLogLevel(level log2.Level) Func {
	return func(ctx context.Context, s *device.Session) error {
		log2.ContextValueLogger(ctx).SetLevel(level)
		return nil
	}
}

func newGet(kind lightdb.StoreKind, path string) Func {
	return func(ctx context.Context, s *device.Session) error {
		var value interface{}
		err := s.Do(ctx, "get", func(ctx context.Context, c *lightdb.Client) error {
			return c.Read(ctx, kind, path, &value)
		})
		if err != nil {
			return err
		}
		b, err := json.Marshal(value)
		if err != nil {
			return errors.Annotate(err, "get display")
		}
		log2.ContextValueLogger(ctx).Infof("< %s", b)
		return nil
	}
}

func newWrite(kind lightdb.StoreKind, path string, value interface{}) Func {
	return func(ctx context.Context, s *device.Session) error {
		return s.Do(ctx, "write "+kind.String(), func(ctx context.Context, c *lightdb.Client) error {
			return c.Write(ctx, kind, path, value)
		})
	}
}

func cutWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}
