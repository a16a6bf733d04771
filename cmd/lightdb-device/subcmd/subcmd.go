// Support sub-commands in lightdb-device application.
// It's simple but fine so far.
package subcmd

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/devtele/lightdb/internal/config"
	"github.com/devtele/lightdb/internal/device"
	"github.com/devtele/lightdb/lightdb"
	lightdbnet "github.com/devtele/lightdb/lightdb/net"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const SdNotifyReady = daemon.SdNotifyReady

// MockScheme selects in-memory store instead of network, for demo without server.
const MockScheme = "mock:"

type Mod struct {
	Name  string
	Usage string
	Main  func(context.Context, *config.Config) error
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

func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

// NewSession prepares LightDB session from config, connection is lazy.
// Logger is taken from context.
func NewSession(ctx context.Context, c *config.Config) (*device.Session, error) {
	log := log2.ContextValueLogger(ctx)
	opt, err := lightdb.OptionsFromConfig(&c.LightDB, log)
	if err != nil {
		return nil, err
	}

	var dial device.DialFunc
	if strings.HasPrefix(c.LightDB.URL(), MockScheme) {
		log.Infof("lightdb using in-memory store")
		dial = func(context.Context) (lightdb.Channel, error) {
			return lightdb.NewMockStore(log.Clone(log2.LError)), nil
		}
	} else {
		if err := c.LightDB.Validate(); err != nil {
			return nil, errors.Annotate(err, "lightdb config")
		}
		dial = func(ctx context.Context) (lightdb.Channel, error) {
			conn, err := lightdbnet.DialConfig(ctx, &c.LightDB, log)
			if err != nil {
				return nil, err
			}
			log.Infof("lightdb connected %s", conn.String())
			return conn, nil
		}
	}

	s := device.NewSession(dial, opt, device.RetryOptions{
		Min:      c.RetryMin(),
		Max:      c.RetryMax(),
		Attempts: c.RetryAttempts(),
	})
	return s, nil
}

// ServeMetrics exposes stat at /metrics (prometheus) and /debug/vars (expvar) until ctx is done.
// Empty listen is no-op.
func ServeMetrics(ctx context.Context, listen string, stat *lightdb.Stat) error {
	if listen == "" {
		return nil
	}
	log := log2.ContextValueLogger(ctx)

	reg := prometheus.NewRegistry()
	if err := reg.Register(lightdb.NewCollector("device", stat)); err != nil {
		return errors.Annotate(err, "metrics register")
	}
	reg.MustRegister(collectors.NewGoCollector())
	expvar.Publish("lightdb", stat)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      promLogger{log},
		ErrorHandling: promhttp.ContinueOnError,
		Timeout:       10 * time.Second,
	}))
	mux.Handle("/debug/vars", expvar.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()
	go func() {
		log.Infof("metrics listen=%s", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics serve err=%v", err)
		}
	}()
	return nil
}

type promLogger struct{ log *log2.Log }

func (l promLogger) Println(v ...interface{}) { l.log.Error(v...) }
