// Digital twin: report LED state, poll desired state and apply it.
package twin

import (
	"context"
	"time"

	"github.com/devtele/lightdb/cmd/lightdb-device/subcmd"
	"github.com/devtele/lightdb/internal/config"
	"github.com/devtele/lightdb/internal/device"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "twin", Usage: "poll desired LED state from LightDB State", Main: Main}

func Main(ctx context.Context, config *config.Config) error {
	log := log2.ContextValueLogger(ctx)
	s, err := subcmd.NewSession(ctx, config)
	if err != nil {
		return errors.Annotate(err, "twin")
	}
	defer s.Close()
	if err := subcmd.ServeMetrics(ctx, config.MetricsListen, s.Stat()); err != nil {
		return errors.Annotate(err, "twin")
	}
	subcmd.SdNotify(subcmd.SdNotifyReady)

	led, err := device.RunTwin(ctx, s, device.TwinOptions{
		Path:     config.TwinPath(),
		Count:    config.TwinCount(),
		Interval: config.TwinInterval(),
		Settle:   500 * time.Millisecond,
		OnChange: func(blue bool) { log.Infof("LED blue=%t", blue) },
	})
	log.Infof("twin done led=%+v stat=%s", led, s.Stat().String())
	return err
}
