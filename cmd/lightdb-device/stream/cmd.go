// Simulated temperature sensor: state once, then stream records.
package stream

import (
	"context"

	"github.com/devtele/lightdb/cmd/lightdb-device/subcmd"
	"github.com/devtele/lightdb/internal/config"
	"github.com/devtele/lightdb/internal/device"
	"github.com/devtele/lightdb/log2"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "stream", Usage: "write sensor records to LightDB Stream", Main: Main}

func Main(ctx context.Context, config *config.Config) error {
	log := log2.ContextValueLogger(ctx)
	s, err := subcmd.NewSession(ctx, config)
	if err != nil {
		return errors.Annotate(err, "stream")
	}
	defer s.Close()
	if err := subcmd.ServeMetrics(ctx, config.MetricsListen, s.Stat()); err != nil {
		return errors.Annotate(err, "stream")
	}
	subcmd.SdNotify(subcmd.SdNotifyReady)

	last, err := device.RunSensor(ctx, s, device.SensorOptions{
		Path:        config.StreamPath(),
		Count:       config.StreamCount(),
		Interval:    config.StreamInterval(),
		Temp:        config.StreamTemp(),
		Battery:     config.StreamBattery(),
		BatteryStep: config.StreamBatteryStep(),
	})
	log.Infof("stream done last=%+v stat=%s", last, s.Stat().String())
	return err
}
