package device

import (
	"context"
	"time"

	"github.com/devtele/lightdb/helpers"
	"github.com/devtele/lightdb/helpers/cacheval"
	"github.com/devtele/lightdb/lightdb"
	"github.com/juju/errors"
)

// TempSensor is temperature in F, battery level in mV.
type TempSensor struct {
	Temp float32 `json:"temp"`
	Meta Meta    `json:"meta"`
}

type Meta struct {
	Battery uint32 `json:"battery"`
	Signal  int32  `json:"signal"`
}

type SensorOptions struct {
	Path        string
	Count       int
	Interval    time.Duration
	Temp        float32
	Battery     uint32
	BatteryStep uint32
	// Signal reads modem signal strength, result is cached for Interval.
	Signal func() (int32, error)
}

// RunSensor writes initial measurement to State, then Count records to Stream.
func RunSensor(ctx context.Context, s *Session, opt SensorOptions) (TempSensor, error) {
	if opt.Signal == nil {
		opt.Signal = SimulatedSignal()
	}
	var signal cacheval.Int32
	signal.Init(opt.Interval)

	sensor := TempSensor{Temp: opt.Temp, Meta: Meta{Battery: opt.Battery}}
	write := func(kind lightdb.StoreKind) error {
		return s.Do(ctx, "sensor write "+kind.String(), func(ctx context.Context, c *lightdb.Client) error {
			return c.Write(ctx, kind, opt.Path, sensor)
		})
	}

	s.log.Infof("sensor writing state path=%s", opt.Path)
	if err := write(lightdb.State); err != nil {
		return sensor, err
	}
	for i := 0; i < opt.Count; i++ {
		s.log.Infof("sensor writing stream path=%s record=%+v", opt.Path, sensor)
		if err := write(lightdb.Stream); err != nil {
			return sensor, err
		}
		if sensor.Meta.Battery >= opt.BatteryStep {
			sensor.Meta.Battery -= opt.BatteryStep
		}
		sig, err := signal.GetOrUpdate(opt.Signal)
		if err != nil {
			s.log.Errorf("sensor signal err=%v", err)
		}
		sensor.Meta.Signal = sig
		if err := helpers.SleepContext(ctx, opt.Interval); err != nil {
			return sensor, errors.Annotate(err, "sensor")
		}
	}
	return sensor, nil
}

// SimulatedSignal returns RSSI-like values in [-95,-60] dBm.
func SimulatedSignal() func() (int32, error) {
	rnd := helpers.RandUnix()
	return func() (int32, error) { return -60 - rnd.Int31n(36), nil }
}
