package device

import (
	"context"
	"time"

	"github.com/devtele/lightdb/helpers"
	"github.com/devtele/lightdb/lightdb"
	"github.com/juju/errors"
)

// Led is digital twin record: reported and desired state of blue LED.
type Led struct {
	Blue    bool `json:"blue"`
	Desired bool `json:"desired"`
}

type TwinOptions struct {
	Path     string
	Count    int
	Interval time.Duration
	// Settle is pause between initial write and read back.
	Settle time.Duration
	// OnChange drives hardware, e.g. GPIO.
	OnChange func(blue bool)
}

// RunTwin publishes LED state, then polls Path/desired Count times
// and applies every change, toggling desired for demonstration.
func RunTwin(ctx context.Context, s *Session, opt TwinOptions) (Led, error) {
	led := Led{Blue: false, Desired: true}
	write := func() error {
		return s.Do(ctx, "twin write", func(ctx context.Context, c *lightdb.Client) error {
			return c.Write(ctx, lightdb.State, opt.Path, led)
		})
	}

	s.log.Infof("twin writing state path=%s led=%+v", opt.Path, led)
	if err := write(); err != nil {
		return led, err
	}
	if err := helpers.SleepContext(ctx, opt.Settle); err != nil {
		return led, errors.Annotate(err, "twin")
	}
	var cloud Led
	err := s.Do(ctx, "twin read", func(ctx context.Context, c *lightdb.Client) error {
		return c.Read(ctx, lightdb.State, opt.Path, &cloud)
	})
	if err != nil {
		return led, err
	}
	s.log.Infof("twin state read: %+v", cloud)

	for i := 0; i < opt.Count; i++ {
		var desired bool
		err := s.Do(ctx, "twin read desired", func(ctx context.Context, c *lightdb.Client) error {
			return c.Read(ctx, lightdb.State, opt.Path+"/desired", &desired)
		})
		if err != nil {
			return led, err
		}
		s.log.Infof("twin desired=%t blue=%t", desired, led.Blue)

		if desired != led.Blue {
			if opt.OnChange != nil {
				opt.OnChange(desired)
			}
			led.Blue = desired
			led.Desired = !desired
			if err := write(); err != nil {
				return led, err
			}
		}
		if err := helpers.SleepContext(ctx, opt.Interval); err != nil {
			return led, errors.Annotate(err, "twin")
		}
	}
	return led, nil
}
