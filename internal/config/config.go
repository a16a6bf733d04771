package config

import (
	"path/filepath"
	"time"

	"github.com/devtele/lightdb/helpers"
	lightdb_config "github.com/devtele/lightdb/lightdb/config"
	"github.com/devtele/lightdb/log2"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	LightDB       lightdb_config.Config `hcl:"lightdb"`
	LogDebug      bool                  `hcl:"log_debug"`
	MetricsListen string                `hcl:"metrics_listen"`

	Retry struct {
		MinMs    int `hcl:"min_ms"`
		MaxMs    int `hcl:"max_ms"`
		Attempts int `hcl:"attempts"`
	} `hcl:"retry"`

	// simulated sensor, writes stream records
	Stream struct {
		Path         string  `hcl:"path"`
		Count        int     `hcl:"count"`
		IntervalMs   int     `hcl:"interval_ms"`
		Temp         float64 `hcl:"temp"`
		BatteryStart int     `hcl:"battery_start"`
		BatteryStep  int     `hcl:"battery_step"`
	} `hcl:"stream"`

	// digital twin, polls desired state
	Twin struct {
		Path        string `hcl:"path"`
		Count       int    `hcl:"count"`
		IntervalSec int    `hcl:"interval_sec"`
	} `hcl:"twin"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) RetryMin() time.Duration {
	return helpers.IntMillisecondDefault(c.Retry.MinMs, 500*time.Millisecond)
}
func (c *Config) RetryMax() time.Duration {
	return helpers.IntMillisecondDefault(c.Retry.MaxMs, 30*time.Second)
}
func (c *Config) RetryAttempts() int {
	if c.Retry.Attempts <= 0 {
		return 5
	}
	return c.Retry.Attempts
}

func (c *Config) StreamPath() string {
	if c.Stream.Path == "" {
		return "data"
	}
	return c.Stream.Path
}
func (c *Config) StreamCount() int {
	if c.Stream.Count <= 0 {
		return 3
	}
	return c.Stream.Count
}
func (c *Config) StreamInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Stream.IntervalMs, 500*time.Millisecond)
}

// StreamTemp is simulated temperature, F.
func (c *Config) StreamTemp() float32 {
	if c.Stream.Temp == 0 {
		return 67.5
	}
	return float32(c.Stream.Temp)
}

// StreamBattery is simulated battery at start, mV.
func (c *Config) StreamBattery() uint32 {
	if c.Stream.BatteryStart <= 0 {
		return 3300
	}
	return uint32(c.Stream.BatteryStart)
}
func (c *Config) StreamBatteryStep() uint32 {
	if c.Stream.BatteryStep <= 0 {
		return 15
	}
	return uint32(c.Stream.BatteryStep)
}

func (c *Config) TwinPath() string {
	if c.Twin.Path == "" {
		return "led"
	}
	return c.Twin.Path
}
func (c *Config) TwinCount() int {
	if c.Twin.Count <= 0 {
		return 3
	}
	return c.Twin.Count
}
func (c *Config) TwinInterval() time.Duration {
	return helpers.IntSecondDefault(c.Twin.IntervalSec, 15*time.Second)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
