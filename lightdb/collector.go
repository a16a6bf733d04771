package lightdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "lightdb"

type collector struct {
	stat *Stat

	sent, sentBytes *prometheus.Desc
	recv, recvBytes *prometheus.Desc
	responses       *prometheus.Desc
	timeouts        *prometheus.Desc
}

// NewCollector exports Stat counters to Prometheus.
func NewCollector(namespace string, stat *Stat) prometheus.Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, metricsSubsystem, name), help, labels, nil)
	}
	return &collector{
		stat:      stat,
		sent:      desc("sent_datagrams_total", "Datagrams sent to store."),
		sentBytes: desc("sent_bytes_total", "Bytes sent to store."),
		recv:      desc("received_datagrams_total", "Datagrams received from store."),
		recvBytes: desc("received_bytes_total", "Bytes received from store."),
		responses: desc("responses_total", "Received datagrams by correlation result.", "result"),
		timeouts:  desc("read_timeouts_total", "Reads failed without matching response."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sent
	ch <- c.sentBytes
	ch <- c.recv
	ch <- c.recvBytes
	ch <- c.responses
	ch <- c.timeouts
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	s := c.stat
	counter(c.sent, s.Send.Count.Value())
	counter(c.sentBytes, s.Send.Size.Value())
	counter(c.recv, s.Recv.Count.Value())
	counter(c.recvBytes, s.Recv.Size.Value())
	counter(c.responses, s.Matched.Value(), "matched")
	counter(c.responses, s.Unmatched.Value(), "unmatched")
	counter(c.responses, s.Malformed.Value(), "malformed")
	counter(c.timeouts, s.Timeouts.Value())
}
