package lightdb

// Values are read and modified atomically, but not consistently.

import (
	"expvar"
	"fmt"
)

type Stat struct {
	Send      CountSizePair
	Recv      CountSizePair
	Matched   expvar.Int
	Unmatched expvar.Int
	Malformed expvar.Int
	Timeouts  expvar.Int
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"send":%s,"recv":%s,"matched":%d,"unmatched":%d,"malformed":%d,"timeouts":%d}`,
		s.Send.String(), s.Recv.String(),
		s.Matched.Value(), s.Unmatched.Value(), s.Malformed.Value(), s.Timeouts.Value())
}

type CountSizePair struct {
	Count expvar.Int
	Size  expvar.Int
}

func (csp *CountSizePair) Register(size int) {
	csp.Count.Add(1)
	csp.Size.Add(int64(size))
}

func (csp *CountSizePair) String() string {
	return fmt.Sprintf(`{"count":%d,"size":%d}`, csp.Count.Value(), csp.Size.Value())
}
