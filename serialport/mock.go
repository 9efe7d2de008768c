package serialport

// Mock is an in-memory Port backed by byte queues, for deterministic tests
// of the frame codec and transaction engine without a real device.
type Mock struct {
	In       []byte // bytes available to Getc, consumed front-to-back
	Out      []byte // bytes accumulated by Putc
	WaitedUs int    // total microseconds requested via WaitUs

	FailGetc bool
	FailPutc bool
}

// NewMock creates a Mock preloaded with the given inbound bytes.
func NewMock(in []byte) *Mock {
	m := &Mock{In: make([]byte, len(in))}
	copy(m.In, in)
	return m
}

func (m *Mock) Readable() bool { return len(m.In) > 0 }

func (m *Mock) Getc() (byte, bool) {
	if m.FailGetc || len(m.In) == 0 {
		return 0, false
	}
	b := m.In[0]
	m.In = m.In[1:]
	return b, true
}

func (m *Mock) Putc(b byte) bool {
	if m.FailPutc {
		return false
	}
	m.Out = append(m.Out, b)
	return true
}

func (m *Mock) WaitUs(micros int) { m.WaitedUs += micros }

// Feed appends bytes to the inbound queue, for tests that stream a response
// in after the request has been written.
func (m *Mock) Feed(b []byte) { m.In = append(m.In, b...) }
