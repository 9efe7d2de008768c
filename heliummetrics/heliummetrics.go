// Package heliummetrics exposes Prometheus counters for the frame,
// transaction, command, and channel layers. A local atomic-mirrored Snapshot
// lets a caller log or assert on counts without scraping Prometheus.
package heliummetrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/helium/carbon/heliumlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_frames_written_total",
		Help: "Total frames written to the Atom module.",
	})
	FramesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_frames_read_total",
		Help: "Total frames successfully decoded from the Atom module.",
	})
	ChecksumErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_checksum_errors_total",
		Help: "Total frames rejected for a checksum mismatch.",
	})
	FrameTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_frame_timeouts_total",
		Help: "Total frame reads that exhausted the inter-byte wait budget.",
	})
	SendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_send_retries_total",
		Help: "Total retry attempts taken by the send command.",
	})
	CommandsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helium_commands_total",
		Help: "Commands issued, by command name and resulting status.",
	}, []string{"command", "status"})
	ChannelsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_channels_created_total",
		Help: "Total successful channel create calls.",
	})
	ChannelSends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_channel_sends_total",
		Help: "Total channel send calls, regardless of outcome.",
	})
	PollRetriesExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helium_poll_retries_exhausted_total",
		Help: "Total poll loops that exhausted their retry budget with no frame.",
	})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants for ClassifyErr, bounding cardinality on the
// CommandsByStatus/Errors-style series.
const (
	ErrTimeout   = "timeout"
	ErrChecksum  = "checksum"
	ErrOverflow  = "overflow"
	ErrPortRead  = "port_read"
	ErrPortWrite = "port_write"
	ErrOther     = "other"
)

// ClassifyErr maps a frame-layer error to a stable metric label, or "" for
// a nil error.
func ClassifyErr(err error) string {
	if err == nil {
		return ""
	}
	return classifyFrameErr(err)
}

func recordCommand(name string, status string) {
	CommandsByStatus.WithLabelValues(name, status).Inc()
}

// RecordCommand increments the commands-by-status counter for name/status
// and logs at debug level.
func RecordCommand(name, status string) {
	recordCommand(name, status)
	heliumlog.ForCommand(name).Debug("command", "status", status)
}

// StartHTTP serves /metrics and /ready on addr in a background goroutine.
// It is intended for the demo binary only; the CORE
// library itself never opens a listener.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		heliumlog.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			heliumlog.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters, read back by Snap without touching Prometheus.
var (
	localFramesWritten  uint64
	localFramesRead     uint64
	localChecksumErrors uint64
	localFrameTimeouts  uint64
	localSendRetries    uint64
	localChannelsCreate uint64
	localChannelSends   uint64
	localPollExhausted  uint64
)

// Snapshot is a cheap copy of the local mirrored counters.
type Snapshot struct {
	FramesWritten        uint64
	FramesRead           uint64
	ChecksumErrors       uint64
	FrameTimeouts        uint64
	SendRetries          uint64
	ChannelsCreated      uint64
	ChannelSends         uint64
	PollRetriesExhausted uint64
}

func Snap() Snapshot {
	return Snapshot{
		FramesWritten:        atomic.LoadUint64(&localFramesWritten),
		FramesRead:           atomic.LoadUint64(&localFramesRead),
		ChecksumErrors:       atomic.LoadUint64(&localChecksumErrors),
		FrameTimeouts:        atomic.LoadUint64(&localFrameTimeouts),
		SendRetries:          atomic.LoadUint64(&localSendRetries),
		ChannelsCreated:      atomic.LoadUint64(&localChannelsCreate),
		ChannelSends:         atomic.LoadUint64(&localChannelSends),
		PollRetriesExhausted: atomic.LoadUint64(&localPollExhausted),
	}
}

func IncFramesWritten() {
	FramesWritten.Inc()
	atomic.AddUint64(&localFramesWritten, 1)
}

func IncFramesRead() {
	FramesRead.Inc()
	atomic.AddUint64(&localFramesRead, 1)
}

func IncChecksumErrors() {
	ChecksumErrors.Inc()
	atomic.AddUint64(&localChecksumErrors, 1)
}

func IncFrameTimeouts() {
	FrameTimeouts.Inc()
	atomic.AddUint64(&localFrameTimeouts, 1)
}

func IncSendRetries() {
	SendRetries.Inc()
	atomic.AddUint64(&localSendRetries, 1)
}

func IncChannelsCreated() {
	ChannelsCreated.Inc()
	atomic.AddUint64(&localChannelsCreate, 1)
}

func IncChannelSends() {
	ChannelSends.Inc()
	atomic.AddUint64(&localChannelSends, 1)
}

func IncPollRetriesExhausted() {
	PollRetriesExhausted.Inc()
	atomic.AddUint64(&localPollExhausted, 1)
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function, defaulting to ready
// when none has been registered so the endpoint never flaps on startup.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
