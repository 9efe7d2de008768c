// Package command implements the Atom module's command surface: baud,
// info, connected, connect, sleep, and the internal send/poll primitives
// the channel package builds on. Every exported function takes a
// *session.Context and blocks for exactly one (or, for send/poll, a
// bounded retry loop of) transaction-engine round trip.
package command

import (
	"errors"
	"fmt"

	"github.com/helium/carbon/heliumlog"
	"github.com/helium/carbon/heliummetrics"
	"github.com/helium/carbon/schema"
	"github.com/helium/carbon/session"
	"github.com/helium/carbon/transaction"
)

// ErrCommunication wraps a transaction-layer failure surfaced as a plain
// error, for the commands (Connect) that return the raw engine outcome
// rather than a command-specific status enum.
var ErrCommunication = errors.New("command: communication failure")

// Baud sets the Atom module's UART baud rate. Unrecognized rates fall back
// to 9600, mirroring the Atom module's own switch-default behavior.
func Baud(ctx *session.Context, rate int) transaction.Status {
	atomBaud := baudToAtom(rate)
	_, status, _ := ctx.Exchange(func(tx *schema.Transaction) {
		tx.Cmd = schema.Cmd{Tag: schema.CmdBaud, Dir: schema.DirReq, BaudReq: atomBaud}
	})
	heliummetrics.RecordCommand("baud", status.String())
	return status
}

func baudToAtom(rate int) schema.AtomBaud {
	switch rate {
	case 115200:
		return schema.AtomBaud115200
	case 57600:
		return schema.AtomBaud57600
	case 38400:
		return schema.AtomBaud38400
	case 19200:
		return schema.AtomBaud19200
	case 14400:
		return schema.AtomBaud14400
	case 9600:
		return schema.AtomBaud9600
	default:
		return schema.AtomBaud9600
	}
}

// Info is the projected field set returned by the info command.
type Info struct {
	MAC        uint64
	Uptime     uint32
	Time       uint32
	FWVersion  string
	RadioCount uint8
}

// Info retrieves the Atom module's identity and uptime fields.
func Info(ctx *session.Context) (Info, transaction.Status) {
	res, status, _ := ctx.Exchange(func(tx *schema.Transaction) {
		tx.Cmd = schema.Cmd{Tag: schema.CmdInfo, Dir: schema.DirReq}
	})
	heliummetrics.RecordCommand("info", status.String())
	if status != transaction.StatusOK {
		return Info{}, status
	}
	r := res.Cmd.InfoRes
	return Info{MAC: r.MAC, Uptime: r.Uptime, Time: r.Time, FWVersion: r.FWVersion, RadioCount: r.RadioCount}, status
}

// ConnectedStatus is the three-valued outcome of Connected, distinct from
// the two-valued transaction.Status because the Atom module's own
// helium_connected distinguishes "communicated fine but not connected"
// from a transport failure.
type ConnectedStatus int

const (
	ConnectedYes ConnectedStatus = iota
	ConnectedNo
	ConnectedCommunication
)

func (s ConnectedStatus) String() string {
	switch s {
	case ConnectedYes:
		return "CONNECTED"
	case ConnectedNo:
		return "NOT_CONNECTED"
	default:
		return "COMMUNICATION"
	}
}

// Connected reports whether the Atom module currently holds a network
// connection.
func Connected(ctx *session.Context) ConnectedStatus {
	res, status, _ := ctx.Exchange(func(tx *schema.Transaction) {
		tx.Cmd = schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}
	})
	heliummetrics.RecordCommand("connected", status.String())
	if status != transaction.StatusOK {
		return ConnectedCommunication
	}
	if res.Cmd.ConnectedRes {
		return ConnectedYes
	}
	return ConnectedNo
}

// Connect requests the Atom module join a network: cold (discovery) when
// saved is nil, or a quick resume using a previously saved connection
// descriptor. It returns the raw transaction-engine error rather than a
// command-specific status: the Atom module's own helium_connect does the
// same, returning send_command's status unexamined, and that choice is
// preserved here rather than papered over with a synthesized enum. A
// failure is reported as ErrCommunication wrapping the engine error, so
// errors.Is matches either. The decoded connect response is not returned.
func Connect(ctx *session.Context, saved *schema.Connection) error {
	_, status, err := ctx.Exchange(func(tx *schema.Transaction) {
		tx.Cmd = schema.Cmd{Tag: schema.CmdConnect, Dir: schema.DirReq}
		if saved != nil {
			tx.Cmd.ConnectReqTag = schema.ConnectQuick
			tx.Cmd.ConnectReqConnection = *saved
		} else {
			tx.Cmd.ConnectReqTag = schema.ConnectCold
		}
	})
	heliummetrics.RecordCommand("connect", status.String())
	if status != transaction.StatusOK {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCommunication, err)
		}
		return ErrCommunication
	}
	return nil
}

// SleepStatus is the outcome of Sleep.
type SleepStatus int

const (
	SleepOK SleepStatus = iota
	SleepNotConnected
	SleepKeepAwake
	SleepCommunication
)

func (s SleepStatus) String() string {
	switch s {
	case SleepOK:
		return "OK"
	case SleepNotConnected:
		return "NOT_CONNECTED"
	case SleepKeepAwake:
		return "KEEP_AWAKE"
	default:
		return "COMMUNICATION"
	}
}

// Sleep asks the Atom module to enter low-power mode. On success it fills
// *saved with a connection descriptor usable by a later quick Connect, if
// saved is non-nil.
func Sleep(ctx *session.Context, saved *schema.Connection) SleepStatus {
	res, status, _ := ctx.Exchange(func(tx *schema.Transaction) {
		tx.Cmd = schema.Cmd{Tag: schema.CmdSleep, Dir: schema.DirReq}
	})
	heliummetrics.RecordCommand("sleep", status.String())
	if status != transaction.StatusOK {
		return SleepCommunication
	}
	switch res.Cmd.SleepResTag {
	case schema.SleepResNotConnected:
		return SleepNotConnected
	case schema.SleepResKeepAwake:
		return SleepKeepAwake
	case schema.SleepResConnection:
		if saved != nil {
			*saved = res.Cmd.SleepResConnection
		}
		return SleepOK
	default:
		return SleepCommunication
	}
}

// SendStatus is the outcome of the internal Send primitive.
type SendStatus int

const (
	SendOK SendStatus = iota
	SendNotConnected
	SendDropped
	SendCommunication
)

func (s SendStatus) String() string {
	switch s {
	case SendOK:
		return "OK"
	case SendNotConnected:
		return "NOT_CONNECTED"
	case SendDropped:
		return "DROPPED"
	default:
		return "COMMUNICATION"
	}
}

// Send transmits a raw application frame, retrying internally on a NACK or
// channel-access contention response. The Atom module already retries a
// number of times itself; this loop only covers application-level errors
// surfacing after that.
func Send(ctx *session.Context, data []byte) SendStatus {
	if len(data) > session.MaxFrameAppLen {
		data = data[:session.MaxFrameAppLen]
	}

	retries := ctx.SendRetries()
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			heliummetrics.IncSendRetries()
		}
		res, status, _ := ctx.Exchange(func(tx *schema.Transaction) {
			tx.Cmd = schema.Cmd{Tag: schema.CmdSend, Dir: schema.DirReq, SendReqData: data}
		})
		if status != transaction.StatusOK {
			heliummetrics.RecordCommand("send", transaction.StatusCommunication.String())
			return SendCommunication
		}

		switch res.Cmd.SendResTag {
		case schema.SendResOK:
			heliummetrics.RecordCommand("send", "OK")
			return SendOK
		case schema.SendResNotConnected:
			heliummetrics.RecordCommand("send", "NOT_CONNECTED")
			return SendNotConnected
		case schema.SendResDropped:
			heliummetrics.RecordCommand("send", "DROPPED")
			return SendDropped
		case schema.SendResNack, schema.SendResChannelAccess:
			heliumlog.ForCommand("send").Debug("send_retry", "tag", res.Cmd.SendResTag, "attempt", attempt)
			continue
		}
	}
	heliummetrics.RecordCommand("send", transaction.StatusCommunication.String())
	return SendCommunication
}

// PollStatus is the outcome of the internal Poll primitive.
type PollStatus int

const (
	PollOKData PollStatus = iota
	PollOKNoData
	PollCommunication
)

// Poll repeatedly asks the Atom module for a waiting inbound frame, up to
// retries attempts spaced session.PollWaitUs apart, copying at most
// len(buf) bytes of whatever frame arrives. It returns the number of bytes
// copied; a frame larger than buf is silently truncated, matching the
// Atom module's own copylen clamp.
func Poll(ctx *session.Context, buf []byte, retries int) (int, PollStatus) {
	for attempt := 0; attempt < retries; attempt++ {
		res, status, _ := ctx.Exchange(func(tx *schema.Transaction) {
			tx.Cmd = schema.Cmd{Tag: schema.CmdPoll, Dir: schema.DirReq}
		})
		if status != transaction.StatusOK {
			heliummetrics.RecordCommand("poll", transaction.StatusCommunication.String())
			return 0, PollCommunication
		}

		if res.Cmd.PollResTag == schema.PollResFrame {
			n := copy(buf, res.Cmd.PollResFrame)
			heliummetrics.RecordCommand("poll", "OK_DATA")
			return n, PollOKData
		}

		if attempt < retries-1 {
			ctx.WaitUs(session.PollWaitUs)
		}
	}
	heliummetrics.IncPollRetriesExhausted()
	heliummetrics.RecordCommand("poll", "OK_NO_DATA")
	return 0, PollOKNoData
}
