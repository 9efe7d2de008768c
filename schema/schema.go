// Package schema provides the concrete Cauterize-style transaction record
// and binary codec the transaction engine encodes requests into and decodes
// responses from. The spec treats this layer as an external, swappable
// collaborator (§6, §9 Design Notes); this package is the default
// implementation, generalized from original_source/helium-client.c's C
// struct layout into a hand-written Go sum type.
package schema

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ConnectionSize is the fixed width of an opaque saved-connection
// descriptor, as handed back by Sleep and accepted by a quick Connect.
const ConnectionSize = 16

// MaxFWVersionLen bounds the fw_version string carried in an Info response.
const MaxFWVersionLen = 32

// CommandTag selects which command variant a Transaction's Cmd union holds.
type CommandTag uint8

const (
	CmdBaud CommandTag = iota
	CmdInfo
	CmdConnected
	CmdConnect
	CmdSleep
	CmdSend
	CmdPoll
)

// Direction selects the request or response half of a command's
// sub-union, mirroring the Cauterize {req, res} pattern described in §3.
type Direction uint8

const (
	DirReq Direction = iota
	DirRes
)

// AtomBaud enumerates the baud rates the Atom module accepts.
type AtomBaud uint8

const (
	AtomBaud9600 AtomBaud = iota
	AtomBaud14400
	AtomBaud19200
	AtomBaud38400
	AtomBaud57600
	AtomBaud115200
)

// Connection is an opaque saved-connection descriptor, round-tripped
// between Sleep's response and a subsequent quick Connect's request.
type Connection struct {
	Raw [ConnectionSize]byte
}

// ConnectReqTag selects a cold (discovery) or quick (resume) connect.
type ConnectReqTag uint8

const (
	ConnectCold ConnectReqTag = iota
	ConnectQuick
)

// SleepResTag enumerates Sleep's response shape.
type SleepResTag uint8

const (
	SleepResNotConnected SleepResTag = iota
	SleepResKeepAwake
	SleepResConnection
)

// SendResTag enumerates the internal send command's response shape.
type SendResTag uint8

const (
	SendResOK SendResTag = iota
	SendResNotConnected
	SendResDropped
	SendResNack
	SendResChannelAccess
)

// PollResTag enumerates the internal poll command's response shape.
type PollResTag uint8

const (
	PollResNone PollResTag = iota
	PollResFrame
)

// InfoRes is the projected field set of an info() response (spec §4.4).
type InfoRes struct {
	MAC        uint64
	Uptime     uint32
	Time       uint32
	FWVersion  string
	RadioCount uint8
}

// Cmd is the tagged union of all command request/response bodies. Only the
// fields selected by Tag and Dir are meaningful for a given Transaction;
// the rest are scratch.
type Cmd struct {
	Tag CommandTag
	Dir Direction

	BaudReq AtomBaud

	InfoRes InfoRes

	ConnectedRes bool

	ConnectReqTag        ConnectReqTag
	ConnectReqConnection Connection
	ConnectResConnection Connection

	SleepResTag        SleepResTag
	SleepResConnection Connection

	SendReqData []byte
	SendResTag  SendResTag

	PollResFrame []byte
	PollResTag   PollResTag
}

// Transaction is the full wire record: sequence number, the modem's sticky
// needs_reset flag, and the command union (spec §3).
type Transaction struct {
	Seq        uint16
	NeedsReset bool
	Cmd        Cmd
}

// Encoder is the transaction engine's required encode port.
type Encoder interface {
	Encode(buf []byte, tx *Transaction) (int, error)
}

// Decoder is the transaction engine's required decode port.
type Decoder interface {
	Decode(data []byte, tx *Transaction) error
}

var (
	ErrBufferTooSmall = errors.New("schema: buffer too small")
	ErrTruncated      = errors.New("schema: truncated record")
	ErrUnknownTag     = errors.New("schema: unknown command tag")
)

// Codec is the default Encoder/Decoder, a compact fixed-layout binary
// format: seq(2) | needs_reset(1) | cmd_tag(1) | dir(1) | body.
type Codec struct{}

func (Codec) Encode(buf []byte, tx *Transaction) (int, error) {
	w := &cursor{buf: buf}
	w.putU16(tx.Seq)
	w.putU8(boolToU8(tx.NeedsReset))
	w.putU8(uint8(tx.Cmd.Tag))
	w.putU8(uint8(tx.Cmd.Dir))
	if w.err != nil {
		return 0, w.err
	}
	if err := encodeBody(w, &tx.Cmd); err != nil {
		return 0, err
	}
	if w.err != nil {
		return 0, w.err
	}
	return w.pos, nil
}

func (Codec) Decode(data []byte, tx *Transaction) error {
	r := &cursor{buf: data}
	tx.Seq = r.getU16()
	tx.NeedsReset = r.getU8() != 0
	tx.Cmd.Tag = CommandTag(r.getU8())
	tx.Cmd.Dir = Direction(r.getU8())
	if r.err != nil {
		return r.err
	}
	return decodeBody(r, &tx.Cmd)
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func encodeBody(w *cursor, c *Cmd) error {
	switch c.Tag {
	case CmdBaud:
		if c.Dir == DirReq {
			w.putU8(uint8(c.BaudReq))
		}
	case CmdInfo:
		if c.Dir == DirRes {
			w.putU64(c.InfoRes.MAC)
			w.putU32(c.InfoRes.Uptime)
			w.putU32(c.InfoRes.Time)
			fw := c.InfoRes.FWVersion
			if len(fw) > MaxFWVersionLen {
				fw = fw[:MaxFWVersionLen]
			}
			w.putU8(uint8(len(fw)))
			w.putBytes([]byte(fw))
			w.putU8(c.InfoRes.RadioCount)
		}
	case CmdConnected:
		if c.Dir == DirRes {
			w.putU8(boolToU8(c.ConnectedRes))
		}
	case CmdConnect:
		if c.Dir == DirReq {
			w.putU8(uint8(c.ConnectReqTag))
			if c.ConnectReqTag == ConnectQuick {
				w.putBytes(c.ConnectReqConnection.Raw[:])
			}
		} else {
			w.putBytes(c.ConnectResConnection.Raw[:])
		}
	case CmdSleep:
		if c.Dir == DirRes {
			w.putU8(uint8(c.SleepResTag))
			if c.SleepResTag == SleepResConnection {
				w.putBytes(c.SleepResConnection.Raw[:])
			}
		}
	case CmdSend:
		if c.Dir == DirReq {
			w.putU8(uint8(len(c.SendReqData)))
			w.putBytes(c.SendReqData)
		} else {
			w.putU8(uint8(c.SendResTag))
		}
	case CmdPoll:
		if c.Dir == DirRes {
			w.putU8(uint8(c.PollResTag))
			if c.PollResTag == PollResFrame {
				w.putU8(uint8(len(c.PollResFrame)))
				w.putBytes(c.PollResFrame)
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTag, c.Tag)
	}
	return w.err
}

func decodeBody(r *cursor, c *Cmd) error {
	switch c.Tag {
	case CmdBaud:
		if c.Dir == DirReq {
			c.BaudReq = AtomBaud(r.getU8())
		}
	case CmdInfo:
		if c.Dir == DirRes {
			c.InfoRes.MAC = r.getU64()
			c.InfoRes.Uptime = r.getU32()
			c.InfoRes.Time = r.getU32()
			n := r.getU8()
			c.InfoRes.FWVersion = string(r.getBytes(int(n)))
			c.InfoRes.RadioCount = r.getU8()
		}
	case CmdConnected:
		if c.Dir == DirRes {
			c.ConnectedRes = r.getU8() != 0
		}
	case CmdConnect:
		if c.Dir == DirReq {
			c.ConnectReqTag = ConnectReqTag(r.getU8())
			if c.ConnectReqTag == ConnectQuick {
				copy(c.ConnectReqConnection.Raw[:], r.getBytes(ConnectionSize))
			}
		} else {
			copy(c.ConnectResConnection.Raw[:], r.getBytes(ConnectionSize))
		}
	case CmdSleep:
		if c.Dir == DirRes {
			c.SleepResTag = SleepResTag(r.getU8())
			if c.SleepResTag == SleepResConnection {
				copy(c.SleepResConnection.Raw[:], r.getBytes(ConnectionSize))
			}
		}
	case CmdSend:
		if c.Dir == DirReq {
			n := r.getU8()
			c.SendReqData = r.getBytes(int(n))
		} else {
			c.SendResTag = SendResTag(r.getU8())
		}
	case CmdPoll:
		if c.Dir == DirRes {
			c.PollResTag = PollResTag(r.getU8())
			if c.PollResTag == PollResFrame {
				n := r.getU8()
				c.PollResFrame = r.getBytes(int(n))
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownTag, c.Tag)
	}
	return r.err
}

// cursor is a small fixed-buffer binary reader/writer, in the spirit of
// amken3d-gopper/protocol/vlq.go's *[]byte-cursor encode/decode pair, here
// adapted to the schema's fixed-width big-endian fields instead of VLQ.
type cursor struct {
	buf []byte
	pos int
	err error
}

func (c *cursor) putU8(v uint8) {
	if c.err != nil {
		return
	}
	if c.pos+1 > len(c.buf) {
		c.err = ErrBufferTooSmall
		return
	}
	c.buf[c.pos] = v
	c.pos++
}

func (c *cursor) putU16(v uint16) {
	if c.err != nil {
		return
	}
	if c.pos+2 > len(c.buf) {
		c.err = ErrBufferTooSmall
		return
	}
	binary.BigEndian.PutUint16(c.buf[c.pos:], v)
	c.pos += 2
}

func (c *cursor) putU32(v uint32) {
	if c.err != nil {
		return
	}
	if c.pos+4 > len(c.buf) {
		c.err = ErrBufferTooSmall
		return
	}
	binary.BigEndian.PutUint32(c.buf[c.pos:], v)
	c.pos += 4
}

func (c *cursor) putU64(v uint64) {
	if c.err != nil {
		return
	}
	if c.pos+8 > len(c.buf) {
		c.err = ErrBufferTooSmall
		return
	}
	binary.BigEndian.PutUint64(c.buf[c.pos:], v)
	c.pos += 8
}

func (c *cursor) putBytes(b []byte) {
	if c.err != nil {
		return
	}
	if c.pos+len(b) > len(c.buf) {
		c.err = ErrBufferTooSmall
		return
	}
	copy(c.buf[c.pos:], b)
	c.pos += len(b)
}

func (c *cursor) getU8() uint8 {
	if c.err != nil {
		return 0
	}
	if c.pos+1 > len(c.buf) {
		c.err = ErrTruncated
		return 0
	}
	v := c.buf[c.pos]
	c.pos++
	return v
}

func (c *cursor) getU16() uint16 {
	if c.err != nil {
		return 0
	}
	if c.pos+2 > len(c.buf) {
		c.err = ErrTruncated
		return 0
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v
}

func (c *cursor) getU32() uint32 {
	if c.err != nil {
		return 0
	}
	if c.pos+4 > len(c.buf) {
		c.err = ErrTruncated
		return 0
	}
	v := binary.BigEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) getU64() uint64 {
	if c.err != nil {
		return 0
	}
	if c.pos+8 > len(c.buf) {
		c.err = ErrTruncated
		return 0
	}
	v := binary.BigEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v
}

func (c *cursor) getBytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.pos+n > len(c.buf) {
		c.err = ErrTruncated
		return nil
	}
	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+n])
	c.pos += n
	return b
}
