// Package channel implements the channel sub-protocol layered on top of
// command.Send/command.Poll: create a named channel and send data on one,
// each a short application-level exchange framed by a single opcode byte
// (spec §8, original_source/helium-client.c's helium_channel_create and
// helium_channel_send).
package channel

import (
	"github.com/helium/carbon/command"
	"github.com/helium/carbon/heliummetrics"
	"github.com/helium/carbon/session"
)

// Opcodes for the channel sub-protocol, spanning the 0x8B-0x90 range named
// in the spec.
const (
	opCreate       = 0x8B
	opSend         = 0x8C
	opCreated      = 0x8D
	opCreateFailed = 0x8E
	opNotFound     = 0x8F
	opSendResult   = 0x90
)

// Status is the outcome of Create or Send.
type Status int

const (
	StatusOK Status = iota
	StatusNotConnected
	StatusDropped
	StatusTimeout
	StatusFailed   // Create only: the Atom module rejected the channel name.
	StatusNotFound // Send only: the channel id is unknown to the Atom module.
	StatusCommunication
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotConnected:
		return "NOT_CONNECTED"
	case StatusDropped:
		return "DROPPED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusFailed:
		return "FAILED"
	case StatusNotFound:
		return "NOT_FOUND"
	default:
		return "COMMUNICATION"
	}
}

func fromSendStatus(s command.SendStatus) Status {
	switch s {
	case command.SendOK:
		return StatusOK
	case command.SendNotConnected:
		return StatusNotConnected
	case command.SendDropped:
		return StatusDropped
	default:
		return StatusCommunication
	}
}

// Create asks the Atom module to create a channel named by name, truncated
// to session.MaxChannelNameSize bytes, and returns the assigned channel id.
func Create(ctx *session.Context, name string) (id uint8, status Status) {
	if len(name) > session.MaxChannelNameSize {
		name = name[:session.MaxChannelNameSize]
	}

	req := make([]byte, 0, 1+len(name))
	req = append(req, opCreate)
	req = append(req, name...)

	if s := command.Send(ctx, req); s != command.SendOK {
		return 0, fromSendStatus(s)
	}

	reply := make([]byte, session.MaxDataSize)
	n, pollStatus := command.Poll(ctx, reply, session.PollRetries60s)
	switch pollStatus {
	case command.PollOKNoData:
		return 0, StatusTimeout
	case command.PollCommunication:
		return 0, StatusCommunication
	}

	if n < 1 {
		return 0, StatusCommunication
	}

	switch reply[0] {
	case opCreated:
		if n != 2 {
			return 0, StatusCommunication
		}
		heliummetrics.IncChannelsCreated()
		return reply[1], StatusOK
	case opCreateFailed:
		return 0, StatusFailed
	default:
		return 0, StatusCommunication
	}
}

// Send transmits data on an already-created channel, returning the
// Atom module's one-byte application result code.
func Send(ctx *session.Context, id uint8, data []byte) (result uint8, status Status) {
	if len(data) > session.MaxDataSize {
		data = data[:session.MaxDataSize]
	}

	req := make([]byte, 0, 3+len(data))
	req = append(req, opSend, id, 0)
	req = append(req, data...)

	heliummetrics.IncChannelSends()
	if s := command.Send(ctx, req); s != command.SendOK {
		return 0, fromSendStatus(s)
	}

	reply := make([]byte, session.MaxDataSize)
	n, pollStatus := command.Poll(ctx, reply, session.PollRetries60s)
	switch pollStatus {
	case command.PollOKNoData:
		return 0, StatusTimeout
	case command.PollCommunication:
		return 0, StatusCommunication
	}

	if n < 1 {
		return 0, StatusCommunication
	}

	switch reply[0] {
	case opSendResult:
		if n != 2 {
			return 0, StatusCommunication
		}
		return reply[1], StatusOK
	case opNotFound:
		return 0, StatusNotFound
	default:
		return 0, StatusCommunication
	}
}
