package transaction

import (
	"errors"
	"testing"

	"github.com/helium/carbon/frame"
	"github.com/helium/carbon/heliummetrics"
	"github.com/helium/carbon/schema"
	"github.com/helium/carbon/serialport"
)

// encodeFrame builds the raw wire bytes (SOF|len|payload|checksum) for a
// given response transaction, for priming a Mock's inbound queue.
func encodeFrame(t *testing.T, tx *schema.Transaction) []byte {
	t.Helper()
	body := make([]byte, 512)
	n, err := (schema.Codec{}).Encode(body, tx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	port := serialport.NewMock(nil)
	if _, err := frame.Write(port, body[:n]); err != nil {
		t.Fatalf("frame.Write: %v", err)
	}
	return port.Out
}

func TestSendCommand_OK(t *testing.T) {
	resWire := encodeFrame(t, &schema.Transaction{
		Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirRes, ConnectedRes: true},
	})
	port := serialport.NewMock(resWire)
	e := NewEngine(port)

	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	status, err := e.SendCommand(req, res)
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if status != StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}
	if !res.Cmd.ConnectedRes {
		t.Fatalf("expected ConnectedRes true")
	}
}

func TestSendCommand_SequenceMonotonic(t *testing.T) {
	// Invariant 4: each SendCommand's request carries a strictly
	// incrementing sequence number.
	port := serialport.NewMock(nil)
	e := NewEngine(port)
	var lastSeq uint16
	for i := 0; i < 5; i++ {
		port.Feed(encodeFrame(t, &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirRes}}))
		req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
		res := &schema.Transaction{}
		if _, err := e.SendCommand(req, res); err != nil {
			t.Fatalf("SendCommand #%d: %v", i, err)
		}
		if i > 0 && req.Seq != lastSeq+1 {
			t.Fatalf("seq %d not monotonic after %d", req.Seq, lastSeq)
		}
		lastSeq = req.Seq
	}
}

func TestSendCommand_SequenceWraparound(t *testing.T) {
	// Invariant 9: sequence wraps cleanly from 65535 back to 0 rather than
	// erroring or desynchronizing.
	port := serialport.NewMock(nil)
	e := NewEngine(port)
	e.seq = 65535
	for i := 0; i < 3; i++ {
		port.Feed(encodeFrame(t, &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirRes}}))
		req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
		res := &schema.Transaction{}
		if _, err := e.SendCommand(req, res); err != nil {
			t.Fatalf("SendCommand #%d: %v", i, err)
		}
	}
	if e.seq != 2 {
		t.Fatalf("seq after wraparound = %d, want 2", e.seq)
	}
}

func TestSendCommand_TimeoutFoldsToCommunication(t *testing.T) {
	port := serialport.NewMock(nil) // no response bytes queued
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	status, err := e.SendCommand(req, res)
	if !errors.Is(err, frame.ErrTimeout) {
		t.Fatalf("err = %v, want frame.ErrTimeout", err)
	}
	if status != StatusCommunication {
		t.Fatalf("status = %v, want COMMUNICATION", status)
	}
}

func TestSendCommand_ChecksumErrorFoldsToCommunication(t *testing.T) {
	wire := encodeFrame(t, &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirRes}})
	wire[len(wire)-1] ^= 0xFF // corrupt checksum
	port := serialport.NewMock(wire)
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	status, err := e.SendCommand(req, res)
	if !errors.Is(err, frame.ErrChecksum) {
		t.Fatalf("err = %v, want frame.ErrChecksum", err)
	}
	if status != StatusCommunication {
		t.Fatalf("status = %v, want COMMUNICATION", status)
	}
}

func TestSendCommand_WriteFailurePropagates(t *testing.T) {
	port := serialport.NewMock(nil)
	port.FailPutc = true
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	status, err := e.SendCommand(req, res)
	if !errors.Is(err, frame.ErrPortWrite) {
		t.Fatalf("err = %v, want frame.ErrPortWrite", err)
	}
	if status != StatusCommunication {
		t.Fatalf("status = %v, want COMMUNICATION", status)
	}
}

func TestStatusString(t *testing.T) {
	if StatusOK.String() != "OK" || StatusCommunication.String() != "COMMUNICATION" {
		t.Fatalf("unexpected Status.String() values")
	}
}

func TestSendCommand_RecordsFrameMetrics(t *testing.T) {
	before := heliummetrics.Snap()

	resWire := encodeFrame(t, &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirRes}})
	port := serialport.NewMock(resWire)
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	if _, err := e.SendCommand(req, res); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	after := heliummetrics.Snap()
	if after.FramesWritten != before.FramesWritten+1 {
		t.Fatalf("FramesWritten = %d, want %d", after.FramesWritten, before.FramesWritten+1)
	}
	if after.FramesRead != before.FramesRead+1 {
		t.Fatalf("FramesRead = %d, want %d", after.FramesRead, before.FramesRead+1)
	}
}

func TestSendCommand_RecordsChecksumErrorMetric(t *testing.T) {
	before := heliummetrics.Snap()

	wire := encodeFrame(t, &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirRes}})
	wire[len(wire)-1] ^= 0xFF
	port := serialport.NewMock(wire)
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	if _, err := e.SendCommand(req, res); !errors.Is(err, frame.ErrChecksum) {
		t.Fatalf("err = %v, want frame.ErrChecksum", err)
	}

	after := heliummetrics.Snap()
	if after.ChecksumErrors != before.ChecksumErrors+1 {
		t.Fatalf("ChecksumErrors = %d, want %d", after.ChecksumErrors, before.ChecksumErrors+1)
	}
}

func TestSendCommand_RecordsTimeoutMetric(t *testing.T) {
	before := heliummetrics.Snap()

	port := serialport.NewMock(nil)
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdConnected, Dir: schema.DirReq}}
	res := &schema.Transaction{}
	if _, err := e.SendCommand(req, res); !errors.Is(err, frame.ErrTimeout) {
		t.Fatalf("err = %v, want frame.ErrTimeout", err)
	}

	after := heliummetrics.Snap()
	if after.FrameTimeouts != before.FrameTimeouts+1 {
		t.Fatalf("FrameTimeouts = %d, want %d", after.FrameTimeouts, before.FrameTimeouts+1)
	}
}

func TestSendCommand_EncodeErrorWrapsErrEncode(t *testing.T) {
	// An oversized send payload cannot be encoded into maxEncodedLen.
	port := serialport.NewMock(nil)
	e := NewEngine(port)
	req := &schema.Transaction{Cmd: schema.Cmd{Tag: schema.CmdSend, Dir: schema.DirReq, SendReqData: make([]byte, 9000)}}
	res := &schema.Transaction{}
	_, err := e.SendCommand(req, res)
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}
}
