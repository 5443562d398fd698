package adsp

import (
	"github.com/drgolem/audiorenderer/pkg/boundedqueue"
)

// Message is a mailbox word exchanged between the host and the DSP.
type Message uint32

const (
	MsgInvalid Message = iota
	MsgRender
	MsgRenderResponse
	MsgShutdown
	MsgShutdownAck
)

func (m Message) String() string {
	switch m {
	case MsgRender:
		return "render"
	case MsgRenderResponse:
		return "render_response"
	case MsgShutdown:
		return "shutdown"
	case MsgShutdownAck:
		return "shutdown_ack"
	default:
		return "invalid"
	}
}

const mailboxCapacity = 4

// Mailbox carries messages in both directions.
//
// Host→DSP has several senders (the render goroutine signalling ticks, the
// owner requesting shutdown), so it is an MPSC queue. DSP→host has exactly
// one sender and one receiver.
type Mailbox struct {
	hostToDsp *boundedqueue.MPSC[Message]
	dspToHost *boundedqueue.SPSC[Message]
}

func newMailbox() *Mailbox {
	return &Mailbox{
		hostToDsp: boundedqueue.NewMPSC[Message](mailboxCapacity),
		dspToHost: boundedqueue.NewSPSC[Message](mailboxCapacity),
	}
}

// HostSend posts a message to the DSP, blocking while the mailbox is full.
func (mb *Mailbox) HostSend(m Message) {
	mb.hostToDsp.PushWait(m)
}

// HostReceive blocks until the DSP posts a message.
func (mb *Mailbox) HostReceive() Message {
	return mb.dspToHost.PopWait()
}

func (mb *Mailbox) dspSend(m Message) {
	mb.dspToHost.PushWait(m)
}

func (mb *Mailbox) dspReceive() Message {
	return mb.hostToDsp.PopWait()
}

func (mb *Mailbox) reset() {
	mb.hostToDsp.Clear()
	mb.dspToHost.Clear()
}
