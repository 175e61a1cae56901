package stream

import "github.com/quicwire/qtp/pkg/qerr"

// SendState is the send-half state machine of RFC 9000 section 3.1.
type SendState int

const (
	SendReady SendState = iota
	SendSend
	SendDataSent
	SendDataRecvd
	SendResetSent
	SendResetRecvd
)

func (s SendState) String() string {
	switch s {
	case SendReady:
		return "Ready"
	case SendSend:
		return "Send"
	case SendDataSent:
		return "DataSent"
	case SendDataRecvd:
		return "DataRecvd"
	case SendResetSent:
		return "ResetSent"
	case SendResetRecvd:
		return "ResetRecvd"
	default:
		return "Unknown"
	}
}

var errSendState = func(from SendState, event string) error {
	return &qerr.StateError{Reason: "send stream: invalid transition " + event + " from " + from.String()}
}

// OnSend validates and applies the "send(n>0)" event.
func (s *SendState) OnSend() error {
	switch *s {
	case SendReady, SendSend:
		*s = SendSend
		return nil
	default:
		return errSendState(*s, "send")
	}
}

// OnSentAllFinQueued validates and applies "sent_all+fin_queued".
func (s *SendState) OnSentAllFinQueued() error {
	if *s != SendSend {
		return errSendState(*s, "sent_all+fin_queued")
	}
	*s = SendDataSent
	return nil
}

// OnAllDataAcked validates and applies "all_data_acked".
func (s *SendState) OnAllDataAcked() error {
	if *s != SendDataSent {
		return errSendState(*s, "all_data_acked")
	}
	*s = SendDataRecvd
	return nil
}

// OnReset validates and applies "reset(code)", legal from Ready, Send, or
// DataSent.
func (s *SendState) OnReset() error {
	switch *s {
	case SendReady, SendSend, SendDataSent:
		*s = SendResetSent
		return nil
	default:
		return errSendState(*s, "reset")
	}
}

// OnResetAcked validates and applies "reset_acked".
func (s *SendState) OnResetAcked() error {
	if *s != SendResetSent {
		return errSendState(*s, "reset_acked")
	}
	*s = SendResetRecvd
	return nil
}

// Terminal reports whether no further transitions are possible.
func (s SendState) Terminal() bool {
	return s == SendDataRecvd || s == SendResetRecvd
}
