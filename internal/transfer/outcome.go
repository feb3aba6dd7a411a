package transfer

import (
	"fmt"

	"github.com/tftpcore/tftpd/internal/wire"
)

// ErrorKind is the application-level completion kind delivered to every
// worker's completion callback, per spec.md §6. It is a distinct
// namespace from wire.ErrorCode; KindSuccess occupies the "0 means
// success" slot the callback contract promises, while a peer-sent wire
// error code travels alongside it in Outcome.WireCode rather than
// sharing the same integer space.
type ErrorKind int

const (
	KindSuccess ErrorKind = iota
	KindConnectionLost
	KindReceiveTimeout
	KindInvalidServerResponse
	KindServerErrorResponse
	KindStateMachineBroken
	KindNetworkInterference
	KindDiskIOError
	KindUserRequestedAbort
	KindOSError
)

func (k ErrorKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindConnectionLost:
		return "connection lost"
	case KindReceiveTimeout:
		return "receive timeout"
	case KindInvalidServerResponse:
		return "invalid server response"
	case KindServerErrorResponse:
		return "server error response"
	case KindStateMachineBroken:
		return "state machine broken"
	case KindNetworkInterference:
		return "network interference"
	case KindDiskIOError:
		return "disk I/O error"
	case KindUserRequestedAbort:
		return "user requested abort"
	case KindOSError:
		return "OS error"
	default:
		return "unknown"
	}
}

// Outcome is the single value passed to every worker's completion
// callback. WireCode is non-nil only when Kind is KindServerErrorResponse
// and the peer supplied a wire.ErrorCode.
type Outcome struct {
	Kind     ErrorKind
	WireCode *wire.ErrorCode
	Err      error
}

func (o Outcome) String() string {
	if o.Kind == KindSuccess {
		return "success"
	}
	if o.WireCode != nil {
		return fmt.Sprintf("%s (wire code %d: %s): %v", o.Kind, *o.WireCode, o.WireCode.String(), o.Err)
	}
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Kind, o.Err)
	}
	return o.Kind.String()
}

func success() Outcome { return Outcome{Kind: KindSuccess} }

func failure(kind ErrorKind, err error) Outcome { return Outcome{Kind: kind, Err: err} }

func protocolFailure(e wire.Error) Outcome {
	code := e.Code
	return Outcome{Kind: KindServerErrorResponse, WireCode: &code, Err: e}
}
