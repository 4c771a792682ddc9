package heymac

// CodecError is the taxonomy of errors raised by the command and frame
// codecs. Codec failures on the receive path are logged and counted,
// never propagated; failures on the construct path are programming
// errors and propagate to the caller.
type CodecError struct {
	Kind string
	Msg  string
}

func (e *CodecError) Error() string { return e.Kind + ": " + e.Msg }

func newCodecError(kind, msg string) *CodecError {
	return &CodecError{Kind: kind, Msg: msg}
}

// Sentinel kinds.
const (
	KindInsufficientData = "InsufficientData"
	KindUnknownCommand   = "UnknownCommand"
	KindUnknownSubcmd    = "UnknownSubcommand"
	KindIncorrectSize    = "IncorrectSize"
	KindUnknownField     = "UnknownField"
	KindInvalidFrame     = "InvalidFrame"
)

// ErrInsufficientData is returned when the buffer is shorter than the
// minimum required for the indicated CMD_ID/SUB_ID.
func ErrInsufficientData(msg string) error { return newCodecError(KindInsufficientData, msg) }

// ErrUnknownCommand is returned when the CMD_ID does not match any known command.
func ErrUnknownCommand(msg string) error { return newCodecError(KindUnknownCommand, msg) }

// ErrUnknownSubcommand is returned when the SUB_ID does not match any known sub-command.
func ErrUnknownSubcommand(msg string) error { return newCodecError(KindUnknownSubcmd, msg) }

// ErrIncorrectSize is returned when trailing bytes remain after a
// fixed-width variant is parsed. A buffer too short for the variant
// yields ErrInsufficientData instead.
func ErrIncorrectSize(msg string) error { return newCodecError(KindIncorrectSize, msg) }

// ErrUnknownField is returned when construction names a field that the
// variant does not define.
func ErrUnknownField(msg string) error { return newCodecError(KindUnknownField, msg) }

// ErrInvalidFrame is returned when a Frame's flags disagree with the
// buffer length, or the protocol id is not Heymac.
func ErrInvalidFrame(msg string) error { return newCodecError(KindInvalidFrame, msg) }

// IsKind reports whether err is a *CodecError of the given kind.
func IsKind(err error, kind string) bool {
	ce, ok := err.(*CodecError)
	return ok && ce.Kind == kind
}

// DialogOutcome tags how a dialog ended. It is surfaced to the
// next-layer-higher callback, never returned as a Go error.
type DialogOutcome struct {
	Success bool
	Reason  string
	NetID   NetIdentifier
	NetAddr NetAddress
}

const (
	// ReasonTimeout means the dialog exhausted its retries without a reply.
	ReasonTimeout = "DialogTimeout"
	// ReasonRejected means the peer explicitly rejected the dialog.
	ReasonRejected = "DialogRejected"
	// ReasonAccepted means the dialog completed successfully.
	ReasonAccepted = "Accepted"
	// ReasonLeave means the peer (or we) tore down the dialog with Leave.
	ReasonLeave = "Leave"
)
