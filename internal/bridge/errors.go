package bridge

// Error is a bridge failure whose code is reported to callers verbatim.
type Error struct {
	Code string
}

func (e *Error) Error() string { return e.Code }

var (
	ErrNoEndpoint              = &Error{Code: "no_endpoint"}
	ErrUnknownEndpoint         = &Error{Code: "unknown_endpoint"}
	ErrActivationCodeOrAddress = &Error{Code: "activationCode_or_address"}
	ErrUnknownPreference       = &Error{Code: "unknown_preference_name"}
)

// MissingArg reports a required argument that was absent or unparsable.
func MissingArg(name string) *Error {
	return &Error{Code: "missing_arg_" + name}
}
