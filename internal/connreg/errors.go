package connreg

import "errors"

// ErrInvalidArgument matches every InvalidArgumentError via errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgumentError reports caller input the registry rejected. The
// message is shown to users as is.
type InvalidArgumentError struct {
	Msg string
}

// InvalidArgument builds an InvalidArgumentError with msg.
func InvalidArgument(msg string) error {
	return &InvalidArgumentError{Msg: msg}
}

func (e *InvalidArgumentError) Error() string { return e.Msg }

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// Messages returned by the registry.
const (
	MsgOptionsRequired = "options is required"
	MsgNameRequired    = "options.name is required"
	MsgHostRequired    = "options.host is required"
	MsgPortRequired    = "options.port is required"
	MsgPortRange       = "port number must be between 0 and 65535"
	MsgNameNotUnique   = "Sorry, connection names must be unique."
	MsgIDRequired      = "id is required"
	MsgFieldType       = "options.%s must be %s"
)
