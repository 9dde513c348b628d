package flock

// A Debugger can be passed into the options to be notified of all socket
// sends and receives.
type Debugger interface {
	// Incoming is called with the raw frame received from the gateway,
	// after inflation for compressed frames.
	Incoming(b []byte)

	// Outgoing is called with data when a frame is written to the gateway.
	Outgoing(b []byte)

	// Error is called when an error occurs on the socket.
	Error(err error)
}

// NilDebugger is the default debugger with noops.
type NilDebugger struct{}

// Incoming implements Debugger.Incoming
func (n NilDebugger) Incoming(b []byte) {}

// Outgoing implements Debugger.Outgoing
func (n NilDebugger) Outgoing(b []byte) {}

// Error implements Debugger.Error
func (n NilDebugger) Error(err error) {}
