package errors

import stderr "errors"

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderr.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderr.As(err, target)
}

var (
	// ErrCancelled reports that the originator of a request cancelled it.
	ErrCancelled = New("request cancelled")
	// ErrSessionStarting reports that the session has not finished its initialize handshake.
	ErrSessionStarting = New("session is still starting")
	// ErrTransportClosed reports that the connection to the server ended without an error.
	ErrTransportClosed = New("transport closed")
	// ErrWaitExpired reports that a bounded wait ended before its result was settled.
	ErrWaitExpired = New("wait expired")
)

// IsNoResult reports whether the error is a degraded-service condition that callers see as "no result".
func IsNoResult(e error) bool {
	var te *TimeoutError
	var tre *TransportError
	return stderr.As(e, &te) || stderr.As(e, &tre)
}

// IsSessionGone reports whether the session behind a request can no longer be used.
// Callers should resolve the session again before retrying.
func IsSessionGone(e error) bool {
	var crashed *SessionCrashedError
	var closed *SessionClosedError
	return stderr.As(e, &crashed) || stderr.As(e, &closed)
}

// IsBadRequest reports whether the error is caused by invalid input from the caller.
func IsBadRequest(e error) bool {
	var ip *InvalidPositionError
	var ut *UntrackedDocumentError
	return stderr.As(e, &ip) || stderr.As(e, &ut)
}
