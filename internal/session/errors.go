package session

import "errors"

var (
	// ErrDuplicateSession is returned by Create when the id is already active.
	ErrDuplicateSession = errors.New("session id already active")

	// ErrCapacityExceeded is returned by Create beyond the session cap.
	ErrCapacityExceeded = errors.New("session capacity exceeded")

	// ErrUnknownSession is returned for operations on an absent session.
	ErrUnknownSession = errors.New("unknown session")

	// ErrSessionClosed is returned for audio sent to a closed session.
	ErrSessionClosed = errors.New("session closed")
)
