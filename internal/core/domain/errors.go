package domain

import "errors"

// ErrInvalidConfiguration is an error thrown when construction arguments are invalid
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ErrUnknownSession is an error thrown when a session id is absent from the store
var ErrUnknownSession = errors.New("unknown session")

// ErrDuplicateSession is an error thrown when a session id is already present in the store
var ErrDuplicateSession = errors.New("session already exists")

// ErrDuplicatePart is an error thrown when a part index is already recorded for a session
var ErrDuplicatePart = errors.New("duplicate part")

// ErrStorage is an error thrown when reading or writing persisted state fails
var ErrStorage = errors.New("storage failure")

// ErrInvalidSession is an error thrown when a session cannot be resumed
var ErrInvalidSession = errors.New("invalid session")
