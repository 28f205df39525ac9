package sync

import "github.com/pkg/errors"

// Processor error kinds returned by the ChainClient collaborator and
// classified by the retry policy.
var (
	ErrParentUnknown = errors.New("sync: parent unknown")
	ErrPrestateMissing = errors.New("sync: prestate missing")
	ErrExecutionEngineError = errors.New("sync: execution engine error")
	ErrDataUnavailable = errors.New("sync: data unavailable")
	ErrAlreadyKnown = errors.New("sync: block already known")
)

// ErrAllPeersExhausted and ErrMaxAttemptsReached are the two fatal download
// outcomes.
var (
	ErrAllPeersExhausted = errors.New("sync: tried all peers without success")
	ErrMaxAttemptsReached = errors.New("sync: reached max download attempts")
)
