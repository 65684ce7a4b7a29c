package domain

import "errors"

var (
	ErrParse              = errors.New("malformed payload")
	ErrNetwork            = errors.New("network failure")
	ErrVenueProtocol      = errors.New("venue protocol error")
	ErrNoBookData         = errors.New("no book data")
	ErrStreamDisconnected = errors.New("stream disconnected")
	ErrUnknownVenue       = errors.New("unknown venue")
	ErrUnsupportedSymbol  = errors.New("unsupported symbol")
	ErrInvalidSimulation  = errors.New("invalid simulation request")
)
