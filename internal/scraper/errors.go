package scraper

import "fmt"

// TransportError is a network-level failure: DNS, refused connection,
// timeout, redirect loop or a broken body read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a response with a non-2xx status.
type ProtocolError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected status %s for url %s", e.Status, e.URL)
}
