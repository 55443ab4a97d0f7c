package bgp

import "fmt"

// ParseError is returned for any malformed BGP UPDATE content.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("bgp: %s", e.Reason) }

func parseErr(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}
