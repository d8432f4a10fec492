package transport

import (
	"errors"
	"io"
	"net"
	"strings"
)

// useOfClosedNetworkConnection is a string some parts of the standard
// library use that is the only way to identify certain close errors.
const useOfClosedNetworkConnection = "use of closed network connection"

// IsUseOfClosedNetworkError reports whether err indicates the use of a
// closed network connection.
func IsUseOfClosedNetworkError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), useOfClosedNetworkConnection)
}

// IsOKNetworkError reports whether err is one of those that usually indicate
// a normal connection teardown. Accept loops treat these as end-of-sequence
// rather than failures.
func IsOKNetworkError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return IsUseOfClosedNetworkError(err)
}
