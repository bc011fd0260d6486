// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsNetworkError reports whether err is a transport failure: a timeout,
// a refused or reset connection, a DNS failure, or a connection that
// closed mid-response. Context cancellation is not a network error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
			return true
		}
	}
	var dnsError *net.DNSError
	if errors.As(err, &dnsError) {
		return true
	}
	var netError net.Error
	return errors.As(err, &netError) && netError.Timeout()
}
