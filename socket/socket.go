/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package socket defines the small shared surface between the TCP client and
// server implementations: the per-connection Context handed to a
// HandlerFunc, connection lifecycle states, and a couple of stream-layer
// helpers.
package socket

import (
	"io"
	"net"
	"strings"
)

// DefaultBufferSize is the default read/write chunk size used by client and
// server implementations when none is configured.
const DefaultBufferSize = 32 * 1024

// EOL is the line terminator recognized by line-oriented handlers.
const EOL = byte('\n')

// Context is the per-connection stream handed to a HandlerFunc. It is a
// plain io.ReadWriteCloser plus the addresses of the two endpoints.
type Context interface {
	io.Reader
	io.Writer
	io.Closer

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// HandlerFunc processes one accepted connection. Implementations are
// responsible for closing c when done; the server does not close it
// implicitly so handlers may keep streaming until the peer disconnects.
type HandlerFunc func(c Context)

// ConnState enumerates the lifecycle phases a server-side connection walks
// through, in the order reported to update callbacks.
type ConnState uint8

const (
	ConnectionDial ConnState = iota
	ConnectionNew
	ConnectionRead
	ConnectionCloseRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseWrite
	ConnectionClose
)

func (s ConnState) String() string {
	switch s {
	case ConnectionDial:
		return "Dial Connection"
	case ConnectionNew:
		return "New Connection"
	case ConnectionRead:
		return "Read Incoming Stream"
	case ConnectionCloseRead:
		return "Close Incoming Stream"
	case ConnectionHandler:
		return "Run HandlerFunc"
	case ConnectionWrite:
		return "Write Outgoing Stream"
	case ConnectionCloseWrite:
		return "Close Outgoing Stream"
	case ConnectionClose:
		return "Close Connection"
	default:
		return "Unknown Connection State"
	}
}

// FuncInfo receives a lifecycle update for a given local/remote address pair.
type FuncInfo func(local, remote string, state ConnState)

// FuncError receives an out-of-band error observed by the connection loop.
type FuncError func(err error)

// FuncUpdateConn lets a caller tweak a freshly accepted/dialed net.Conn
// (e.g. SetNoDelay, SetKeepAlive) before it is handed to the protocol layer.
type FuncUpdateConn func(c net.Conn)

// ErrorFilter drops the noisy "use of closed network connection" error that
// net.Listener/net.Conn return once Close has already been called elsewhere,
// so shutdown paths don't report a spurious failure. An error that merely
// contains that text alongside real context passes through unchanged.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}

	if err.Error() == "use of closed network connection" {
		return nil
	}

	return err
}

// IsClosedConnErr reports whether err is the sentinel the net package
// reports after a socket has already been closed.
func IsClosedConnErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "use of closed network connection")
}
