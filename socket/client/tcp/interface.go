/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package tcp implements a minimal, reconnectable TCP/TLS client used as the
// transport underneath one node connection. It intentionally does not retry
// or pool anything itself - that is the job of the pool package one layer up.
package tcp

import (
	"context"
	"net"
	"sync"

	libtls "github.com/sabouaram/kvasync/certificates"
)

// ClientTCP is a single reconnectable TCP (optionally TLS) stream.
type ClientTCP interface {
	// Connect dials the configured address, honoring ctx for cancellation
	// and deadline. If TLS was enabled via SetTLS, the handshake runs before
	// Connect returns.
	Connect(ctx context.Context) error

	// IsConnected reports whether the underlying socket is currently open.
	IsConnected() bool

	// Close closes the underlying socket. Close on an already-closed or
	// never-connected client returns ErrClosed.
	Close() error

	// SetTLS toggles TLS for subsequent Connect calls. serverName overrides
	// the SNI/verification name; when empty the host part of the dial
	// address is used.
	SetTLS(enable bool, cfg libtls.TLSConfig, serverName string) error

	// Read implements io.Reader over the underlying socket.
	Read(p []byte) (int, error)
	// Write implements io.Writer over the underlying socket.
	Write(p []byte) (int, error)

	// LocalAddr and RemoteAddr expose the socket endpoints once connected.
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

type client struct {
	mu sync.RWMutex

	address string
	dialer  net.Dialer

	useTLS  bool
	tlsCfg  libtls.TLSConfig
	tlsName string

	conn net.Conn
}

// New validates address (host:port, including the ":port" and IPv6 bracket
// forms) and returns a disconnected client for it.
func New(address string) (ClientTCP, error) {
	if address == "" {
		return nil, ErrAddress
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, ErrAddress
	}
	if port == "" {
		return nil, ErrAddress
	}
	if _, e := net.LookupPort("tcp", port); e != nil {
		return nil, ErrAddress
	}

	return &client{
		address: net.JoinHostPort(host, port),
	}, nil
}

func (c *client) SetTLS(enable bool, cfg libtls.TLSConfig, serverName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.useTLS = enable
	c.tlsCfg = cfg
	c.tlsName = serverName

	return nil
}

func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if e := ctx.Err(); e != nil {
		return e
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return err
	}

	if c.useTLS && c.tlsCfg != nil {
		name := c.tlsName
		if name == "" {
			name, _, _ = net.SplitHostPort(c.address)
		}

		tc, e := newTLSClientConn(ctx, conn, c.tlsCfg, name)
		if e != nil {
			_ = conn.Close()
			return e
		}
		conn = tc
	}

	c.conn = conn
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.conn != nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrClosed
	}

	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *client) Read(p []byte) (int, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return 0, ErrNotConnected
	}

	n, err := conn.Read(p)
	if err != nil {
		c.forgetOnFatal(err)
	}
	return n, err
}

func (c *client) Write(p []byte) (int, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return 0, ErrNotConnected
	}

	n, err := conn.Write(p)
	if err != nil {
		c.forgetOnFatal(err)
	}
	return n, err
}

// forgetOnFatal clears the cached connection once the peer has gone away so
// IsConnected reflects reality without requiring an explicit Close.
func (c *client) forgetOnFatal(err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *client) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

func (c *client) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}
