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

// Package transport wraps one socket/client/tcp connection with the
// validity and idle-tracking semantics the node connection pool depends on.
// A Conn is owned by at most one command at a time; the pool never looks
// inside it beyond IsValid/Close.
package transport

import (
	"context"
	"sync"
	"time"

	libtls "github.com/sabouaram/kvasync/certificates"
	sckclt "github.com/sabouaram/kvasync/socket/client/tcp"
)

// Conn is one pooled connection to a node.
type Conn interface {
	// Connect dials and, if TLS is configured, completes the handshake.
	Connect(ctx context.Context) error

	// Send writes p in full or returns the first error; it updates
	// LastUsed on every successful partial or full write.
	Send(p []byte) (int, error)

	// Recv reads into p; a zero-byte, nil-error read is translated into
	// ErrorConnectionClosed per the "closed-mid-read" invariant.
	Recv(p []byte) (int, error)

	// IsValid reports connected && now-LastUsed <= maxIdle.
	IsValid(maxIdle time.Duration) bool

	// Close tears down the socket. Idempotent.
	Close() error

	// LastUsed returns the timestamp of the last successful Send or Recv.
	LastUsed() time.Time

	// MarkIdle stamps LastUsed to now, used when a connection re-enters the
	// pool so its idle horizon restarts from the moment it was released.
	MarkIdle()
}

type conn struct {
	cli sckclt.ClientTCP

	mu       sync.Mutex
	lastUsed time.Time
	closed   bool
}

// Options configures how a Conn dials.
type Options struct {
	Address    string
	TLS        bool
	TLSConfig  libtls.TLSConfig
	ServerName string
}

// New returns a disconnected Conn for the given options.
func New(opts Options) (Conn, error) {
	cli, err := sckclt.New(opts.Address)
	if err != nil {
		return nil, err
	}

	if opts.TLS {
		if e := cli.SetTLS(true, opts.TLSConfig, opts.ServerName); e != nil {
			return nil, e
		}
	}

	return &conn{cli: cli}, nil
}

func (c *conn) Connect(ctx context.Context) error {
	if err := c.cli.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastUsed = time.Now()
	c.closed = false
	c.mu.Unlock()

	return nil
}

func (c *conn) Send(p []byte) (int, error) {
	n, err := c.cli.Write(p)
	if err == nil {
		c.MarkIdle()
	}
	return n, err
}

func (c *conn) Recv(p []byte) (int, error) {
	n, err := c.cli.Read(p)
	if err == nil {
		if n == 0 && len(p) > 0 {
			return 0, ErrorConnectionClosed.Error(nil)
		}
		c.MarkIdle()
	}
	return n, err
}

func (c *conn) IsValid(maxIdle time.Duration) bool {
	if !c.cli.IsConnected() {
		return false
	}

	c.mu.Lock()
	last := c.lastUsed
	c.mu.Unlock()

	if maxIdle <= 0 {
		return true
	}
	return time.Since(last) <= maxIdle
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.cli.Close()
}

func (c *conn) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

func (c *conn) MarkIdle() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}
