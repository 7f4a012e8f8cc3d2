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

// Package tcp implements a small TCP/TLS server used by tests and local
// fixtures to stand in for a cluster node: accept loop, per-connection
// handler dispatch, TLS termination and open-connection accounting.
package tcp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	libtls "github.com/sabouaram/kvasync/certificates"
	libsck "github.com/sabouaram/kvasync/socket"
	sckcfg "github.com/sabouaram/kvasync/socket/config"
)

// ServerTcp accepts connections on one address and dispatches each to a
// HandlerFunc on its own goroutine.
type ServerTcp interface {
	// Listen blocks accepting connections until ctx is cancelled or
	// Shutdown is called. Safe to run in its own goroutine.
	Listen(ctx context.Context) error

	// Shutdown stops accepting new connections and waits for in-flight
	// handlers to return.
	Shutdown(ctx context.Context) error

	// IsRunning reports whether the accept loop is active.
	IsRunning() bool

	// IsGone reports whether the listener has fully stopped (never started,
	// or shut down and all connections drained).
	IsGone() bool

	// OpenConnections returns the number of currently accepted connections.
	OpenConnections() int64

	// SetTLS enables or replaces the TLS configuration used for subsequently
	// accepted connections.
	SetTLS(enable bool, cfg libtls.TLSConfig) error
}

type server struct {
	cfg     sckcfg.Server
	handler libsck.HandlerFunc
	update  libsck.FuncUpdateConn

	mu       sync.Mutex
	listener net.Listener
	running  atomic.Bool
	open     atomic.Int64
	wg       sync.WaitGroup

	tlsMu  sync.RWMutex
	useTLS bool
	tlsCfg libtls.TLSConfig
}

// New validates cfg and returns a server bound to it. The returned server is
// not yet listening; call Listen to start accepting connections.
func New(update libsck.FuncUpdateConn, handler libsck.HandlerFunc, cfg sckcfg.Server) (ServerTcp, error) {
	if cfg.Address == "" {
		return nil, ErrInvalidAddress
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return nil, ErrInvalidAddress
	}
	if handler == nil {
		return nil, ErrInvalidAddress
	}

	s := &server{
		cfg:     cfg,
		handler: handler,
		update:  update,
	}

	if cfg.TLS.Enabled {
		s.useTLS = true
		s.tlsCfg = cfg.TLS.Config.New()
	}

	return s, nil
}

func (s *server) SetTLS(enable bool, cfg libtls.TLSConfig) error {
	s.tlsMu.Lock()
	defer s.tlsMu.Unlock()

	s.useTLS = enable
	s.tlsCfg = cfg
	return nil
}

func (s *server) IsRunning() bool {
	return s.running.Load()
}

func (s *server) IsGone() bool {
	return !s.running.Load() && s.open.Load() == 0
}

func (s *server) OpenConnections() int64 {
	return s.open.Load()
}

func (s *server) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	network := s.cfg.Network.Code()
	if network == "" || network == "unknown" {
		network = "tcp"
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, network, s.cfg.Address)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.listener = ln
	s.running.Store(true)
	s.mu.Unlock()

	defer func() {
		s.running.Store(false)
	}()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || libsck.IsClosedConnErr(err) {
				s.wg.Wait()
				return nil
			}
			return err
		}

		if s.update != nil {
			s.update(conn)
		}

		s.tlsMu.RLock()
		useTLS, tlsCfg := s.useTLS, s.tlsCfg
		s.tlsMu.RUnlock()

		if useTLS && tlsCfg != nil {
			conn = tlsServerConn(conn, tlsCfg)
		}

		s.open.Add(1)
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *server) serve(conn net.Conn) {
	defer func() {
		s.open.Add(-1)
		s.wg.Done()
	}()

	s.handler(&connContext{Conn: conn})
}

func (s *server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}

	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	_ = ln.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return nil
	}
}

// connContext adapts a net.Conn to the socket.Context interface handed to
// HandlerFunc.
type connContext struct {
	net.Conn
}
