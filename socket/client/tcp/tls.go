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

package tcp

import (
	"context"
	"crypto/tls"
	"net"

	libtls "github.com/sabouaram/kvasync/certificates"
)

// newTLSClientConn wraps conn in a TLS client and runs the handshake bound
// to ctx, so a cancelled/expired context aborts a stalled handshake instead
// of blocking forever.
func newTLSClientConn(ctx context.Context, conn net.Conn, cfg libtls.TLSConfig, serverName string) (net.Conn, error) {
	tc := tls.Client(conn, cfg.TlsConfig(serverName))

	done := make(chan error, 1)
	go func() {
		done <- tc.Handshake()
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return tc, nil
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}
