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

// Package config holds the validated configuration shapes shared by the
// socket client/server implementations.
package config

import (
	libtls "github.com/sabouaram/kvasync/certificates"
	libdur "github.com/sabouaram/kvasync/duration"
	libptc "github.com/sabouaram/kvasync/network/protocol"
)

// TLS toggles TLS on a server or client socket.
type TLS struct {
	Enabled bool             `json:"enabled" yaml:"enabled" toml:"enabled" mapstructure:"enabled"`
	Config  libtls.Config    `json:"config" yaml:"config" toml:"config" mapstructure:"config"`
	tls     libtls.TLSConfig `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

// Server is the configuration accepted by socket/server/tcp.New.
type Server struct {
	Network NetworkEnum `json:"network" yaml:"network" toml:"network" mapstructure:"network"`
	Address string      `json:"address" yaml:"address" toml:"address" mapstructure:"address" validate:"required"`

	ConIdleTimeout libdur.Duration `json:"conIdleTimeout" yaml:"conIdleTimeout" toml:"conIdleTimeout" mapstructure:"conIdleTimeout"`

	TLS TLS `json:"tls" yaml:"tls" toml:"tls" mapstructure:"tls"`
}

// NetworkEnum re-exports protocol.NetworkProtocol under the name the config
// struct tags expect.
type NetworkEnum = libptc.NetworkProtocol
