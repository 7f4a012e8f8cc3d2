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

// Package config unmarshals and validates the options an embedding
// application hands this module on startup, and turns them into the
// admission.Policy, cluster.Options and kvclient.Policies the rest of the
// runtime is actually built from.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sabouaram/kvasync/admission"
	"github.com/sabouaram/kvasync/cluster"
	"github.com/sabouaram/kvasync/command"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/kvclient"
)

// Policy is one command family's deadline and retry budget.
type Policy struct {
	TotalTimeout        time.Duration `mapstructure:"totalTimeout" validate:"required"`
	SocketTimeout       time.Duration `mapstructure:"socketTimeout" validate:"required"`
	MaxRetries          int           `mapstructure:"maxRetries" validate:"gte=0"`
	SleepBetweenRetries time.Duration `mapstructure:"sleepBetweenRetries"`
	TimeoutDelay        time.Duration `mapstructure:"timeoutDelay"`
}

func (p Policy) toCommand() command.Policy {
	return command.Policy{
		TotalTimeout:        p.TotalTimeout,
		SocketTimeout:       p.SocketTimeout,
		MaxRetries:          p.MaxRetries,
		SleepBetweenRetries: p.SleepBetweenRetries,
		TimeoutDelay:        p.TimeoutDelay,
	}
}

func defaultPolicy() Policy {
	return Policy{
		TotalTimeout:        time.Second,
		SocketTimeout:       500 * time.Millisecond,
		MaxRetries:          2,
		SleepBetweenRetries: 10 * time.Millisecond,
		TimeoutDelay:        50 * time.Millisecond,
	}
}

// EngineOptions is the full set of recognized async-client options:
// one field per row of the module's external configuration table, plus
// one Policy per command family.
type EngineOptions struct {
	// AsyncMaxCommandAction selects the admission behavior once
	// AsyncMaxCommands in-flight commands are outstanding.
	AsyncMaxCommandAction admission.Policy `mapstructure:"asyncMaxCommandAction"`
	// AsyncMaxCommands bounds global in-flight commands.
	AsyncMaxCommands int64 `mapstructure:"asyncMaxCommands" validate:"gt=0"`
	// AsyncMaxCommandsInQueue bounds the delay queue when
	// AsyncMaxCommandAction is PolicyDelay; 0 means unbounded.
	AsyncMaxCommandsInQueue int `mapstructure:"asyncMaxCommandsInQueue" validate:"gte=0"`

	// AsyncMinConnsPerNode/AsyncMaxConnsPerNode size every node's
	// connection pool.
	AsyncMinConnsPerNode int `mapstructure:"asyncMinConnsPerNode" validate:"gte=0"`
	AsyncMaxConnsPerNode int `mapstructure:"asyncMaxConnsPerNode"`

	// AsyncBufferSize is the shared buffer pool's slab slot size, rounded
	// up to 8 KiB by buffer.New.
	AsyncBufferSize int `mapstructure:"asyncBufferSize" validate:"gt=0"`
	// AsyncBufferSlots is the shared buffer pool's slot count.
	AsyncBufferSlots int `mapstructure:"asyncBufferSlots" validate:"gt=0"`

	// MaxSocketIdle bounds how long an idle pooled connection stays
	// eligible for reuse.
	MaxSocketIdle time.Duration `mapstructure:"maxSocketIdle" validate:"required"`

	// TLS/ServerName configure every node connection this module dials.
	TLS        bool   `mapstructure:"tls"`
	ServerName string `mapstructure:"serverName"`

	Read  Policy `mapstructure:"read" validate:"required"`
	Write Policy `mapstructure:"write" validate:"required"`
	Batch Policy `mapstructure:"batch" validate:"required"`
	Scan  Policy `mapstructure:"scan" validate:"required"`
	Query Policy `mapstructure:"query" validate:"required"`
	Txn   Policy `mapstructure:"txn" validate:"required"`

	// FanoutRetries/ScanRounds tune kvclient.Client's own retry/round
	// budget on top of each Policy's per-command retries.
	FanoutRetries int `mapstructure:"fanoutRetries" validate:"gte=0"`
	ScanRounds    int `mapstructure:"scanRounds" validate:"gt=0"`
}

// DefaultEngineOptions resolves spec.md §9's Open Question
// ("AsyncMaxCommands default") at 100 in-flight commands, rejecting
// admission once exceeded, with an 8 KiB buffer slot matching
// AsyncBufferSize's own rounding floor.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		AsyncMaxCommandAction:   admission.PolicyReject,
		AsyncMaxCommands:        100,
		AsyncMaxCommandsInQueue: 0,
		AsyncMinConnsPerNode:    1,
		AsyncMaxConnsPerNode:    8,
		AsyncBufferSize:         8 * 1024,
		AsyncBufferSlots:        256,
		MaxSocketIdle:           5 * time.Minute,
		Read:                    defaultPolicy(),
		Write:                   defaultPolicy(),
		Batch:                   defaultPolicy(),
		Scan:                    defaultPolicy(),
		Query:                   defaultPolicy(),
		Txn:                     defaultPolicy(),
		FanoutRetries:           2,
		ScanRounds:              8,
	}
}

var validate = validator.New()

// Validate runs struct-tag validation over o, the same validator.v10
// instance the teacher's own component configs are checked with.
func (o *EngineOptions) Validate() liberr.Error {
	if o == nil {
		return ErrorParamEmpty.Error(nil)
	}
	if err := validate.Struct(o); err != nil {
		return ErrorValidation.Error(err)
	}
	return nil
}

// ClusterOptions projects o onto the cluster.Options a cluster.New call
// needs to build its shared scheduling primitives and node pools.
func (o EngineOptions) ClusterOptions() cluster.Options {
	return cluster.Options{
		TLS:              o.TLS,
		ServerName:       o.ServerName,
		PoolCapacity:     o.AsyncMaxConnsPerNode,
		PoolMaxIdle:      o.MaxSocketIdle,
		BufferSlotCount:  o.AsyncBufferSlots,
		BufferSlotSize:   o.AsyncBufferSize,
		AdmissionPolicy:  o.AsyncMaxCommandAction,
		AdmissionLimit:   o.AsyncMaxCommands,
		AdmissionMaxWait: o.AsyncMaxCommandsInQueue,
	}
}

// ClientPolicies projects o onto the per-command-family policies a
// kvclient.Client dispatches with.
func (o EngineOptions) ClientPolicies() kvclient.Policies {
	return kvclient.Policies{
		Read:  o.Read.toCommand(),
		Write: o.Write.toCommand(),
		Batch: o.Batch.toCommand(),
		Scan:  o.Scan.toCommand(),
		Query: o.Query.toCommand(),
		Txn:   o.Txn.toCommand(),
	}
}

// ClientOptions projects o onto kvclient.Client's own fan-out/scan
// tuning knobs.
func (o EngineOptions) ClientOptions() kvclient.Options {
	return kvclient.Options{
		FanoutRetries: o.FanoutRetries,
		ScanRounds:    o.ScanRounds,
	}
}
