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

package kvclient

import (
	"context"

	"github.com/sabouaram/kvasync/buffer"
	"github.com/sabouaram/kvasync/command"
	liberr "github.com/sabouaram/kvasync/errors"
	"github.com/sabouaram/kvasync/fanout"
	"github.com/sabouaram/kvasync/node"
	"github.com/sabouaram/kvasync/wire"
)

// batchCapability renders one node's share of a batch read: a request
// framing one RecordHeader whose fields carry every key's namespace/set/
// digest triple in sequence, mirroring a single-key request's shape but
// with N keys' worth of fields.
func batchCapability(n *node.Node, keys []fanout.Key) command.Capability {
	return command.Capability{
		BuildRequest: func(seg *buffer.Segment) (int, error) {
			var fields []wire.Field
			for _, k := range keys {
				fields = append(fields, keyFields(k.Namespace, k.Set, k.Digest)...)
			}
			return renderRequest(seg, fields, nil)
		},
		ParseBody: command.DefaultParseBody,
	}
}

// Batch dispatches a multi-key read, splitting keys by their current
// owning node and aggregating every child's records into listener, per
// fanout's first-failure-wins accounting.
func (c *Client) Batch(ctx context.Context, keys []fanout.Key, listener fanout.Listener) liberr.Error {
	if len(keys) == 0 {
		return ErrorNoKeys.Error(nil)
	}
	return fanout.RunBatch(ctx, keys, c.locator(), command.KindBatchChild, batchCapability, c.rig, listener)
}
