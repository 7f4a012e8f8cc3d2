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

package cluster

import (
	"github.com/sabouaram/kvasync/logger"
)

// clusterLogAdded reports a node joining the cluster at InfoLevel, with
// its dial targets attached as structured fields the way the teacher's
// own components log membership changes.
func clusterLogAdded(info NodeInfo) {
	logger.InfoLevel.WithFields("cluster: node registered", logger.Fields{
		"node":       info.Name,
		"addresses":  info.Addresses,
		"rack":       info.Rack,
		"partitions": len(info.Partitions),
	})
}

// clusterLogRemoved reports a node leaving the cluster at WarnLevel: a
// removal mid-traffic is worth a human's attention even though it is not
// itself an error.
func clusterLogRemoved(name string) {
	logger.WarnLevel.WithFields("cluster: node removed", logger.Fields{
		"node": name,
	})
}
