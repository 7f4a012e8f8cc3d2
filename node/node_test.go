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

package node_test

import (
	"github.com/sabouaram/kvasync/node"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Node", func() {
	It("starts active with full health", func() {
		n := node.New("n1", []string{"127.0.0.1:7000"}, "rack-a", nil)

		Expect(n.IsActive()).To(BeTrue())
		Expect(n.Health()).To(BeEquivalentTo(100))
	})

	It("clamps health at zero and one hundred", func() {
		n := node.New("n1", []string{"127.0.0.1:7000"}, "rack-a", nil)

		n.DecHealth(1000)
		Expect(n.Health()).To(BeEquivalentTo(0))

		n.RestoreHealth(1000)
		Expect(n.Health()).To(BeEquivalentTo(100))
	})

	It("flips liveness on SetActive", func() {
		n := node.New("n1", []string{"127.0.0.1:7000"}, "rack-a", nil)

		n.SetActive(false)
		Expect(n.IsActive()).To(BeFalse())
	})

	It("round-robins SEQUENCE replica selection", func() {
		Expect(node.PolicySequence.Next(0, 3, nil)).To(Equal(0))
		Expect(node.PolicySequence.Next(1, 3, nil)).To(Equal(1))
		Expect(node.PolicySequence.Next(3, 3, nil)).To(Equal(0))
	})

	It("always targets replica zero under MASTER", func() {
		Expect(node.PolicyMaster.Next(5, 3, nil)).To(Equal(0))
	})
})
