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

package wire

// ResultCode is the server's outcome byte on a RecordHeader. Only the
// subset the core core actually branches on is named here; any other
// non-zero value is surfaced to the caller as a generic server error
// carrying the raw code.
const (
	ResultOK                  uint8 = 0
	ResultKeyNotFoundError    uint8 = 2
	ResultBinExistsError      uint8 = 5
	ResultNoMoreConnections   uint8 = 21
	ResultSecurityNotEnabled  uint8 = 52
	ResultUDFBadResponse      uint8 = 100
	ResultFilteredOut         uint8 = 27
	ResultMRTAborted          uint8 = 33
	ResultMRTCommitted        uint8 = 34
	ResultTxnFailed           uint8 = 35
)

// Retryable reports whether code belongs to the narrow set of
// server-reported outcomes the core treats as transient rather than
// terminal. The wire layer itself never retries; this just classifies the
// code for callers (command/fanout/partition) that do.
func Retryable(code uint8) bool {
	switch code {
	case ResultNoMoreConnections:
		return true
	}
	return false
}
