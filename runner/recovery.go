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

// Package runner holds the process-lifecycle helpers the logger package's
// file/syslog hooks recover through; it deliberately never imports logger
// itself, since a panic recovered while flushing a log hook cannot depend
// on that same log hook to report it.
package runner

import (
	"fmt"
	"os"
)

// RecoveryCaller reports a recovered panic to stderr, tagging it with the
// caller's own identity so a panic recovered deep inside a log hook still
// points back at its origin. recovered is whatever recover() returned; a
// nil value is a no-op.
func RecoveryCaller(caller string, recovered interface{}, extra ...string) {
	if recovered == nil {
		return
	}

	msg := fmt.Sprintf("recovered panic in %s: %v", caller, recovered)
	for _, e := range extra {
		msg += " (" + e + ")"
	}
	_, _ = fmt.Fprintln(os.Stderr, msg)
}
