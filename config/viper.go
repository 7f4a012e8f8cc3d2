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

package config

import (
	"github.com/spf13/viper"

	liberr "github.com/sabouaram/kvasync/errors"
)

// LoadViper unmarshals v's "async" key onto a copy of DefaultEngineOptions
// (so any field the caller's configuration source omits keeps its
// default), validates the result, and returns it.
func LoadViper(v *viper.Viper) (*EngineOptions, liberr.Error) {
	if v == nil {
		return nil, ErrorViperMissing.Error(nil)
	}

	opts := DefaultEngineOptions()

	if v.IsSet("async") {
		if err := v.UnmarshalKey("async", &opts); err != nil {
			return nil, ErrorUnmarshal.Error(err)
		}
	}

	if verr := opts.Validate(); verr != nil {
		return nil, verr
	}

	return &opts, nil
}
