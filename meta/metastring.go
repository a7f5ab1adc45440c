// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

// Package meta compresses identifiers such as field names, namespaces and
// type names. Identifiers are mostly lowercase ASCII, so dense 5/6-bit
// encodings beat UTF-8 for them; the encoder picks whichever supported
// encoding yields the shortest output, with UTF-8 as the fallback.
package meta

import "fmt"

// Encoding identifies how a MetaString packs its characters.
type Encoding byte

const (
	// UTF_8 is the fallback encoding, legal for any string.
	UTF_8 Encoding = 0x00
	// LOWER_SPECIAL packs a-z . _ $ | at 5 bits per char.
	LOWER_SPECIAL Encoding = 0x01
	// LOWER_UPPER_DIGIT_SPECIAL packs a-z A-Z 0-9 plus two configured
	// special chars at 6 bits per char.
	LOWER_UPPER_DIGIT_SPECIAL Encoding = 0x02
	// FIRST_TO_LOWER_SPECIAL is LOWER_SPECIAL with the first char
	// lowercased on encode and restored on decode.
	FIRST_TO_LOWER_SPECIAL Encoding = 0x03
	// ALL_TO_LOWER_SPECIAL is LOWER_SPECIAL with each uppercase char
	// encoded as a '|' marker followed by its lowercase form.
	ALL_TO_LOWER_SPECIAL Encoding = 0x04
)

func (e Encoding) String() string {
	switch e {
	case UTF_8:
		return "UTF_8"
	case LOWER_SPECIAL:
		return "LOWER_SPECIAL"
	case LOWER_UPPER_DIGIT_SPECIAL:
		return "LOWER_UPPER_DIGIT_SPECIAL"
	case FIRST_TO_LOWER_SPECIAL:
		return "FIRST_TO_LOWER_SPECIAL"
	case ALL_TO_LOWER_SPECIAL:
		return "ALL_TO_LOWER_SPECIAL"
	}
	return fmt.Sprintf("Encoding(%d)", byte(e))
}

// MetaString is an identifier together with its encoded form.
type MetaString struct {
	inputString  string
	encoding     Encoding
	specialChar1 byte
	specialChar2 byte
	outputBytes  []byte
	stripLastChar bool
}

func (ms *MetaString) GetInputString() string  { return ms.inputString }
func (ms *MetaString) GetEncoding() Encoding   { return ms.encoding }
func (ms *MetaString) GetSpecialChar1() byte   { return ms.specialChar1 }
func (ms *MetaString) GetSpecialChar2() byte   { return ms.specialChar2 }
func (ms *MetaString) GetEncodedBytes() []byte { return ms.outputBytes }
func (ms *MetaString) StripLastChar() bool     { return ms.stripLastChar }
