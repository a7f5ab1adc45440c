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

package fory

// ForyBuilder configures and builds a Fory instance.
//
//	f := NewForyBuilder().Compatible(true).TrackRef(true).Build()
type ForyBuilder struct {
	language        Language
	compatible      bool
	trackRef        bool
	basicRef        bool
	stringRef       bool
	timeRef         bool
	typeDefCacheCap int
}

func NewForyBuilder() *ForyBuilder {
	return &ForyBuilder{
		language:        XLANG,
		typeDefCacheCap: defaultTypeDefCacheCap,
	}
}

// Xlang toggles cross-language mode: the magic-number prefix and the
// xlang header bit. Type dispatch is the same in both modes.
func (b *ForyBuilder) Xlang(on bool) *ForyBuilder {
	if on {
		b.language = XLANG
	} else {
		b.language = GO
	}
	return b
}

// Compatible selects schema-evolution mode: structs stream inline
// TypeDefs instead of a schema hash, and peers may add, remove or
// reorder fields.
func (b *ForyBuilder) Compatible(on bool) *ForyBuilder {
	b.compatible = on
	return b
}

// TrackRef is the master switch for reference tracking.
func (b *ForyBuilder) TrackRef(on bool) *ForyBuilder {
	b.trackRef = on
	return b
}

// BasicRef opens the reference-tracking gate for basic numeric values.
func (b *ForyBuilder) BasicRef(on bool) *ForyBuilder {
	b.basicRef = on
	return b
}

// StringRef opens the reference-tracking gate for string values.
func (b *ForyBuilder) StringRef(on bool) *ForyBuilder {
	b.stringRef = on
	return b
}

// TimeRef opens the reference-tracking gate for date and timestamp values.
func (b *ForyBuilder) TimeRef(on bool) *ForyBuilder {
	b.timeRef = on
	return b
}

// TypeDefCacheCap bounds the cross-message parsed-TypeDef cache,
// resisting adversarial inputs that stream unbounded schemas.
func (b *ForyBuilder) TypeDefCacheCap(n int) *ForyBuilder {
	if n > 0 {
		b.typeDefCacheCap = n
	}
	return b
}

// Build assembles the instance. The registry starts with the builtin
// types pre-registered.
func (b *ForyBuilder) Build() *Fory {
	f := &Fory{
		language:          b.language,
		referenceTracking: b.trackRef,
		compatible:        b.compatible,
		basicRef:          b.basicRef,
		stringRef:         b.stringRef,
		timeRef:           b.timeRef,
		typeDefCacheCap:   b.typeDefCacheCap,
		strResolver:       newStringResolver(),
	}
	f.refResolver = newRefResolver(b.trackRef)
	f.typeResolver = newTypeResolver(f)
	return f
}
