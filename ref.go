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

import (
	"fmt"
	"reflect"
)

// Ref flags. Every trackable value is introduced by one of these bytes.
const (
	// NullFlag marks a null value.
	NullFlag int8 = -3
	// RefFlag marks a back-reference; a VarUint32 ref id follows.
	RefFlag int8 = -2
	// NotNullValueFlag marks a non-null value outside ref tracking.
	NotNullValueFlag int8 = -1
	// RefValueFlag marks a non-null value that registers the next ref id.
	RefValueFlag int8 = 0
)

// refKey identifies an object by its data pointer. Slices carry the
// length as well, since distinct slices may share a backing array.
type refKey struct {
	ptr    uintptr
	length int
	typ    reflect.Type
}

// refResolver assigns reference ids on write and resolves back
// references on read. Ref ids are message-local and strictly increasing.
type refResolver struct {
	refTracking    bool
	writtenObjects map[refKey]int32
	writtenCount   int32
	readObjects    []reflect.Value
	// pendingRef is the slot reserved for the value currently being
	// materialized; the serializer that creates the container consumes it
	// before recursing so cycles resolve to the shell.
	pendingRef int32
}

func newRefResolver(refTracking bool) *refResolver {
	return &refResolver{
		refTracking:    refTracking,
		writtenObjects: map[refKey]int32{},
		pendingRef:     -1,
	}
}

func refTrackable(value reflect.Value) bool {
	switch value.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

func makeRefKey(value reflect.Value) refKey {
	key := refKey{ptr: value.Pointer(), typ: value.Type()}
	if value.Kind() == reflect.Slice {
		key.length = value.Len()
	}
	return key
}

// WriteRefOrNull writes the introducing flag for value. It returns true
// when the flag alone fully encodes the value (null, or a back
// reference), so the caller must not write the payload. The tracked
// argument carries the caller's category-gate decision.
func (r *refResolver) WriteRefOrNull(buf *ByteBuffer, value reflect.Value, tracked bool) bool {
	if !value.IsValid() || isNil(value) {
		buf.WriteInt8(NullFlag)
		return true
	}
	if !tracked || !refTrackable(value) {
		buf.WriteInt8(NotNullValueFlag)
		return false
	}
	key := makeRefKey(value)
	if id, ok := r.writtenObjects[key]; ok {
		buf.WriteInt8(RefFlag)
		buf.WriteVarUint32(uint32(id))
		return true
	}
	r.writtenObjects[key] = r.writtenCount
	r.writtenCount++
	buf.WriteInt8(RefValueFlag)
	return false
}

// Reserve allocates the next read-side ref id before the object is
// materialized, so cycles inside the object resolve to the shell set by
// a later ReferenceTaken call.
func (r *refResolver) Reserve() int32 {
	r.readObjects = append(r.readObjects, reflect.Value{})
	return int32(len(r.readObjects) - 1)
}

// SetPending arms the pending slot for the next materialized value.
func (r *refResolver) SetPending(id int32) {
	r.pendingRef = id
}

// ReferenceTaken stores the freshly created container in the pending
// slot, if one is armed. Serializers call it right after allocation and
// before filling elements.
func (r *refResolver) ReferenceTaken(value reflect.Value) {
	if r.pendingRef >= 0 {
		r.readObjects[r.pendingRef] = value
		r.pendingRef = -1
	}
}

// GetReadObject resolves a back-reference.
func (r *refResolver) GetReadObject(id int32) (reflect.Value, error) {
	if id < 0 || int(id) >= len(r.readObjects) {
		return reflect.Value{}, fmt.Errorf("ref id %d out of range [0, %d): %w",
			id, len(r.readObjects), ErrInvalidRef)
	}
	v := r.readObjects[id]
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("ref id %d not materialized: %w", id, ErrInvalidRef)
	}
	return v, nil
}

func (r *refResolver) resetWrite() {
	if r.writtenCount > 0 {
		r.writtenObjects = map[refKey]int32{}
		r.writtenCount = 0
	}
}

func (r *refResolver) resetRead() {
	r.readObjects = r.readObjects[:0]
	r.pendingRef = -1
}
