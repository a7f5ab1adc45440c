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
	"errors"
	"fmt"
)

// Error taxonomy of the core. All errors are recoverable: a failed
// serialize/deserialize call never corrupts the type registry, and the
// per-call context is reset before the next call.
var (
	// ErrUnexpectedEof is returned when the buffer is exhausted in the
	// middle of a record.
	ErrUnexpectedEof = errors.New("unexpected end of buffer")
	// ErrInvalidData is returned when wire bytes violate a protocol
	// constraint: bad encoding tag, oversized meta string, malformed varint.
	ErrInvalidData = errors.New("invalid wire data")
	// ErrTypeMismatch is returned when the on-wire kind disagrees with the
	// declared read type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrForyMismatch is returned when the schema hash disagrees, or a
	// field's wire type disagrees with the local schema.
	ErrForyMismatch = errors.New("fory schema mismatch")
	// ErrUnregisteredType is returned when a referenced identity is not
	// present in the registry.
	ErrUnregisteredType = errors.New("type not registered")
	// ErrDuplicatedRegistration is returned on an attempt to reuse an id,
	// a name, or a native type.
	ErrDuplicatedRegistration = errors.New("duplicated registration")
	// ErrUnsupportedType is returned for a recognized but unimplementable type.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrUnsupportedFeature is returned for a recognized but unimplemented
	// protocol feature.
	ErrUnsupportedFeature = errors.New("unsupported feature")
	// ErrInvalidRef is returned when a ref flag was read for a category
	// that is not reference trackable.
	ErrInvalidRef = errors.New("invalid reference")
	// ErrInvalidParam is returned on caller-facing misuse of the API surface.
	ErrInvalidParam = errors.New("invalid parameter")
)

// TypeUnregisteredError indicates when a requested type is not registered.
type TypeUnregisteredError struct {
	TypeName string
}

func (e *TypeUnregisteredError) Error() string {
	return fmt.Sprintf("type %s not registered", e.TypeName)
}

func (e *TypeUnregisteredError) Unwrap() error { return ErrUnregisteredType }

// TagUnregisteredError indicates an on-wire numeric id with no local mapping.
type TagUnregisteredError struct {
	ID int32
}

func (e *TagUnregisteredError) Error() string {
	return fmt.Sprintf("type id %d not registered", e.ID)
}

func (e *TagUnregisteredError) Unwrap() error { return ErrUnregisteredType }
