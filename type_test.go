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
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeResolverRegistration(t *testing.T) {
	fory := NewFory(false)
	type A struct {
		F1 string
	}
	type B struct {
		F1 string
	}
	require.Nil(t, fory.RegisterByName(A{}, "example", "A"))
	err := fory.RegisterByName(A{}, "example", "A2")
	require.True(t, errors.Is(err, ErrDuplicatedRegistration))
	err = fory.RegisterByName(B{}, "example", "A")
	require.True(t, errors.Is(err, ErrDuplicatedRegistration))

	require.Nil(t, fory.RegisterByID(B{}, 7))
	type C struct {
		F1 string
	}
	err = fory.RegisterByID(C{}, 7)
	require.True(t, errors.Is(err, ErrDuplicatedRegistration))
	err = fory.RegisterByID(C{}, 0)
	require.True(t, errors.Is(err, ErrInvalidParam))
	err = fory.RegisterByID(C{}, -1)
	require.True(t, errors.Is(err, ErrInvalidParam))
}

func TestUnregisteredStructWrite(t *testing.T) {
	fory := NewFory(false)
	type unseen struct {
		F1 int32
	}
	_, err := fory.Marshal(unseen{F1: 1})
	require.True(t, errors.Is(err, ErrUnregisteredType))
}

func TestWireIDComposition(t *testing.T) {
	fory := NewFory(false)
	type A struct{ F1 int32 }
	require.Nil(t, fory.RegisterByID(A{}, 12))
	info := fory.typeResolver.typesInfo[reflect.TypeOf(A{})]
	require.Equal(t, TypeId(STRUCT), info.TypeId)
	require.Equal(t, int32(STRUCT)|12<<8, info.WireID)
	require.Equal(t, info, fory.typeResolver.userIDToTypeInfo[12])

	compat := NewForyBuilder().Compatible(true).Build()
	require.Nil(t, compat.RegisterByID(A{}, 12))
	cinfo := compat.typeResolver.typesInfo[reflect.TypeOf(A{})]
	require.Equal(t, TypeId(COMPATIBLE_STRUCT), cinfo.TypeId)
}

// Test slice type classification and serialization behavior
func TestSliceTypeClassification(t *testing.T) {
	t.Run("Type reflection properties", func(t *testing.T) {
		// Test []int16 (primitive slice)
		primitiveSlice := []int16{1, 2, 3}
		primitiveType := reflect.TypeOf(primitiveSlice)
		require.Equal(t, "", primitiveType.Name(), "[]int16 should have empty Name()")
		require.Equal(t, reflect.Slice, primitiveType.Kind())
		require.Equal(t, reflect.Int16, primitiveType.Elem().Kind())

		// Test Int16Slice (named type)
		namedSlice := Int16Slice{4, 5, 6}
		namedType := reflect.TypeOf(namedSlice)
		require.Equal(t, "Int16Slice", namedType.Name(), "Int16Slice should have non-empty Name()")
		require.Equal(t, reflect.Slice, namedType.Kind())
		require.Equal(t, reflect.Int16, namedType.Elem().Kind())

		// Test assignment compatibility
		var f12 Int16Slice
		f12 = []int16{-1, 4} // This works because Int16Slice is defined as []int16
		require.Equal(t, Int16Slice{-1, 4}, f12)
		require.Equal(t, "Int16Slice", reflect.TypeOf(f12).Name())
	})

	t.Run("Primitive slice array classification", func(t *testing.T) {
		testCases := []struct {
			name     string
			value    interface{}
			expected bool
			comment  string
		}{
			{"[]int16", []int16{1, 2, 3}, true, "primitive slice -> array"},
			{"Int16Slice", Int16Slice{4, 5, 6}, false, "named type -> list"},
			{"[]int", []int{1, 2, 3}, false, "generic type -> list"},
			{"[]int32", []int32{1, 2}, true, "primitive slice -> array"},
			{"[]float32", []float32{1.0, 2.0}, true, "primitive slice -> array"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				typ := reflect.TypeOf(tc.value)
				result := isPrimitiveSliceOrArrayType(typ)
				require.Equal(t, tc.expected, result,
					fmt.Sprintf("%s: %s", tc.name, tc.comment))
			})
		}
	})
}

// Test serialization behavior of different slice types
func TestPrimitiveSliceArrayMapping(t *testing.T) {
	fory_ := NewFory(true)

	t.Run("Primitive slice serialization", func(t *testing.T) {
		primitiveSlice := []int16{1, 2, 3}
		buffer := NewByteBuffer(nil)
		err := fory_.Serialize(buffer, primitiveSlice, nil)
		require.Nil(t, err, "Primitive slice should serialize successfully")
	})

	t.Run("Named slice serialization", func(t *testing.T) {
		namedSlice := Int16Slice{4, 5, 6}
		buffer := NewByteBuffer(nil)
		err := fory_.Serialize(buffer, namedSlice, nil)
		require.Nil(t, err, "Named slice should serialize successfully")
	})
}

func TestTypeDefEncodeParse(t *testing.T) {
	fory := NewForyBuilder().Compatible(true).Build()
	type defProbe struct {
		F1 int32
		F2 *string
		F3 []int64
		F4 map[string]float64
	}
	require.Nil(t, fory.RegisterByID(defProbe{}, 21))
	info := fory.typeResolver.typesInfo[reflect.TypeOf(defProbe{})]
	ss := info.Serializer.(*structSerializer)
	require.Nil(t, ss.ensure(fory))
	def, err := fory.typeResolver.buildTypeDef(info, ss.fields)
	require.Nil(t, err)
	require.False(t, def.named)
	require.Equal(t, int32(21), def.userID)
	require.Equal(t, 4, len(def.fields))

	// Re-parse the encoded bytes on a second instance registered with the
	// same schema.
	peer := NewForyBuilder().Compatible(true).Build()
	require.Nil(t, peer.RegisterByID(defProbe{}, 21))
	buf := NewByteBuffer(def.encoded)
	header := buf.ReadUint64()
	body := buf.ReadBinary(int(header & typeDefSizeMask))
	require.Nil(t, buf.Error())
	parsed, err := peer.typeResolver.parseTypeDef(header, body)
	require.Nil(t, err)
	require.Equal(t, def.header, parsed.header)
	require.NotNil(t, parsed.localInfo)
	require.Equal(t, len(def.fields), len(parsed.fields))
	for i := range def.fields {
		require.Equal(t, def.fields[i].Name, parsed.fields[i].Name)
		require.Equal(t, def.fields[i].Type.TypeID, parsed.fields[i].Type.TypeID)
		require.Equal(t, i, parsed.fieldMapping[i])
	}
}

// A field whose wire type changed between peers is a schema mismatch,
// not a silent skip.
func TestTypeDefFieldTypeConflict(t *testing.T) {
	writer := NewForyBuilder().Compatible(true).Build()
	reader := NewForyBuilder().Compatible(true).Build()
	type v1 struct {
		F1 int32
	}
	type v2 struct {
		F1 string
	}
	require.Nil(t, writer.RegisterByID(v1{}, 1))
	require.Nil(t, reader.RegisterByID(v2{}, 1))
	data, err := writer.Marshal(v1{F1: 5})
	require.Nil(t, err)
	var decoded v2
	err = reader.Unmarshal(data, &decoded)
	require.True(t, errors.Is(err, ErrForyMismatch), "got %v", err)
}

func TestNormalizeTypeId(t *testing.T) {
	require.Equal(t, TypeId(LIST), normalizeTypeId(INT32_ARRAY))
	require.Equal(t, TypeId(LIST), normalizeTypeId(ARRAY))
	require.Equal(t, TypeId(STRUCT), normalizeTypeId(NAMED_COMPATIBLE_STRUCT))
	require.Equal(t, TypeId(ENUM), normalizeTypeId(NAMED_ENUM))
	require.Equal(t, TypeId(MAP), normalizeTypeId(MAP))
}
