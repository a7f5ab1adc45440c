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

// Collection element-stream header bits.
const (
	// collectionTrackingRef: every element is introduced by a full ref
	// flag byte.
	collectionTrackingRef byte = 0b1
	// collectionHasNull: at least one element is null; untracked streams
	// put a 1-byte null flag before each element.
	collectionHasNull byte = 0b10
	// collectionDeclElementType: all elements have the declared element
	// type, no type info is written at all.
	collectionDeclElementType byte = 0b100
	// collectionIsSameType: all elements share one runtime type; a single
	// type-info record follows the flags.
	collectionIsSameType byte = 0b1000
)

// writeCollection writes length, the flags byte and the element stream.
// declElemType is the statically declared element type, or nil for a
// fully dynamic stream.
func (f *Fory) writeCollection(buf *ByteBuffer, elems []reflect.Value, declElemType reflect.Type) error {
	buf.WriteLength(len(elems))
	if len(elems) == 0 {
		return nil
	}
	concrete := make([]reflect.Value, len(elems))
	hasNull := false
	sameType := true
	var elemType reflect.Type
	for i, e := range elems {
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		concrete[i] = e
		if !e.IsValid() || isNil(e) {
			hasNull = true
			continue
		}
		if elemType == nil {
			elemType = e.Type()
		} else if elemType != e.Type() {
			sameType = false
		}
	}
	// The stream stays self-describing even for statically typed slices: a
	// homogeneous run is announced with one embedded type-info record
	// rather than the declared-type bit, so a peer reading the value
	// dynamically needs no out-of-band schema.
	var elemInfo *TypeInfo
	var err error
	resolveType := elemType
	if resolveType == nil && declElemType != nil && !isDynamicType(declElemType) {
		resolveType = declElemType
	}
	if sameType && resolveType != nil {
		if elemInfo, err = f.typeResolver.getTypeInfoByType(resolveType); err != nil {
			return err
		}
	}

	var flags byte
	tracked := f.referenceTracking
	if sameType && elemInfo != nil {
		flags |= collectionIsSameType
		if !nullable(resolveType) || !f.trackRefFor(elemInfo) {
			tracked = false
		}
	}
	if tracked {
		flags |= collectionTrackingRef
	}
	if hasNull {
		flags |= collectionHasNull
	}
	buf.WriteByte_(flags)
	if flags&collectionIsSameType != 0 {
		if err := f.typeResolver.writeTypeInfo(buf, elemInfo); err != nil {
			return err
		}
	}
	for _, e := range concrete {
		if tracked {
			if err := f.writeTracked(buf, e, flags&collectionIsSameType == 0); err != nil {
				return err
			}
			continue
		}
		if hasNull {
			if !e.IsValid() || isNil(e) {
				buf.WriteInt8(NullFlag)
				continue
			}
			buf.WriteInt8(NotNullValueFlag)
		}
		info := elemInfo
		if info == nil {
			var err error
			if info, err = f.typeResolver.getTypeInfo(e, true); err != nil {
				return err
			}
			if err := f.typeResolver.writeTypeInfo(buf, info); err != nil {
				return err
			}
		}
		if err := f.writeData(buf, info, e); err != nil {
			return err
		}
	}
	return buf.Error()
}

// readCollection reads the flags byte and length elements, handing each
// one to set. The caller has read the length and created the container.
func (f *Fory) readCollection(buf *ByteBuffer, length int, declElemType reflect.Type, set func(i int, v reflect.Value) error) error {
	if length == 0 {
		return nil
	}
	flags := buf.ReadByte_()
	if err := buf.Error(); err != nil {
		return err
	}
	var elemInfo *TypeInfo
	var elemDef *TypeDef
	var err error
	if flags&collectionIsSameType != 0 {
		if elemInfo, elemDef, err = f.typeResolver.readTypeInfo(buf); err != nil {
			return err
		}
	} else if flags&collectionDeclElementType != 0 {
		if declElemType == nil {
			return fmt.Errorf("stream declares a static element type the reader lacks: %w", ErrTypeMismatch)
		}
		if elemInfo, err = f.typeResolver.getTypeInfoByType(declElemType); err != nil {
			return err
		}
	}
	targetType := declElemType
	if targetType == nil {
		targetType = interfaceType
	}
	for i := 0; i < length; i++ {
		target := reflect.New(targetType).Elem()
		if flags&collectionTrackingRef != 0 {
			if err := f.readTracked(buf, target, elemInfo, elemDef, flags&(collectionIsSameType|collectionDeclElementType) == 0); err != nil {
				return err
			}
		} else {
			if flags&collectionHasNull != 0 {
				nullFlag := buf.ReadInt8()
				if nullFlag == NullFlag {
					if err := set(i, target); err != nil {
						return err
					}
					continue
				}
				if nullFlag != NotNullValueFlag {
					return fmt.Errorf("bad element null flag %d: %w", nullFlag, ErrInvalidData)
				}
			}
			info, def := elemInfo, elemDef
			if info == nil {
				if info, def, err = f.typeResolver.readTypeInfo(buf); err != nil {
					return err
				}
			}
			if err := f.readData(buf, info, def, target); err != nil {
				return err
			}
		}
		if err := set(i, target); err != nil {
			return err
		}
	}
	return buf.Error()
}

// sliceSerializer handles slices with dynamic (interface) elements.
type sliceSerializer struct{}

func (s sliceSerializer) TypeId() TypeId { return LIST }

func (s sliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	elems := make([]reflect.Value, value.Len())
	for i := range elems {
		elems[i] = value.Index(i)
	}
	return f.writeCollection(buf, elems, nil)
}

func (s sliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	if type_.Kind() != reflect.Slice {
		type_ = interfaceSliceType
	}
	value.Set(reflect.MakeSlice(type_, length, length))
	f.refResolver.ReferenceTaken(value)
	return f.readCollection(buf, length, nil, func(i int, v reflect.Value) error {
		return setValue(value.Index(i), v)
	})
}

// sliceConcreteValueSerializer handles slices with one declared,
// non-dynamic element type.
type sliceConcreteValueSerializer struct {
	type_        reflect.Type
	referencable bool
}

func (s *sliceConcreteValueSerializer) TypeId() TypeId { return LIST }

func (s *sliceConcreteValueSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	elems := make([]reflect.Value, value.Len())
	for i := range elems {
		elems[i] = value.Index(i)
	}
	return f.writeCollection(buf, elems, s.type_.Elem())
}

func (s *sliceConcreteValueSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(s.type_, length, length))
	f.refResolver.ReferenceTaken(value)
	return f.readCollection(buf, length, s.type_.Elem(), func(i int, v reflect.Value) error {
		return setValue(value.Index(i), v)
	})
}

// stringSliceSerializer is the common []string fast path; elements flow
// through the per-message string table like any other string.
type stringSliceSerializer struct{}

func (s stringSliceSerializer) TypeId() TypeId { return LIST }

func (s stringSliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	elems := make([]reflect.Value, value.Len())
	for i := range elems {
		elems[i] = value.Index(i)
	}
	return f.writeCollection(buf, elems, stringType)
}

func (s stringSliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(stringSliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	return f.readCollection(buf, length, stringType, func(i int, v reflect.Value) error {
		return setValue(value.Index(i), v)
	})
}

// Primitive slices bypass the element framing entirely: a count followed
// by fixed-width little-endian elements.

type boolSliceSerializer struct{}

func (s boolSliceSerializer) TypeId() TypeId { return BOOL_ARRAY }

func (s boolSliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteLength(value.Len())
	for i := 0; i < value.Len(); i++ {
		buf.WriteBool(value.Index(i).Bool())
	}
	return nil
}

func (s boolSliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(boolSliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	for i := 0; i < length; i++ {
		value.Index(i).SetBool(buf.ReadBool())
	}
	return buf.Error()
}

type int16SliceSerializer struct{}

func (s int16SliceSerializer) TypeId() TypeId { return INT16_ARRAY }

func (s int16SliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteLength(value.Len())
	for i := 0; i < value.Len(); i++ {
		buf.WriteInt16(int16(value.Index(i).Int()))
	}
	return nil
}

func (s int16SliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(int16SliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	for i := 0; i < length; i++ {
		value.Index(i).SetInt(int64(buf.ReadInt16()))
	}
	return buf.Error()
}

type int32SliceSerializer struct{}

func (s int32SliceSerializer) TypeId() TypeId { return INT32_ARRAY }

func (s int32SliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteLength(value.Len())
	for i := 0; i < value.Len(); i++ {
		buf.WriteInt32(int32(value.Index(i).Int()))
	}
	return nil
}

func (s int32SliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(int32SliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	for i := 0; i < length; i++ {
		value.Index(i).SetInt(int64(buf.ReadInt32()))
	}
	return buf.Error()
}

type int64SliceSerializer struct{}

func (s int64SliceSerializer) TypeId() TypeId { return INT64_ARRAY }

func (s int64SliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteLength(value.Len())
	for i := 0; i < value.Len(); i++ {
		buf.WriteInt64(value.Index(i).Int())
	}
	return nil
}

func (s int64SliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(int64SliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	for i := 0; i < length; i++ {
		value.Index(i).SetInt(buf.ReadInt64())
	}
	return buf.Error()
}

type float32SliceSerializer struct{}

func (s float32SliceSerializer) TypeId() TypeId { return FLOAT32_ARRAY }

func (s float32SliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteLength(value.Len())
	for i := 0; i < value.Len(); i++ {
		buf.WriteFloat32(float32(value.Index(i).Float()))
	}
	return nil
}

func (s float32SliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(float32SliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	for i := 0; i < length; i++ {
		value.Index(i).SetFloat(float64(buf.ReadFloat32()))
	}
	return buf.Error()
}

type float64SliceSerializer struct{}

func (s float64SliceSerializer) TypeId() TypeId { return FLOAT64_ARRAY }

func (s float64SliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteLength(value.Len())
	for i := 0; i < value.Len(); i++ {
		buf.WriteFloat64(value.Index(i).Float())
	}
	return nil
}

func (s float64SliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeSlice(float64SliceType, length, length))
	f.refResolver.ReferenceTaken(value)
	for i := 0; i < length; i++ {
		value.Index(i).SetFloat(buf.ReadFloat64())
	}
	return buf.Error()
}

// arraySerializer folds Go arrays into the list wire type: the payload
// is identical to the corresponding slice's.
type arraySerializer struct{}

func (s arraySerializer) TypeId() TypeId { return LIST }

func (s arraySerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	elems := make([]reflect.Value, value.Len())
	for i := range elems {
		elems[i] = value.Index(i)
	}
	return f.writeCollection(buf, elems, nil)
}

func (s arraySerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	if length > value.Len() {
		return fmt.Errorf("array length %d exceeds %d: %w", length, value.Len(), ErrTypeMismatch)
	}
	return f.readCollection(buf, length, nil, func(i int, v reflect.Value) error {
		return setValue(value.Index(i), v)
	})
}

type arrayConcreteValueSerializer struct {
	type_        reflect.Type
	referencable bool
}

func (s *arrayConcreteValueSerializer) TypeId() TypeId { return LIST }

func (s *arrayConcreteValueSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	elems := make([]reflect.Value, value.Len())
	for i := range elems {
		elems[i] = value.Index(i)
	}
	return f.writeCollection(buf, elems, s.type_.Elem())
}

func (s *arrayConcreteValueSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	if length > value.Len() {
		return fmt.Errorf("array length %d exceeds %d: %w", length, value.Len(), ErrTypeMismatch)
	}
	return f.readCollection(buf, length, s.type_.Elem(), func(i int, v reflect.Value) error {
		return setValue(value.Index(i), v)
	})
}
