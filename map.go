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

// MaxChunkSize is the largest run of map entries sharing one chunk
// header, chosen as the largest count that fits the chunk-size byte.
const MaxChunkSize = 255

// Map chunk header bits. A chunk is a run of entries that agree on key
// and value nullability, type, and declaredness; nulls and runtime type
// changes end the current chunk.
const (
	chunkKeyNull        byte = 0b1
	chunkValueNull      byte = 0b10
	chunkKeyDeclType    byte = 0b100
	chunkValueDeclType  byte = 0b1000
	chunkTrackKeyRef    byte = 0b10000
	chunkTrackValueRef  byte = 0b100000
)

type mapSerializer struct {
	type_       reflect.Type
	mapInStruct bool
}

func (s mapSerializer) TypeId() TypeId { return MAP }

// mapSide captures the per-chunk state of one side (keys or values).
type mapSide struct {
	tracked bool
	info    *TypeInfo
}

// startMapSide fixes one side's chunk state from its first entry. Like
// lists, maps stay self-describing: the run's type travels in a chunk
// type-info record, never as an implicit declared type.
func (f *Fory) startMapSide(runtime reflect.Value) (mapSide, error) {
	var side mapSide
	var err error
	if side.info, err = f.typeResolver.getTypeInfo(runtime, true); err != nil {
		return side, err
	}
	side.tracked = f.referenceTracking &&
		nullable(runtime.Type()) && f.trackRefFor(side.info)
	return side, nil
}

func (s mapSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	size := value.Len()
	buf.WriteLength(size)
	if size == 0 {
		return nil
	}
	keys := make([]reflect.Value, 0, size)
	vals := make([]reflect.Value, 0, size)
	iter := value.MapRange()
	for iter.Next() {
		k, v := iter.Key(), iter.Value()
		if k.Kind() == reflect.Interface {
			k = k.Elem()
		}
		if v.Kind() == reflect.Interface {
			v = v.Elem()
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	i := 0
	for i < size {
		k, v := keys[i], vals[i]
		keyNull := !k.IsValid() || isNil(k)
		valNull := !v.IsValid() || isNil(v)
		if keyNull || valNull {
			if err := f.writeMapNullEntry(buf, k, v, keyNull, valNull); err != nil {
				return err
			}
			i++
			continue
		}
		keySide, err := f.startMapSide(k)
		if err != nil {
			return err
		}
		valSide, err := f.startMapSide(v)
		if err != nil {
			return err
		}
		var header byte
		if keySide.tracked {
			header |= chunkTrackKeyRef
		}
		if valSide.tracked {
			header |= chunkTrackValueRef
		}
		buf.WriteByte_(header)
		countPos := buf.WriterIndex()
		buf.WriteByte_(0)
		if err := f.typeResolver.writeTypeInfo(buf, keySide.info); err != nil {
			return err
		}
		if err := f.typeResolver.writeTypeInfo(buf, valSide.info); err != nil {
			return err
		}
		count := 0
		for i < size && count < MaxChunkSize {
			k, v = keys[i], vals[i]
			if !k.IsValid() || isNil(k) || !v.IsValid() || isNil(v) {
				break
			}
			if chunkElemType(k) != keySide.info.Type {
				break
			}
			if chunkElemType(v) != valSide.info.Type {
				break
			}
			if err := f.writeMapElem(buf, keySide, k); err != nil {
				return err
			}
			if err := f.writeMapElem(buf, valSide, v); err != nil {
				return err
			}
			count++
			i++
		}
		buf.PutByte(countPos, byte(count))
	}
	return buf.Error()
}

// chunkElemType is the runtime type a chunk's type-info record stands
// for: pointers resolve to their pointee, like the descriptor they map to.
func chunkElemType(v reflect.Value) reflect.Type {
	t := v.Type()
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

func (f *Fory) writeMapElem(buf *ByteBuffer, side mapSide, v reflect.Value) error {
	if side.tracked {
		// The chunk-level record already fixed the type.
		return f.writeTracked(buf, v, false)
	}
	return f.writeData(buf, side.info, v)
}

// writeMapNullEntry writes a single-entry chunk for an entry with a null
// key and/or value.
func (f *Fory) writeMapNullEntry(buf *ByteBuffer, k, v reflect.Value, keyNull, valNull bool) error {
	var header byte
	var keySide, valSide mapSide
	var err error
	if keyNull {
		header |= chunkKeyNull
	} else {
		if keySide, err = f.startMapSide(k); err != nil {
			return err
		}
		if keySide.tracked {
			header |= chunkTrackKeyRef
		}
	}
	if valNull {
		header |= chunkValueNull
	} else {
		if valSide, err = f.startMapSide(v); err != nil {
			return err
		}
		if valSide.tracked {
			header |= chunkTrackValueRef
		}
	}
	buf.WriteByte_(header)
	buf.WriteByte_(1)
	if !keyNull {
		if err := f.typeResolver.writeTypeInfo(buf, keySide.info); err != nil {
			return err
		}
	}
	if !valNull {
		if err := f.typeResolver.writeTypeInfo(buf, valSide.info); err != nil {
			return err
		}
	}
	if !keyNull {
		if err := f.writeMapElem(buf, keySide, k); err != nil {
			return err
		}
	}
	if !valNull {
		if err := f.writeMapElem(buf, valSide, v); err != nil {
			return err
		}
	}
	return buf.Error()
}

func (s mapSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	size := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	if type_.Kind() != reflect.Map {
		type_ = interfaceMapType
	}
	value.Set(reflect.MakeMapWithSize(type_, size))
	f.refResolver.ReferenceTaken(value)
	keyType := type_.Key()
	valType := type_.Elem()
	consumed := 0
	for consumed < size {
		header := buf.ReadByte_()
		count := int(buf.ReadByte_())
		if err := buf.Error(); err != nil {
			return err
		}
		if count == 0 || consumed+count > size {
			return fmt.Errorf("bad map chunk size %d: %w", count, ErrInvalidData)
		}
		var keyInfo, valInfo *TypeInfo
		var keyDef, valDef *TypeDef
		var err error
		keyNull := header&chunkKeyNull != 0
		valNull := header&chunkValueNull != 0
		if !keyNull {
			if header&chunkKeyDeclType != 0 {
				if keyInfo, err = f.typeResolver.getTypeInfoByType(keyType); err != nil {
					return err
				}
			} else {
				if keyInfo, keyDef, err = f.typeResolver.readTypeInfo(buf); err != nil {
					return err
				}
			}
		}
		if !valNull {
			if header&chunkValueDeclType != 0 {
				if valInfo, err = f.typeResolver.getTypeInfoByType(valType); err != nil {
					return err
				}
			} else {
				if valInfo, valDef, err = f.typeResolver.readTypeInfo(buf); err != nil {
					return err
				}
			}
		}
		for n := 0; n < count; n++ {
			k := reflect.New(keyType).Elem()
			v := reflect.New(valType).Elem()
			if !keyNull {
				if err := f.readMapElem(buf, header&chunkTrackKeyRef != 0, keyInfo, keyDef, k); err != nil {
					return err
				}
			}
			if !valNull {
				if err := f.readMapElem(buf, header&chunkTrackValueRef != 0, valInfo, valDef, v); err != nil {
					return err
				}
			}
			value.SetMapIndex(k, v)
			consumed++
		}
	}
	return buf.Error()
}

func (f *Fory) readMapElem(buf *ByteBuffer, tracked bool, info *TypeInfo, def *TypeDef, target reflect.Value) error {
	if tracked {
		return f.readTracked(buf, target, info, def, false)
	}
	return f.readData(buf, info, def, target)
}
