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
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// fieldDef is the registration-time descriptor of one struct field.
type fieldDef struct {
	name      string
	snakeName string
	index     int // index into the Go struct
	type_     reflect.Type
	typeID    TypeId
	fieldType *FieldType
	serializer Serializer
	nullable  bool
	trackRef  bool
	tagID     int32
}

// buildStructFields collects the serializable fields of type_ in the
// deterministic wire order. Struct tags recognized under the `fory` key:
// "-" excludes the field, "ref" forces ref tracking, "nullable=false"
// elides the null byte, "tag:N" addresses the field by id in TypeDefs,
// and "fixed"/"sli"/"tagged" override the integer encoding.
func buildStructFields(f *Fory, type_ reflect.Type) ([]*fieldDef, error) {
	var fields []*fieldDef
	for i := 0; i < type_.NumField(); i++ {
		sf := type_.Field(i)
		if sf.PkgPath != "" {
			continue // unexported
		}
		fd := &fieldDef{
			name:      sf.Name,
			snakeName: snakeCase(sf.Name),
			index:     i,
			type_:     sf.Type,
			nullable:  nullable(sf.Type),
			tagID:     -1,
		}
		encOverride := ""
		skip := false
		for _, opt := range strings.Split(sf.Tag.Get("fory"), ",") {
			switch {
			case opt == "":
			case opt == "-":
				skip = true
			case opt == "ref":
				fd.trackRef = true
			case opt == "nullable=false":
				fd.nullable = false
			case opt == "nullable=true":
				fd.nullable = nullable(sf.Type)
			case strings.HasPrefix(opt, "tag:"):
				id, err := strconv.Atoi(opt[len("tag:"):])
				if err != nil {
					return nil, fmt.Errorf("field %s.%s tag %q: %w", type_, sf.Name, opt, ErrInvalidParam)
				}
				fd.tagID = int32(id)
			case opt == "fixed" || opt == "sli" || opt == "tagged":
				encOverride = opt
			default:
				return nil, fmt.Errorf("field %s.%s: unknown option %q: %w", type_, sf.Name, opt, ErrInvalidParam)
			}
		}
		if skip {
			continue
		}
		ft, err := f.typeResolver.fieldTypeOf(sf.Type, encOverride)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", type_, sf.Name, err)
		}
		ft.Nullable = fd.nullable
		fd.fieldType = ft
		fd.typeID = ft.TypeID
		if fd.serializer, err = f.typeResolver.getSerializerByType(sf.Type, encOverride); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", type_, sf.Name, err)
		}
		fields = append(fields, fd)
	}
	sortFields(fields)
	return fields, nil
}

// computeStructHash folds each field's name hash and wire type into a
// 32-bit schema guard, iterating fields in sorted order.
func computeStructHash(fields []*fieldDef) int32 {
	h := int32(17)
	for _, fd := range fields {
		h = h*31 + int32(murmur3.Sum32([]byte(fd.snakeName))) + int32(fd.typeID)
	}
	return h
}

// structSerializer reads and writes one registered struct type. Field
// descriptors are built lazily on first use so registration order does
// not matter for mutually referring types.
type structSerializer struct {
	type_       reflect.Type
	fields      []*fieldDef
	structHash  int32
	initialized bool
}

func (s *structSerializer) TypeId() TypeId { return STRUCT }

func (s *structSerializer) ensure(f *Fory) error {
	if s.initialized {
		return nil
	}
	fields, err := buildStructFields(f, s.type_)
	if err != nil {
		return err
	}
	s.fields = fields
	s.structHash = computeStructHash(fields)
	s.initialized = true
	return nil
}

func (s *structSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	if err := s.ensure(f); err != nil {
		return err
	}
	if !f.compatible {
		buf.WriteInt32(s.structHash)
	}
	for _, fd := range s.fields {
		if err := f.writeFieldValue(buf, fd, value.Field(fd.index)); err != nil {
			return err
		}
	}
	return buf.Error()
}

func (s *structSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	if err := s.ensure(f); err != nil {
		return err
	}
	if !f.compatible {
		hash := buf.ReadInt32()
		if err := buf.Error(); err != nil {
			return err
		}
		if hash != s.structHash {
			return fmt.Errorf("struct %s hash %d, got %d: %w", s.type_, s.structHash, hash, ErrForyMismatch)
		}
	}
	for _, fd := range s.fields {
		if err := f.readFieldValue(buf, fd, value.Field(fd.index)); err != nil {
			return err
		}
	}
	return buf.Error()
}

// ReadCompatible reads a struct payload laid out by the remote TypeDef,
// filling mapped fields and skipping remote-only ones. Unmapped local
// fields keep their zero values.
func (s *structSerializer) ReadCompatible(f *Fory, buf *ByteBuffer, def *TypeDef, value reflect.Value) error {
	if err := s.ensure(f); err != nil {
		return err
	}
	for i := range def.fields {
		local := def.fieldMapping[i]
		if local < 0 {
			if err := f.skipFieldValue(buf, def.fields[i].Type); err != nil {
				return err
			}
			continue
		}
		fd := s.fields[local]
		if err := f.readFieldValue(buf, fd, value.Field(fd.index)); err != nil {
			return err
		}
	}
	return buf.Error()
}

// isFieldStructCompat reports whether values of the field type stream an
// inline TypeDef with their payload.
func (f *Fory) isFieldStructCompat(typeID TypeId) bool {
	return f.compatible && isStructTypeId(typeID)
}

func (f *Fory) fieldTracked(typeID TypeId, nullable, refOverride bool) bool {
	if refOverride {
		return true
	}
	if !f.referenceTracking || !nullable {
		return false
	}
	if typeID == NA {
		return true
	}
	return f.trackRefForTypeID(typeID)
}

func (f *Fory) writeFieldValue(buf *ByteBuffer, fd *fieldDef, value reflect.Value) error {
	dyn := fd.typeID == NA
	tracked := f.fieldTracked(fd.typeID, fd.nullable, fd.trackRef)
	if dyn {
		return f.writeTrackedValue(buf, value, true, tracked)
	}
	if tracked {
		return f.writeTrackedValue(buf, value, f.isFieldStructCompat(fd.typeID), true)
	}
	if fd.nullable {
		if !value.IsValid() || isNil(value) {
			buf.WriteInt8(NullFlag)
			return nil
		}
		buf.WriteInt8(NotNullValueFlag)
	}
	if f.isFieldStructCompat(fd.typeID) {
		v := value
		if v.Kind() == reflect.Ptr {
			v = v.Elem()
		}
		info, err := f.typeResolver.getTypeInfoByType(v.Type())
		if err != nil {
			return err
		}
		if err := f.typeResolver.writeTypeInfo(buf, info); err != nil {
			return err
		}
		return f.writeData(buf, info, value)
	}
	return fd.serializer.Write(f, buf, value)
}

func (f *Fory) readFieldValue(buf *ByteBuffer, fd *fieldDef, target reflect.Value) error {
	dyn := fd.typeID == NA
	tracked := f.fieldTracked(fd.typeID, fd.nullable, fd.trackRef)
	if dyn {
		return f.readTracked(buf, target, nil, nil, true)
	}
	if tracked {
		if f.isFieldStructCompat(fd.typeID) {
			return f.readTracked(buf, target, nil, nil, true)
		}
		info, err := f.typeResolver.getTypeInfoByType(fd.type_)
		if err != nil {
			return err
		}
		return f.readTracked(buf, target, info, nil, false)
	}
	if fd.nullable {
		flag := buf.ReadInt8()
		if err := buf.Error(); err != nil {
			return err
		}
		if flag == NullFlag {
			return nil
		}
		if flag != NotNullValueFlag {
			return fmt.Errorf("bad field flag %d: %w", flag, ErrInvalidData)
		}
	}
	if f.isFieldStructCompat(fd.typeID) {
		info, def, err := f.typeResolver.readTypeInfo(buf)
		if err != nil {
			return err
		}
		return f.readData(buf, info, def, target)
	}
	return fd.serializer.Read(f, buf, fd.type_, target)
}

// skipFieldValue discards the wire bytes of a remote-only field, reading
// through them with the remote field-type record.
func (f *Fory) skipFieldValue(buf *ByteBuffer, ft *FieldType) error {
	dyn := ft.TypeID == NA
	tracked := f.fieldTracked(ft.TypeID, ft.Nullable, false)
	if dyn || tracked {
		flag := buf.ReadInt8()
		if err := buf.Error(); err != nil {
			return err
		}
		switch flag {
		case NullFlag:
			return nil
		case RefFlag:
			buf.ReadVarUint32()
			return buf.Error()
		case RefValueFlag:
			f.refResolver.Reserve()
		case NotNullValueFlag:
		default:
			return fmt.Errorf("bad ref flag %d: %w", flag, ErrInvalidData)
		}
		if dyn {
			return f.skipDynamic(buf)
		}
		return f.skipData(buf, ft)
	}
	if ft.Nullable {
		flag := buf.ReadInt8()
		if err := buf.Error(); err != nil {
			return err
		}
		if flag == NullFlag {
			return nil
		}
	}
	return f.skipData(buf, ft)
}

// skipDynamic discards a value that carries its own type-info record.
func (f *Fory) skipDynamic(buf *ByteBuffer) error {
	kind, info, def, err := f.typeResolver.readTypeInfoAllowUnknown(buf)
	if err != nil {
		return err
	}
	return f.skipByWire(buf, kind, info, def)
}

func (f *Fory) skipByWire(buf *ByteBuffer, kind TypeId, info *TypeInfo, def *TypeDef) error {
	if def != nil {
		for i := range def.fields {
			if err := f.skipFieldValue(buf, def.fields[i].Type); err != nil {
				return err
			}
		}
		return nil
	}
	return f.skipData(buf, &FieldType{TypeID: kind, UserID: -1})
}

// skipData discards the payload of one non-null value of the given wire
// type. String skips still feed the per-message string table, keeping
// later back-references valid.
func (f *Fory) skipData(buf *ByteBuffer, ft *FieldType) error {
	switch ft.TypeID {
	case BOOL, INT8, UINT8:
		buf.ReadByte_()
	case INT16, UINT16, HALF_FLOAT:
		buf.ReadUint16()
	case INT32, FLOAT:
		buf.ReadUint32()
	case VAR_INT32:
		buf.ReadVarInt32()
	case VAR_UINT32:
		buf.ReadVarUint32()
	case INT64, UINT64, DOUBLE:
		buf.ReadUint64()
	case VAR_INT64:
		buf.ReadVarInt64()
	case VAR_UINT64:
		buf.ReadVarUint64()
	case SLI_INT64:
		buf.ReadSliInt64()
	case TAGGED_UINT64:
		buf.ReadTaggedUint64()
	case STRING:
		_, err := f.readString(buf)
		return err
	case BINARY:
		if f.peekBuffers != nil {
			if inBand := buf.ReadBool(); !inBand {
				f.peekIndex++
				return buf.Error()
			}
		}
		buf.ReadBytesWithLength()
	case LOCAL_DATE:
		buf.ReadInt32()
	case TIMESTAMP:
		buf.ReadVarInt64()
		buf.ReadVarUint32()
	case ENUM, NAMED_ENUM:
		buf.ReadVarUint32()
	case LIST, SET:
		return f.skipCollection(buf, ft.Elem)
	case BOOL_ARRAY, INT8_ARRAY:
		n := buf.ReadLength()
		buf.ReadBinary(n)
	case INT16_ARRAY, FLOAT16_ARRAY:
		n := buf.ReadLength()
		buf.ReadBinary(n * 2)
	case INT32_ARRAY, FLOAT32_ARRAY:
		n := buf.ReadLength()
		buf.ReadBinary(n * 4)
	case INT64_ARRAY, FLOAT64_ARRAY:
		n := buf.ReadLength()
		buf.ReadBinary(n * 8)
	case MAP:
		return f.skipMap(buf, ft.Key, ft.Value)
	case STRUCT, COMPATIBLE_STRUCT, NAMED_STRUCT, NAMED_COMPATIBLE_STRUCT:
		if !f.compatible {
			return fmt.Errorf("cannot skip struct in consistent mode: %w", ErrUnsupportedFeature)
		}
		return f.skipDynamic(buf)
	default:
		return fmt.Errorf("cannot skip wire type %d: %w", ft.TypeID, ErrUnsupportedFeature)
	}
	return buf.Error()
}

func (f *Fory) skipCollection(buf *ByteBuffer, elemFt *FieldType) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	flags := buf.ReadByte_()
	var kind TypeId
	var info *TypeInfo
	var def *TypeDef
	var err error
	if flags&collectionIsSameType != 0 {
		if kind, info, def, err = f.typeResolver.readTypeInfoAllowUnknown(buf); err != nil {
			return err
		}
	}
	for i := 0; i < length; i++ {
		if flags&collectionTrackingRef != 0 {
			flag := buf.ReadInt8()
			switch flag {
			case NullFlag:
				continue
			case RefFlag:
				buf.ReadVarUint32()
				continue
			case RefValueFlag:
				f.refResolver.Reserve()
			case NotNullValueFlag:
			default:
				return fmt.Errorf("bad ref flag %d: %w", flag, ErrInvalidData)
			}
		} else if flags&collectionHasNull != 0 {
			if buf.ReadInt8() == NullFlag {
				continue
			}
		}
		switch {
		case flags&collectionDeclElementType != 0:
			if elemFt == nil {
				return fmt.Errorf("declared element type unknown: %w", ErrInvalidData)
			}
			if err := f.skipData(buf, elemFt); err != nil {
				return err
			}
		case flags&collectionIsSameType != 0:
			if err := f.skipByWire(buf, kind, info, def); err != nil {
				return err
			}
		default:
			if err := f.skipDynamic(buf); err != nil {
				return err
			}
		}
	}
	return buf.Error()
}

func (f *Fory) skipMap(buf *ByteBuffer, keyFt, valFt *FieldType) error {
	size := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
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
		var keyKind, valKind TypeId
		var keyInfo, valInfo *TypeInfo
		var keyDef, valDef *TypeDef
		var err error
		keyNull := header&chunkKeyNull != 0
		valNull := header&chunkValueNull != 0
		if !keyNull && header&chunkKeyDeclType == 0 {
			if keyKind, keyInfo, keyDef, err = f.typeResolver.readTypeInfoAllowUnknown(buf); err != nil {
				return err
			}
		}
		if !valNull && header&chunkValueDeclType == 0 {
			if valKind, valInfo, valDef, err = f.typeResolver.readTypeInfoAllowUnknown(buf); err != nil {
				return err
			}
		}
		for n := 0; n < count; n++ {
			if !keyNull {
				if err := f.skipMapSide(buf, header&chunkTrackKeyRef != 0, header&chunkKeyDeclType != 0,
					keyFt, keyKind, keyInfo, keyDef); err != nil {
					return err
				}
			}
			if !valNull {
				if err := f.skipMapSide(buf, header&chunkTrackValueRef != 0, header&chunkValueDeclType != 0,
					valFt, valKind, valInfo, valDef); err != nil {
					return err
				}
			}
			consumed++
		}
	}
	return buf.Error()
}

func (f *Fory) skipMapSide(buf *ByteBuffer, tracked, declared bool, ft *FieldType, kind TypeId, info *TypeInfo, def *TypeDef) error {
	if tracked {
		flag := buf.ReadInt8()
		switch flag {
		case NullFlag:
			return nil
		case RefFlag:
			buf.ReadVarUint32()
			return buf.Error()
		case RefValueFlag:
			f.refResolver.Reserve()
		case NotNullValueFlag:
		default:
			return fmt.Errorf("bad ref flag %d: %w", flag, ErrInvalidData)
		}
	}
	if declared {
		if ft == nil {
			return fmt.Errorf("declared map side type unknown: %w", ErrInvalidData)
		}
		return f.skipData(buf, ft)
	}
	return f.skipByWire(buf, kind, info, def)
}

// enumSerializer encodes a named integer type by its ordinal value.
type enumSerializer struct{}

func (s enumSerializer) TypeId() TypeId { return ENUM }

func (s enumSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	switch value.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteVarUint32(uint32(value.Uint()))
	default:
		buf.WriteVarUint32(uint32(value.Int()))
	}
	return nil
}

func (s enumSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	v := buf.ReadVarUint32()
	if err := buf.Error(); err != nil {
		return err
	}
	switch value.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value.SetUint(uint64(v))
	default:
		value.SetInt(int64(int32(v)))
	}
	return nil
}

// Per-field integer encoding overrides.

type fixedInt32Serializer struct{}

func (s fixedInt32Serializer) TypeId() TypeId { return INT32 }

func (s fixedInt32Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteInt32(int32(value.Int()))
	return nil
}

func (s fixedInt32Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(int64(buf.ReadInt32()))
	return buf.Error()
}

type fixedInt64Serializer struct{}

func (s fixedInt64Serializer) TypeId() TypeId { return INT64 }

func (s fixedInt64Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteInt64(value.Int())
	return nil
}

func (s fixedInt64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(buf.ReadInt64())
	return buf.Error()
}

type sliInt64Serializer struct{}

func (s sliInt64Serializer) TypeId() TypeId { return SLI_INT64 }

func (s sliInt64Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteSliInt64(value.Int())
	return nil
}

func (s sliInt64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(buf.ReadSliInt64())
	return buf.Error()
}

type taggedUint64Serializer struct{}

func (s taggedUint64Serializer) TypeId() TypeId { return TAGGED_UINT64 }

func (s taggedUint64Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteTaggedUint64(value.Uint())
	return nil
}

func (s taggedUint64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetUint(buf.ReadTaggedUint64())
	return buf.Error()
}
