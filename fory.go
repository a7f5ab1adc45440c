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

// Package fory is a cross-language serialization runtime: a binary
// protocol with reference tracking, schema evolution and compact
// type metadata, wire-compatible with the other Fory language ports.
//
// A Fory instance is not safe for concurrent use; registration is a
// bootstrap step, after which serialize/deserialize calls reuse the
// per-call context.
package fory

import (
	"fmt"
	"io"
	"reflect"

	"github.com/spaolacci/murmur3"

	"github.com/apache/fory/go/fory/meta"
)

// MAGIC_NUMBER introduces every cross-language message.
const MAGIC_NUMBER int16 = 0x62D4

// Message header flag bits.
const (
	isNilFlag       byte = 1 << 0
	isXlangFlag     byte = 1 << 1
	isOutOfBandFlag byte = 1 << 2
)

type Language = uint8

const (
	XLANG Language = iota
	GO
)

// Fory is one configured serialization core. The type registry is the
// only long-lived state; everything else is reset per message.
type Fory struct {
	typeResolver *typeResolver
	refResolver  *refResolver
	strResolver  *stringResolver

	language          Language
	referenceTracking bool
	compatible        bool
	basicRef          bool
	stringRef         bool
	timeRef           bool
	typeDefCacheCap   int

	bufferCallback func(BufferObject) bool
	peekBuffers    []*ByteBuffer
	peekIndex      int
}

// NewFory creates an xlang-mode instance in consistent (schema hash)
// mode, matching the historical constructor.
func NewFory(referenceTracking bool) *Fory {
	return NewForyBuilder().TrackRef(referenceTracking).Build()
}

// RegisterByID registers a struct, enum-like or ext type under a
// caller-chosen positive numeric id.
func (f *Fory) RegisterByID(value interface{}, id int32) error {
	if id <= 0 {
		return fmt.Errorf("type id %d must be positive: %w", id, ErrInvalidParam)
	}
	_, err := f.typeResolver.registerUserType(reflect.TypeOf(value), id, "", "")
	return err
}

// RegisterByName registers a type under a namespace+name identity.
func (f *Fory) RegisterByName(value interface{}, namespace, name string) error {
	_, err := f.typeResolver.registerUserType(reflect.TypeOf(value), -1, namespace, name)
	return err
}

// RegisterTagType registers a type under a dotted tag such as
// "example.Foo"; the last segment becomes the type name.
func (f *Fory) RegisterTagType(tag string, value interface{}) error {
	ns, name := splitTag(tag)
	return f.RegisterByName(value, ns, name)
}

// RegisterSerializer supplies a custom codec for a type. Register the
// type itself afterwards to give it a wire identity.
func (f *Fory) RegisterSerializer(value interface{}, s Serializer) error {
	return f.typeResolver.RegisterSerializer(reflect.TypeOf(value), s)
}

// LookupByID returns the native type registered under the given id.
func (f *Fory) LookupByID(id int32) (reflect.Type, bool) {
	if info, ok := f.typeResolver.userIDToTypeInfo[id]; ok {
		return info.Type, true
	}
	return nil, false
}

// LookupByName returns the native type registered under namespace+name.
func (f *Fory) LookupByName(namespace, name string) (reflect.Type, bool) {
	if info, ok := f.typeResolver.namedTypeToTypeInfo[namedTypeKey{namespace, name}]; ok {
		return info.Type, true
	}
	return nil, false
}

// LookupByType returns the registered identity of a native type: the
// numeric id (or -1) and the namespace+name (or empty strings).
func (f *Fory) LookupByType(value interface{}) (id int32, namespace, name string, ok bool) {
	info, found := f.typeResolver.typesInfo[reflect.TypeOf(value)]
	if !found || !isUserTypeId(info.TypeId) {
		return -1, "", "", false
	}
	return info.UserID, info.Namespace, info.TypeName, true
}

// Marshal serializes value to a fresh byte slice.
func (f *Fory) Marshal(value interface{}) ([]byte, error) {
	buf := getByteBuffer()
	defer putByteBuffer(buf)
	if err := f.Serialize(buf, value, nil); err != nil {
		return nil, err
	}
	data := make([]byte, buf.WriterIndex())
	copy(data, buf.GetData())
	return data, nil
}

// Serialize writes one framed message into buf. A non-nil callback
// enables out-of-band buffers: it is invoked for each candidate blob and
// returns false to carry the blob outside the message.
func (f *Fory) Serialize(buf *ByteBuffer, value interface{}, callback func(BufferObject) bool) (err error) {
	defer f.resetWrite()
	f.bufferCallback = callback
	if f.language == XLANG {
		buf.WriteInt16(MAGIC_NUMBER)
	}
	var flags byte
	if f.language == XLANG {
		flags |= isXlangFlag
	}
	if callback != nil {
		flags |= isOutOfBandFlag
	}
	if value == nil {
		flags |= isNilFlag
		buf.WriteByte_(flags)
		return nil
	}
	buf.WriteByte_(flags)
	if err := f.WriteReferencable(buf, reflect.ValueOf(value)); err != nil {
		return err
	}
	return buf.Error()
}

// Unmarshal deserializes one message into the value pointed to by v.
func (f *Fory) Unmarshal(data []byte, v interface{}) error {
	return f.Deserialize(NewByteBuffer(data), v, nil)
}

// UnmarshalFrom buffers the stream and deserializes one message from
// it. Record framing within r is the caller's concern.
func (f *Fory) UnmarshalFrom(r io.Reader, v interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return f.Unmarshal(data, v)
}

// Deserialize reads one framed message from buf. Out-of-band buffers
// collected at serialization time are passed back in order.
func (f *Fory) Deserialize(buf *ByteBuffer, v interface{}, buffers []*ByteBuffer) error {
	defer f.resetRead()
	if f.language == XLANG {
		if magic := buf.ReadInt16(); magic != MAGIC_NUMBER {
			if err := buf.Error(); err != nil {
				return err
			}
			return fmt.Errorf("bad magic number %#x: %w", magic, ErrInvalidData)
		}
	}
	flags := buf.ReadByte_()
	if err := buf.Error(); err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("deserialize target must be a non-nil pointer: %w", ErrInvalidParam)
	}
	if flags&isNilFlag != 0 {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return nil
	}
	if flags&isOutOfBandFlag != 0 {
		if buffers == nil {
			return fmt.Errorf("out-of-band buffers expected: %w", ErrInvalidParam)
		}
		f.peekBuffers = buffers
		f.peekIndex = 0
	} else if buffers != nil {
		return fmt.Errorf("buffers passed for an in-band message: %w", ErrInvalidParam)
	}
	if err := f.readTracked(buf, rv.Elem(), nil, nil, true); err != nil {
		return err
	}
	return buf.Error()
}

func (f *Fory) resetWrite() {
	f.refResolver.resetWrite()
	f.typeResolver.resetWrite()
	f.strResolver.resetWrite()
	f.bufferCallback = nil
}

func (f *Fory) resetRead() {
	f.refResolver.resetRead()
	f.typeResolver.resetRead()
	f.strResolver.resetRead()
	f.peekBuffers = nil
	f.peekIndex = 0
}

// trackRefForTypeID applies the category gates: basic, string and time
// values stay untracked unless their gate is open.
func (f *Fory) trackRefForTypeID(typeID TypeId) bool {
	switch {
	case isPrimitiveTypeId(typeID):
		return f.basicRef
	case typeID == STRING:
		return f.stringRef
	case typeID == LOCAL_DATE || typeID == TIMESTAMP:
		return f.timeRef
	}
	return true
}

func (f *Fory) trackRefFor(info *TypeInfo) bool {
	return f.trackRefForTypeID(info.TypeId)
}

// WriteReferencable writes the full introduction of a value: ref/null
// flag, type info, payload.
func (f *Fory) WriteReferencable(buf *ByteBuffer, value reflect.Value) error {
	return f.writeTracked(buf, value, true)
}

// writeTracked writes a value with its ref flag, deciding tracking from
// the global setting and the value's category.
func (f *Fory) writeTracked(buf *ByteBuffer, value reflect.Value, writeInfo bool) error {
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if !value.IsValid() || isNil(value) {
		buf.WriteInt8(NullFlag)
		return nil
	}
	info, err := f.typeResolver.getTypeInfo(value, true)
	if err != nil {
		return err
	}
	tracked := f.referenceTracking && f.trackRefFor(info)
	return f.writeTrackedInfo(buf, value, info, writeInfo, tracked)
}

// writeTrackedValue is writeTracked with the tracking decision supplied
// by the caller (per-field overrides).
func (f *Fory) writeTrackedValue(buf *ByteBuffer, value reflect.Value, writeInfo, tracked bool) error {
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if !value.IsValid() || isNil(value) {
		buf.WriteInt8(NullFlag)
		return nil
	}
	info, err := f.typeResolver.getTypeInfo(value, true)
	if err != nil {
		return err
	}
	return f.writeTrackedInfo(buf, value, info, writeInfo, tracked)
}

func (f *Fory) writeTrackedInfo(buf *ByteBuffer, value reflect.Value, info *TypeInfo, writeInfo, tracked bool) error {
	if f.refResolver.WriteRefOrNull(buf, value, tracked) {
		return nil
	}
	if writeInfo {
		if err := f.typeResolver.writeTypeInfo(buf, info); err != nil {
			return err
		}
	}
	return f.writeData(buf, info, value)
}

// writeData writes the payload of a non-null value whose type is
// already established. Pointers to non-pointer descriptors write the
// pointee.
func (f *Fory) writeData(buf *ByteBuffer, info *TypeInfo, value reflect.Value) error {
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if value.Kind() == reflect.Ptr && info.Type.Kind() != reflect.Ptr {
		value = value.Elem()
	}
	return info.Serializer.Write(f, buf, value)
}

// readTracked reads a value introduced by a ref flag byte. When
// readInfo is set the type-info record follows the flag; otherwise info
// (and def, for compatible structs) carry the established type.
func (f *Fory) readTracked(buf *ByteBuffer, target reflect.Value, info *TypeInfo, def *TypeDef, readInfo bool) error {
	flag := buf.ReadInt8()
	if err := buf.Error(); err != nil {
		return err
	}
	switch flag {
	case NullFlag:
		return nil
	case RefFlag:
		id := int32(buf.ReadVarUint32())
		if err := buf.Error(); err != nil {
			return err
		}
		v, err := f.refResolver.GetReadObject(id)
		if err != nil {
			return err
		}
		return setValue(target, v)
	case RefValueFlag, NotNullValueFlag:
		refID := int32(-1)
		if flag == RefValueFlag {
			refID = f.refResolver.Reserve()
		}
		if readInfo {
			var err error
			if info, def, err = f.typeResolver.readTypeInfo(buf); err != nil {
				return err
			}
		}
		f.refResolver.SetPending(refID)
		if err := f.readData(buf, info, def, target); err != nil {
			return err
		}
		f.refResolver.ReferenceTaken(target)
		return nil
	default:
		return fmt.Errorf("bad ref flag %d: %w", flag, ErrInvalidData)
	}
}

// readData materializes the payload of a non-null value into target.
// Structs are built behind a fresh pointer and registered before their
// fields are read, so cyclic back-references resolve to the shell.
func (f *Fory) readData(buf *ByteBuffer, info *TypeInfo, def *TypeDef, target reflect.Value) error {
	if info == nil {
		return fmt.Errorf("missing type info: %w", ErrInvalidData)
	}
	if info.Type.Kind() == reflect.Struct && isStructTypeId(info.TypeId) {
		ptr := reflect.New(info.Type)
		f.refResolver.ReferenceTaken(ptr)
		ss, ok := info.Serializer.(*structSerializer)
		if !ok {
			return fmt.Errorf("type %s has no struct serializer: %w", info.Type, ErrTypeMismatch)
		}
		var err error
		if def != nil {
			err = ss.ReadCompatible(f, buf, def, ptr.Elem())
		} else {
			err = ss.Read(f, buf, info.Type, ptr.Elem())
		}
		if err != nil {
			return err
		}
		return setValue(target, ptr)
	}
	// A concrete target of the same wire kind supplies the better
	// serializer: reading a LIST into [4]int32 or a MAP into its declared
	// map type.
	if target.Kind() != reflect.Interface && target.Kind() != reflect.Ptr && target.Type() != info.Type {
		if tinfo, err := f.typeResolver.getTypeInfoByType(target.Type()); err == nil && tinfo.TypeId == info.TypeId {
			info = tinfo
		}
	}
	switch target.Kind() {
	case reflect.Interface:
		tmp := reflect.New(info.Type).Elem()
		if err := info.Serializer.Read(f, buf, info.Type, tmp); err != nil {
			return err
		}
		target.Set(tmp)
		return nil
	case reflect.Ptr:
		if info.Type.Kind() != reflect.Ptr {
			ptr := reflect.New(target.Type().Elem())
			target.Set(ptr)
			f.refResolver.ReferenceTaken(ptr)
			return info.Serializer.Read(f, buf, ptr.Type().Elem(), ptr.Elem())
		}
	}
	if target.Type() != info.Type && !kindCompatible(target.Kind(), info.Type.Kind()) {
		return fmt.Errorf("wire type %s cannot fill %s: %w", info.Type, target.Type(), ErrTypeMismatch)
	}
	return info.Serializer.Read(f, buf, target.Type(), target)
}

// kindCompatible reports whether a serializer for one kind can fill a
// target of the other: numeric kinds mix within their family, anything
// else must match exactly.
func kindCompatible(a, b reflect.Kind) bool {
	family := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return 1
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return 2
		case reflect.Float32, reflect.Float64:
			return 3
		}
		return 0
	}
	if fa, fb := family(a), family(b); fa != 0 || fb != 0 {
		return fa == fb
	}
	return a == b
}

// setValue assigns a decoded value into a target location, unwrapping
// or wrapping one pointer level as needed.
func setValue(target, v reflect.Value) error {
	if !v.IsValid() {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	t := target.Type()
	switch {
	case target.Kind() == reflect.Interface:
		target.Set(v)
	case v.Type() == t:
		target.Set(v)
	case v.Kind() == reflect.Ptr && v.Type().Elem() == t:
		target.Set(v.Elem())
	case t.Kind() == reflect.Ptr && v.Type() == t.Elem():
		if v.CanAddr() {
			target.Set(v.Addr())
		} else {
			p := reflect.New(t.Elem())
			p.Elem().Set(v)
			target.Set(p)
		}
	case v.Type().ConvertibleTo(t):
		target.Set(v.Convert(t))
	default:
		return fmt.Errorf("cannot assign %s to %s: %w", v.Type(), t, ErrTypeMismatch)
	}
	return nil
}

// stringResolver is the per-message data-string table: within one
// message each distinct string is written once, later occurrences cite
// its index.
type stringResolver struct {
	writeTable map[string]int32
	readTable  []string
}

func newStringResolver() *stringResolver {
	return &stringResolver{writeTable: map[string]int32{}}
}

func (r *stringResolver) resetWrite() {
	if len(r.writeTable) > 0 {
		r.writeTable = map[string]int32{}
	}
}

func (r *stringResolver) resetRead() {
	r.readTable = r.readTable[:0]
}

// writeString frames s as a MetaString: a VarUint header carrying the
// byte length (LSB 0) or a back-reference index (LSB 1), then an
// encoding tag or an 8-byte hash, then the payload. Empty strings are a
// single zero header byte.
func (f *Fory) writeString(buf *ByteBuffer, s string) error {
	r := f.strResolver
	if id, ok := r.writeTable[s]; ok {
		buf.WriteVarUint32(uint32(id)<<1 | 1)
		return nil
	}
	r.writeTable[s] = int32(len(r.writeTable))
	data := unsafeGetBytes(s)
	buf.WriteVarUint32(uint32(len(data)) << 1)
	if len(data) == 0 {
		return nil
	}
	if len(data) > smallMetaStringThreshold {
		buf.WriteInt64(int64(murmur3.Sum64(data) &^ 0xff))
	} else {
		buf.WriteByte_(byte(meta.UTF_8))
	}
	buf.WriteBinary(data)
	return nil
}

func (f *Fory) readString(buf *ByteBuffer) (string, error) {
	r := f.strResolver
	header := buf.ReadVarUint32()
	if err := buf.Error(); err != nil {
		return "", err
	}
	if header&1 == 1 {
		idx := int(header >> 1)
		if idx >= len(r.readTable) {
			return "", fmt.Errorf("string index %d out of range: %w", idx, ErrInvalidData)
		}
		return r.readTable[idx], nil
	}
	length := int(header >> 1)
	if length == 0 {
		r.readTable = append(r.readTable, "")
		return "", nil
	}
	encoding := meta.UTF_8
	if length > smallMetaStringThreshold {
		hash := buf.ReadInt64()
		encoding = meta.Encoding(hash & 0xff)
	} else {
		encoding = meta.Encoding(buf.ReadByte_())
	}
	data := buf.ReadBinary(length)
	if err := buf.Error(); err != nil {
		return "", err
	}
	var s string
	if encoding == meta.UTF_8 {
		s = string(data)
	} else {
		var err error
		if s, err = f.typeResolver.typeNameDecoder.Decode(data, encoding); err != nil {
			return "", fmt.Errorf("string decode: %v: %w", err, ErrInvalidData)
		}
	}
	r.readTable = append(r.readTable, s)
	return s, nil
}

// defaultFory backs the package-level convenience functions. Like every
// Fory instance it is not safe for concurrent use.
var defaultFory = NewFory(true)

// Marshal serializes value with a shared default instance.
func Marshal(value interface{}) ([]byte, error) {
	return defaultFory.Marshal(value)
}

// Unmarshal deserializes data with a shared default instance.
func Unmarshal(data []byte, v interface{}) error {
	return defaultFory.Unmarshal(data, v)
}
