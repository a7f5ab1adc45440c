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

	"github.com/apache/fory/go/fory/meta"
	"github.com/spaolacci/murmur3"
)

// TypeDef header bit layout. The header is the 8-byte little-endian
// value that keys the read-side cache:
//
//	bits  0..23  body size in bytes
//	bit   24     name-based identity
//	bit   25     compatible struct kind
//	bit   26     any field carries a tag id
//	bits 32..63  MurmurHash3 x86-32 of the body
const (
	typeDefSizeMask    = 0xffffff
	typeDefNamedFlag   = 1 << 24
	typeDefCompatFlag  = 1 << 25
	typeDefTagIDsFlag  = 1 << 26
)

// defaultTypeDefCacheCap bounds the cross-message parsed-TypeDef cache.
// Beyond the cap new defs are owned only for the current message.
const defaultTypeDefCacheCap = 8192

// FieldType describes one field's wire type inside a TypeDef,
// recursively for containers.
type FieldType struct {
	TypeID   TypeId
	Nullable bool
	Elem     *FieldType // LIST / SET element
	Key      *FieldType // MAP key
	Value    *FieldType // MAP value
	UserID   int32      // user kinds registered by id; -1 otherwise
	Namespace string    // user kinds registered by name
	TypeName  string
}

// DefField is one field entry of a TypeDef.
type DefField struct {
	Name  string // canonical lower_underscore
	TagID int32  // -1 when the field is addressed by name
	Type  *FieldType
}

// TypeDef is the inline schema record of a struct: identity plus the
// ordered field list, together with its stable byte encoding.
type TypeDef struct {
	header     uint64
	encoded    []byte // header + body, written verbatim on first occurrence
	named      bool
	compatible bool
	hasTagIDs  bool
	userID     int32
	namespace  string
	typeName   string
	fields     []DefField

	// localInfo is the local type this def maps onto, nil when the remote
	// type is not registered here (its values can only be skipped).
	localInfo *TypeInfo
	// fieldMapping maps each remote field index onto the local sorted
	// field index, -1 for remote-only fields.
	fieldMapping []int
}

// Standalone MetaString form used inside TypeDef bodies. No index
// back-references here: TypeDef bytes must be stable so they can be
// cached and replayed across messages.
func writeDefMetaString(buf *ByteBuffer, enc *meta.Encoder, s string) error {
	ms, err := enc.Encode(s)
	if err != nil {
		return fmt.Errorf("encode %q: %w", s, ErrInvalidData)
	}
	buf.WriteVarUint32(uint32(len(ms.GetEncodedBytes())))
	buf.WriteByte_(byte(ms.GetEncoding()))
	buf.WriteBinary(ms.GetEncodedBytes())
	return nil
}

func readDefMetaString(buf *ByteBuffer, dec *meta.Decoder) (string, error) {
	length := int(buf.ReadVarUint32())
	encoding := meta.Encoding(buf.ReadByte_())
	data := buf.ReadBinary(length)
	if err := buf.Error(); err != nil {
		return "", err
	}
	s, err := dec.Decode(data, encoding)
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidData)
	}
	return s, nil
}

func writeFieldType(buf *ByteBuffer, enc *meta.Encoder, ft *FieldType) error {
	if ft.TypeID > 127 || ft.TypeID < 0 {
		return fmt.Errorf("field type id %d does not fit the def record: %w", ft.TypeID, ErrUnsupportedType)
	}
	b := byte(ft.TypeID) << 1
	if ft.Nullable {
		b |= 1
	}
	buf.WriteByte_(b)
	switch {
	case ft.TypeID == LIST || ft.TypeID == SET || isPrimitiveArrayType(ft.TypeID):
		if ft.Elem == nil {
			return nil
		}
		return writeFieldType(buf, enc, ft.Elem)
	case ft.TypeID == MAP:
		if err := writeFieldType(buf, enc, ft.Key); err != nil {
			return err
		}
		return writeFieldType(buf, enc, ft.Value)
	case isUserTypeId(ft.TypeID):
		if isNamedTypeId(ft.TypeID) {
			if err := writeDefMetaString(buf, enc, ft.Namespace); err != nil {
				return err
			}
			return writeDefMetaString(buf, enc, ft.TypeName)
		}
		buf.WriteVarUint32(uint32(ft.UserID))
	}
	return nil
}

func readFieldType(buf *ByteBuffer, dec *meta.Decoder) (*FieldType, error) {
	b := buf.ReadByte_()
	if err := buf.Error(); err != nil {
		return nil, err
	}
	ft := &FieldType{TypeID: TypeId(b >> 1), Nullable: b&1 != 0, UserID: -1}
	switch {
	case ft.TypeID == LIST || ft.TypeID == SET || isPrimitiveArrayType(ft.TypeID):
		// Primitive arrays carry their element implicitly; LIST/SET carry
		// one child record.
		if ft.TypeID == LIST || ft.TypeID == SET {
			elem, err := readFieldType(buf, dec)
			if err != nil {
				return nil, err
			}
			ft.Elem = elem
		}
	case ft.TypeID == MAP:
		key, err := readFieldType(buf, dec)
		if err != nil {
			return nil, err
		}
		value, err := readFieldType(buf, dec)
		if err != nil {
			return nil, err
		}
		ft.Key, ft.Value = key, value
	case isUserTypeId(ft.TypeID):
		if isNamedTypeId(ft.TypeID) {
			ns, err := readDefMetaString(buf, dec)
			if err != nil {
				return nil, err
			}
			name, err := readDefMetaString(buf, dec)
			if err != nil {
				return nil, err
			}
			ft.Namespace, ft.TypeName = ns, name
		} else {
			ft.UserID = int32(buf.ReadVarUint32())
		}
	}
	return ft, buf.Error()
}

// buildTypeDef encodes the schema of a registered struct type.
func (r *typeResolver) buildTypeDef(info *TypeInfo, fields []*fieldDef) (*TypeDef, error) {
	def := &TypeDef{
		named:      info.UserID < 0,
		compatible: true,
		userID:     info.UserID,
		namespace:  info.Namespace,
		typeName:   info.TypeName,
		localInfo:  info,
	}
	for _, fd := range fields {
		if fd.tagID >= 0 {
			def.hasTagIDs = true
		}
	}
	body := NewByteBuffer(nil)
	if def.named {
		if err := writeDefMetaString(body, r.namespaceEncoder, def.namespace); err != nil {
			return nil, err
		}
		if err := writeDefMetaString(body, r.typeNameEncoder, def.typeName); err != nil {
			return nil, err
		}
	} else {
		body.WriteVarUint32(uint32(def.userID))
	}
	body.WriteVarUint32(uint32(len(fields)))
	def.fields = make([]DefField, len(fields))
	def.fieldMapping = make([]int, len(fields))
	for i, fd := range fields {
		def.fields[i] = DefField{Name: fd.snakeName, TagID: fd.tagID, Type: fd.fieldType}
		def.fieldMapping[i] = i
		if def.hasTagIDs {
			body.WriteVarUint32(uint32(fd.tagID + 1))
		}
		if err := writeDefMetaString(body, r.fieldNameEncoder, fd.snakeName); err != nil {
			return nil, err
		}
		if err := writeFieldType(body, r.typeNameEncoder, fd.fieldType); err != nil {
			return nil, err
		}
	}
	bodyBytes := body.GetData()
	if len(bodyBytes) > typeDefSizeMask {
		return nil, fmt.Errorf("type def of %s too large: %w", info.Type, ErrUnsupportedType)
	}
	header := uint64(len(bodyBytes))
	if def.named {
		header |= typeDefNamedFlag
	}
	header |= typeDefCompatFlag
	if def.hasTagIDs {
		header |= typeDefTagIDsFlag
	}
	header |= uint64(murmur3.Sum32(bodyBytes)) << 32
	def.header = header
	out := NewByteBuffer(nil)
	out.WriteUint64(header)
	out.WriteBinary(bodyBytes)
	def.encoded = out.GetData()
	return def, nil
}

// parseTypeDef decodes a TypeDef whose 8-byte header has been read.
func (r *typeResolver) parseTypeDef(header uint64, body []byte) (*TypeDef, error) {
	def := &TypeDef{
		header:     header,
		named:      header&typeDefNamedFlag != 0,
		compatible: header&typeDefCompatFlag != 0,
		hasTagIDs:  header&typeDefTagIDsFlag != 0,
		userID:     -1,
	}
	buf := NewByteBuffer(body)
	var err error
	if def.named {
		if def.namespace, err = readDefMetaString(buf, r.namespaceDecoder); err != nil {
			return nil, err
		}
		if def.typeName, err = readDefMetaString(buf, r.typeNameDecoder); err != nil {
			return nil, err
		}
	} else {
		def.userID = int32(buf.ReadVarUint32())
	}
	numFields := int(buf.ReadVarUint32())
	if err := buf.Error(); err != nil {
		return nil, err
	}
	if numFields < 0 || numFields > len(body) {
		return nil, fmt.Errorf("type def field count %d: %w", numFields, ErrInvalidData)
	}
	def.fields = make([]DefField, numFields)
	for i := 0; i < numFields; i++ {
		field := DefField{TagID: -1}
		if def.hasTagIDs {
			field.TagID = int32(buf.ReadVarUint32()) - 1
		}
		if field.Name, err = readDefMetaString(buf, r.fieldNameDecoder); err != nil {
			return nil, err
		}
		if field.Type, err = readFieldType(buf, r.typeNameDecoder); err != nil {
			return nil, err
		}
		def.fields[i] = field
	}
	if err := r.resolveTypeDef(def); err != nil {
		return nil, err
	}
	return def, nil
}

// resolveTypeDef maps the remote def onto the local registry: locate the
// local type, then map each remote field by tag id or canonical name.
// Remote-only fields map to -1 and are skipped on read; a wire-type
// conflict on a mapped field is a schema mismatch.
func (r *typeResolver) resolveTypeDef(def *TypeDef) error {
	var info *TypeInfo
	if def.named {
		info = r.namedTypeToTypeInfo[namedTypeKey{def.namespace, def.typeName}]
	} else {
		info = r.userIDToTypeInfo[def.userID]
	}
	def.fieldMapping = make([]int, len(def.fields))
	for i := range def.fieldMapping {
		def.fieldMapping[i] = -1
	}
	if info == nil {
		return nil
	}
	def.localInfo = info
	ss, ok := info.Serializer.(*structSerializer)
	if !ok {
		return fmt.Errorf("type %s is not a struct: %w", info.Type, ErrTypeMismatch)
	}
	if err := ss.ensure(r.fory); err != nil {
		return err
	}
	byName := make(map[string]int, len(ss.fields))
	byTag := make(map[int32]int)
	for i, fd := range ss.fields {
		byName[fd.snakeName] = i
		if fd.tagID >= 0 {
			byTag[fd.tagID] = i
		}
	}
	for i, remote := range def.fields {
		local := -1
		if def.hasTagIDs && remote.TagID >= 0 {
			if li, ok := byTag[remote.TagID]; ok {
				local = li
			}
		}
		if local < 0 {
			if li, ok := byName[remote.Name]; ok {
				local = li
			}
		}
		if local < 0 {
			continue
		}
		if normalizeTypeId(remote.Type.TypeID) != normalizeTypeId(ss.fields[local].fieldType.TypeID) {
			return fmt.Errorf("field %s: wire type %d, local type %d: %w",
				remote.Name, remote.Type.TypeID, ss.fields[local].fieldType.TypeID, ErrForyMismatch)
		}
		def.fieldMapping[i] = local
	}
	return nil
}

// writeTypeDefMarker streams the def for info: the full bytes on first
// occurrence within the message, an index back-reference afterwards.
func (r *typeResolver) writeTypeDefMarker(buf *ByteBuffer, info *TypeInfo) error {
	if idx, ok := r.typeDefWriteIndex[info]; ok {
		buf.WriteVarUint32(uint32(idx)<<1 | 1)
		return nil
	}
	if info.typeDef == nil {
		ss, ok := info.Serializer.(*structSerializer)
		if !ok {
			return fmt.Errorf("type %s has no struct schema: %w", info.Type, ErrUnsupportedType)
		}
		if err := ss.ensure(r.fory); err != nil {
			return err
		}
		def, err := r.buildTypeDef(info, ss.fields)
		if err != nil {
			return err
		}
		info.typeDef = def
	}
	idx := len(r.typeDefWriteIndex)
	r.typeDefWriteIndex[info] = idx
	buf.WriteVarUint32(uint32(idx) << 1)
	buf.WriteBinary(info.typeDef.encoded)
	return nil
}

// readTypeDefMarker mirrors writeTypeDefMarker. Parsed defs are cached
// across messages by their 8-byte header up to the configured cap.
func (r *typeResolver) readTypeDefMarker(buf *ByteBuffer) (*TypeDef, error) {
	marker := buf.ReadVarUint32()
	if err := buf.Error(); err != nil {
		return nil, err
	}
	if marker&1 == 1 {
		idx := int(marker >> 1)
		if idx >= len(r.readTypeDefs) {
			return nil, fmt.Errorf("type def index %d out of range: %w", idx, ErrInvalidData)
		}
		return r.readTypeDefs[idx], nil
	}
	header := buf.ReadUint64()
	if err := buf.Error(); err != nil {
		return nil, err
	}
	size := int(header & typeDefSizeMask)
	if def, ok := r.typeDefCache[header]; ok {
		if !buf.checkRead(size) {
			return nil, buf.Error()
		}
		buf.SetReaderIndex(buf.ReaderIndex() + size)
		r.readTypeDefs = append(r.readTypeDefs, def)
		return def, nil
	}
	body := buf.ReadBinary(size)
	if err := buf.Error(); err != nil {
		return nil, err
	}
	def, err := r.parseTypeDef(header, body)
	if err != nil {
		return nil, err
	}
	if len(r.typeDefCache) < r.typeDefCacheCap {
		r.typeDefCache[header] = def
	}
	r.readTypeDefs = append(r.readTypeDefs, def)
	return def, nil
}
