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
	"hash/fnv"
	"reflect"
	"strings"
	"time"

	"github.com/apache/fory/go/fory/meta"
)

type TypeId = int16

const (
	// NA A NullFlag type having no physical storage
	NA TypeId = iota // NA = 0
	// BOOL Boolean stored as one byte
	BOOL = 1
	// INT8 Signed 8-bit little-endian integer
	INT8 = 2
	// INT16 Signed 16-bit little-endian integer
	INT16 = 3
	// INT32 Signed 32-bit little-endian integer
	INT32 = 4
	// VAR_INT32 a 32-bit signed integer which uses fory var_int32 encoding
	VAR_INT32 = 5
	// INT64 Signed 64-bit little-endian integer
	INT64 = 6
	// VAR_INT64 a 64-bit signed integer which uses fory PVL encoding
	VAR_INT64 = 7
	// SLI_INT64 a 64-bit signed integer which uses fory SLI encoding
	SLI_INT64 = 8
	// HALF_FLOAT 2-byte floating point value
	HALF_FLOAT = 9
	// FLOAT 4-byte floating point value
	FLOAT = 10
	// DOUBLE 8-byte floating point value
	DOUBLE = 11
	// STRING UTF8 variable-length string as List<Char>
	STRING = 12
	// ENUM a data type consisting of a set of named values
	ENUM = 13
	// NAMED_ENUM an enum whose value will be serialized as the registered name
	NAMED_ENUM = 14
	// STRUCT a morphic(final) type serialized by Fory Struct serializer
	STRUCT = 15
	// COMPATIBLE_STRUCT a morphic(final) type serialized by Fory compatible Struct serializer
	COMPATIBLE_STRUCT = 16
	// NAMED_STRUCT a struct whose type mapping will be encoded as a name
	NAMED_STRUCT = 17
	// NAMED_COMPATIBLE_STRUCT a compatible_struct whose type mapping will be encoded as a name
	NAMED_COMPATIBLE_STRUCT = 18
	// EXTENSION a type which will be serialized by a customized serializer
	EXTENSION = 19
	// NAMED_EXT an ext type whose type mapping will be encoded as a name
	NAMED_EXT = 20
	// LIST A list of some logical data type
	LIST = 21
	// SET an unordered set of unique elements
	SET = 22
	// MAP Map a repeated struct logical type
	MAP = 23
	// DURATION Measure of elapsed time in either seconds milliseconds microseconds
	DURATION = 24
	// TIMESTAMP Exact timestamp encoded with int64 since UNIX epoch
	TIMESTAMP = 25
	// LOCAL_DATE a naive date without timezone
	LOCAL_DATE = 26
	// DECIMAL128 Precision- and scale-based decimal type with 128 bits.
	DECIMAL128 = 27
	// BINARY Variable-length bytes (no guarantee of UTF8-ness)
	BINARY = 28
	// ARRAY a multidimensional array which every sub-array can have different sizes but all have the same type
	ARRAY = 29
	// BOOL_ARRAY one dimensional bool array
	BOOL_ARRAY = 30
	// INT8_ARRAY one dimensional int8 array
	INT8_ARRAY = 31
	// INT16_ARRAY one dimensional int16 array
	INT16_ARRAY = 32
	// INT32_ARRAY one dimensional int32 array
	INT32_ARRAY = 33
	// INT64_ARRAY one dimensional int64 array
	INT64_ARRAY = 34
	// FLOAT16_ARRAY one dimensional half_float_16 array
	FLOAT16_ARRAY = 35
	// FLOAT32_ARRAY one dimensional float32 array
	FLOAT32_ARRAY = 36
	// FLOAT64_ARRAY one dimensional float64 array
	FLOAT64_ARRAY = 37

	// UINT8 Unsigned 8-bit little-endian integer
	UINT8 = 100 // Not in mapping table, assign a higher value
	// UINT16 Unsigned 16-bit little-endian integer
	UINT16 = 101
	// UINT32 Unsigned 32-bit little-endian integer
	UINT32 = 102
	// UINT64 Unsigned 64-bit little-endian integer
	UINT64 = 103
	// VAR_UINT32 a 32-bit unsigned integer which uses varuint encoding
	VAR_UINT32 = 104
	// VAR_UINT64 a 64-bit unsigned integer which uses varuint encoding
	VAR_UINT64 = 105
	// TAGGED_UINT64 a 64-bit unsigned integer with an extended-range tag bit
	TAGGED_UINT64 = 106
	// TYPED_UNION a union whose arms are identified by registered ids
	TYPED_UNION = 107
	// NAMED_UNION a union whose arms are identified by registered names
	NAMED_UNION = 108
	// MAX_ID Leave this at the end
	MAX_ID = 109

	DECIMAL = DECIMAL128
)

var namedTypes = map[TypeId]struct{}{
	NAMED_EXT:               {},
	NAMED_ENUM:              {},
	NAMED_STRUCT:            {},
	NAMED_COMPATIBLE_STRUCT: {},
	NAMED_UNION:             {},
}

// IsNamespacedType checks whether the given type ID is a namespace type
func IsNamespacedType(typeID TypeId) bool {
	_, exists := namedTypes[typeID]
	return exists
}

func isNamedTypeId(typeID TypeId) bool { return IsNamespacedType(typeID) }

func isUserTypeId(typeID TypeId) bool {
	switch typeID {
	case ENUM, NAMED_ENUM, STRUCT, COMPATIBLE_STRUCT, NAMED_STRUCT, NAMED_COMPATIBLE_STRUCT,
		EXTENSION, NAMED_EXT, TYPED_UNION, NAMED_UNION:
		return true
	}
	return false
}

func isStructTypeId(typeID TypeId) bool {
	switch typeID {
	case STRUCT, COMPATIBLE_STRUCT, NAMED_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return true
	}
	return false
}

// normalizeTypeId folds kind variants that share a payload layout:
// arrays into LIST, id/named struct variants into one kind.
func normalizeTypeId(typeID TypeId) TypeId {
	switch {
	case typeID == ARRAY || isPrimitiveArrayType(typeID):
		return LIST
	case isStructTypeId(typeID):
		return STRUCT
	case typeID == ENUM || typeID == NAMED_ENUM:
		return ENUM
	case typeID == EXTENSION || typeID == NAMED_EXT:
		return EXTENSION
	case typeID == TYPED_UNION || typeID == NAMED_UNION:
		return TYPED_UNION
	}
	return typeID
}

var (
	interfaceType      = reflect.TypeOf((*interface{})(nil)).Elem()
	stringType         = reflect.TypeOf((*string)(nil)).Elem()
	stringSliceType    = reflect.TypeOf((*[]string)(nil)).Elem()
	byteSliceType      = reflect.TypeOf((*[]byte)(nil)).Elem()
	boolSliceType      = reflect.TypeOf((*[]bool)(nil)).Elem()
	int16SliceType     = reflect.TypeOf((*[]int16)(nil)).Elem()
	int32SliceType     = reflect.TypeOf((*[]int32)(nil)).Elem()
	int64SliceType     = reflect.TypeOf((*[]int64)(nil)).Elem()
	float32SliceType   = reflect.TypeOf((*[]float32)(nil)).Elem()
	float64SliceType   = reflect.TypeOf((*[]float64)(nil)).Elem()
	interfaceSliceType = reflect.TypeOf((*[]interface{})(nil)).Elem()
	interfaceMapType   = reflect.TypeOf((*map[interface{}]interface{})(nil)).Elem()
	boolType           = reflect.TypeOf((*bool)(nil)).Elem()
	byteType           = reflect.TypeOf((*byte)(nil)).Elem()
	int8Type           = reflect.TypeOf((*int8)(nil)).Elem()
	int16Type          = reflect.TypeOf((*int16)(nil)).Elem()
	int32Type          = reflect.TypeOf((*int32)(nil)).Elem()
	int64Type          = reflect.TypeOf((*int64)(nil)).Elem()
	intType            = reflect.TypeOf((*int)(nil)).Elem()
	uint16Type         = reflect.TypeOf((*uint16)(nil)).Elem()
	uint32Type         = reflect.TypeOf((*uint32)(nil)).Elem()
	uint64Type         = reflect.TypeOf((*uint64)(nil)).Elem()
	float16Type        = reflect.TypeOf((*Float16)(nil)).Elem()
	float32Type        = reflect.TypeOf((*float32)(nil)).Elem()
	float64Type        = reflect.TypeOf((*float64)(nil)).Elem()
	dateType           = reflect.TypeOf((*Date)(nil)).Elem()
	timestampType      = reflect.TypeOf((*time.Time)(nil)).Elem()
	genericSetType     = reflect.TypeOf((*GenericSet)(nil)).Elem()
)

// Int16Slice is a named []int16; named slice types serialize as lists
// rather than primitive arrays.
type Int16Slice []int16

// TypeInfo is the immutable registry descriptor of one native type.
type TypeInfo struct {
	Type reflect.Type
	// TypeId is the protocol kind, the low byte of the wire id.
	TypeId TypeId
	// UserID is the caller-assigned identity, -1 when registered by name
	// or builtin.
	UserID int32
	// WireID is the full on-wire id: the kind, plus UserID<<8 for
	// id-registered user types.
	WireID       int32
	Namespace    string
	TypeName     string
	PkgPathBytes *MetaStringBytes
	NameBytes    *MetaStringBytes
	Serializer   Serializer
	typeDef      *TypeDef
	hashValue    uint64
}

type namedTypeKey [2]string

type nsTypeKey struct {
	Namespace int64
	TypeName  int64
}

type typeResolver struct {
	fory *Fory

	typeToSerializers map[reflect.Type]Serializer

	typesInfo           map[reflect.Type]*TypeInfo
	typeIDToTypeInfo    map[int32]*TypeInfo
	userIDToTypeInfo    map[int32]*TypeInfo
	namedTypeToTypeInfo map[namedTypeKey]*TypeInfo
	nsTypeToTypeInfo    map[nsTypeKey]*TypeInfo

	metaStringResolver *MetaStringResolver

	// Per-message TypeDef streaming state.
	typeDefWriteIndex map[*TypeInfo]int
	readTypeDefs      []*TypeDef
	// Cross-message parsed-def cache, keyed by the 8-byte header.
	typeDefCache    map[uint64]*TypeDef
	typeDefCacheCap int

	// Encoders/Decoders
	namespaceEncoder *meta.Encoder
	namespaceDecoder *meta.Decoder
	typeNameEncoder  *meta.Encoder
	typeNameDecoder  *meta.Decoder
	fieldNameEncoder *meta.Encoder
	fieldNameDecoder *meta.Decoder
}

func newTypeResolver(fory *Fory) *typeResolver {
	r := &typeResolver{
		fory:              fory,
		typeToSerializers: map[reflect.Type]Serializer{},

		typesInfo:           make(map[reflect.Type]*TypeInfo),
		typeIDToTypeInfo:    make(map[int32]*TypeInfo),
		userIDToTypeInfo:    make(map[int32]*TypeInfo),
		namedTypeToTypeInfo: make(map[namedTypeKey]*TypeInfo),
		nsTypeToTypeInfo:    make(map[nsTypeKey]*TypeInfo),

		metaStringResolver: NewMetaStringResolver(),

		typeDefWriteIndex: map[*TypeInfo]int{},
		typeDefCache:      map[uint64]*TypeDef{},
		typeDefCacheCap:   fory.typeDefCacheCap,

		namespaceEncoder: meta.NewEncoder('.', '_'),
		namespaceDecoder: meta.NewDecoder('.', '_'),
		typeNameEncoder:  meta.NewEncoder('$', '_'),
		typeNameDecoder:  meta.NewDecoder('$', '_'),
		fieldNameEncoder: meta.NewEncoder('$', '_'),
		fieldNameDecoder: meta.NewDecoder('$', '_'),
	}
	r.initialize()
	return r
}

func (r *typeResolver) initialize() {
	// Order matters for shared wire ids: the canonical dynamic reader of
	// an id must come first ([]interface{} for LIST, int64 for VAR_INT64).
	serializers := []struct {
		reflect.Type
		Serializer
	}{
		{stringType, stringSerializer{}},
		{interfaceSliceType, sliceSerializer{}},
		{interfaceMapType, mapSerializer{}},
		{stringSliceType, stringSliceSerializer{}},
		{byteSliceType, byteSliceSerializer{}},
		{boolSliceType, boolSliceSerializer{}},
		{int16SliceType, int16SliceSerializer{}},
		{int32SliceType, int32SliceSerializer{}},
		{int64SliceType, int64SliceSerializer{}},
		{float32SliceType, float32SliceSerializer{}},
		{float64SliceType, float64SliceSerializer{}},
		{boolType, boolSerializer{}},
		{byteType, byteSerializer{}},
		{int8Type, int8Serializer{}},
		{int16Type, int16Serializer{}},
		{int32Type, int32Serializer{}},
		{int64Type, int64Serializer{}},
		{intType, intSerializer{}},
		{uint16Type, uint16Serializer{}},
		{uint32Type, uint32Serializer{}},
		{uint64Type, uint64Serializer{}},
		{float16Type, float16Serializer{}},
		{float32Type, float32Serializer{}},
		{float64Type, float64Serializer{}},
		{dateType, dateSerializer{}},
		{timestampType, timeSerializer{}},
		{genericSetType, setSerializer{}},
	}
	for _, elem := range serializers {
		info := &TypeInfo{
			Type:       elem.Type,
			TypeId:     elem.Serializer.TypeId(),
			UserID:     -1,
			WireID:     int32(elem.Serializer.TypeId()),
			Serializer: elem.Serializer,
			hashValue:  calcTypeHash(elem.Type),
		}
		r.typesInfo[elem.Type] = info
		// Several native types share a wire id (int and int64, []interface{}
		// and named lists); the first registration wins so reads stay stable.
		if _, ok := r.typeIDToTypeInfo[info.WireID]; !ok {
			r.typeIDToTypeInfo[info.WireID] = info
		}
	}
}

// RegisterSerializer supplies a custom per-type codec. The type becomes
// an EXT kind once it is also registered with an id or name.
func (r *typeResolver) RegisterSerializer(type_ reflect.Type, s Serializer) error {
	if prev, ok := r.typeToSerializers[type_]; ok {
		return fmt.Errorf("type %s already has a serializer %v registered: %w",
			type_, prev, ErrDuplicatedRegistration)
	}
	r.typeToSerializers[type_] = s
	return nil
}

// registerUserType registers a struct, enum or ext type under a numeric
// id (userID > 0) or a namespace+name identity (userID < 0).
func (r *typeResolver) registerUserType(type_ reflect.Type, userID int32, namespace, typeName string) (*TypeInfo, error) {
	if type_ == nil {
		return nil, fmt.Errorf("nil type: %w", ErrInvalidParam)
	}
	if type_.Kind() == reflect.Ptr {
		type_ = type_.Elem()
	}
	if info, ok := r.typesInfo[type_]; ok && isUserTypeId(info.TypeId) {
		return nil, fmt.Errorf("type %s already registered: %w", type_, ErrDuplicatedRegistration)
	}
	named := userID < 0
	if named {
		if typeName == "" {
			return nil, fmt.Errorf("empty type name: %w", ErrInvalidParam)
		}
		if _, ok := r.namedTypeToTypeInfo[namedTypeKey{namespace, typeName}]; ok {
			return nil, fmt.Errorf("name %s.%s already registered: %w", namespace, typeName, ErrDuplicatedRegistration)
		}
	} else {
		if userID == 0 {
			return nil, fmt.Errorf("user type id must be positive: %w", ErrInvalidParam)
		}
		if _, ok := r.userIDToTypeInfo[userID]; ok {
			return nil, fmt.Errorf("id %d already registered: %w", userID, ErrDuplicatedRegistration)
		}
	}

	var kind TypeId
	var serializer Serializer
	switch {
	case r.typeToSerializers[type_] != nil:
		serializer = r.typeToSerializers[type_]
		kind = EXTENSION
		if named {
			kind = NAMED_EXT
		}
	case type_.Kind() == reflect.Struct && type_ != dateType && type_ != timestampType:
		serializer = &structSerializer{type_: type_}
		if r.fory.compatible {
			kind = COMPATIBLE_STRUCT
			if named {
				kind = NAMED_COMPATIBLE_STRUCT
			}
		} else {
			kind = STRUCT
			if named {
				kind = NAMED_STRUCT
			}
		}
	case isEnumKind(type_.Kind()):
		serializer = enumSerializer{}
		kind = ENUM
		if named {
			kind = NAMED_ENUM
		}
	default:
		return nil, fmt.Errorf("type %s cannot be registered: %w", type_, ErrUnsupportedType)
	}

	wireID := int32(kind)
	if !named {
		wireID |= userID << 8
	}
	info := &TypeInfo{
		Type:       type_,
		TypeId:     kind,
		UserID:     userID,
		WireID:     wireID,
		Namespace:  namespace,
		TypeName:   typeName,
		Serializer: serializer,
		hashValue:  calcTypeHash(type_),
	}
	if named {
		info.UserID = -1
		nsMeta, err := r.namespaceEncoder.Encode(namespace)
		if err != nil {
			return nil, fmt.Errorf("namespace %q: %w", namespace, ErrInvalidParam)
		}
		nameMeta, err := r.typeNameEncoder.Encode(typeName)
		if err != nil {
			return nil, fmt.Errorf("type name %q: %w", typeName, ErrInvalidParam)
		}
		info.PkgPathBytes = r.metaStringResolver.GetMetaStrBytes(&nsMeta)
		info.NameBytes = r.metaStringResolver.GetMetaStrBytes(&nameMeta)
		r.namedTypeToTypeInfo[namedTypeKey{namespace, typeName}] = info
		r.nsTypeToTypeInfo[nsTypeKey{info.PkgPathBytes.Hashcode, info.NameBytes.Hashcode}] = info
	} else {
		r.userIDToTypeInfo[userID] = info
	}
	r.typesInfo[type_] = info
	return info, nil
}

func isEnumKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// getTypeInfo resolves the descriptor of a runtime value.
func (r *typeResolver) getTypeInfo(value reflect.Value, create bool) (*TypeInfo, error) {
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if !value.IsValid() {
		return nil, fmt.Errorf("invalid value: %w", ErrInvalidParam)
	}
	return r.getTypeInfoByType(value.Type())
}

// getTypeInfoByType resolves a descriptor by native type, creating
// composite descriptors (slices, arrays, maps, pointers) on demand.
// Pointer types resolve to their pointee's descriptor.
func (r *typeResolver) getTypeInfoByType(type_ reflect.Type) (*TypeInfo, error) {
	if info, ok := r.typesInfo[type_]; ok {
		return info, nil
	}
	var info *TypeInfo
	switch kind := type_.Kind(); kind {
	case reflect.Ptr:
		if elemKind := type_.Elem().Kind(); elemKind == reflect.Ptr || elemKind == reflect.Interface {
			return nil, fmt.Errorf("pointer to pointer/interface not supported, got %s: %w", type_, ErrUnsupportedType)
		}
		elemInfo, err := r.getTypeInfoByType(type_.Elem())
		if err != nil {
			return nil, err
		}
		r.typesInfo[type_] = elemInfo
		return elemInfo, nil
	case reflect.Slice:
		elem := type_.Elem()
		var serializer Serializer
		if isDynamicType(elem) {
			serializer = sliceSerializer{}
		} else {
			serializer = &sliceConcreteValueSerializer{type_: type_, referencable: nullable(elem)}
		}
		info = &TypeInfo{Type: type_, TypeId: LIST, UserID: -1, WireID: LIST, Serializer: serializer}
	case reflect.Array:
		elem := type_.Elem()
		var serializer Serializer
		if isDynamicType(elem) {
			serializer = arraySerializer{}
		} else {
			serializer = &arrayConcreteValueSerializer{type_: type_, referencable: nullable(elem)}
		}
		info = &TypeInfo{Type: type_, TypeId: LIST, UserID: -1, WireID: LIST, Serializer: serializer}
	case reflect.Map:
		info = &TypeInfo{Type: type_, TypeId: MAP, UserID: -1, WireID: MAP, Serializer: mapSerializer{type_: type_}}
	case reflect.Struct:
		return nil, &TypeUnregisteredError{TypeName: type_.String()}
	default:
		return nil, fmt.Errorf("type %s not supported: %w", type_, ErrUnsupportedType)
	}
	info.hashValue = calcTypeHash(type_)
	r.typesInfo[type_] = info
	return info, nil
}

// getSerializerByType resolves the codec for a declared type, wrapping
// pointers and honoring per-field integer encoding overrides. Dynamic
// (interface) types return a nil serializer; they dispatch per value.
func (r *typeResolver) getSerializerByType(type_ reflect.Type, encOverride string) (Serializer, error) {
	if type_.Kind() == reflect.Ptr {
		inner, err := r.getSerializerByType(type_.Elem(), encOverride)
		if err != nil {
			return nil, err
		}
		return &ptrToValueSerializer{inner}, nil
	}
	if encOverride != "" {
		switch {
		case encOverride == "fixed" && type_.Kind() == reflect.Int32:
			return fixedInt32Serializer{}, nil
		case encOverride == "fixed" && (type_.Kind() == reflect.Int64 || type_.Kind() == reflect.Int):
			return fixedInt64Serializer{}, nil
		case encOverride == "sli" && (type_.Kind() == reflect.Int64 || type_.Kind() == reflect.Int):
			return sliInt64Serializer{}, nil
		case encOverride == "tagged" && type_.Kind() == reflect.Uint64:
			return taggedUint64Serializer{}, nil
		default:
			return nil, fmt.Errorf("encoding %q does not apply to %s: %w", encOverride, type_, ErrInvalidParam)
		}
	}
	if type_.Kind() == reflect.Interface {
		return nil, nil
	}
	info, err := r.getTypeInfoByType(type_)
	if err != nil {
		return nil, err
	}
	return info.Serializer, nil
}

func isDynamicType(type_ reflect.Type) bool {
	return type_.Kind() == reflect.Interface || (type_.Kind() == reflect.Ptr && (type_.Elem().Kind() == reflect.Ptr ||
		type_.Elem().Kind() == reflect.Interface))
}

// fieldTypeOf builds the recursive TypeDef field-type record for a
// declared Go type.
func (r *typeResolver) fieldTypeOf(type_ reflect.Type, encOverride string) (*FieldType, error) {
	// Registered user types (structs, enum-like named integers) take
	// their registered kind and identity.
	if info, ok := r.typesInfo[type_]; ok && isUserTypeId(info.TypeId) {
		return &FieldType{
			TypeID:    info.TypeId,
			UserID:    info.UserID,
			Namespace: info.Namespace,
			TypeName:  info.TypeName,
		}, nil
	}
	ft := &FieldType{UserID: -1}
	switch type_ {
	case stringType:
		ft.TypeID = STRING
		return ft, nil
	case byteSliceType:
		ft.TypeID = BINARY
		return ft, nil
	case dateType:
		ft.TypeID = LOCAL_DATE
		return ft, nil
	case timestampType:
		ft.TypeID = TIMESTAMP
		return ft, nil
	case float16Type:
		ft.TypeID = HALF_FLOAT
		return ft, nil
	case genericSetType:
		ft.TypeID = SET
		ft.Elem = &FieldType{TypeID: NA, Nullable: true, UserID: -1}
		return ft, nil
	case boolSliceType:
		ft.TypeID = BOOL_ARRAY
		return ft, nil
	case int16SliceType:
		ft.TypeID = INT16_ARRAY
		return ft, nil
	case int32SliceType:
		ft.TypeID = INT32_ARRAY
		return ft, nil
	case int64SliceType:
		ft.TypeID = INT64_ARRAY
		return ft, nil
	case float32SliceType:
		ft.TypeID = FLOAT32_ARRAY
		return ft, nil
	case float64SliceType:
		ft.TypeID = FLOAT64_ARRAY
		return ft, nil
	}
	switch kind := type_.Kind(); kind {
	case reflect.Ptr:
		return r.fieldTypeOf(type_.Elem(), encOverride)
	case reflect.Interface:
		ft.TypeID = NA
		ft.Nullable = true
	case reflect.Bool:
		ft.TypeID = BOOL
	case reflect.Int8:
		ft.TypeID = INT8
	case reflect.Uint8:
		ft.TypeID = UINT8
	case reflect.Int16:
		ft.TypeID = INT16
	case reflect.Uint16:
		ft.TypeID = UINT16
	case reflect.Int32:
		ft.TypeID = VAR_INT32
		if encOverride == "fixed" {
			ft.TypeID = INT32
		}
	case reflect.Int64, reflect.Int:
		switch encOverride {
		case "fixed":
			ft.TypeID = INT64
		case "sli":
			ft.TypeID = SLI_INT64
		default:
			ft.TypeID = VAR_INT64
		}
	case reflect.Uint32:
		ft.TypeID = VAR_UINT32
	case reflect.Uint64:
		ft.TypeID = VAR_UINT64
		if encOverride == "tagged" {
			ft.TypeID = TAGGED_UINT64
		}
	case reflect.Float32:
		ft.TypeID = FLOAT
	case reflect.Float64:
		ft.TypeID = DOUBLE
	case reflect.String:
		ft.TypeID = STRING
	case reflect.Slice, reflect.Array:
		ft.TypeID = LIST
		elem, err := r.fieldTypeOf(type_.Elem(), "")
		if err != nil {
			return nil, err
		}
		elem.Nullable = elem.Nullable || nullable(type_.Elem())
		ft.Elem = elem
	case reflect.Map:
		ft.TypeID = MAP
		key, err := r.fieldTypeOf(type_.Key(), "")
		if err != nil {
			return nil, err
		}
		value, err := r.fieldTypeOf(type_.Elem(), "")
		if err != nil {
			return nil, err
		}
		key.Nullable = key.Nullable || nullable(type_.Key())
		value.Nullable = value.Nullable || nullable(type_.Elem())
		ft.Key, ft.Value = key, value
	case reflect.Struct:
		return nil, &TypeUnregisteredError{TypeName: type_.String()}
	default:
		return nil, fmt.Errorf("field type %s not supported: %w", type_, ErrUnsupportedType)
	}
	return ft, nil
}

func calcTypeHash(typ reflect.Type) uint64 {
	h := fnv.New64a()
	h.Write([]byte(typ.PkgPath()))
	h.Write([]byte(typ.Name()))
	h.Write([]byte(typ.Kind().String()))
	return h.Sum64()
}

// writeTypeInfo writes the type-info record: the wire id, plus identity
// metadata for named kinds, plus the streamed TypeDef for compatible
// struct kinds.
func (r *typeResolver) writeTypeInfo(buf *ByteBuffer, typeInfo *TypeInfo) error {
	buf.WriteVarUint32(uint32(typeInfo.WireID))
	switch typeInfo.TypeId {
	case NAMED_STRUCT, NAMED_ENUM, NAMED_EXT:
		if err := r.metaStringResolver.WriteMetaStringBytes(buf, typeInfo.PkgPathBytes); err != nil {
			return err
		}
		if err := r.metaStringResolver.WriteMetaStringBytes(buf, typeInfo.NameBytes); err != nil {
			return err
		}
	case COMPATIBLE_STRUCT, NAMED_COMPATIBLE_STRUCT:
		return r.writeTypeDefMarker(buf, typeInfo)
	}
	return nil
}

// readTypeInfoAllowUnknown reads a type-info record, tolerating remote
// types with no local registration; those return a nil TypeInfo and can
// only be skipped.
func (r *typeResolver) readTypeInfoAllowUnknown(buf *ByteBuffer) (TypeId, *TypeInfo, *TypeDef, error) {
	wireID := int32(buf.ReadVarUint32())
	if err := buf.Error(); err != nil {
		return NA, nil, nil, err
	}
	kind := TypeId(wireID & 0xff)
	switch kind {
	case COMPATIBLE_STRUCT, NAMED_COMPATIBLE_STRUCT:
		def, err := r.readTypeDefMarker(buf)
		if err != nil {
			return kind, nil, nil, err
		}
		return kind, def.localInfo, def, nil
	case NAMED_STRUCT, NAMED_ENUM, NAMED_EXT:
		nsBytes, err := r.metaStringResolver.ReadMetaStringBytes(buf)
		if err != nil {
			return kind, nil, nil, err
		}
		nameBytes, err := r.metaStringResolver.ReadMetaStringBytes(buf)
		if err != nil {
			return kind, nil, nil, err
		}
		compositeKey := nsTypeKey{nsBytes.Hashcode, nameBytes.Hashcode}
		if info, ok := r.nsTypeToTypeInfo[compositeKey]; ok {
			return kind, info, nil, nil
		}
		ns, err := r.namespaceDecoder.Decode(nsBytes.Data, nsBytes.Encoding)
		if err != nil {
			return kind, nil, nil, fmt.Errorf("namespace decode: %v: %w", err, ErrInvalidData)
		}
		name, err := r.typeNameDecoder.Decode(nameBytes.Data, nameBytes.Encoding)
		if err != nil {
			return kind, nil, nil, fmt.Errorf("type name decode: %v: %w", err, ErrInvalidData)
		}
		if info, ok := r.namedTypeToTypeInfo[namedTypeKey{ns, name}]; ok {
			r.nsTypeToTypeInfo[compositeKey] = info
			return kind, info, nil, nil
		}
		return kind, nil, nil, nil
	case STRUCT, ENUM, EXTENSION:
		if userID := wireID >> 8; userID > 0 {
			return kind, r.userIDToTypeInfo[userID], nil, nil
		}
		return kind, r.typeIDToTypeInfo[wireID], nil, nil
	default:
		return kind, r.typeIDToTypeInfo[wireID], nil, nil
	}
}

// readTypeInfo reads a type-info record; an unregistered identity is an
// error here because the value must be materialized.
func (r *typeResolver) readTypeInfo(buf *ByteBuffer) (*TypeInfo, *TypeDef, error) {
	kind, info, def, err := r.readTypeInfoAllowUnknown(buf)
	if err != nil {
		return nil, nil, err
	}
	if info == nil {
		if def != nil {
			if !def.named {
				return nil, nil, &TagUnregisteredError{ID: def.userID}
			}
			name := def.typeName
			if def.namespace != "" {
				name = def.namespace + "." + name
			}
			return nil, nil, &TypeUnregisteredError{TypeName: name}
		}
		return nil, nil, &TagUnregisteredError{ID: int32(kind)}
	}
	return info, def, nil
}

func (r *typeResolver) resetWrite() {
	r.metaStringResolver.ResetWrite()
	if len(r.typeDefWriteIndex) > 0 {
		r.typeDefWriteIndex = map[*TypeInfo]int{}
	}
}

func (r *typeResolver) resetRead() {
	r.metaStringResolver.ResetRead()
	r.readTypeDefs = r.readTypeDefs[:0]
}

func isPrimitiveType(typeID TypeId) bool {
	switch typeID {
	case BOOL,
		INT8,
		INT16,
		INT32,
		INT64,
		FLOAT,
		DOUBLE:
		return true
	default:
		return false
	}
}

// isPrimitiveTypeId covers every fixed and variable-width numeric kind.
func isPrimitiveTypeId(typeID TypeId) bool {
	switch typeID {
	case BOOL, INT8, UINT8, INT16, UINT16, INT32, VAR_INT32, UINT32, VAR_UINT32,
		INT64, VAR_INT64, SLI_INT64, UINT64, VAR_UINT64, TAGGED_UINT64,
		HALF_FLOAT, FLOAT, DOUBLE:
		return true
	default:
		return false
	}
}

func isListType(typeID TypeId) bool {
	return typeID == LIST
}

func isMapType(typeID TypeId) bool {
	return typeID == MAP
}

func isPrimitiveArrayType(typeID TypeId) bool {
	switch typeID {
	case BOOL_ARRAY,
		INT8_ARRAY,
		INT16_ARRAY,
		INT32_ARRAY,
		INT64_ARRAY,
		FLOAT16_ARRAY,
		FLOAT32_ARRAY,
		FLOAT64_ARRAY:
		return true
	default:
		return false
	}
}

// isPrimitiveSliceOrArrayType reports whether the type maps onto one of
// the primitive array wire kinds: an unnamed slice with a fixed-width
// numeric or bool element. Named slice types and []int stay lists.
func isPrimitiveSliceOrArrayType(type_ reflect.Type) bool {
	if type_.Kind() != reflect.Slice || type_.Name() != "" {
		return false
	}
	switch type_.Elem() {
	case boolType, byteType, int16Type, int32Type, int64Type, float32Type, float64Type:
		return true
	default:
		return false
	}
}

var primitiveTypeSizes = map[TypeId]int{
	BOOL:          1,
	INT8:          1,
	UINT8:         1,
	INT16:         2,
	UINT16:        2,
	HALF_FLOAT:    2,
	INT32:         4,
	VAR_INT32:     4,
	UINT32:        4,
	VAR_UINT32:    4,
	FLOAT:         4,
	INT64:         8,
	VAR_INT64:     8,
	SLI_INT64:     8,
	UINT64:        8,
	VAR_UINT64:    8,
	TAGGED_UINT64: 8,
	DOUBLE:        8,
}

func getPrimitiveTypeSize(typeID TypeId) int {
	if sz, ok := primitiveTypeSizes[typeID]; ok {
		return sz
	}
	return -1
}

// splitTag splits a legacy dotted tag like "example.Foo" into a
// namespace and type name.
func splitTag(tag string) (string, string) {
	if idx := strings.LastIndex(tag, "."); idx != -1 {
		return tag[:idx], tag[idx+1:]
	}
	return "", tag
}
