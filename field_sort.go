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

import "sort"

// Field ordering is part of the wire contract: two peers at the same
// schema revision must produce identical layouts. Fields are grouped by
// category, then ordered inside each group, with names as the final tie
// break.
const (
	sortCatPrimitive = iota
	sortCatNullablePrimitive
	sortCatBuiltinScalar
	sortCatCollection
	sortCatMap
	sortCatUser
)

func fieldSortCategory(fd *fieldDef) int {
	id := fd.typeID
	switch {
	case isPrimitiveTypeId(id):
		if fd.nullable {
			return sortCatNullablePrimitive
		}
		return sortCatPrimitive
	case id == STRING || id == BINARY || id == LOCAL_DATE || id == TIMESTAMP:
		return sortCatBuiltinScalar
	case id == LIST || id == SET || isPrimitiveArrayType(id):
		return sortCatCollection
	case id == MAP:
		return sortCatMap
	default:
		return sortCatUser
	}
}

// isCompressedTypeId reports variable-width integer encodings; fixed
// widths sort ahead of them inside the primitive groups.
func isCompressedTypeId(id TypeId) bool {
	switch id {
	case VAR_INT32, VAR_INT64, SLI_INT64, VAR_UINT32, VAR_UINT64, TAGGED_UINT64:
		return true
	}
	return false
}

func sortFields(fields []*fieldDef) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		ca, cb := fieldSortCategory(a), fieldSortCategory(b)
		if ca != cb {
			return ca < cb
		}
		switch ca {
		case sortCatPrimitive, sortCatNullablePrimitive:
			compA, compB := isCompressedTypeId(a.typeID), isCompressedTypeId(b.typeID)
			if compA != compB {
				return !compA // fixed width first
			}
			wa, wb := getPrimitiveTypeSize(a.typeID), getPrimitiveTypeSize(b.typeID)
			if wa != wb {
				return wa > wb
			}
			if a.typeID != b.typeID {
				return a.typeID > b.typeID
			}
		default:
			na, nb := normalizeTypeId(a.typeID), normalizeTypeId(b.typeID)
			if na != nb {
				return na < nb
			}
		}
		if a.snakeName != b.snakeName {
			return a.snakeName < b.snakeName
		}
		return a.name < b.name
	})
}
