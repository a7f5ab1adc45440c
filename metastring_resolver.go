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
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// smallMetaStringThreshold is the encoded size above which a MetaString
// is identified on the wire by its 8-byte hash instead of a 1-byte
// encoding tag.
const smallMetaStringThreshold = 16

// MetaStringBytes is the wire form of one identifier: the packed bytes,
// their encoding, and the hashes used for table lookups. Instances are
// canonicalized by the resolver so pointer identity implies equality.
type MetaStringBytes struct {
	Data     []byte
	Encoding meta.Encoding
	// Hashcode keys resolver tables. For long strings the low byte holds
	// the encoding and the upper 56 bits the MurmurHash3 value, exactly
	// as written on the wire; short strings use a non-wire xxhash.
	Hashcode             int64
	dynamicWriteStringID int16
}

func newMetaStringBytes(data []byte, encoding meta.Encoding) *MetaStringBytes {
	var hash int64
	if len(data) > smallMetaStringThreshold {
		hash = int64(murmur3.Sum64(data)&^0xff | uint64(encoding))
	} else {
		hash = int64(xxhash.Sum64(data)&^0xff | uint64(encoding))
	}
	return &MetaStringBytes{
		Data:                 data,
		Encoding:             encoding,
		Hashcode:             hash,
		dynamicWriteStringID: -1,
	}
}

func metaStrKey(encoding meta.Encoding, data []byte) string {
	key := make([]byte, 0, len(data)+1)
	key = append(key, byte(encoding))
	key = append(key, data...)
	return string(key)
}

// MetaStringResolver de-duplicates identifiers within a message: the
// first occurrence is written inline, later ones as an index
// back-reference. Long-lived caches keyed by hash survive across
// messages; the index tables are per-message state.
type MetaStringResolver struct {
	encodedToBytes map[string]*MetaStringBytes
	hashToBytes    map[int64]*MetaStringBytes

	writtenMetaStrs    []*MetaStringBytes
	dynamicWriteID     int16
	readMetaStrs       []*MetaStringBytes
}

func NewMetaStringResolver() *MetaStringResolver {
	return &MetaStringResolver{
		encodedToBytes: make(map[string]*MetaStringBytes),
		hashToBytes:    make(map[int64]*MetaStringBytes),
	}
}

// GetMetaStrBytes returns the canonical MetaStringBytes for an encoded
// MetaString, creating and caching it on first sight.
func (r *MetaStringResolver) GetMetaStrBytes(ms *meta.MetaString) *MetaStringBytes {
	key := metaStrKey(ms.GetEncoding(), ms.GetEncodedBytes())
	if msb, ok := r.encodedToBytes[key]; ok {
		return msb
	}
	msb := newMetaStringBytes(ms.GetEncodedBytes(), ms.GetEncoding())
	r.encodedToBytes[key] = msb
	r.hashToBytes[msb.Hashcode] = msb
	return msb
}

// WriteMetaStringBytes writes msb inline on first occurrence within the
// current message and as an index reference afterwards.
func (r *MetaStringResolver) WriteMetaStringBytes(buf *ByteBuffer, msb *MetaStringBytes) error {
	if msb == nil {
		return fmt.Errorf("nil meta string: %w", ErrInvalidParam)
	}
	if id := msb.dynamicWriteStringID; id != -1 {
		buf.WriteVarUint32(uint32(id)<<1 | 1)
		return nil
	}
	msb.dynamicWriteStringID = r.dynamicWriteID
	r.dynamicWriteID++
	r.writtenMetaStrs = append(r.writtenMetaStrs, msb)
	length := len(msb.Data)
	buf.WriteVarUint32(uint32(length) << 1)
	if length == 0 {
		return nil
	}
	if length > smallMetaStringThreshold {
		buf.WriteInt64(msb.Hashcode)
	} else {
		buf.WriteByte_(byte(msb.Encoding))
	}
	buf.WriteBinary(msb.Data)
	return nil
}

// ReadMetaStringBytes reads one MetaString occurrence, resolving index
// back-references against the current message's table.
func (r *MetaStringResolver) ReadMetaStringBytes(buf *ByteBuffer) (*MetaStringBytes, error) {
	header := buf.ReadVarUint32()
	if err := buf.Error(); err != nil {
		return nil, err
	}
	if header&1 == 1 {
		idx := int(header >> 1)
		if idx >= len(r.readMetaStrs) {
			return nil, fmt.Errorf("meta string index %d out of range: %w", idx, ErrInvalidData)
		}
		return r.readMetaStrs[idx], nil
	}
	length := int(header >> 1)
	var msb *MetaStringBytes
	if length == 0 {
		msb = newMetaStringBytes(nil, meta.UTF_8)
	} else if length > smallMetaStringThreshold {
		hash := buf.ReadInt64()
		data := buf.ReadBinary(length)
		if err := buf.Error(); err != nil {
			return nil, err
		}
		if cached, ok := r.hashToBytes[hash]; ok {
			msb = cached
		} else {
			msb = &MetaStringBytes{
				Data:                 data,
				Encoding:             meta.Encoding(hash & 0xff),
				Hashcode:             hash,
				dynamicWriteStringID: -1,
			}
			r.hashToBytes[hash] = msb
		}
	} else {
		encoding := meta.Encoding(buf.ReadByte_())
		if encoding > meta.ALL_TO_LOWER_SPECIAL {
			return nil, fmt.Errorf("bad meta string encoding tag %d: %w", encoding, ErrInvalidData)
		}
		data := buf.ReadBinary(length)
		if err := buf.Error(); err != nil {
			return nil, err
		}
		key := metaStrKey(encoding, data)
		if cached, ok := r.encodedToBytes[key]; ok {
			msb = cached
		} else {
			msb = newMetaStringBytes(data, encoding)
			r.encodedToBytes[key] = msb
		}
	}
	r.readMetaStrs = append(r.readMetaStrs, msb)
	return msb, nil
}

// ResetWrite clears the per-message write index table.
func (r *MetaStringResolver) ResetWrite() {
	for _, msb := range r.writtenMetaStrs {
		msb.dynamicWriteStringID = -1
	}
	r.writtenMetaStrs = r.writtenMetaStrs[:0]
	r.dynamicWriteID = 0
}

// ResetRead clears the per-message read index table.
func (r *MetaStringResolver) ResetRead() {
	r.readMetaStrs = r.readMetaStrs[:0]
}
