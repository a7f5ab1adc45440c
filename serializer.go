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

// Serializer reads and writes values of one concrete type. Write never
// emits ref flags or type info; dispatch handles those.
type Serializer interface {
	TypeId() TypeId
	Write(f *Fory, buf *ByteBuffer, value reflect.Value) error
	Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error
}

type boolSerializer struct{}

func (s boolSerializer) TypeId() TypeId { return BOOL }

func (s boolSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteBool(value.Bool())
	return nil
}

func (s boolSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetBool(buf.ReadBool())
	return buf.Error()
}

type int8Serializer struct{}

func (s int8Serializer) TypeId() TypeId { return INT8 }

func (s int8Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteInt8(int8(value.Int()))
	return nil
}

func (s int8Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(int64(buf.ReadInt8()))
	return buf.Error()
}

type byteSerializer struct{}

func (s byteSerializer) TypeId() TypeId { return UINT8 }

func (s byteSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteByte_(byte(value.Uint()))
	return nil
}

func (s byteSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetUint(uint64(buf.ReadByte_()))
	return buf.Error()
}

type int16Serializer struct{}

func (s int16Serializer) TypeId() TypeId { return INT16 }

func (s int16Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteInt16(int16(value.Int()))
	return nil
}

func (s int16Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(int64(buf.ReadInt16()))
	return buf.Error()
}

type uint16Serializer struct{}

func (s uint16Serializer) TypeId() TypeId { return UINT16 }

func (s uint16Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteUint16(uint16(value.Uint()))
	return nil
}

func (s uint16Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetUint(uint64(buf.ReadUint16()))
	return buf.Error()
}

// int32Serializer uses the zigzag varint encoding, the xlang default for
// 32-bit integers. Fixed-width is available per field via struct tags.
type int32Serializer struct{}

func (s int32Serializer) TypeId() TypeId { return VAR_INT32 }

func (s int32Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteVarInt32(int32(value.Int()))
	return nil
}

func (s int32Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(int64(buf.ReadVarInt32()))
	return buf.Error()
}

type int64Serializer struct{}

func (s int64Serializer) TypeId() TypeId { return VAR_INT64 }

func (s int64Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteVarInt64(value.Int())
	return nil
}

func (s int64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetInt(buf.ReadVarInt64())
	return buf.Error()
}

// intSerializer maps the platform int onto the 64-bit varint wire type.
type intSerializer struct{}

func (s intSerializer) TypeId() TypeId { return VAR_INT64 }

func (s intSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteVarInt64(value.Int())
	return nil
}

func (s intSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	v := buf.ReadVarInt64()
	if int64(int(v)) != v {
		return fmt.Errorf("int64 %d overflows int: %w", v, ErrInvalidData)
	}
	value.SetInt(v)
	return buf.Error()
}

type uint32Serializer struct{}

func (s uint32Serializer) TypeId() TypeId { return VAR_UINT32 }

func (s uint32Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteVarUint32(uint32(value.Uint()))
	return nil
}

func (s uint32Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetUint(uint64(buf.ReadVarUint32()))
	return buf.Error()
}

type uint64Serializer struct{}

func (s uint64Serializer) TypeId() TypeId { return VAR_UINT64 }

func (s uint64Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteVarUint64(value.Uint())
	return nil
}

func (s uint64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetUint(buf.ReadVarUint64())
	return buf.Error()
}

type float16Serializer struct{}

func (s float16Serializer) TypeId() TypeId { return HALF_FLOAT }

func (s float16Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteFloat16(Float16(value.Uint()))
	return nil
}

func (s float16Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetUint(uint64(buf.ReadFloat16()))
	return buf.Error()
}

type float32Serializer struct{}

func (s float32Serializer) TypeId() TypeId { return FLOAT }

func (s float32Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteFloat32(float32(value.Float()))
	return nil
}

func (s float32Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetFloat(float64(buf.ReadFloat32()))
	return buf.Error()
}

type float64Serializer struct{}

func (s float64Serializer) TypeId() TypeId { return DOUBLE }

func (s float64Serializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	buf.WriteFloat64(value.Float())
	return nil
}

func (s float64Serializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	value.SetFloat(buf.ReadFloat64())
	return buf.Error()
}

type stringSerializer struct{}

func (s stringSerializer) TypeId() TypeId { return STRING }

func (s stringSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	return f.writeString(buf, value.String())
}

func (s stringSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	str, err := f.readString(buf)
	if err != nil {
		return err
	}
	value.SetString(str)
	return nil
}

// ptrToValueSerializer writes the pointee; null handling belongs to the
// ref/null flag that introduced the pointer.
type ptrToValueSerializer struct {
	valueSerializer Serializer
}

func (s *ptrToValueSerializer) TypeId() TypeId { return s.valueSerializer.TypeId() }

func (s *ptrToValueSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	return s.valueSerializer.Write(f, buf, value.Elem())
}

func (s *ptrToValueSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	newValue := reflect.New(type_.Elem())
	value.Set(newValue)
	f.refResolver.ReferenceTaken(newValue)
	return s.valueSerializer.Read(f, buf, type_.Elem(), newValue.Elem())
}

type ptrToStringSerializer = ptrToValueSerializer

// byteSliceSerializer writes binary blobs. When an out-of-band callback
// is installed the blob may be carried outside the message body.
type byteSliceSerializer struct{}

func (s byteSliceSerializer) TypeId() TypeId { return BINARY }

func (s byteSliceSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	data := value.Bytes()
	if f.bufferCallback != nil {
		inBand := f.bufferCallback(&byteSliceBufferObject{data: data})
		buf.WriteBool(inBand)
		if !inBand {
			return nil
		}
	}
	buf.WriteBytesWithLength(data)
	return nil
}

func (s byteSliceSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	if f.peekBuffers != nil {
		inBand := buf.ReadBool()
		if !inBand {
			if f.peekIndex >= len(f.peekBuffers) {
				return fmt.Errorf("missing out-of-band buffer %d: %w", f.peekIndex, ErrInvalidParam)
			}
			oob := f.peekBuffers[f.peekIndex]
			f.peekIndex++
			data := make([]byte, len(oob.GetData()))
			copy(data, oob.GetData())
			value.Set(reflect.ValueOf(data))
			f.refResolver.ReferenceTaken(value)
			return nil
		}
	}
	data := buf.ReadBytesWithLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.ValueOf(data))
	f.refResolver.ReferenceTaken(value)
	return nil
}

// BufferObject is a chunk of data that can be carried outside the
// serialized message for zero-copy transfer.
type BufferObject interface {
	TotalBytes() int
	WriteTo(buf *ByteBuffer)
	ToBuffer() *ByteBuffer
}

type byteSliceBufferObject struct {
	data []byte
}

func (o *byteSliceBufferObject) TotalBytes() int { return len(o.data) }

func (o *byteSliceBufferObject) WriteTo(buf *ByteBuffer) { buf.WriteBinary(o.data) }

func (o *byteSliceBufferObject) ToBuffer() *ByteBuffer { return NewByteBuffer(o.data) }
