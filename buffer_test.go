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
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	buffer := NewByteBuffer(nil)
	buffer.WriteBool(true)
	buffer.WriteByte_(MaxInt8)
	buffer.WriteInt16(MaxInt16)
	buffer.WriteInt32(MaxInt32)
	buffer.WriteInt64(MaxInt64)
	buffer.WriteFloat32(-1.1)
	buffer.WriteFloat64(-1.1)
	buffer.WriteVarInt32(100)
	bytes := []byte{'a', 'b'}
	buffer.WriteInt32(int32(len(bytes)))
	buffer.WriteBinary(bytes)

	buffer = NewByteBuffer(buffer.GetData())
	require.True(t, buffer.ReadBool())
	require.Equal(t, buffer.ReadByte_(), byte(MaxInt8))
	require.Equal(t, buffer.ReadInt16(), int16(MaxInt16))
	require.Equal(t, buffer.ReadInt32(), int32(MaxInt32))
	require.Equal(t, buffer.ReadInt64(), int64(MaxInt64))
	require.Equal(t, buffer.ReadFloat32(), float32(-1.1))
	require.Equal(t, buffer.ReadFloat64(), -1.1)
	require.Equal(t, buffer.ReadVarInt32(), int32(100))
	require.Equal(t, buffer.ReadBinary(int(buffer.ReadInt32())), bytes)
	require.Nil(t, buffer.Error())
}

func TestVarUint32RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 16383, 16384, 1 << 21, 1 << 28, MaxUint32}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteVarUint32(v)
		require.Equal(t, v, buf.ReadVarUint32())
		require.Nil(t, buf.Error())
	}
}

func TestVarInt32RoundTrip(t *testing.T) {
	values := []int32{0, -1, 1, 63, -64, 64, -65, 8191, -8192, MaxInt32, MinInt32}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteVarInt32(v)
		require.Equal(t, v, buf.ReadVarInt32())
		require.Nil(t, buf.Error())
	}
}

func TestVarInt64RoundTrip(t *testing.T) {
	values := []int64{0, -1, 1, 1 << 7, -(1 << 7), 1 << 35, -(1 << 35), MaxInt64, MinInt64}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteVarInt64(v)
		require.Equal(t, v, buf.ReadVarInt64())
		require.Nil(t, buf.Error())
	}
}

func TestVarUint64RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 1<<7 - 1, 1 << 7, 1 << 56, 1<<56 - 1, math.MaxUint64}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteVarUint64(v)
		require.Equal(t, v, buf.ReadVarUint64())
		require.Nil(t, buf.Error())
	}
}

// MinInt64 zigzag-maps to the all-ones 64-bit pattern, which must encode
// as exactly nine 0xFF bytes.
func TestVarInt64MinEncoding(t *testing.T) {
	buf := NewByteBuffer(nil)
	buf.WriteVarInt64(MinInt64)
	require.Equal(t, 9, buf.WriterIndex())
	for _, b := range buf.GetData() {
		require.Equal(t, byte(0xFF), b)
	}
	require.Equal(t, int64(MinInt64), buf.ReadVarInt64())
	require.Nil(t, buf.Error())
}

func TestSliInt64(t *testing.T) {
	small := []int64{-64, -1, 0, 1, 63}
	for _, v := range small {
		buf := NewByteBuffer(nil)
		buf.WriteSliInt64(v)
		require.Equal(t, 1, buf.WriterIndex())
		require.Equal(t, v, buf.ReadSliInt64())
		require.Nil(t, buf.Error())
	}
	big := []int64{-65, 64, MaxInt64, MinInt64}
	for _, v := range big {
		buf := NewByteBuffer(nil)
		buf.WriteSliInt64(v)
		require.Equal(t, 9, buf.WriterIndex())
		require.Equal(t, v, buf.ReadSliInt64())
		require.Nil(t, buf.Error())
	}
}

func TestTaggedUint64(t *testing.T) {
	values := []uint64{0, 1, 1<<62 - 1, 1 << 62, 1<<63 - 1, 1 << 63, math.MaxUint64}
	for _, v := range values {
		buf := NewByteBuffer(nil)
		buf.WriteTaggedUint64(v)
		require.Equal(t, v, buf.ReadTaggedUint64())
		require.Nil(t, buf.Error())
	}
}

func TestReadPastEnd(t *testing.T) {
	buf := NewByteBuffer([]byte{1, 2})
	buf.ReadInt32()
	require.True(t, errors.Is(buf.Error(), ErrUnexpectedEof))
	// Later reads short-circuit on the latched error.
	require.Equal(t, int64(0), buf.ReadInt64())
	buf.Reset()
	require.Nil(t, buf.Error())
}

func TestReadBinaryBoundsChecked(t *testing.T) {
	buf := NewByteBuffer([]byte{0x01})
	require.Nil(t, buf.ReadBinary(1000))
	require.True(t, errors.Is(buf.Error(), ErrUnexpectedEof))
}

func TestVarUint32Malformed(t *testing.T) {
	buf := NewByteBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	buf.ReadVarUint32()
	require.True(t, errors.Is(buf.Error(), ErrInvalidData))
}

func TestFloat16RoundTrip(t *testing.T) {
	values := []float32{0, 1, -1, 0.5, -0.5, 65504, -65504, 6.1035156e-05}
	for _, v := range values {
		h := Float16FromFloat32(v)
		require.Equal(t, v, h.ToFloat32())
	}
	// One half-precision ulp above 1 is exact and survives unchanged.
	h := Float16FromFloat32(1.0009766) // 1 + 2^-10, exactly representable
	require.Equal(t, float32(1.0009766), h.ToFloat32())
	require.True(t, math.IsInf(float64(Float16FromFloat32(1e10).ToFloat32()), 1))
	require.True(t, math.IsNaN(float64(Float16FromFloat32(float32(math.NaN())).ToFloat32())))
}

func TestBufferGrowAndReset(t *testing.T) {
	buf := NewByteBuffer(nil)
	for i := 0; i < 1000; i++ {
		buf.WriteInt64(int64(i))
	}
	require.Equal(t, 8000, buf.WriterIndex())
	for i := 0; i < 1000; i++ {
		require.Equal(t, int64(i), buf.ReadInt64())
	}
	buf.Reset()
	require.Equal(t, 0, buf.WriterIndex())
	require.Equal(t, 0, buf.ReaderIndex())
}
