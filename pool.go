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

import "sync"

// maxPooledBufferSize keeps oversized scratch buffers out of the pool so
// one huge message does not pin its memory forever.
const maxPooledBufferSize = 1 << 20

var byteBufferPool = sync.Pool{
	New: func() interface{} { return NewByteBuffer(nil) },
}

func getByteBuffer() *ByteBuffer {
	buf := byteBufferPool.Get().(*ByteBuffer)
	buf.Reset()
	return buf
}

func putByteBuffer(buf *ByteBuffer) {
	if cap(buf.data) > maxPooledBufferSize {
		return
	}
	byteBufferPool.Put(buf)
}
