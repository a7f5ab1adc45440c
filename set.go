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

import "reflect"

// GenericSet is an unordered set of unique elements. Go has no native
// set type; a bool-valued map keeps membership semantics while staying
// assignable from literal code.
type GenericSet map[interface{}]bool

// Add inserts the given elements.
func (s GenericSet) Add(elems ...interface{}) {
	for _, elem := range elems {
		s[elem] = true
	}
}

// setSerializer writes a GenericSet with the common collection framing.
type setSerializer struct{}

func (s setSerializer) TypeId() TypeId { return SET }

func (s setSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	keys := value.MapKeys()
	elems := make([]reflect.Value, len(keys))
	copy(elems, keys)
	return f.writeCollection(buf, elems, nil)
}

func (s setSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	length := buf.ReadLength()
	if err := buf.Error(); err != nil {
		return err
	}
	value.Set(reflect.MakeMapWithSize(genericSetType, length))
	f.refResolver.ReferenceTaken(value)
	trueValue := reflect.ValueOf(true)
	return f.readCollection(buf, length, nil, func(i int, v reflect.Value) error {
		value.SetMapIndex(v, trueValue)
		return nil
	})
}
