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
	"reflect"
	"time"
)

// Date is a naive calendar date without a timezone. On the wire it is
// the signed 32-bit count of days since the Unix epoch.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (d Date) toTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

type dateSerializer struct{}

func (s dateSerializer) TypeId() TypeId { return LOCAL_DATE }

func (s dateSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	date := value.Interface().(Date)
	days := date.toTime().Unix() / (24 * 3600)
	buf.WriteInt32(int32(days))
	return nil
}

func (s dateSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	days := buf.ReadInt32()
	if err := buf.Error(); err != nil {
		return err
	}
	t := time.Unix(int64(days)*24*3600, 0).UTC()
	value.Set(reflect.ValueOf(Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}))
	return nil
}

// timeSerializer encodes a timestamp as whole seconds since the epoch
// plus a nanosecond remainder in [0, 1e9). Sub-nanosecond precision does
// not exist in time.Time, so round-trips are exact.
type timeSerializer struct{}

func (s timeSerializer) TypeId() TypeId { return TIMESTAMP }

func (s timeSerializer) Write(f *Fory, buf *ByteBuffer, value reflect.Value) error {
	t := value.Interface().(time.Time)
	buf.WriteVarInt64(t.Unix())
	buf.WriteVarUint32(uint32(t.Nanosecond()))
	return nil
}

func (s timeSerializer) Read(f *Fory, buf *ByteBuffer, type_ reflect.Type, value reflect.Value) error {
	sec := buf.ReadVarInt64()
	nanos := buf.ReadVarUint32()
	if err := buf.Error(); err != nil {
		return err
	}
	if nanos >= 1e9 {
		return ErrInvalidData
	}
	value.Set(reflect.ValueOf(time.Unix(sec, int64(nanos))))
	return nil
}
