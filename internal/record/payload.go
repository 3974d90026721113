// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package record

import (
	"encoding"
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborMarshalerType   = reflect.TypeFor[cbor.Marshaler]()
	binaryMarshalerType = reflect.TypeFor[encoding.BinaryMarshaler]()
	timeType            = reflect.TypeFor[time.Time]()
	bigIntType          = reflect.TypeFor[big.Int]()
)

type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// checkPayload rejects payloads the encoder cannot represent faithfully:
// reference cycles, which it would follow forever, and unexported struct
// fields, which it would skip
func checkPayload(payload any) error {
	return walkPayload(reflect.ValueOf(payload), map[visitKey]bool{})
}

func walkPayload(v reflect.Value, visiting map[visitKey]bool) error {
	if !v.IsValid() {
		return nil
	}
	t := v.Type()
	if isOpaque(t) {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walkPayload(v.Elem(), visiting)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() || (v.Kind() == reflect.Slice && v.Len() == 0) {
			return nil
		}
		// Only values on the current path count, shared references are fine
		key := visitKey{ptr: v.Pointer(), typ: t}
		if visiting[key] {
			return fmt.Errorf("%w: cyclic payload", ErrHashSerialization)
		}
		visiting[key] = true
		defer delete(visiting, key)
		switch v.Kind() {
		case reflect.Pointer:
			return walkPayload(v.Elem(), visiting)
		case reflect.Map:
			iter := v.MapRange()
			for iter.Next() {
				if err := walkPayload(iter.Key(), visiting); err != nil {
					return err
				}
				if err := walkPayload(iter.Value(), visiting); err != nil {
					return err
				}
			}
		default:
			return walkElements(v, visiting)
		}
	case reflect.Array:
		return walkElements(v, visiting)
	case reflect.Struct:
		for i := range t.NumField() {
			field := t.Field(i)
			if field.Tag.Get("cbor") == "-" {
				continue
			}
			if !field.IsExported() {
				// Exported fields of embedded structs are still encoded
				fieldType := field.Type
				if fieldType.Kind() == reflect.Pointer {
					fieldType = fieldType.Elem()
				}
				if !field.Anonymous || fieldType.Kind() != reflect.Struct {
					return fmt.Errorf(
						"%w: unexported field %s.%s",
						ErrHashSerialization,
						t,
						field.Name,
					)
				}
			}
			if err := walkPayload(v.Field(i), visiting); err != nil {
				return err
			}
		}
	}
	return nil
}

func walkElements(v reflect.Value, visiting map[visitKey]bool) error {
	// Byte strings have nothing to descend into
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return nil
	}
	for i := range v.Len() {
		if err := walkPayload(v.Index(i), visiting); err != nil {
			return err
		}
	}
	return nil
}

// isOpaque reports whether the encoder handles the type itself
func isOpaque(t reflect.Type) bool {
	if t == timeType || t == bigIntType {
		return true
	}
	for _, iface := range []reflect.Type{cborMarshalerType, binaryMarshalerType} {
		if t.Implements(iface) {
			return true
		}
		if t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(iface) {
			return true
		}
	}
	return false
}
