package bytes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
)

// BytesFromStruct writes each field of a fixed-size struct in declaration
// order, little-endian, and returns the bytes and their count. It panics on
// anything but a struct or pointer to one.
func BytesFromStruct(data interface{}) ([]byte, int) {
	val := reflect.Indirect(reflect.ValueOf(data))
	if val.Kind() != reflect.Struct {
		panic("BytesFromStruct(): want a struct or pointer to struct, got " + val.Kind().String())
	}

	var buf bytes.Buffer
	if err := writeFields(&buf, val); err != nil {
		panic(err.Error())
	}
	return buf.Bytes(), buf.Len()
}

// Nested structs are flattened in place.
func writeFields(buf *bytes.Buffer, val reflect.Value) error {
	for i := 0; i < val.NumField(); i++ {
		field := reflect.Indirect(val.Field(i))
		if field.Kind() == reflect.Struct {
			if err := writeFields(buf, field); err != nil {
				return err
			}
			continue
		}
		if err := binary.Write(buf, binary.LittleEndian, field.Interface()); err != nil {
			return fmt.Errorf("writing field %s: %w", val.Type().Field(i).Name, err)
		}
	}
	return nil
}

// StructFromBytes fills targetStruct from data in field order. Input comes off
// the wire, so short data is an error instead of a panic.
func StructFromBytes(data []byte, targetStruct interface{}) error {
	ptr := reflect.ValueOf(targetStruct)
	if ptr.Kind() != reflect.Ptr || ptr.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("StructFromBytes(): want a pointer to struct, got %s", ptr.Kind())
	}

	reader := bytes.NewReader(data)
	val := ptr.Elem()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		if err := binary.Read(reader, binary.LittleEndian, field.Addr().Interface()); err != nil {
			return fmt.Errorf("reading field %s: %w", val.Type().Field(i).Name, err)
		}
	}
	return nil
}
