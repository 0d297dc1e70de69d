package codec

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"
)

// recordSchema is the cached, ordered list of exported fields for a record
// type, computed once by reflection and reused on every Encode/Decode.
// Field order is declaration order, matching spec.md §4.1 ("field numbers
// assigned in declaration order").
type recordSchema struct {
	fields []reflect.StructField
}

// schemaCache maps reflect.Type -> *recordSchema. sync.Map gives
// concurrent-safe reads with put-if-absent semantics via LoadOrStore,
// matching spec.md §4.1's "concurrent-safe map ... put-if-absent".
var schemaCache sync.Map

func schemaFor(t reflect.Type) *recordSchema {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*recordSchema)
	}
	var fields []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.IsExported() {
			fields = append(fields, f)
		}
	}
	s := &recordSchema{fields: fields}
	actual, _ := schemaCache.LoadOrStore(t, s)
	return actual.(*recordSchema)
}

// BinaryCodec is a compact reflective binary format for RpcRequest and
// RpcResponse. Unlike JSONCodec it never round-trips through field names:
// the schema (field order) is derived from the Go struct definition itself
// and cached, so encode/decode cost is proportional to the data, not to
// reflection bookkeeping repeated on every call.
type BinaryCodec struct{}

func (c *BinaryCodec) Type() CodecType { return CodecTypeBinary }

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return nil, fmt.Errorf("codec: BinaryCodec.Encode requires a non-nil pointer, got %T", v)
	}
	elem := rv.Elem()
	schema := schemaFor(elem.Type())

	var buf []byte
	for _, f := range schema.fields {
		encoded, err := encodeField(elem.FieldByIndex(f.Index))
		if err != nil {
			return nil, fmt.Errorf("codec: field %s: %w", f.Name, err)
		}
		buf = append(buf, encoded...)
	}
	return buf, nil
}

// Decode constructs v's fields directly via reflection, without invoking
// any constructor on the target type — v must already be a pointer to a
// zero-valued (or to-be-overwritten) instance. This is the "bypass
// initialization" strategy spec.md §4.1 calls for so deserialization never
// runs application code.
func (c *BinaryCodec) Decode(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("codec: BinaryCodec.Decode requires a non-nil pointer, got %T", v)
	}
	elem := rv.Elem()
	schema := schemaFor(elem.Type())

	r := &byteReader{data: data}
	for _, f := range schema.fields {
		if err := decodeField(r, elem.FieldByIndex(f.Index)); err != nil {
			return fmt.Errorf("codec: field %s: %w", f.Name, err)
		}
	}
	return nil
}

// byteReader is a cursor over a decode buffer, tracking how much has been
// consumed so each field decode picks up where the last left off.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) readUint32() (uint32, error) {
	if len(r.data)-r.pos < 4 {
		return 0, fmt.Errorf("truncated uint32")
	}
	n := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return n, nil
}

func (r *byteReader) readBytes(n int) ([]byte, error) {
	if len(r.data)-r.pos < n {
		return nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, len(r.data)-r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return append([]byte(nil), b...), nil
}

// encodeField dispatches on the field's static kind. Only the kinds
// actually used by message.RpcRequest/RpcResponse are supported: string,
// []string, []byte, [][]byte, and *message.RpcException-shaped pointers
// (a pointer to a two-string struct, used for nullable structured errors).
func encodeField(fv reflect.Value) ([]byte, error) {
	switch fv.Kind() {
	case reflect.String:
		return encodeString(fv.String()), nil
	case reflect.Slice:
		return encodeSlice(fv)
	case reflect.Ptr:
		return encodePtr(fv)
	default:
		return nil, fmt.Errorf("unsupported kind %s", fv.Kind())
	}
}

func decodeField(r *byteReader, fv reflect.Value) error {
	switch fv.Kind() {
	case reflect.String:
		s, err := decodeString(r)
		if err != nil {
			return err
		}
		fv.SetString(s)
		return nil
	case reflect.Slice:
		return decodeSlice(r, fv)
	case reflect.Ptr:
		return decodePtr(r, fv)
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
}

func encodeString(s string) []byte {
	buf := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

func decodeString(r *byteReader) (string, error) {
	n, err := r.readUint32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodeSlice handles []byte, []string, and [][]byte — the three slice
// shapes used across RpcRequest/RpcResponse.
func encodeSlice(fv reflect.Value) ([]byte, error) {
	switch fv.Type().Elem().Kind() {
	case reflect.Uint8: // []byte
		b := fv.Bytes()
		buf := make([]byte, 4+len(b))
		binary.BigEndian.PutUint32(buf[:4], uint32(len(b)))
		copy(buf[4:], b)
		return buf, nil
	case reflect.String: // []string
		var buf []byte
		head := make([]byte, 4)
		binary.BigEndian.PutUint32(head, uint32(fv.Len()))
		buf = append(buf, head...)
		for i := 0; i < fv.Len(); i++ {
			buf = append(buf, encodeString(fv.Index(i).String())...)
		}
		return buf, nil
	case reflect.Slice: // [][]byte
		var buf []byte
		head := make([]byte, 4)
		binary.BigEndian.PutUint32(head, uint32(fv.Len()))
		buf = append(buf, head...)
		for i := 0; i < fv.Len(); i++ {
			elemBytes := fv.Index(i).Bytes()
			lenBuf := make([]byte, 4)
			binary.BigEndian.PutUint32(lenBuf, uint32(len(elemBytes)))
			buf = append(buf, lenBuf...)
			buf = append(buf, elemBytes...)
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported slice element kind %s", fv.Type().Elem().Kind())
	}
}

func decodeSlice(r *byteReader, fv reflect.Value) error {
	switch fv.Type().Elem().Kind() {
	case reflect.Uint8: // []byte
		n, err := r.readUint32()
		if err != nil {
			return err
		}
		b, err := r.readBytes(int(n))
		if err != nil {
			return err
		}
		fv.SetBytes(b)
		return nil
	case reflect.String: // []string
		n, err := r.readUint32()
		if err != nil {
			return err
		}
		out := make([]string, n)
		for i := range out {
			s, err := decodeString(r)
			if err != nil {
				return err
			}
			out[i] = s
		}
		fv.Set(reflect.ValueOf(out))
		return nil
	case reflect.Slice: // [][]byte
		n, err := r.readUint32()
		if err != nil {
			return err
		}
		out := make([][]byte, n)
		for i := range out {
			elemLen, err := r.readUint32()
			if err != nil {
				return err
			}
			b, err := r.readBytes(int(elemLen))
			if err != nil {
				return err
			}
			out[i] = b
		}
		fv.Set(reflect.ValueOf(out))
		return nil
	default:
		return fmt.Errorf("unsupported slice element kind %s", fv.Type().Elem().Kind())
	}
}

// encodePtr handles a nullable pointer to a struct made entirely of
// strings (message.RpcException's shape): one presence byte, then each
// field string if present.
func encodePtr(fv reflect.Value) ([]byte, error) {
	if fv.IsNil() {
		return []byte{0}, nil
	}
	elem := fv.Elem()
	if elem.Kind() != reflect.Struct {
		return nil, fmt.Errorf("unsupported pointer target kind %s", elem.Kind())
	}
	buf := []byte{1}
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Type().Field(i)
		if !f.IsExported() {
			continue
		}
		fieldVal := elem.Field(i)
		if fieldVal.Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported exception field kind %s", fieldVal.Kind())
		}
		buf = append(buf, encodeString(fieldVal.String())...)
	}
	return buf, nil
}

func decodePtr(r *byteReader, fv reflect.Value) error {
	present, err := r.readBytes(1)
	if err != nil {
		return err
	}
	if present[0] == 0 {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	target := reflect.New(fv.Type().Elem())
	elem := target.Elem()
	for i := 0; i < elem.NumField(); i++ {
		f := elem.Type().Field(i)
		if !f.IsExported() {
			continue
		}
		fieldVal := elem.Field(i)
		if fieldVal.Kind() != reflect.String {
			return fmt.Errorf("unsupported exception field kind %s", fieldVal.Kind())
		}
		s, err := decodeString(r)
		if err != nil {
			return err
		}
		fieldVal.SetString(s)
	}
	fv.Set(target)
	return nil
}
