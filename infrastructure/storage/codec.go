package storage

import (
	"duo-lab/domain"
	"fmt"
	"reflect"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodeRow serializes a row as a protobuf Struct.
func encodeRow(row domain.Row) ([]byte, error) {
	fields, ok := normalize(map[string]any(row)).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("row is not an object")
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	return proto.Marshal(s)
}

func decodeRow(data []byte) (domain.Row, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return s.AsMap(), nil
}

// normalize turns named types, typed slices and maps, and instants into
// the plain JSON-like values structpb accepts.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64, int, int64:
		return x
	case time.Time:
		return domain.FormatTime(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return domain.FormatTime(*x)
	case domain.Row:
		return normalize(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}
