package avro

import (
	"encoding/binary"
	"fmt"
)

const wireMagic = 0x00

// Decoder turns schema-registry framed payloads into typed Records.
// Resolved schemas are cached by registry id.
type Decoder struct {
	registry Registry
	schemas  map[int]*Schema
}

func NewDecoder(registry Registry) *Decoder {
	return &Decoder{
		registry: registry,
		schemas:  make(map[int]*Schema),
	}
}

// Decode parses the wire framing (magic byte plus big-endian schema id),
// resolves the writer schema, and returns the fields in schema order.
func (d *Decoder) Decode(payload []byte) (Record, error) {
	if len(payload) < 5 || payload[0] != wireMagic {
		return nil, fmt.Errorf("payload is not in schema registry wire format")
	}
	id := int(binary.BigEndian.Uint32(payload[1:5]))

	schema, ok := d.schemas[id]
	if !ok {
		var err error
		schema, err = d.registry.Schema(id)
		if err != nil {
			return nil, err
		}
		d.schemas[id] = schema
	}

	native, _, err := schema.Codec.NativeFromBinary(payload[5:])
	if err != nil {
		return nil, fmt.Errorf("decode with schema %d: %w", id, err)
	}
	fields, ok := native.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("schema %d payload is not a record", id)
	}

	rec := make(Record, 0, len(schema.fields))
	for _, meta := range schema.fields {
		raw, ok := fields[meta.name]
		if !ok {
			return nil, fmt.Errorf("schema %d: field %q missing from payload", id, meta.name)
		}
		value, err := typedValue(meta, raw)
		if err != nil {
			return nil, fmt.Errorf("schema %d: %w", id, err)
		}
		rec = append(rec, Field{Name: meta.name, Value: value})
	}
	return rec, nil
}

func typedValue(meta fieldMeta, raw interface{}) (Value, error) {
	switch meta.kind {
	case kindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: want string, got %T", meta.name, raw)
		}
		return String(s), nil
	case kindLong:
		n, ok := raw.(int64)
		if !ok {
			return nil, fmt.Errorf("field %q: want long, got %T", meta.name, raw)
		}
		return Long(n), nil
	case kindFixed16:
		b, ok := raw.([]byte)
		if !ok || len(b) != 16 {
			return nil, fmt.Errorf("field %q: want 16-byte fixed, got %T", meta.name, raw)
		}
		var f Fixed16
		copy(f[:], b)
		return f, nil
	case kindEnum:
		sym, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q: want enum symbol, got %T", meta.name, raw)
		}
		for i, s := range meta.symbols {
			if s == sym {
				return Enum{Index: int32(i), Symbol: sym}, nil
			}
		}
		return nil, fmt.Errorf("field %q: symbol %q not in schema", meta.name, sym)
	}
	return nil, fmt.Errorf("field %q: unsupported kind", meta.name)
}
