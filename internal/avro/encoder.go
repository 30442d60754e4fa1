package avro

import (
	"encoding/binary"
	"fmt"
)

// Encoder serializes Records against the latest registered schema of each
// topic's value subject. The cache is populated lazily on first use of a
// topic and is owned by a single goroutine; it must not be shared.
type Encoder struct {
	registry Registry
	byTopic  map[string]*Schema
}

func NewEncoder(registry Registry) *Encoder {
	return &Encoder{
		registry: registry,
		byTopic:  make(map[string]*Schema),
	}
}

// Encode produces a schema-registry framed payload for topic.
func (e *Encoder) Encode(topic string, rec Record) ([]byte, error) {
	schema, ok := e.byTopic[topic]
	if !ok {
		var err error
		schema, err = e.registry.LatestSchema(topic)
		if err != nil {
			return nil, err
		}
		e.byTopic[topic] = schema
	}

	native := make(map[string]interface{}, len(rec))
	for _, f := range rec {
		switch v := f.Value.(type) {
		case Fixed16:
			native[f.Name] = v[:]
		case Enum:
			native[f.Name] = v.Symbol
		case String:
			native[f.Name] = string(v)
		case Long:
			native[f.Name] = int64(v)
		default:
			return nil, fmt.Errorf("encode %s: field %q has unsupported value %T", topic, f.Name, f.Value)
		}
	}

	body, err := schema.Codec.BinaryFromNative(nil, native)
	if err != nil {
		return nil, fmt.Errorf("encode %s with schema %d: %w", topic, schema.ID, err)
	}

	payload := make([]byte, 5, 5+len(body))
	payload[0] = wireMagic
	binary.BigEndian.PutUint32(payload[1:5], uint32(schema.ID))
	return append(payload, body...), nil
}
