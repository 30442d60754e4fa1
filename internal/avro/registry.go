package avro

import (
	"embed"
	"encoding/json"
	"fmt"

	goavro "github.com/linkedin/goavro/v2"
	"github.com/riferrei/srclient"
)

//go:embed schemas/*.avsc
var schemaFS embed.FS

// Registry resolves writer schemas, by registry id for decoding and by
// topic for encoding.
type Registry interface {
	Schema(id int) (*Schema, error)
	LatestSchema(topic string) (*Schema, error)
}

// Schema is a parsed writer schema plus its registry id.
type Schema struct {
	ID     int
	Codec  *goavro.Codec
	fields []fieldMeta
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindLong
	kindFixed16
	kindEnum
)

type fieldMeta struct {
	name    string
	kind    fieldKind
	symbols []string
}

// ParseSchema builds a Schema from raw Avro JSON. The top-level type must
// be a record of string, long, 16-byte fixed, and enum fields.
func ParseSchema(id int, raw string) (*Schema, error) {
	codec, err := goavro.NewCodec(raw)
	if err != nil {
		return nil, fmt.Errorf("schema %d: %w", id, err)
	}

	var parsed struct {
		Fields []struct {
			Name string          `json:"name"`
			Type json.RawMessage `json:"type"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("schema %d: %w", id, err)
	}

	fields := make([]fieldMeta, 0, len(parsed.Fields))
	for _, f := range parsed.Fields {
		meta := fieldMeta{name: f.Name}

		var primitive string
		if err := json.Unmarshal(f.Type, &primitive); err == nil {
			switch primitive {
			case "string":
				meta.kind = kindString
			case "long":
				meta.kind = kindLong
			default:
				return nil, fmt.Errorf("schema %d field %q: unsupported type %q", id, f.Name, primitive)
			}
			fields = append(fields, meta)
			continue
		}

		var named struct {
			Type    string   `json:"type"`
			Size    int      `json:"size"`
			Symbols []string `json:"symbols"`
		}
		if err := json.Unmarshal(f.Type, &named); err != nil {
			return nil, fmt.Errorf("schema %d field %q: %w", id, f.Name, err)
		}
		switch named.Type {
		case "fixed":
			if named.Size != 16 {
				return nil, fmt.Errorf("schema %d field %q: fixed size %d, want 16", id, f.Name, named.Size)
			}
			meta.kind = kindFixed16
		case "enum":
			meta.kind = kindEnum
			meta.symbols = named.Symbols
		default:
			return nil, fmt.Errorf("schema %d field %q: unsupported type %q", id, f.Name, named.Type)
		}
		fields = append(fields, meta)
	}

	return &Schema{ID: id, Codec: codec, fields: fields}, nil
}

// RegistryClient is the srclient-backed Registry. When an encode subject
// does not exist yet it registers the embedded schema for that topic.
type RegistryClient struct {
	client srclient.ISchemaRegistryClient
}

// NewRegistryClient connects to a Confluent-compatible schema registry.
func NewRegistryClient(url string) *RegistryClient {
	return &RegistryClient{client: srclient.CreateSchemaRegistryClient(url)}
}

func (r *RegistryClient) Schema(id int) (*Schema, error) {
	s, err := r.client.GetSchema(id)
	if err != nil {
		return nil, fmt.Errorf("get schema %d: %w", id, err)
	}
	return ParseSchema(s.ID(), s.Schema())
}

// LatestSchema resolves the value subject for topic using the topic name
// strategy (<topic>-value, is_key = false).
func (r *RegistryClient) LatestSchema(topic string) (*Schema, error) {
	subject := topic + "-value"
	s, err := r.client.GetLatestSchema(subject)
	if err != nil {
		raw, readErr := schemaFS.ReadFile("schemas/" + topic + ".avsc")
		if readErr != nil {
			return nil, fmt.Errorf("get latest schema for %s: %w", subject, err)
		}
		s, err = r.client.CreateSchema(subject, string(raw), srclient.Avro)
		if err != nil {
			return nil, fmt.Errorf("register schema for %s: %w", subject, err)
		}
	}
	return ParseSchema(s.ID(), s.Schema())
}
