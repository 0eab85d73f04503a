// Package memconfig loads and validates the memory configuration described
// in spec 6 ("Inputs"); run parameters are handled by cmd/tibbar. The YAML shape is decoded with
// gopkg.in/yaml.v3 and checked against an embedded JSON Schema with
// github.com/santhosh-tekuri/jsonschema/v5 before being converted into the
// typed memstore.Config the engine actually runs against.
package memconfig

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/jberkowitz/tibbar/internal/memstore"
)

//go:embed schema/memory_config.schema.json
var schemaFS embed.FS

const schemaResourceName = "memory_config.schema.json"

// ErrConfigError is spec 7's ConfigError kind: invalid YAML or a schema
// violation, fatal at startup.
var ErrConfigError = fmt.Errorf("memconfig: invalid configuration")

// Bank mirrors one entry of the YAML `banks` list.
type Bank struct {
	Name   string `yaml:"name"`
	Base   uint64 `yaml:"base"`
	Size   uint64 `yaml:"size"`
	Code   bool   `yaml:"code"`
	Data   bool   `yaml:"data"`
	Access string `yaml:"access"`
}

// memorySection mirrors the optional YAML `memory` block.
type memorySection struct {
	DataReserve *uint64 `yaml:"data_reserve"`
	Boot        *uint64 `yaml:"boot"`
}

// Document is the full decoded shape of a memory-config YAML file.
type Document struct {
	Banks  []Bank         `yaml:"banks"`
	Memory *memorySection `yaml:"memory"`
}

// Default returns the built-in single rwx bank configuration used when no
// --memory-config is given: a 512KiB bank at 0x80000000 whose upper 256KiB
// is the default data reserve, leaving code in [0x80000000, 0x80040000) and
// data from 0x80040000.
func Default() Document {
	return Document{
		Banks: []Bank{{
			Name:   "ram",
			Base:   0x80000000,
			Size:   0x80000,
			Code:   true,
			Data:   true,
			Access: "rwx",
		}},
	}
}

// Load parses and schema-validates raw YAML bytes, returning the decoded
// Document.
func Load(raw []byte) (Document, error) {
	schemaBytes, err := schemaFS.ReadFile("schema/" + schemaResourceName)
	if err != nil {
		return Document{}, fmt.Errorf("memconfig: reading embedded schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResourceName, bytes.NewReader(schemaBytes)); err != nil {
		return Document{}, fmt.Errorf("memconfig: compiling embedded schema: %w", err)
	}
	schema, err := compiler.Compile(schemaResourceName)
	if err != nil {
		return Document{}, fmt.Errorf("memconfig: compiling embedded schema: %w", err)
	}

	var untyped interface{}
	if err := yaml.Unmarshal(raw, &untyped); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrConfigError, err)
	}
	if err := schema.Validate(toJSONShape(untyped)); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrConfigError, err)
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrConfigError, err)
	}
	return doc, nil
}

// toJSONShape recursively copies yaml.v3's decoded map[string]interface{}
// / []interface{} tree for jsonschema/v5. Scalars are passed through as
// yaml.v3 decoded them (int/float64/string/bool), and maps with non-string
// keys are passed through unchanged.
func toJSONShape(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = toJSONShape(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = toJSONShape(vv)
		}
		return out
	default:
		return v
	}
}

// ToStoreConfig converts a validated Document into the memstore.Config the
// engine constructs its Store from.
func (d Document) ToStoreConfig() (memstore.Config, error) {
	cfg := memstore.Config{}
	for _, b := range d.Banks {
		access, err := memstore.ParseAccess(b.Access)
		if err != nil {
			return memstore.Config{}, fmt.Errorf("%w: bank %q: %v", ErrConfigError, b.Name, err)
		}
		cfg.Banks = append(cfg.Banks, memstore.Bank{
			Name:   b.Name,
			Base:   memstore.Address(b.Base),
			Size:   memstore.Address(b.Size),
			Code:   b.Code,
			Data:   b.Data,
			Access: access,
		})
	}
	if d.Memory != nil {
		if d.Memory.DataReserve != nil {
			cfg.DataReserve = memstore.Address(*d.Memory.DataReserve)
		}
		if d.Memory.Boot != nil {
			var codeBase uint64
			for _, b := range d.Banks {
				if b.Code {
					codeBase = b.Base
					break
				}
			}
			boot := memstore.Address(codeBase + *d.Memory.Boot)
			cfg.Boot = &boot
		}
	}
	return cfg, nil
}
