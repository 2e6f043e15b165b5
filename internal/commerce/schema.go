package commerce

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type schemaSet struct {
	order    *jsonschema.Schema
	product  *jsonschema.Schema
	customer *jsonschema.Schema
	category *jsonschema.Schema
}

var schemas = mustCompileSchemas()

func mustCompileSchemas() *schemaSet {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020

	compile := func(name string) *jsonschema.Schema {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			panic(fmt.Sprintf("read %s schema: %v", name, err))
		}
		schemaURL := fmt.Sprintf("https://supplier-portal.local/commerce/%s.schema.json", name)
		if err := c.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("load %s schema: %v", name, err))
		}
		compiled, err := c.Compile(schemaURL)
		if err != nil {
			panic(fmt.Sprintf("compile %s schema: %v", name, err))
		}
		return compiled
	}

	return &schemaSet{
		order:    compile("order"),
		product:  compile("product"),
		customer: compile("customer"),
		category: compile("category"),
	}
}

// validateRaw проверяет один JSON-объект по схеме до его разбора в типизированную структуру.
func validateRaw(schema *jsonschema.Schema, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
