package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://repairworks.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeWelcome: "welcome.schema.json",
	TypeObs:     "obs.schema.json",
	TypeAct:     "act.schema.json",
}

// Validator checks raw protocol messages against the embedded JSON schemas.
// It is immutable after construction and safe for concurrent use.
type Validator struct {
	byType map[string]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	v := &Validator{byType: make(map[string]*jsonschema.Schema, len(schemaFiles))}
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		v.byType[typ] = s
	}
	return v, nil
}

// Validate checks raw against the schema for msgType. Types without a schema pass.
func (v *Validator) Validate(msgType string, raw []byte) error {
	if v == nil {
		return nil
	}
	s := v.byType[msgType]
	if s == nil {
		return nil
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// ValidateValue marshals m and validates it; used for outbound messages in tests.
func (v *Validator) ValidateValue(msgType string, m interface{}) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return v.Validate(msgType, b)
}
