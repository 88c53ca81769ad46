package editor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaChecker validates handler parameters against the JSON Schema a
// handler class publishes. Compiled schemas are cached by content.
type SchemaChecker struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func NewSchemaChecker() *SchemaChecker {
	return &SchemaChecker{cache: make(map[string]*jsonschema.Schema)}
}

// Check validates parameters against schema. An empty schema or empty
// parameters always pass.
func (c *SchemaChecker) Check(schema json.RawMessage, parameters string) error {
	if len(schema) == 0 || parameters == "" {
		return nil
	}
	compiled, err := c.compile(schema)
	if err != nil {
		return fmt.Errorf("parameter schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(parameters))
	if err != nil {
		return fmt.Errorf("parse parameters: %w", err)
	}
	return compiled.Validate(doc)
}

func (c *SchemaChecker) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	sum := sha256.Sum256(schema)
	key := hex.EncodeToString(sum[:])

	c.mu.RLock()
	if cached, ok := c.cache[key]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schema)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	url := "trigger-console://parameters/" + key
	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := comp.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = compiled
	c.mu.Unlock()
	return compiled, nil
}
