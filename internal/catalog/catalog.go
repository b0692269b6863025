// Package catalog loads the content types this client knows about and the
// matter yield of each.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed content_types.yaml
var defaultCatalog []byte

//go:embed catalog.schema.json
var schemaSource string

const schemaURL = "https://technite.local/schemas/catalog.schema.json"

var schema = jsonschema.MustCompileString(schemaURL, schemaSource)

type ContentType struct {
	Name        string `yaml:"name"`
	MatterYield uint8  `yaml:"matter_yield"`
}

type Catalog struct {
	Version      int           `yaml:"version"`
	ContentTypes []ContentType `yaml:"content_types"`

	byName map[string]uint8
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog, "embedded")
}

// Load reads a catalog file; an empty path selects the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, path)
}

// Parse validates raw against the catalog schema and decodes it.
func Parse(raw []byte, source string) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", source, err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", source, err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", source, err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", source, err)
	}

	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", source, err)
	}
	c.byName = make(map[string]uint8, len(c.ContentTypes))
	for i, ct := range c.ContentTypes {
		key := strings.ToLower(ct.Name)
		if _, dup := c.byName[key]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate content type %q", source, ct.Name)
		}
		c.byName[key] = uint8(i)
	}
	return &c, nil
}

// Count is the number of content types known locally.
func (c *Catalog) Count() int {
	return len(c.ContentTypes)
}

// Yields returns a fresh copy of the matter yield table, indexed by content
// type.
func (c *Catalog) Yields() []uint8 {
	if c == nil {
		return nil
	}
	out := make([]uint8, len(c.ContentTypes))
	for i, ct := range c.ContentTypes {
		out[i] = ct.MatterYield
	}
	return out
}

func (c *Catalog) Name(id uint8) string {
	if int(id) >= len(c.ContentTypes) {
		return fmt.Sprintf("content(%d)", id)
	}
	return c.ContentTypes[id].Name
}

func (c *Catalog) Lookup(name string) (uint8, bool) {
	id, ok := c.byName[strings.ToLower(name)]
	return id, ok
}
