package pip

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cedar-policy/cedar-go/x/exp/schema"
)

// Schema file names probed by LoadSchemaDir, in order.
const (
	SchemaFileName     = "cedarschema"
	SchemaJSONFileName = "cedarschema.json"
)

// Schema is the action applicability index of a single-namespace Cedar schema.
type Schema struct {
	namespace string
	actions   []schemaAction // sorted by name
}

type schemaAction struct {
	name           string
	principalTypes []string
	resourceTypes  []string
}

type jsonNamespace struct {
	Actions map[string]struct {
		AppliesTo *struct {
			PrincipalTypes []string `json:"principalTypes"`
			ResourceTypes  []string `json:"resourceTypes"`
		} `json:"appliesTo"`
	} `json:"actions"`
}

// ParseSchemaJSON builds a Schema from the Cedar JSON schema format.
func ParseSchemaJSON(data []byte) (*Schema, error) {
	var doc map[string]jsonNamespace
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(doc) != 1 {
		return nil, fmt.Errorf("schema must declare exactly one namespace, found %d", len(doc))
	}

	s := &Schema{}
	for ns, body := range doc {
		s.namespace = ns
		for name, action := range body.Actions {
			a := schemaAction{name: name}
			if action.AppliesTo != nil {
				a.principalTypes = action.AppliesTo.PrincipalTypes
				a.resourceTypes = action.AppliesTo.ResourceTypes
			}
			s.actions = append(s.actions, a)
		}
	}
	slices.SortFunc(s.actions, func(a, b schemaAction) int {
		return strings.Compare(a.name, b.name)
	})
	return s, nil
}

// ParseSchemaCedar builds a Schema from the human-readable Cedar schema format.
func ParseSchemaCedar(filename string, data []byte) (*Schema, error) {
	var cs schema.Schema
	cs.SetFilename(filename)
	if err := cs.UnmarshalCedar(data); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", filename, err)
	}
	js, err := cs.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to convert schema %s: %w", filename, err)
	}
	return ParseSchemaJSON(js)
}

// LoadSchemaFile reads a schema, choosing the format by file extension.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if filepath.Ext(path) == ".json" {
		return ParseSchemaJSON(data)
	}
	return ParseSchemaCedar(filepath.Base(path), data)
}

// LoadSchemaDir loads cedarschema or cedarschema.json from dir. It returns
// nil and no error when neither exists.
func LoadSchemaDir(dir string) (*Schema, error) {
	for _, name := range []string{SchemaFileName, SchemaJSONFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return LoadSchemaFile(path)
	}
	return nil, nil
}

// Namespace returns the schema namespace, empty for the global namespace.
func (s *Schema) Namespace() string {
	if s == nil {
		return ""
	}
	return s.namespace
}

// ApplicableActions returns the names of actions whose appliesTo lists both
// types. Types match unqualified or qualified with the schema namespace.
// A nil Schema has no actions.
func (s *Schema) ApplicableActions(subjectType, resourceType string) []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, a := range s.actions {
		if s.contains(a.principalTypes, subjectType) && s.contains(a.resourceTypes, resourceType) {
			names = append(names, a.name)
		}
	}
	return names
}

func (s *Schema) contains(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t || (s.namespace != "" && s.namespace+"::"+candidate == t) {
			return true
		}
	}
	return false
}
