package parse

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/teranos/PTX/errors"
)

// CompileSchema builds an object schema from a definition written as JSON or
// YAML. The definition is either a schema object or an OpenAPI document, in
// which case the first entry of components.schemas is used.
func CompileSchema(ctx context.Context, definition string) (*openapi3.Schema, error) {
	if strings.TrimSpace(definition) == "" {
		return nil, schemaError(errors.New("schema definition is empty"))
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(definition), &root); err != nil {
		return nil, schemaError(errors.Wrap(err, "schema definition is neither JSON nor YAML"))
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, schemaError(errors.New("schema definition must be an object"))
	}
	doc := root.Content[0]

	var (
		schema *openapi3.Schema
		err    error
	)
	if name, ok := firstComponentSchema(doc); ok {
		schema, err = fromOpenAPIDocument(ctx, definition, name)
	} else {
		schema, err = fromSchemaObject(doc)
	}
	if err != nil {
		return nil, schemaError(err)
	}

	if (schema.Type == nil || len(*schema.Type) == 0) && len(schema.Properties) > 0 {
		schema.Type = &openapi3.Types{openapi3.TypeObject}
	}
	if !schema.Type.Is(openapi3.TypeObject) {
		return nil, schemaError(errors.New("no object schema found in definition"))
	}
	if err := schema.Validate(ctx); err != nil {
		return nil, schemaError(errors.Wrap(err, "invalid schema"))
	}
	return schema, nil
}

func schemaError(err error) error {
	return errors.Mark(err, errors.ErrSchemaCompile)
}

// firstComponentSchema returns the name of the first components.schemas
// entry in document order
func firstComponentSchema(doc *yaml.Node) (string, bool) {
	components := mappingValue(doc, "components")
	if components == nil {
		return "", false
	}
	schemas := mappingValue(components, "schemas")
	if schemas == nil || schemas.Kind != yaml.MappingNode || len(schemas.Content) < 2 {
		return "", false
	}
	return schemas.Content[0].Value, true
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func fromOpenAPIDocument(ctx context.Context, definition, name string) (*openapi3.Schema, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData([]byte(definition))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load OpenAPI document")
	}
	ref, ok := doc.Components.Schemas[name]
	if !ok || ref == nil || ref.Value == nil {
		return nil, errors.Newf("components.schemas.%s could not be resolved", name)
	}
	return ref.Value, nil
}

func fromSchemaObject(node *yaml.Node) (*openapi3.Schema, error) {
	var generic any
	if err := node.Decode(&generic); err != nil {
		return nil, errors.Wrap(err, "failed to decode schema")
	}
	data, err := json.Marshal(generic)
	if err != nil {
		return nil, errors.Wrap(err, "schema is not representable as JSON")
	}

	var schema openapi3.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, errors.Wrap(err, "failed to decode schema")
	}
	return &schema, nil
}
