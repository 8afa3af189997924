package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableDefinition describes the key schema of a DynamoDB table.
// Non-key attributes are schemaless and never described here.
type TableDefinition struct {
	Name           string               `yaml:"name" json:"TableName"`
	KeyDefinitions PrimaryKeyDefinition `yaml:"keys" json:"Keys"`
}

// FromDescription builds a TableDefinition from a DescribeTable result.
func FromDescription(desc *types.TableDescription) (TableDefinition, error) {
	if desc == nil {
		return TableDefinition{}, fmt.Errorf("table description is nil")
	}
	kinds := make(map[string]KeyKind, len(desc.AttributeDefinitions))
	for _, ad := range desc.AttributeDefinitions {
		kinds[aws.ToString(ad.AttributeName)] = KeyKind(ad.AttributeType)
	}

	def := TableDefinition{Name: aws.ToString(desc.TableName)}
	for _, ks := range desc.KeySchema {
		name := aws.ToString(ks.AttributeName)
		kind, ok := kinds[name]
		if !ok {
			return TableDefinition{}, fmt.Errorf("table %q: no attribute definition for key %q", def.Name, name)
		}
		switch ks.KeyType {
		case types.KeyTypeHash:
			def.KeyDefinitions.PartitionKey = KeyDef{Name: name, Kind: kind}
		case types.KeyTypeRange:
			def.KeyDefinitions.SortKey = KeyDef{Name: name, Kind: kind}
		}
	}
	if def.KeyDefinitions.PartitionKey.Name == "" {
		return TableDefinition{}, fmt.Errorf("table %q has no hash key", def.Name)
	}
	return def, nil
}

// Description is the inverse of FromDescription. Only key related fields are populated.
func (t TableDefinition) Description() *types.TableDescription {
	return &types.TableDescription{
		TableName:            aws.String(t.Name),
		TableStatus:          types.TableStatusActive,
		KeySchema:            t.KeyDefinitions.KeySchema(),
		AttributeDefinitions: t.KeyDefinitions.AttributeDefinitions(),
	}
}

func (t TableDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	return t.KeyDefinitions.ExtractPrimaryKey(doc)
}

// Validate checks that the definition can be used to create a table.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if t.KeyDefinitions.PartitionKey.Name == "" {
		return fmt.Errorf("table %q: hash key is required", t.Name)
	}
	if err := t.KeyDefinitions.PartitionKey.Kind.Validate(); err != nil {
		return fmt.Errorf("table %q: hash key: %w", t.Name, err)
	}
	if !t.KeyDefinitions.HasSortKey() {
		return nil
	}
	if t.KeyDefinitions.SortKey.Name == t.KeyDefinitions.PartitionKey.Name {
		return fmt.Errorf("table %q: hash and range key must differ", t.Name)
	}
	if err := t.KeyDefinitions.SortKey.Kind.Validate(); err != nil {
		return fmt.Errorf("table %q: range key: %w", t.Name, err)
	}
	return nil
}

func (k PrimaryKeyDefinition) ExtractPrimaryKey(doc map[string]types.AttributeValue) (PrimaryKey, error) {
	part, ok := doc[k.PartitionKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("partition key %q not found", k.PartitionKey.Name)
	}
	if err := attributeMatchesDefinition(k.PartitionKey.Kind, part); err != nil {
		return PrimaryKey{}, fmt.Errorf("document key %q kind does not match definition: %w", k.PartitionKey.Name, err)
	}
	pk := PrimaryKey{
		Definition: k,
		Values: PrimaryKeyValues{
			PartitionKey: keyValueFromAV(part),
		},
	}
	if !k.HasSortKey() {
		return pk, nil
	}
	sort, ok := doc[k.SortKey.Name]
	if !ok {
		return PrimaryKey{}, fmt.Errorf("sort key %q not found on document", k.SortKey.Name)
	}
	if err := attributeMatchesDefinition(k.SortKey.Kind, sort); err != nil {
		return PrimaryKey{}, fmt.Errorf("sort key %q kind does not match definition: %w", k.SortKey.Name, err)
	}
	pk.Values.SortKey = keyValueFromAV(sort)
	return pk, nil
}

// KeySchema returns the CreateTable key schema for the definition.
func (k PrimaryKeyDefinition) KeySchema() []types.KeySchemaElement {
	schema := []types.KeySchemaElement{{
		AttributeName: aws.String(k.PartitionKey.Name),
		KeyType:       types.KeyTypeHash,
	}}
	if k.HasSortKey() {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(k.SortKey.Name),
			KeyType:       types.KeyTypeRange,
		})
	}
	return schema
}

// AttributeDefinitions returns the CreateTable attribute definitions for the key attributes.
func (k PrimaryKeyDefinition) AttributeDefinitions() []types.AttributeDefinition {
	defs := []types.AttributeDefinition{{
		AttributeName: aws.String(k.PartitionKey.Name),
		AttributeType: types.ScalarAttributeType(k.PartitionKey.Kind),
	}}
	if k.HasSortKey() {
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(k.SortKey.Name),
			AttributeType: types.ScalarAttributeType(k.SortKey.Kind),
		})
	}
	return defs
}

func keyValueFromAV(av types.AttributeValue) any {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return v.Value
	default:
		panic(fmt.Sprintf("unsupported attribute value %T for dynamodb keys", v))
	}
}
