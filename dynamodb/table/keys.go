package table

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type PrimaryKeyDefinition struct {
	PartitionKey KeyDef `yaml:"hash" json:"HashKey"`
	SortKey      KeyDef `yaml:"range,omitempty" json:"RangeKey,omitzero"`
}

// HasSortKey reports whether the table uses a composite primary key.
func (k PrimaryKeyDefinition) HasSortKey() bool {
	return k.SortKey.Name != ""
}

// Names returns the key attribute names, hash key first.
func (k PrimaryKeyDefinition) Names() []string {
	if k.HasSortKey() {
		return []string{k.PartitionKey.Name, k.SortKey.Name}
	}
	return []string{k.PartitionKey.Name}
}

type KeyDef struct {
	Name string  `yaml:"name" json:"Name"`
	Kind KeyKind `yaml:"kind" json:"Kind"`
}

func (d KeyDef) String() string {
	return d.Name + ":" + string(d.Kind)
}

// ParseKeyDef parses a key spec of the form "name" or "name:KIND".
// The kind defaults to S.
func ParseKeyDef(spec string) (KeyDef, error) {
	name, kind, found := strings.Cut(spec, ":")
	if name == "" {
		return KeyDef{}, fmt.Errorf("invalid key spec %q: missing attribute name", spec)
	}
	def := KeyDef{Name: name, Kind: KeyKindS}
	if found {
		def.Kind = KeyKind(strings.ToUpper(kind))
	}
	if err := def.Kind.Validate(); err != nil {
		return KeyDef{}, fmt.Errorf("invalid key spec %q: %w", spec, err)
	}
	return def, nil
}

type KeyKind string

const (
	KeyKindS KeyKind = "S"
	KeyKindN KeyKind = "N"
	KeyKindB KeyKind = "B"
)

func (k KeyKind) Validate() error {
	switch k {
	case KeyKindS, KeyKindN, KeyKindB:
		return nil
	default:
		return fmt.Errorf("unsupported key kind %q, want one of S, N, B", string(k))
	}
}

// Key values as held in Go: string for S and N, []byte for B.
type PrimaryKeyValues struct {
	PartitionKey any
	SortKey      any
}

type PrimaryKey struct {
	Definition PrimaryKeyDefinition
	Values     PrimaryKeyValues
}

// DDB returns the key as a DynamoDB key attribute map.
func (k PrimaryKey) DDB() (map[string]types.AttributeValue, error) {
	pk, err := avFromKeyValue(k.Definition.PartitionKey.Kind, k.Values.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition key %q: %w", k.Definition.PartitionKey.Name, err)
	}
	if !k.Definition.HasSortKey() {
		return map[string]types.AttributeValue{
			k.Definition.PartitionKey.Name: pk,
		}, nil
	}
	if k.Values.SortKey == nil {
		return nil, fmt.Errorf("sort key %q is required but got nil", k.Definition.SortKey.Name)
	}
	sk, err := avFromKeyValue(k.Definition.SortKey.Kind, k.Values.SortKey)
	if err != nil {
		return nil, fmt.Errorf("sort key %q: %w", k.Definition.SortKey.Name, err)
	}
	return map[string]types.AttributeValue{
		k.Definition.PartitionKey.Name: pk,
		k.Definition.SortKey.Name:      sk,
	}, nil
}

// KeyFromStrings builds a primary key from command line values.
// S values are used verbatim, N values must be decimal numbers and B values base64.
func (k PrimaryKeyDefinition) KeyFromStrings(values ...string) (PrimaryKey, error) {
	want := 1
	if k.HasSortKey() {
		want = 2
	}
	if len(values) != want {
		return PrimaryKey{}, fmt.Errorf("key needs %d value(s) (%s), got %d", want, strings.Join(k.Names(), ", "), len(values))
	}

	pk := PrimaryKey{Definition: k}
	var err error
	pk.Values.PartitionKey, err = parseKeyValue(k.PartitionKey, values[0])
	if err != nil {
		return PrimaryKey{}, err
	}
	if k.HasSortKey() {
		pk.Values.SortKey, err = parseKeyValue(k.SortKey, values[1])
		if err != nil {
			return PrimaryKey{}, err
		}
	}
	return pk, nil
}

var numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// IsNumber reports whether s is a valid DynamoDB number literal.
func IsNumber(s string) bool {
	return numberPattern.MatchString(s)
}

func parseKeyValue(def KeyDef, s string) (any, error) {
	switch def.Kind {
	case KeyKindS:
		if s == "" {
			return nil, fmt.Errorf("key %q: empty string is not a valid key value", def.Name)
		}
		return s, nil
	case KeyKindN:
		if !IsNumber(s) {
			return nil, fmt.Errorf("key %q: %q is not a number", def.Name, s)
		}
		return s, nil
	case KeyKindB:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("key %q: binary keys must be base64: %w", def.Name, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("key %q: unsupported key kind %q", def.Name, def.Kind)
	}
}

func avFromKeyValue(kind KeyKind, v any) (types.AttributeValue, error) {
	switch kind {
	case KeyKindS:
		if s, ok := v.(string); ok {
			return &types.AttributeValueMemberS{Value: s}, nil
		}
	case KeyKindN:
		if s, ok := v.(string); ok {
			return &types.AttributeValueMemberN{Value: s}, nil
		}
	case KeyKindB:
		if b, ok := v.([]byte); ok {
			return &types.AttributeValueMemberB{Value: b}, nil
		}
	}
	return nil, fmt.Errorf("value of type %T does not match key kind %q", v, kind)
}

func attributeMatchesDefinition(want KeyKind, v types.AttributeValue) error {
	var got KeyKind
	switch v := v.(type) {
	case *types.AttributeValueMemberS:
		if v.Value == "" {
			return fmt.Errorf("empty string is not a valid key value")
		}
		got = KeyKindS
	case *types.AttributeValueMemberN:
		if !IsNumber(v.Value) {
			return fmt.Errorf("%q is not a number", v.Value)
		}
		got = KeyKindN
	case *types.AttributeValueMemberB:
		if len(v.Value) == 0 {
			return fmt.Errorf("empty binary is not a valid key value")
		}
		got = KeyKindB
	default:
		return fmt.Errorf("unexpected key attribute type %T", v)
	}
	if got != want {
		return fmt.Errorf("got KeyKind %q want %q", got, want)
	}
	return nil
}
