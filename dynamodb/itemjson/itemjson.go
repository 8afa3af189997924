// Package itemjson converts between JSON documents and DynamoDB items.
//
// JSON numbers are carried as their exact decimal text in both directions so that
// values like 0.1 or 12345678901234567890 survive a round trip unchanged.
package itemjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrInvalidItem is returned for input that is not a JSON object.
var ErrInvalidItem = errors.New("invalid item")

// Item is a DynamoDB item.
type Item = map[string]types.AttributeValue

// Decode parses a single JSON object into an item.
func Decode(data []byte) (Item, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidItem, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidItem)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidItem)
	}
	return fromValue(v)
}

// DecodeItems reads items from r. The stream may hold a JSON array of objects,
// a single object or a sequence of objects separated by whitespace.
func DecodeItems(r io.Reader) ([]Item, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var items []Item
	for n := 0; ; n++ {
		var v any
		err := dec.Decode(&v)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed JSON in document %d: %v", ErrInvalidItem, n+1, err)
		}

		if list, ok := v.([]any); ok {
			for i, elem := range list {
				item, err := fromValue(elem)
				if err != nil {
					return nil, fmt.Errorf("element %d: %w", i, err)
				}
				items = append(items, item)
			}
			continue
		}

		item, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", n+1, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Encode converts an item into a value ready for JSON encoding.
// Numbers are returned as json.Number and binary values as []byte (base64 in JSON).
func Encode(item Item) (map[string]any, error) {
	var out map[string]any
	err := attributevalue.UnmarshalMapWithOptions(item, &out, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	for k, v := range out {
		out[k] = toJSONValue(v)
	}
	return out, nil
}

// EncodeAll is Encode for a list of items.
func EncodeAll(items []Item) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		v, err := Encode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Value converts a single JSON value (as produced by a json.Decoder with UseNumber)
// into an attribute value.
func Value(v any) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(toAttributeValue(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return av, nil
}

// DecodeValue parses a JSON literal into an attribute value.
func DecodeValue(data []byte) (types.AttributeValue, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return av, nil
}

// Parse parses a JSON literal into a Go value that attributevalue.Marshal
// encodes without losing number precision.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON value %q: %v", ErrInvalidItem, data, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON value %q", ErrInvalidItem, data)
	}
	return toAttributeValue(v), nil
}

func fromValue(v any) (Item, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %s", ErrInvalidItem, jsonKind(v))
	}
	item, err := attributevalue.MarshalMap(toAttributeValue(obj))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return item, nil
}

// toAttributeValue swaps json.Number for attributevalue.Number so numbers are
// encoded as N with their original text.
func toAttributeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		return attributevalue.Number(val)
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = toAttributeValue(e)
		}
		return m
	case []any:
		l := make([]any, len(val))
		for i, e := range val {
			l[i] = toAttributeValue(e)
		}
		return l
	default:
		return v
	}
}

func toJSONValue(v any) any {
	switch val := v.(type) {
	case attributevalue.Number:
		return json.Number(val)
	case []attributevalue.Number:
		l := make([]any, len(val))
		for i, n := range val {
			l[i] = json.Number(n)
		}
		return l
	case map[string]any:
		for k, e := range val {
			val[k] = toJSONValue(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = toJSONValue(e)
		}
		return val
	default:
		return v
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
