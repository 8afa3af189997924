package ddbstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/acksell/ddbcli/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key encoding for BadgerDB.
// Key format: t/[tableName][separator][partitionKey][separator][sortKey]
//
// The separator byte (0x00) is used to separate components.
// Keys are encoded so that items of one partition are adjacent and sort keys keep
// their DynamoDB order (S and B bytewise, N numerically).

const keySeparator byte = 0x00

var dataPrefix = []byte("t/")

// Key type markers for encoding
const (
	keyTypeString byte = 'S'
	keyTypeNumber byte = 'N'
	keyTypeBinary byte = 'B'
)

type badgerKeyEncoder struct {
	tableName string
	keyDefs   table.PrimaryKeyDefinition
}

func (e *badgerKeyEncoder) tablePrefix() []byte {
	var buf bytes.Buffer
	buf.Write(dataPrefix)
	buf.WriteString(e.tableName)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func (e *badgerKeyEncoder) encodeKey(pk table.PrimaryKey) ([]byte, error) {
	buf := bytes.NewBuffer(e.tablePrefix())

	pkBytes, err := encodeKeyValue(pk.Values.PartitionKey, e.keyDefs.PartitionKey.Kind)
	if err != nil {
		return nil, fmt.Errorf("encode partition key: %w", err)
	}
	buf.Write(pkBytes)
	buf.WriteByte(keySeparator)

	if e.keyDefs.HasSortKey() {
		skBytes, err := encodeKeyValue(pk.Values.SortKey, e.keyDefs.SortKey.Kind)
		if err != nil {
			return nil, fmt.Errorf("encode sort key: %w", err)
		}
		buf.Write(skBytes)
	}
	return buf.Bytes(), nil
}

// encodeItemKey extracts the primary key of item and encodes it.
func (e *badgerKeyEncoder) encodeItemKey(item map[string]types.AttributeValue) ([]byte, error) {
	pk, err := e.keyDefs.ExtractPrimaryKey(item)
	if err != nil {
		return nil, validationError("One or more parameter values were invalid: %v", err)
	}
	return e.encodeKey(pk)
}

func encodeKeyValue(value any, kind table.KeyKind) ([]byte, error) {
	var buf bytes.Buffer

	switch kind {
	case table.KeyKindS:
		buf.WriteByte(keyTypeString)
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for S key, got %T", value)
		}
		buf.Write(escapeBytes([]byte(s)))

	case table.KeyKindN:
		buf.WriteByte(keyTypeNumber)
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected number string for N key, got %T", value)
		}
		encoded, err := encodeNumber(s)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)

	case table.KeyKindB:
		buf.WriteByte(keyTypeBinary)
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected binary for B key, got %T", value)
		}
		buf.Write(escapeBytes(b))

	default:
		return nil, fmt.Errorf("unsupported key kind: %s", kind)
	}

	return buf.Bytes(), nil
}

// encodeNumber encodes a number so that byte order follows numeric order.
// Format: [sign byte][float64 bits][canonical decimal text]
// The float64 prefix orders the keys; the canonical text keeps numbers that
// collapse to the same float64 distinct while mapping 1 and 1.0 to the same key.
func encodeNumber(numStr string) ([]byte, error) {
	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil && !isRangeError(err) {
		return nil, fmt.Errorf("parse number %q: %w", numStr, err)
	}
	canonical, err := canonicalNumber(numStr)
	if err != nil {
		return nil, err
	}

	bits := math.Float64bits(f)
	buf := make([]byte, 9, 9+len(canonical))

	if f >= 0 {
		// Positive numbers sort after negative numbers.
		buf[0] = 0x80
		bits ^= (1 << 63)
	} else {
		// More negative numbers sort first.
		buf[0] = 0x7F
		bits = ^bits
	}

	binary.BigEndian.PutUint64(buf[1:], bits)
	return append(buf, escapeBytes([]byte(canonical))...), nil
}

func canonicalNumber(numStr string) (string, error) {
	f, _, err := big.ParseFloat(numStr, 10, 256, big.ToNearestEven)
	if err != nil {
		return "", fmt.Errorf("parse number %q: %w", numStr, err)
	}
	return f.Text('g', -1), nil
}

func isRangeError(err error) bool {
	numErr, ok := err.(*strconv.NumError)
	return ok && numErr.Err == strconv.ErrRange
}

// escapeBytes escapes null bytes (0x00) in the input to preserve separator integrity.
// Uses 0x01 0x01 for literal 0x00, and 0x01 0x02 for literal 0x01.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.WriteByte(0x01)
			buf.WriteByte(0x01)
		case 0x01:
			buf.WriteByte(0x01)
			buf.WriteByte(0x02)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// storedAttr is the gob representation of an AttributeValue.
// Only the fields matching T are set.
type storedAttr struct {
	T    string
	S    string
	B    []byte
	Bool bool
	SS   []string
	BS   [][]byte
	L    []storedAttr
	M    map[string]storedAttr
}

// serializeItem encodes an item for storage as a BadgerDB value.
func serializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	stored := make(map[string]storedAttr, len(item))
	for k, v := range item {
		sa, err := toStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		stored[k] = sa
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

// deserializeItem is the inverse of serializeItem.
func deserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var stored map[string]storedAttr
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}

	item := make(map[string]types.AttributeValue, len(stored))
	for k, v := range stored {
		av, err := fromStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

func toStored(av types.AttributeValue) (storedAttr, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedAttr{T: "S", S: v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedAttr{T: "N", S: v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedAttr{T: "B", B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedAttr{T: "BOOL", Bool: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedAttr{T: "NULL", Bool: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedAttr{T: "SS", SS: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedAttr{T: "NS", SS: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedAttr{T: "BS", BS: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]storedAttr, len(v.Value))
		for k, val := range v.Value {
			sa, err := toStored(val)
			if err != nil {
				return storedAttr{}, err
			}
			m[k] = sa
		}
		return storedAttr{T: "M", M: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedAttr, len(v.Value))
		for i, val := range v.Value {
			sa, err := toStored(val)
			if err != nil {
				return storedAttr{}, err
			}
			l[i] = sa
		}
		return storedAttr{T: "L", L: l}, nil
	default:
		return storedAttr{}, fmt.Errorf("unsupported attribute value type: %T", av)
	}
}

func fromStored(sa storedAttr) (types.AttributeValue, error) {
	switch sa.T {
	case "S":
		return &types.AttributeValueMemberS{Value: sa.S}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: sa.S}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: sa.B}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sa.Bool}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: sa.Bool}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: sa.SS}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: sa.SS}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: sa.BS}, nil
	case "M":
		m := make(map[string]types.AttributeValue, len(sa.M))
		for k, v := range sa.M {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		l := make([]types.AttributeValue, len(sa.L))
		for i, v := range sa.L {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stored type: %q", sa.T)
	}
}
