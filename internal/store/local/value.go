package local

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nightjar-tv/nightjar/internal/store"
)

// Payload serialization for badger values. Attribute values are converted
// to a gob-encodable tagged form; number attributes keep their exact
// decimal text.

type storedAV struct {
	Type  string
	Value any
}

func init() {
	gob.Register("")
	gob.Register(true)
	gob.Register([]byte(nil))
	gob.Register(map[string]storedAV{})
	gob.Register([]storedAV{})
	gob.Register([]string{})
	gob.Register([][]byte{})
}

func serializePayload(data store.Payload) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	stored := make(map[string]storedAV, len(data))
	for k, v := range data {
		sav, err := toStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		stored[k] = sav
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializePayload(val []byte) (store.Payload, error) {
	if len(val) == 0 {
		return nil, nil
	}
	var stored map[string]storedAV
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	data := make(store.Payload, len(stored))
	for k, v := range stored {
		av, err := fromStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		data[k] = av
	}
	return data, nil
}

func toStored(av types.AttributeValue) (storedAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedAV{Type: "S", Value: v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedAV{Type: "N", Value: v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedAV{Type: "B", Value: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedAV{Type: "BOOL", Value: v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedAV{Type: "NULL", Value: v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedAV{Type: "SS", Value: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedAV{Type: "NS", Value: v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedAV{Type: "BS", Value: v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]storedAV, len(v.Value))
		for k, val := range v.Value {
			sav, err := toStored(val)
			if err != nil {
				return storedAV{}, err
			}
			m[k] = sav
		}
		return storedAV{Type: "M", Value: m}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedAV, len(v.Value))
		for i, val := range v.Value {
			sav, err := toStored(val)
			if err != nil {
				return storedAV{}, err
			}
			l[i] = sav
		}
		return storedAV{Type: "L", Value: l}, nil
	default:
		return storedAV{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func fromStored(sav storedAV) (types.AttributeValue, error) {
	switch sav.Type {
	case "S":
		return &types.AttributeValueMemberS{Value: sav.Value.(string)}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: sav.Value.(string)}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: sav.Value.([]byte)}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sav.Value.(bool)}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: sav.Value.(bool)}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: sav.Value.([]string)}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: sav.Value.([]string)}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: sav.Value.([][]byte)}, nil
	case "M":
		src := sav.Value.(map[string]storedAV)
		m := make(map[string]types.AttributeValue, len(src))
		for k, v := range src {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		src := sav.Value.([]storedAV)
		l := make([]types.AttributeValue, len(src))
		for i, v := range src {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stored type %q", sav.Type)
	}
}
