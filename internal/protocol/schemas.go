package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const txSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "protocol_version", "pkey", "params"],
  "properties": {
    "type": {"const": "TX"},
    "protocol_version": {"type": "string"},
    "pkey": {
      "type": "array", "minItems": 4, "maxItems": 4,
      "items": {"$ref": "#/definitions/word"}
    },
    "params": {
      "type": "array", "minItems": 1, "maxItems": 8,
      "items": {"$ref": "#/definitions/word"}
    }
  },
  "definitions": {
    "word": {"type": "string", "pattern": "^(0x[0-9a-fA-F]{1,16}|[0-9]{1,20})$"}
  }
}`

var (
	txSchemaOnce sync.Once
	txSchemaC    *jsonschema.Schema
	txSchemaErr  error
)

func compiledTxSchema() (*jsonschema.Schema, error) {
	txSchemaOnce.Do(func() {
		txSchemaC, txSchemaErr = jsonschema.CompileString("tx.schema.json", txSchema)
	})
	return txSchemaC, txSchemaErr
}

// DecodeTx validates raw JSON against the TX schema and decodes it.
func DecodeTx(raw []byte) (TxMsg, error) {
	var msg TxMsg
	s, err := compiledTxSchema()
	if err != nil {
		return msg, fmt.Errorf("compile tx schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return msg, fmt.Errorf("decode tx: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return msg, fmt.Errorf("validate tx: %w", err)
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode tx: %w", err)
	}
	if msg.ProtocolVersion != Version {
		return msg, fmt.Errorf("bad protocol_version %q", msg.ProtocolVersion)
	}
	return msg, nil
}
