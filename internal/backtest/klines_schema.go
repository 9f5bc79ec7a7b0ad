package backtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// klinesSchema 只约束用到的前 5 列：开盘时间 + OHLC 数值字符串。
const klinesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "array",
    "minItems": 5,
    "items": [
      {"type": "integer", "minimum": 0},
      {"$ref": "#/definitions/price"},
      {"$ref": "#/definitions/price"},
      {"$ref": "#/definitions/price"},
      {"$ref": "#/definitions/price"}
    ]
  },
  "definitions": {
    "price": {"type": "string", "pattern": "^-?[0-9]+(\\.[0-9]+)?$"}
  }
}`

var compiledKlinesSchema = mustCompileKlinesSchema()

func mustCompileKlinesSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("klines.json", strings.NewReader(klinesSchema)); err != nil {
		panic(fmt.Sprintf("klines schema: %v", err))
	}
	return compiler.MustCompile("klines.json")
}

func validateKlinesPayload(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return compiledKlinesSchema.Validate(doc)
}
