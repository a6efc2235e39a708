package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

const compositionSchemaURL = "https://poreview.local/schemas/composition.schema.json"

const compositionSchema = `{
  "type": "object",
  "required": ["wpqNumber", "auditTypeID", "executionStatus", "actionStatus",
               "category", "service", "subject", "text", "englishText"],
  "properties": {
    "wpqNumber":       {"type": ["string", "integer"]},
    "auditTypeID":     {"type": ["integer", "string"], "pattern": "^[0-9]+$"},
    "executionStatus": {"type": ["integer", "string"], "pattern": "^[0-9]+$"},
    "actionStatus":    {"type": ["integer", "string"], "pattern": "^[0-9]+$"},
    "category":        {"type": "string"},
    "service":         {"type": "string"},
    "subject":         {"type": "string"},
    "text":            {"type": "string", "minLength": 1},
    "englishText":     {"type": "string", "minLength": 1},
    "_MailID":         {"type": ["string", "null"]}
  }
}`

var compiledSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(compositionSchemaURL, strings.NewReader(compositionSchema)); err != nil {
		panic(fmt.Sprintf("composition schema load failed: %v", err))
	}
	s, err := c.Compile(compositionSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("composition schema compile failed: %v", err))
	}
	return s
}

// ParseComposition extracts the first JSON object from a model reply and
// checks it carries every field an action needs.
func ParseComposition(raw string) (Composition, error) {
	m := jsonObject.FindString(raw)
	if m == "" {
		return Composition{}, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(m)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Composition{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Composition{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	obj := doc.(map[string]any)
	c := Composition{
		WPQNumber:   stringField(obj["wpqNumber"]),
		Category:    stringField(obj["category"]),
		Service:     stringField(obj["service"]),
		Subject:     stringField(obj["subject"]),
		Text:        stringField(obj["text"]),
		EnglishText: stringField(obj["englishText"]),
		MailID:      stringField(obj["_MailID"]),
	}
	var err error
	if c.AuditTypeID, err = intField(obj["auditTypeID"]); err != nil {
		return Composition{}, fmt.Errorf("%w: auditTypeID: %v", ErrMalformedResponse, err)
	}
	if c.ExecutionStatus, err = intField(obj["executionStatus"]); err != nil {
		return Composition{}, fmt.Errorf("%w: executionStatus: %v", ErrMalformedResponse, err)
	}
	if c.ActionStatus, err = intField(obj["actionStatus"]); err != nil {
		return Composition{}, fmt.Errorf("%w: actionStatus: %v", ErrMalformedResponse, err)
	}
	return c, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func intField(v any) (int, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
