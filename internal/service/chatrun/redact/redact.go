// Package redact implements the debug-payload redactor used by the
// provider-request introspection endpoint. Built on tidwall/gjson +
// tidwall/sjson rather than reflecting through
// encoding/json, since payloads here are already-serialized provider
// request bodies of unknown shape).
package redact

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// sensitiveKeys are replaced with "[redacted]" wherever they appear as an
// object key, at any depth.
var sensitiveKeys = map[string]bool{
	"apikey":                  true,
	"api_key":                 true,
	"authorization":           true,
	"proxy-authorization":     true,
	"x-api-key":               true,
	"openai-api-key":          true,
	"anthropic-api-key":       true,
	"anthropic-oauth-token":   true,
}

const maxDataStringLen = 200

// maxWalkDepth guards against runaway recursion on deeply nested or
// self-referential structures; JSON values from encoding/json can never
// actually cycle (Go's json package does not support back-references), so
// this depth cap is the practical equivalent of the source's cycle
// detector; a value nested deeper than it is replaced with
// "[max depth exceeded]".
const maxWalkDepth = 64

// Redact walks a JSON object and returns a redacted copy: values under
// sensitive keys become "[redacted]"; "data" string fields longer than 200
// chars are truncated to "[base64 N chars]"; redaction is idempotent
// (redacting already-redacted input is a no-op, since the sentinel values
// themselves don't re-match the same rules).
func Redact(payload []byte) ([]byte, error) {
	if !gjson.ValidBytes(payload) {
		return payload, nil
	}
	out := string(payload)
	result := gjson.ParseBytes(payload)
	var err error
	out, err = redactValue(out, "", result, 0)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func redactValue(doc, path string, value gjson.Result, depth int) (string, error) {
	if depth > maxWalkDepth {
		return sjson.Set(doc, jsonPath(path), "[max depth exceeded]")
	}

	switch {
	case value.IsObject():
		var err error
		value.ForEach(func(key, val gjson.Result) bool {
			childPath := joinPath(path, key.String())
			if sensitiveKeys[strings.ToLower(key.String())] {
				doc, err = sjson.Set(doc, jsonPath(childPath), "[redacted]")
				return err == nil
			}
			if key.String() == "data" && val.Type == gjson.String && len(val.String()) > maxDataStringLen {
				doc, err = sjson.Set(doc, jsonPath(childPath), truncatedDataLabel(val.String()))
				return err == nil
			}
			doc, err = redactValue(doc, childPath, val, depth+1)
			return err == nil
		})
		return doc, err

	case value.IsArray():
		var err error
		i := 0
		value.ForEach(func(_, val gjson.Result) bool {
			childPath := joinPath(path, itoaIndex(i))
			doc, err = redactValue(doc, childPath, val, depth+1)
			i++
			return err == nil
		})
		return doc, err

	default:
		return doc, nil
	}
}

func truncatedDataLabel(s string) string {
	return "[base64 " + strconv.Itoa(len(s)) + " chars]"
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

// jsonPath translates our dotted path into sjson's path syntax (identical
// for plain keys; array indices are already plain integers which sjson
// accepts directly).
func jsonPath(path string) string { return path }

func itoaIndex(i int) string { return strconv.Itoa(i) }
