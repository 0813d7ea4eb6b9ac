package config

import "github.com/invopop/jsonschema"

// JSONSchema describes the accepted encodings of a Duration.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Description: "Go duration string such as \"16ms\" or \"5s\""},
			{Type: "integer", Description: "nanoseconds"},
		},
	}
}
