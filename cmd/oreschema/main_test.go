package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteSchemaDescribesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema", "config.schema.json")
	if err := writeSchema(path, buildSchema()); err != nil {
		t.Fatalf("writeSchema: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"Orefield Level Generator Configuration",
		`"levelsPerStage"`,
		`"minDistanceOreToHazard"`,
		`"tickRate"`,
		"nanoseconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("schema is missing %s", want)
		}
	}
}
