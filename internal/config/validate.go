package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

// ValidateSettings checks a raw settings map against the embedded schema
// before it is decoded into Config. Violations are reported together, in
// a stable order, so a bad config file surfaces every problem at once.
func ValidateSettings(settings map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return fmt.Errorf("load config schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		errs = append(errs, verr.String())
	}
	sort.Strings(errs)

	return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
}
