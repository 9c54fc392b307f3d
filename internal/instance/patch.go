package instance

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"maestro/internal/api"
)

// applyPatch applies an RFC 6902 patch document to a declared
// configuration and validates the result. The input document is not
// modified.
func applyPatch(cfg *api.DeclaredConfiguration, rawPatch []byte) (*api.DeclaredConfiguration, error) {
	patch, err := jsonpatch.DecodePatch(rawPatch)
	if err != nil {
		return nil, api.NewValidationError("patch", fmt.Sprintf("invalid patch document: %v", err))
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}

	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, api.NewValidationError("patch", fmt.Sprintf("patch cannot be applied: %v", err))
	}

	out := &api.DeclaredConfiguration{}
	if err := json.Unmarshal(patched, out); err != nil {
		return nil, api.NewValidationError("patch", fmt.Sprintf("patched document is not a valid configuration: %v", err))
	}

	normalizeConfiguration(out)
	if err := validateConfiguration(out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeConfiguration replaces nil record lists with empty ones so
// the JSON form always carries arrays. Patch paths like /sources/-
// require an array to append to, not null.
func normalizeConfiguration(cfg *api.DeclaredConfiguration) {
	if cfg.Sources == nil {
		cfg.Sources = []api.ConfigRecord{}
	}
	if cfg.Queries == nil {
		cfg.Queries = []api.ConfigRecord{}
	}
	if cfg.Reactions == nil {
		cfg.Reactions = []api.ConfigRecord{}
	}
}

func validateConfiguration(cfg *api.DeclaredConfiguration) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return api.NewValidationError("port", fmt.Sprintf("port %d is out of range", cfg.Port))
	}
	return nil
}

// configurationsEqual compares two declared configurations structurally
// through their canonical JSON form.
func configurationsEqual(a, b *api.DeclaredConfiguration) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}
