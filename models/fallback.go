package models

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed fallback.yaml
var fallbackYAML []byte

// LoadFallback decodes the static model list served when the upstream's
// ListAvailableModels call is unreachable at startup or during a refill.
// If overridePath is set (KIRO_MODELS_FALLBACK_FILE), it is read instead of
// the embedded default, so operators can adjust the catalog without a
// rebuild.
func LoadFallback(overridePath string) ([]Info, error) {
	data := fallbackYAML
	if overridePath != "" {
		fileData, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read fallback model file %q: %w", overridePath, err)
		}
		data = fileData
	}

	var list []Info
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}
