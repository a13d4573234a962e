package redact

import (
	"encoding/json"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskedSecretValue is the replacement string for masked Kubernetes Secret data values.
const MaskedSecretValue = "[MASKED_SECRET_DATA]"

// Pre-compiled patterns for fast AppliesTo checks.
var (
	yamlSecretPattern = regexp.MustCompile(`(?m)^kind:\s*Secret\s*$`)
	jsonSecretPattern = regexp.MustCompile(`"kind"\s*:\s*"Secret"`)
)

// KubernetesSecretMasker masks data/stringData fields in a Kubernetes
// Secret resource, leaving other kinds untouched. Tarka's only source of
// raw object manifests is K8sClient's ObjectYAML (a single Pod or Node,
// never a Secret or a List), so this masker covers the one shape that
// matters if an operator ever points the K8s provider at a Secret-scoped
// identity, rather than the List/annotation-embedded-JSON cases a
// cluster-wide manifest dump would need.
type KubernetesSecretMasker struct{}

// Name returns the unique identifier for this masker.
func (m *KubernetesSecretMasker) Name() string { return "kubernetes_secret" }

// AppliesTo performs a lightweight check on whether this masker should process the data.
func (m *KubernetesSecretMasker) AppliesTo(data string) bool {
	if !strings.Contains(data, "Secret") {
		return false
	}
	return yamlSecretPattern.MatchString(data) || jsonSecretPattern.MatchString(data)
}

// Mask applies Kubernetes Secret masking logic, trying JSON first when the
// input looks like JSON (avoids the YAML parser consuming it and
// re-serializing as YAML), then falling back to YAML.
func (m *KubernetesSecretMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '{' {
		if masked := m.maskJSON(data); masked != data {
			return masked
		}
	}

	if masked := m.maskYAML(data); masked != data {
		return masked
	}

	return data
}

func (m *KubernetesSecretMasker) maskYAML(data string) string {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(data), &doc); err != nil || doc == nil {
		return data
	}
	if !isKubernetesSecret(doc) {
		return data
	}
	maskSecretDataMaps(doc)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return data
	}
	result := strings.TrimRight(string(out), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

func (m *KubernetesSecretMasker) maskJSON(data string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}
	if !isKubernetesSecret(obj) {
		return data
	}
	maskSecretDataMaps(obj)

	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return data
	}
	result := string(out)
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

// isKubernetesSecret checks if a resource map represents a Kubernetes Secret.
func isKubernetesSecret(resource map[string]any) bool {
	kind, ok := resource["kind"].(string)
	if !ok {
		return false
	}
	return kind == "Secret"
}

// maskSecretDataMaps replaces values in "data" and "stringData" map fields.
func maskSecretDataMaps(resource map[string]any) {
	for _, field := range []string{"data", "stringData"} {
		fieldVal, ok := resource[field]
		if !ok {
			continue
		}
		dataMap, ok := fieldVal.(map[string]any)
		if !ok {
			continue
		}
		for key := range dataMap {
			dataMap[key] = MaskedSecretValue
		}
	}
}
