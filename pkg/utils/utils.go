package utils

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/kustomize/kyaml/yaml"
)

var quotes = []string{"'", "\""}

// MissingFieldError is returned when a required field is absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is empty", e.Field)
}

func requireStringField(node *yaml.RNode, fields ...string) (string, error) {
	value, err := GetStringField(node, fields...)
	if err != nil {
		return "", err
	}

	if value == "" {
		return "", &MissingFieldError{Field: strings.Join(fields, ".")}
	}

	return value, nil
}

func GetNamespace(node *yaml.RNode) (string, error) {
	return GetStringField(node, "metadata", "namespace")
}

// GetName returns metadata.name, which may be empty for generated resources.
func GetName(node *yaml.RNode) (string, error) {
	return GetStringField(node, "metadata", "name")
}

func GetKind(node *yaml.RNode) (string, error) {
	return requireStringField(node, "kind")
}

func GetAPIVersion(node *yaml.RNode) (string, error) {
	return requireStringField(node, "apiVersion")
}

func GetCRDGroup(node *yaml.RNode) (string, error) {
	return requireStringField(node, "spec", "group")
}

func GetCRDKind(node *yaml.RNode) (string, error) {
	return requireStringField(node, "spec", "names", "kind")
}

func GetCRDScope(node *yaml.RNode) (string, error) {
	return requireStringField(node, "spec", "scope")
}

// GetCRDVersions returns the names listed in spec.versions, falling back to
// the single spec.version field used by apiextensions.k8s.io/v1beta1.
func GetCRDVersions(node *yaml.RNode) ([]string, error) {
	valueNode, err := node.Pipe(yaml.Lookup("spec", "versions"))
	if err != nil {
		return nil, err
	}

	if valueNode != nil {
		versions, err := valueNode.ElementValues("name")
		if err != nil {
			return nil, errors.Wrap(err, "failed to read spec.versions")
		}
		if len(versions) > 0 {
			return versions, nil
		}
	}

	version, err := GetStringField(node, "spec", "version")
	if err != nil {
		return nil, err
	}
	if version == "" {
		return nil, &MissingFieldError{Field: "spec.versions"}
	}

	return []string{version}, nil
}

func GetStringField(node *yaml.RNode, fields ...string) (string, error) {

	valueNode, err := node.Pipe(yaml.Lookup(fields...))
	if err != nil {
		return "", err
	}

	// Return empty string if value not found or explicitly null
	if yaml.IsMissingOrNull(valueNode) {
		return "", nil
	}

	value, err := valueNode.String()
	if err != nil {
		return "", nil
	}

	return trimSpaceAndQuotes(value), nil
}

// trimSpaceAndQuotes trims any whitespace and quotes around a value
func trimSpaceAndQuotes(value string) string {
	text := strings.TrimSpace(value)
	for _, q := range quotes {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) {
			return strings.TrimPrefix(strings.TrimSuffix(text, q), q)
		}
	}
	return text
}

func GetGVK(node *yaml.RNode) (gvk schema.GroupVersionKind, err error) {
	apiVersion, err := GetAPIVersion(node)
	if err != nil {
		return gvk, errors.Wrap(err, "failed to get apiVersion")
	}

	kind, err := GetKind(node)
	if err != nil {
		return gvk, errors.Wrap(err, "failed to get kind")
	}

	gvk = schema.FromAPIVersionAndKind(apiVersion, kind)

	return gvk, nil
}

const listKind = "List"

// ExpandLists returns nodes with every List document replaced by its items,
// recursively. The items share storage with the List, so changes to them are
// visible when the List is written.
func ExpandLists(nodes []*yaml.RNode) ([]*yaml.RNode, error) {
	var expanded []*yaml.RNode
	for i, node := range nodes {
		kind, err := GetStringField(node, "kind")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get kind of document %d", i)
		}

		items := node.Field("items")
		if kind != listKind || items == nil || items.Value.YNode().Kind != yaml.SequenceNode {
			expanded = append(expanded, node)
			continue
		}

		elements, err := items.Value.Elements()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get items of List %d", i)
		}
		elements, err = ExpandLists(elements)
		if err != nil {
			return nil, err
		}
		expanded = append(expanded, elements...)
	}
	return expanded, nil
}
