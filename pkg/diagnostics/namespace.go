// Package diagnostics reports problems with a manifest stream that do not
// stop it from being applied.
package diagnostics

import (
	"fmt"
	"io"

	"github.com/dippynark/nsinject/pkg/utils"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/kustomize/kyaml/yaml"
)

const (
	namespaceKind     = "Namespace"
	manifestSeparator = "---\n"
)

// HasNamespace returns true if any document is a Namespace.
func HasNamespace(nodes []*yaml.RNode) bool {
	for _, node := range nodes {
		kind, err := utils.GetStringField(node, "kind")
		if err == nil && kind == namespaceKind {
			return true
		}
	}
	return false
}

// NamespaceManifest returns a manifest creating namespace.
func NamespaceManifest(namespace string) string {
	return fmt.Sprintf(manifestSeparator+`apiVersion: %s
kind: %s
metadata:
  name: %s
`, corev1.SchemeGroupVersion.String(), namespaceKind, namespace)
}

// AdviseMissingNamespace writes a Namespace manifest for namespace to w if
// nodes do not contain a Namespace. It reports whether advice was written.
func AdviseMissingNamespace(w io.Writer, nodes []*yaml.RNode, namespace string) (bool, error) {
	if HasNamespace(nodes) {
		return false, nil
	}

	_, err := fmt.Fprintf(w, "No Namespace found in input, make sure Namespace %q exists or add:\n%s", namespace, NamespaceManifest(namespace))
	if err != nil {
		return false, err
	}
	return true, nil
}
