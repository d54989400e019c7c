// Package crd derives resource scopes from CustomResourceDefinitions found in
// a manifest stream, so that custom resources can be scoped before the
// cluster serves them.
package crd

import (
	"fmt"

	"github.com/dippynark/nsinject/pkg/discovery"
	"github.com/dippynark/nsinject/pkg/utils"
	"github.com/pkg/errors"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/kustomize/kyaml/yaml"
)

const crdKind = "CustomResourceDefinition"

// Scope is the scope declared by a CRD for one of its versions.
type Scope struct {
	GroupVersion string
	Kind         string
	Namespaced   bool
}

// GroupVersionKind returns the kind the scope applies to.
func (s Scope) GroupVersionKind() schema.GroupVersionKind {
	return schema.FromAPIVersionAndKind(s.GroupVersion, s.Kind)
}

// MalformedCRDError is returned for CRDs missing a field needed to derive
// their scope.
type MalformedCRDError struct {
	// Index of the document in the stream
	Index int
	Name  string
	Field string
	Err   error
}

func (e *MalformedCRDError) Error() string {
	return fmt.Sprintf("malformed CustomResourceDefinition %q (document %d): %s: %v", e.Name, e.Index, e.Field, e.Err)
}

func (e *MalformedCRDError) Unwrap() error {
	return e.Err
}

// FindScopes returns the scopes declared by every CRD in nodes, one per CRD
// version, in document order. Documents without a kind are ignored here.
func FindScopes(nodes []*yaml.RNode) ([]Scope, error) {
	var scopes []Scope

	for i, node := range nodes {
		kind, err := utils.GetStringField(node, "kind")
		if err != nil {
			return nil, errors.Wrapf(err, "failed to get kind of document %d", i)
		}

		if kind != crdKind {
			continue
		}

		crdScopes, err := scopesForCRD(i, node)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, crdScopes...)
	}

	return scopes, nil
}

// Apply adds the scopes declared by CRDs in nodes to resourceInspector.
// Later CRDs replace earlier mappings and discovery information.
func Apply(nodes []*yaml.RNode, resourceInspector discovery.ResourceInspector) error {
	scopes, err := FindScopes(nodes)
	if err != nil {
		return err
	}
	for _, scope := range scopes {
		resourceInspector.AddGVKToScope(scope.GroupVersionKind(), scope.Namespaced)
	}
	return nil
}

func scopesForCRD(index int, node *yaml.RNode) ([]Scope, error) {
	name, _ := utils.GetName(node)

	malformed := func(err error) error {
		field := "unknown"
		var missing *utils.MissingFieldError
		if errors.As(err, &missing) {
			field = missing.Field
		}
		return &MalformedCRDError{Index: index, Name: name, Field: field, Err: err}
	}

	group, err := utils.GetCRDGroup(node)
	if err != nil {
		return nil, malformed(err)
	}

	kind, err := utils.GetCRDKind(node)
	if err != nil {
		return nil, malformed(err)
	}

	scope, err := utils.GetCRDScope(node)
	if err != nil {
		return nil, malformed(err)
	}
	namespaced := apiextensionsv1.ResourceScope(scope) == apiextensionsv1.NamespaceScoped

	versions, err := utils.GetCRDVersions(node)
	if err != nil {
		return nil, malformed(err)
	}

	scopes := make([]Scope, 0, len(versions))
	for _, version := range versions {
		scopes = append(scopes, Scope{
			GroupVersion: schema.GroupVersion{Group: group, Version: version}.String(),
			Kind:         kind,
			Namespaced:   namespaced,
		})
	}

	return scopes, nil
}
