package discovery

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ScopeMap maps apiVersion and kind to whether the kind is namespace-scoped.
type ScopeMap map[string]map[string]bool

// NewScopeMap folds sets of discovered resources into a ScopeMap. Later sets
// take precedence over earlier ones.
func NewScopeMap(resourceSets ...[]Resource) ScopeMap {
	s := ScopeMap{}
	for _, resources := range resourceSets {
		for _, resource := range resources {
			s.Set(resource.GroupVersion, resource.Kind, resource.Namespaced)
		}
	}
	return s
}

// Set records the scope of kind in apiVersion, replacing any existing entry.
func (s ScopeMap) Set(apiVersion, kind string, namespaced bool) {
	kinds, ok := s[apiVersion]
	if !ok {
		kinds = map[string]bool{}
		s[apiVersion] = kinds
	}
	kinds[kind] = namespaced
}

// Lookup returns the scope of kind in apiVersion and whether it is known.
func (s ScopeMap) Lookup(apiVersion, kind string) (namespaced bool, ok bool) {
	namespaced, ok = s[apiVersion][kind]
	return namespaced, ok
}

func (s ScopeMap) IsNamespaced(gvk schema.GroupVersionKind) (bool, error) {
	apiVersion, kind := gvk.ToAPIVersionAndKind()
	namespaced, ok := s.Lookup(apiVersion, kind)
	if !ok {
		return false, &UnknownResourceError{APIVersion: apiVersion, Kind: kind}
	}
	return namespaced, nil
}

func (s ScopeMap) AddGVKToScope(gvk schema.GroupVersionKind, namespaced bool) {
	apiVersion, kind := gvk.ToAPIVersionAndKind()
	s.Set(apiVersion, kind, namespaced)
}

var _ ResourceInspector = ScopeMap{}
