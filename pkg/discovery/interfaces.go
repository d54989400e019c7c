package discovery

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

type ResourceInspector interface {
	// IsNamespaced returns true if the given GroupVersionKind is for a
	// namespace-scoped object. Kinds the inspector knows nothing about
	// return an *UnknownResourceError.
	IsNamespaced(schema.GroupVersionKind) (bool, error)
	// AddGVKToScope adds GVK scope mapping to discovery, replacing any
	// existing mapping
	AddGVKToScope(schema.GroupVersionKind, bool)
}
