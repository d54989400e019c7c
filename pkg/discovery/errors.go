package discovery

import "fmt"

// DiscoveryError is returned when a discovery endpoint does not respond
// successfully.
type DiscoveryError struct {
	GroupVersion string
	URL          string
	Err          error
}

func (e *DiscoveryError) Error() string {
	if e.GroupVersion == "" {
		return fmt.Sprintf("discovery request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("discovery request for %s to %s failed: %v", e.GroupVersion, e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// UnknownResourceError is returned for kinds that neither the cluster nor any
// local CRD declares.
type UnknownResourceError struct {
	APIVersion string
	Kind       string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource %s %s: not served by the cluster or declared by a CustomResourceDefinition", e.APIVersion, e.Kind)
}
