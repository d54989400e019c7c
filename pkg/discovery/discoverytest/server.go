// Package discoverytest serves Kubernetes discovery documents over TLS for
// tests.
package discoverytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Server is a TLS API server that only answers discovery requests. Responses
// for group versions listed in Failing are 500 Internal Server Error.
type Server struct {
	*httptest.Server

	Resources []*metav1.APIResourceList
	Failing   map[string]bool
	// Statuses forces the response status for a request path, e.g. 403 for
	// /apis
	Statuses map[string]int
	// Token, if set, is the bearer token every request must carry
	Token string
	// Requests records the path of every request in order
	Requests []string
}

// NewServer starts a server with a self-signed certificate.
func NewServer(resources ...*metav1.APIResourceList) *Server {
	s := &Server{
		Resources: resources,
		Failing:   map[string]bool{},
		Statuses:  map[string]int{},
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serve))
	return s
}

// DefaultResources returns a small set of core and named group resources.
func DefaultResources() []*metav1.APIResourceList {
	return []*metav1.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "configmaps", Kind: "ConfigMap", Namespaced: true},
				{Name: "namespaces", Kind: "Namespace", Namespaced: false},
				{Name: "pods", Kind: "Pod", Namespaced: true},
				{Name: "pods/status", Kind: "Pod", Namespaced: true},
				{Name: "secrets", Kind: "Secret", Namespaced: true},
			},
		},
		{
			GroupVersion: "apps/v1",
			APIResources: []metav1.APIResource{
				{Name: "deployments", Kind: "Deployment", Namespaced: true},
			},
		},
		{
			GroupVersion: "rbac.authorization.k8s.io/v1",
			APIResources: []metav1.APIResource{
				{Name: "clusterroles", Kind: "ClusterRole", Namespaced: false},
				{Name: "roles", Kind: "Role", Namespaced: true},
			},
		},
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.Requests = append(s.Requests, r.URL.Path)

	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if status, ok := s.Statuses[r.URL.Path]; ok {
		http.Error(w, http.StatusText(status), status)
		return
	}

	switch {
	case r.URL.Path == "/api":
		s.write(w, s.apiVersions())
	case r.URL.Path == "/apis":
		s.write(w, s.apiGroupList())
	case strings.HasPrefix(r.URL.Path, "/api/"):
		s.writeResources(w, strings.TrimPrefix(r.URL.Path, "/api/"))
	case strings.HasPrefix(r.URL.Path, "/apis/"):
		s.writeResources(w, strings.TrimPrefix(r.URL.Path, "/apis/"))
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) apiVersions() *metav1.APIVersions {
	versions := &metav1.APIVersions{TypeMeta: metav1.TypeMeta{Kind: "APIVersions", APIVersion: "v1"}}
	for _, resourceList := range s.Resources {
		if !strings.Contains(resourceList.GroupVersion, "/") {
			versions.Versions = append(versions.Versions, resourceList.GroupVersion)
		}
	}
	return versions
}

func (s *Server) apiGroupList() *metav1.APIGroupList {
	groupList := &metav1.APIGroupList{TypeMeta: metav1.TypeMeta{Kind: "APIGroupList", APIVersion: "v1"}}
	indexes := map[string]int{}
	for _, resourceList := range s.Resources {
		gv, err := schema.ParseGroupVersion(resourceList.GroupVersion)
		if err != nil || gv.Group == "" {
			continue
		}
		version := metav1.GroupVersionForDiscovery{GroupVersion: gv.String(), Version: gv.Version}
		i, ok := indexes[gv.Group]
		if !ok {
			indexes[gv.Group] = len(groupList.Groups)
			groupList.Groups = append(groupList.Groups, metav1.APIGroup{
				Name:             gv.Group,
				Versions:         []metav1.GroupVersionForDiscovery{version},
				PreferredVersion: version,
			})
			continue
		}
		groupList.Groups[i].Versions = append(groupList.Groups[i].Versions, version)
	}
	return groupList
}

func (s *Server) writeResources(w http.ResponseWriter, groupVersion string) {
	if s.Failing[groupVersion] {
		http.Error(w, "discovery unavailable", http.StatusInternalServerError)
		return
	}
	for _, resourceList := range s.Resources {
		if resourceList.GroupVersion == groupVersion {
			out := *resourceList
			out.TypeMeta = metav1.TypeMeta{Kind: "APIResourceList", APIVersion: "v1"}
			s.write(w, &out)
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) write(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(obj)
}
