package main

import (
	"bytes"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dippynark/nsinject/pkg/crd"
	"github.com/dippynark/nsinject/pkg/discovery"
	"github.com/dippynark/nsinject/pkg/discovery/discoverytest"
	"github.com/dippynark/nsinject/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/kustomize/kyaml/kio"
)

const testToken = "secret-token"

func testResourceInspector() discovery.ScopeMap {
	return discovery.NewScopeMap([]discovery.Resource{
		{GroupVersion: "v1", Kind: "Namespace", Namespaced: false},
		{GroupVersion: "v1", Kind: "Secret", Namespaced: true},
		{GroupVersion: "apiextensions.k8s.io/v1", Kind: "CustomResourceDefinition", Namespaced: false},
		{GroupVersion: "rbac.authorization.k8s.io/v1", Kind: "ClusterRole", Namespaced: false},
	})
}

func newTestOptions(o *options) (*options, *test.Hook) {
	logger, hook := test.NewNullLogger()
	o.log = logger
	if o.file == "" {
		o.file = "input.yaml"
	}
	return o, hook
}

// writeKubeconfig writes a kubeconfig for server to a temporary directory,
// trusting the server certificate if trust is set
func writeKubeconfig(t *testing.T, server *discoverytest.Server, trust bool) string {
	caData := ""
	if trust {
		caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
		caData = "    certificate-authority-data: " + base64.StdEncoding.EncodeToString(caPEM) + "\n"
	}

	kubeconfig := fmt.Sprintf(`apiVersion: v1
kind: Config
clusters:
- name: test
  cluster:
    server: %s
%scontexts:
- name: test
  context:
    cluster: test
    user: test
current-context: test
users:
- name: test
  user:
    token: %s
`, server.URL, caData, testToken)

	path := filepath.Join(t.TempDir(), "config")
	require.Nil(t, ioutil.WriteFile(path, []byte(kubeconfig), 0600))
	return path
}

func TestBasic(t *testing.T) {
	// Setup memory backed filesystem
	input := afero.NewMemMapFs()

	// Create input manifests
	manifests := `
apiVersion: v1
kind: Secret
metadata:
  name: test
---
apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: test
`
	err := afero.WriteFile(input, "input.yaml", []byte(manifests), 0644)
	require.Nil(t, err)

	var out, errOut bytes.Buffer
	o, _ := newTestOptions(&options{namespace: "test"})
	err = o.inject(input, testResourceInspector(), strings.NewReader(""), &out, &errOut)
	require.Nil(t, err)

	require.Equal(t, `apiVersion: v1
kind: Secret
metadata:
  name: test
  namespace: test
---
apiVersion: rbac.authorization.k8s.io/v1
kind: ClusterRole
metadata:
  name: test
`, out.String())

	// No Namespace was in the input
	require.Contains(t, errOut.String(), "kind: Namespace")
	require.Contains(t, errOut.String(), "name: test")
}

func TestList(t *testing.T) {
	input := afero.NewMemMapFs()

	manifests := `
apiVersion: v1
kind: List
items:
- apiVersion: v1
  kind: Secret
  metadata:
    name: test
- apiVersion: rbac.authorization.k8s.io/v1
  kind: ClusterRole
  metadata:
    name: test
`
	err := afero.WriteFile(input, "input.yaml", []byte(manifests), 0644)
	require.Nil(t, err)

	var out, errOut bytes.Buffer
	o, _ := newTestOptions(&options{namespace: "test"})
	err = o.inject(input, testResourceInspector(), strings.NewReader(""), &out, &errOut)
	require.Nil(t, err)

	// The List is written back whole
	require.Equal(t, 1, strings.Count(out.String(), "kind: List"))
	require.NotContains(t, out.String(), "---")

	items, err := kio.FromBytes(out.Bytes())
	require.Nil(t, err)
	require.Len(t, items, 2)

	expectedNamespaces := []string{"test", ""}
	for i, item := range items {
		namespace, err := utils.GetNamespace(item)
		require.Nil(t, err)
		require.Equal(t, expectedNamespaces[i], namespace, "item %d", i)
	}
}

func TestCustomResources(t *testing.T) {
	input := afero.NewMemMapFs()

	manifests := `
apiVersion: v1
kind: Namespace
metadata:
  name: test
---
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: widgets.example.com
spec:
  group: example.com
  names:
    kind: Widget
  scope: Namespaced
  versions:
  - name: v1
---
apiVersion: example.com/v1
kind: Widget
metadata:
  name: test
---
apiVersion: example.com/v1
kind: Gadget
metadata:
  name: test
`
	err := afero.WriteFile(input, "input.yaml", []byte(manifests), 0644)
	require.Nil(t, err)

	var out, errOut bytes.Buffer
	o, _ := newTestOptions(&options{namespace: "test", gvkScopes: []string{"Gadget.example.com/v1:Cluster"}})
	err = o.inject(input, testResourceInspector(), strings.NewReader(""), &out, &errOut)
	require.Nil(t, err)

	nodes, err := kio.FromBytes(out.Bytes())
	require.Nil(t, err)
	require.Len(t, nodes, 4)

	expectedNamespaces := []string{"", "", "test", ""}
	for i, node := range nodes {
		namespace, err := utils.GetNamespace(node)
		require.Nil(t, err)
		require.Equal(t, expectedNamespaces[i], namespace, "document %d", i)
	}

	// A Namespace was in the input
	require.Empty(t, errOut.String())
}

func TestUnknownResource(t *testing.T) {
	input := afero.NewMemMapFs()

	manifests := `
apiVersion: v1
kind: Secret
metadata:
  name: test
---
apiVersion: example.com/v1
kind: Widget
metadata:
  name: test
`
	err := afero.WriteFile(input, "input.yaml", []byte(manifests), 0644)
	require.Nil(t, err)

	var out, errOut bytes.Buffer
	o, _ := newTestOptions(&options{namespace: "test"})
	err = o.inject(input, testResourceInspector(), strings.NewReader(""), &out, &errOut)
	require.NotNil(t, err)

	var unknown *discovery.UnknownResourceError
	require.True(t, errors.As(err, &unknown))
	require.Empty(t, out.String())
	require.Empty(t, errOut.String())
}

func TestMalformedCRD(t *testing.T) {
	input := afero.NewMemMapFs()

	manifests := `
apiVersion: apiextensions.k8s.io/v1
kind: CustomResourceDefinition
metadata:
  name: widgets.example.com
spec:
  group: example.com
  names:
    kind: Widget
  versions:
  - name: v1
---
apiVersion: v1
kind: Secret
metadata:
  name: test
`
	err := afero.WriteFile(input, "input.yaml", []byte(manifests), 0644)
	require.Nil(t, err)

	var out, errOut bytes.Buffer
	o, _ := newTestOptions(&options{namespace: "test"})
	err = o.inject(input, testResourceInspector(), strings.NewReader(""), &out, &errOut)
	require.NotNil(t, err)

	var malformed *crd.MalformedCRDError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "spec.scope", malformed.Field)
	require.Empty(t, out.String())
}

func TestNamespaceConflict(t *testing.T) {
	manifests := `
apiVersion: v1
kind: Secret
metadata:
  name: first
  namespace: other
---
apiVersion: v1
kind: Secret
metadata:
  name: second
  namespace: other
`
	input := afero.NewMemMapFs()
	err := afero.WriteFile(input, "input.yaml", []byte(manifests), 0644)
	require.Nil(t, err)

	// Decline the first document and accept the second
	var out, errOut bytes.Buffer
	o, _ := newTestOptions(&options{namespace: "test", overwrite: true})
	err = o.inject(input, testResourceInspector(), strings.NewReader("n\ny\n"), &out, &errOut)
	require.Nil(t, err)
	require.Equal(t, 2, strings.Count(errOut.String(), "(Y/n)"))

	nodes, err := kio.FromBytes(out.Bytes())
	require.Nil(t, err)
	require.Len(t, nodes, 2)

	first, err := utils.GetNamespace(nodes[0])
	require.Nil(t, err)
	require.Equal(t, "other", first)
	second, err := utils.GetNamespace(nodes[1])
	require.Nil(t, err)
	require.Equal(t, "test", second)

	// --yes never asks
	out.Reset()
	errOut.Reset()
	o, _ = newTestOptions(&options{namespace: "test", overwrite: true, yes: true})
	err = o.inject(input, testResourceInspector(), strings.NewReader(""), &out, &errOut)
	require.Nil(t, err)
	require.NotContains(t, errOut.String(), "(Y/n)")
	require.Equal(t, 2, strings.Count(out.String(), "namespace: test"))
}

func TestGetResourceInspector(t *testing.T) {
	server := discoverytest.NewServer(discoverytest.DefaultResources()...)
	defer server.Close()
	server.Token = testToken

	o, _ := newTestOptions(&options{kubeconfig: writeKubeconfig(t, server, true)})
	resourceInspector, err := o.getResourceInspector()
	require.Nil(t, err)

	require.Equal(t, discovery.ScopeMap{
		"v1":                           {"ConfigMap": true, "Namespace": false, "Pod": true, "Secret": true},
		"apps/v1":                      {"Deployment": true},
		"rbac.authorization.k8s.io/v1": {"ClusterRole": false, "Role": true},
	}, resourceInspector)
}

func TestGetResourceInspectorInsecure(t *testing.T) {
	server := discoverytest.NewServer(discoverytest.DefaultResources()...)
	defer server.Close()
	server.Token = testToken

	// The server certificate is not trusted
	o, _ := newTestOptions(&options{kubeconfig: writeKubeconfig(t, server, false)})
	_, err := o.getResourceInspector()
	require.NotNil(t, err)
	var discoveryErr *discovery.DiscoveryError
	require.True(t, errors.As(err, &discoveryErr))

	// Skipping verification is logged, also when a CA is configured
	for _, trust := range []bool{false, true} {
		o, hook := newTestOptions(&options{kubeconfig: writeKubeconfig(t, server, trust), insecure: true})
		resourceInspector, err := o.getResourceInspector()
		require.Nil(t, err)

		namespaced, err := resourceInspector.IsNamespaced(schema.FromAPIVersionAndKind("apps/v1", "Deployment"))
		require.Nil(t, err)
		require.True(t, namespaced)

		require.NotEmpty(t, hook.Entries)
		require.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
	}
}

func TestGetResourceInspectorDiscoveryError(t *testing.T) {
	server := discoverytest.NewServer(discoverytest.DefaultResources()...)
	defer server.Close()
	server.Token = testToken
	server.Failing["rbac.authorization.k8s.io/v1"] = true

	o, _ := newTestOptions(&options{kubeconfig: writeKubeconfig(t, server, true)})
	_, err := o.getResourceInspector()
	require.NotNil(t, err)

	var discoveryErr *discovery.DiscoveryError
	require.True(t, errors.As(err, &discoveryErr))
	require.Equal(t, "rbac.authorization.k8s.io/v1", discoveryErr.GroupVersion)
}

func TestGetResourceInspectorUnauthorized(t *testing.T) {
	server := discoverytest.NewServer(discoverytest.DefaultResources()...)
	defer server.Close()
	server.Token = "another-token"

	o, _ := newTestOptions(&options{kubeconfig: writeKubeconfig(t, server, true)})
	_, err := o.getResourceInspector()
	require.NotNil(t, err)
}
