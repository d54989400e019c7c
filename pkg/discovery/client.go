package discovery

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	kdiscov "k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
)

const (
	coreAPIPath  = "/api"
	groupAPIPath = "/apis"
)

// Resource is a single kind served by the cluster together with its scope.
type Resource struct {
	GroupVersion string
	Kind         string
	Namespaced   bool
}

// Client lists the kinds served by a Kubernetes API server using the
// discovery endpoints. It never writes to the cluster.
type Client struct {
	disco kdiscov.DiscoveryInterface
	host  string
	log   logrus.FieldLogger
}

// NewClientForConfig builds a Client for the API server described by cfg.
func NewClientForConfig(cfg *rest.Config, log logrus.FieldLogger) (*Client, error) {
	cl, err := kdiscov.NewDiscoveryClientForConfig(cfg)
	if err != nil {
		return nil, err
	}

	return NewClient(cl, cfg.Host, log), nil
}

// NewClient wraps an existing discovery client. host is only used to build
// error messages.
func NewClient(disco kdiscov.DiscoveryInterface, host string, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		disco: disco,
		host:  strings.TrimSuffix(host, "/"),
		log:   log,
	}
}

// ListCoreResources lists the resources of every version of the core API
// group (historically only v1).
func (c *Client) ListCoreResources(ctx context.Context) ([]Resource, error) {
	versions := &metav1.APIVersions{}
	if err := c.get(ctx, "", coreAPIPath, versions); err != nil {
		return nil, err
	}

	c.log.WithField("path", coreAPIPath).Debugf("Found %d API versions", len(versions.Versions))

	return c.listResources(ctx, versions.Versions)
}

// ListGroupResources lists the resources of every version of every named API
// group.
func (c *Client) ListGroupResources(ctx context.Context) ([]Resource, error) {
	groupList := &metav1.APIGroupList{}
	if err := c.get(ctx, "", groupAPIPath, groupList); err != nil {
		return nil, err
	}

	var groupVersions []string
	for _, group := range groupList.Groups {
		for _, version := range group.Versions {
			groupVersions = append(groupVersions, version.GroupVersion)
		}
	}

	c.log.WithField("path", groupAPIPath).Debugf("Found %d API group versions", len(groupVersions))

	return c.listResources(ctx, groupVersions)
}

// Resources returns core resources followed by named group resources.
func (c *Client) Resources(ctx context.Context) ([]Resource, error) {
	core, err := c.ListCoreResources(ctx)
	if err != nil {
		return nil, err
	}

	grouped, err := c.ListGroupResources(ctx)
	if err != nil {
		return nil, err
	}

	return append(core, grouped...), nil
}

func (c *Client) listResources(ctx context.Context, groupVersions []string) ([]Resource, error) {
	var resources []Resource
	for _, groupVersion := range groupVersions {
		resourceList := &metav1.APIResourceList{}
		if err := c.get(ctx, groupVersion, resourcePath(groupVersion), resourceList); err != nil {
			return nil, err
		}
		if resourceList.GroupVersion == "" {
			resourceList.GroupVersion = groupVersion
		}

		resources = append(resources, apiResources(resourceList)...)

		c.log.WithField("groupVersion", groupVersion).Debugf("Discovered %d resources", len(resourceList.APIResources))
	}
	return resources, nil
}

// get decodes the discovery document at path into obj. Unlike the helpers of
// the client-go discovery client, every non-success status is an error.
func (c *Client) get(ctx context.Context, groupVersion, path string, obj runtime.Object) error {
	restClient := c.disco.RESTClient()
	if restClient == nil {
		return &DiscoveryError{GroupVersion: groupVersion, URL: c.host + path, Err: errors.New("discovery client has no REST client")}
	}

	err := restClient.Get().AbsPath(path).Do(ctx).Into(obj)
	if err != nil {
		return &DiscoveryError{GroupVersion: groupVersion, URL: c.host + path, Err: err}
	}
	return nil
}

func resourcePath(groupVersion string) string {
	if strings.Contains(groupVersion, "/") {
		return groupAPIPath + "/" + groupVersion
	}
	return coreAPIPath + "/" + groupVersion
}

func apiResources(resourceList *metav1.APIResourceList) []Resource {
	if resourceList == nil {
		return nil
	}

	var resources []Resource
	for _, apiResource := range resourceList.APIResources {
		// Subresources such as pods/status repeat the kind of their parent
		if strings.Contains(apiResource.Name, "/") {
			continue
		}
		resources = append(resources, Resource{
			GroupVersion: resourceList.GroupVersion,
			Kind:         apiResource.Kind,
			Namespaced:   apiResource.Namespaced,
		})
	}
	return resources
}
