package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dippynark/nsinject/pkg/crd"
	"github.com/dippynark/nsinject/pkg/diagnostics"
	"github.com/dippynark/nsinject/pkg/discovery"
	"github.com/dippynark/nsinject/pkg/inject"
	"github.com/dippynark/nsinject/pkg/prompt"
	"github.com/dippynark/nsinject/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/kustomize/kyaml/kio"
	"sigs.k8s.io/kustomize/kyaml/yaml"
)

type options struct {
	file       string
	namespace  string
	gvkScopes  []string
	overwrite  bool
	insecure   bool
	yes        bool
	kubeconfig string
	context    string
	verbose    bool
	version    bool

	log logrus.FieldLogger
}

func (o *options) run() error {

	if o.version {
		fmt.Println(version)
		return nil
	}

	err := o.validate()
	if err != nil {
		return err
	}

	// Discovery is finished before any input is read so that a partial
	// scope map is never acted on
	resourceInspector, err := o.getResourceInspector()
	if err != nil {
		return err
	}

	// Abstract away from the filesystem: https://github.com/spf13/afero
	return o.inject(afero.NewOsFs(), resourceInspector, os.Stdin, os.Stdout, os.Stderr)
}

func (o *options) validate() error {
	if o.file == "" {
		return errors.Errorf("input file not specified")
	}
	if o.namespace == "" {
		return errors.Errorf("namespace not specified")
	}
	if errs := validation.IsDNS1123Label(o.namespace); len(errs) > 0 {
		return errors.Errorf("invalid namespace %q: %s", o.namespace, strings.Join(errs, ", "))
	}
	return nil
}

func (o *options) logger() logrus.FieldLogger {
	if o.log == nil {
		return logrus.StandardLogger()
	}
	return o.log
}

// inject reads the input file, sets namespaces and writes the result to out.
// Nothing is written to out unless every document was processed.
func (o *options) inject(inputFileSystem afero.Fs, resourceInspector discovery.ResourceInspector, in io.Reader, out, errOut io.Writer) error {
	nodes, err := o.readNodes(inputFileSystem)
	if err != nil {
		return err
	}

	// Documents inside a List are processed in place and written back in
	// their List
	documents, err := utils.ExpandLists(nodes)
	if err != nil {
		return errors.Wrapf(err, "failed to parse %s", o.file)
	}

	// Add local CRDs to discovery
	err = crd.Apply(documents, resourceInspector)
	if err != nil {
		return errors.Wrapf(err, "failed to find CRDs in %s", o.file)
	}

	// Add manually specified GVK scopes to discovery
	err = o.manualDiscovery(resourceInspector)
	if err != nil {
		return err
	}

	confirm := prompt.Console(in, errOut)
	if o.yes {
		confirm = prompt.AlwaysYes
	}

	injector := inject.New(inject.Options{
		Namespace: o.namespace,
		Overwrite: o.overwrite,
		Inspector: resourceInspector,
		Confirm:   confirm,
		Log:       o.logger(),
	})
	outcomes, err := injector.Inject(documents)
	if err != nil {
		return errors.Wrapf(err, "failed to process %s", o.file)
	}
	o.logOutcomes(outcomes)

	err = writeNodes(nodes, out)
	if err != nil {
		return err
	}

	_, err = diagnostics.AdviseMissingNamespace(errOut, documents, o.namespace)
	if err != nil {
		o.logger().WithError(err).Warn("Failed to write Namespace advice")
	}

	return nil
}

func (o *options) readNodes(inputFileSystem afero.Fs) ([]*yaml.RNode, error) {
	b, err := afero.ReadFile(inputFileSystem, o.file)
	if err != nil {
		return nil, err
	}
	// List documents are kept whole so that they are written back as Lists
	nodes, err := (&kio.ByteReader{
		Reader:                bytes.NewReader(b),
		DisableUnwrapping:     true,
		OmitReaderAnnotations: true,
	}).Read()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", o.file)
	}
	return nodes, nil
}

func writeNodes(nodes []*yaml.RNode, out io.Writer) error {
	var b bytes.Buffer
	w := kio.ByteWriter{Writer: &b}
	if err := w.Write(nodes); err != nil {
		return errors.Wrap(err, "failed to serialise manifests")
	}
	_, err := b.WriteTo(out)
	return err
}

func (o *options) logOutcomes(outcomes []inject.Outcome) {
	counts := map[inject.Outcome]int{}
	for _, outcome := range outcomes {
		counts[outcome]++
	}
	o.logger().WithFields(logrus.Fields{
		inject.Namespaced.String(): counts[inject.Namespaced],
		inject.Unchanged.String():  counts[inject.Unchanged],
		inject.Skipped.String():    counts[inject.Skipped],
	}).Debug("Processed manifests")
}

func (o *options) getResourceInspector() (discovery.ResourceInspector, error) {
	log := o.logger()

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if o.kubeconfig != "" {
		loadingRules.ExplicitPath = o.kubeconfig
	}
	configOverrides := &clientcmd.ConfigOverrides{CurrentContext: o.context}

	restcfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, configOverrides).ClientConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build kubernetes REST client config")
	}

	if o.insecure {
		log.WithField("host", restcfg.Host).Warn("TLS certificate verification is disabled for discovery")
		restcfg.Insecure = true
		restcfg.CAData = nil
		restcfg.CAFile = ""
	}

	client, err := discovery.NewClientForConfig(restcfg, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to construct discovery client")
	}

	ctx := context.Background()
	core, err := client.ListCoreResources(ctx)
	if err != nil {
		return nil, err
	}
	grouped, err := client.ListGroupResources(ctx)
	if err != nil {
		return nil, err
	}

	return discovery.NewScopeMap(core, grouped), nil
}

func (o *options) manualDiscovery(resourceInspector discovery.ResourceInspector) error {
	for _, gvkScope := range o.gvkScopes {
		gvk, namespaced, err := parseGVKScope(gvkScope)
		if err != nil {
			return err
		}
		resourceInspector.AddGVKToScope(gvk, namespaced)
	}

	return nil
}

// parseGVKScope parses Kind.group/version:Scope. The group is omitted for
// the core group, e.g. ConfigMap.v1:Namespaced.
func parseGVKScope(gvkScope string) (schema.GroupVersionKind, bool, error) {
	var gvk schema.GroupVersionKind

	i := strings.LastIndex(gvkScope, ":")
	if i == -1 {
		return gvk, false, fmt.Errorf("failed to parse GVK scope: %s", gvkScope)
	}

	gvkString := gvkScope[:i]
	scope := gvkScope[i+1:]

	var namespaced bool
	switch apiextensionsv1.ResourceScope(scope) {
	case apiextensionsv1.ClusterScoped:
		namespaced = false
	case apiextensionsv1.NamespaceScoped:
		namespaced = true
	default:
		return gvk, false, fmt.Errorf("unrecognised scope %s", scope)
	}

	i = strings.Index(gvkString, ".")
	if i == -1 {
		return gvk, false, fmt.Errorf("failed to parse GVK: %s", gvkString)
	}

	kind := gvkString[:i]
	gv, err := schema.ParseGroupVersion(gvkString[i+1:])
	if err != nil {
		return gvk, false, err
	}

	return gv.WithKind(kind), namespaced, nil
}
