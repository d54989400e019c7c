// Package inject sets metadata.namespace on namespace-scoped resources.
package inject

import (
	"fmt"

	"github.com/dippynark/nsinject/pkg/discovery"
	"github.com/dippynark/nsinject/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/kustomize/kyaml/yaml"
)

// Outcome describes what happened to a single document.
type Outcome int

const (
	// Unchanged documents are cluster-scoped, or already carry a namespace
	// that is kept.
	Unchanged Outcome = iota
	// Namespaced documents had metadata.namespace written.
	Namespaced
	// Skipped documents carried a different namespace and the operator
	// declined to continue with them.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Namespaced:
		return "namespaced"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// ConfirmFunc asks the operator a yes/no question. It blocks until answered.
type ConfirmFunc func(question string) (bool, error)

// MalformedDocumentError is returned for documents without an apiVersion or
// kind.
type MalformedDocumentError struct {
	Index int
	Err   error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document %d: %v", e.Index, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

// Options configures an Injector.
type Options struct {
	// Namespace to set
	Namespace string
	// Overwrite replaces namespaces that are already set once confirmed
	Overwrite bool
	Inspector discovery.ResourceInspector
	// Confirm is asked before touching a document that is already in
	// another namespace
	Confirm ConfirmFunc
	Log     logrus.FieldLogger
}

// Injector sets the namespace of namespace-scoped documents.
type Injector struct {
	opts Options
}

// New returns an Injector, logging to the standard logger if opts.Log is nil.
func New(opts Options) *Injector {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Injector{opts: opts}
}

// Inject processes nodes in order, modifying them in place. The first
// malformed or unknown document aborts processing.
func (i *Injector) Inject(nodes []*yaml.RNode) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(nodes))
	for index, node := range nodes {
		outcome, err := i.injectNode(index, node)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (i *Injector) injectNode(index int, node *yaml.RNode) (Outcome, error) {
	gvk, err := utils.GetGVK(node)
	if err != nil {
		return Unchanged, &MalformedDocumentError{Index: index, Err: err}
	}

	namespace, err := utils.GetNamespace(node)
	if err != nil {
		return Unchanged, errors.Wrapf(err, "failed to get namespace of document %d", index)
	}

	log := i.opts.Log.WithFields(logrus.Fields{
		"document": index,
		"kind":     gvk.Kind,
	})

	if namespace != "" && namespace != i.opts.Namespace {
		name, _ := utils.GetName(node)
		proceed, err := i.confirm(fmt.Sprintf("%s %q is already in namespace %q, continue", gvk.Kind, name, namespace))
		if err != nil {
			return Unchanged, errors.Wrapf(err, "failed to confirm namespace of document %d", index)
		}
		if !proceed {
			log.WithField("namespace", namespace).Info("Skipping document in another namespace")
			return Skipped, nil
		}
	}

	isNamespaced, err := i.opts.Inspector.IsNamespaced(gvk)
	if err != nil {
		return Unchanged, errors.Wrapf(err, "document %d", index)
	}

	if !isNamespaced || (namespace != "" && !i.opts.Overwrite) || namespace == i.opts.Namespace {
		return Unchanged, nil
	}

	if err := node.SetNamespace(i.opts.Namespace); err != nil {
		return Unchanged, errors.Wrapf(err, "failed to set namespace of document %d", index)
	}
	log.WithField("namespace", i.opts.Namespace).Debug("Set namespace")

	return Namespaced, nil
}

func (i *Injector) confirm(question string) (bool, error) {
	if i.opts.Confirm == nil {
		return true, nil
	}
	return i.opts.Confirm(question)
}
