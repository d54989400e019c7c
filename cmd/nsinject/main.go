package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	"k8s.io/client-go/util/homedir"
)

// Set to `git describe --tags`
var version = "v0.0.0"

const (
	kubeconfigEnvVar = "KUBECONFIG"
)

func main() {
	o := &options{}

	cmd := &cobra.Command{
		Use:   "nsinject",
		Short: "nsinject sets metadata.namespace on namespaced resources in Kubernetes manifests.",
		Run: func(cmd *cobra.Command, args []string) {
			o.log = newLogger(o.verbose)
			err := o.run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "nsinject: %s\n", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolP("help", "h", false, "Print help text")
	cmd.Flags().BoolVarP(&o.version, "version", "v", false, "Print version")
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "File containing manifests separated by ---")
	cmd.Flags().StringVarP(&o.namespace, "namespace", "n", "", "Namespace to set on namespaced resources")
	cmd.Flags().BoolVar(&o.overwrite, "overwrite", false, "Overwrite metadata.namespace field of resources already in another namespace")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification when querying the API Server")
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "Continue with resources already in another namespace without asking")
	cmd.Flags().StringArrayVarP(&o.gvkScopes, "gvk-scope", "g", []string{}, "Add GVK scope mapping Kind.group/version:Cluster or Kind.group/version:Namespaced to discovery")
	cmd.Flags().StringVar(&o.context, "context", "", "Kubeconfig context used for discovery")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Print debug logs")
	// https://github.com/kubernetes/client-go/blob/b72204b2445de5ac815ae2bb993f6182d271fdb4/examples/out-of-cluster-client-configuration/main.go#L45-L49
	if kubeconfigEnvVarValue := os.Getenv(kubeconfigEnvVar); kubeconfigEnvVarValue != "" {
		cmd.Flags().StringVarP(&o.kubeconfig, "kubeconfig", "k", kubeconfigEnvVarValue, "Path to the kubeconfig file used for discovery")
	} else if home := homedir.HomeDir(); home != "" {
		cmd.Flags().StringVarP(&o.kubeconfig, "kubeconfig", "k", filepath.Join(home, ".kube", "config"), "Path to the kubeconfig file used for discovery")
	} else {
		cmd.Flags().StringVarP(&o.kubeconfig, "kubeconfig", "k", "", "Path to the kubeconfig file used for discovery")
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func newLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}
