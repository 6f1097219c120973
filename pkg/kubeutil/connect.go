package kubeutil

import (
	"os"
	"path/filepath"

	xe "github.com/opst/rollout/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// Kubeconfig finds the kubeconfig file to be used.
//
// It searches, in order of priority (most first),
//
// - explicit: if not empty
//
// - environmental variable `KUBECONFIG`
//
// - `~/.kube/config`
//
// When none of them is a file, it returns "". It means in-cluster config.
func Kubeconfig(explicit string) string {
	candidates := []string{explicit, os.Getenv("KUBECONFIG")}
	if home := homedir.HomeDir(); home != "" {
		candidates = append(candidates, filepath.Join(home, ".kube", "config"))
	}

	for _, c := range candidates {
		if c == "" {
			continue
		}
		if stat, err := os.Stat(c); err == nil && !stat.IsDir() {
			return c
		}
	}
	return ""
}

// Config loads *rest.Config from the kubeconfig found by Kubeconfig(explicit),
// or from in-cluster config.
//
// When explicit is not empty but not found, it is an error.
func Config(explicit string, context string) (*rest.Config, error) {
	path := Kubeconfig(explicit)
	if explicit != "" && path != explicit {
		return nil, xe.New("kubeconfig is not found: " + explicit)
	}

	if path == "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, xe.WrapWithNote("no kubeconfig found, and not in cluster", err)
		}
		return config, nil
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: path},
		&clientcmd.ConfigOverrides{CurrentContext: context},
	).ClientConfig()
	if err != nil {
		return nil, xe.WrapWithNote(path, err)
	}
	return config, nil
}

// ConnectToK8s creates *kubernetes.Clientset with Config(kubeconfig, context).
func ConnectToK8s(kubeconfig string, context string) (*kubernetes.Clientset, error) {
	config, err := Config(kubeconfig, context)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return clientset, nil
}
