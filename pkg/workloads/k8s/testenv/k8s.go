package testenv

import (
	"os"
	"testing"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	ENV_ROLLOUT_TEST_KUBECONFIG = "ROLLOUT_TEST_KUBECONFIG"
	ENV_ROLLOUT_TEST_KUBECTX    = "ROLLOUT_TEST_KUBECTX"
	ENV_ROLLOUT_TEST_NAMESPACE  = "ROLLOUT_TEST_NAMESPACE"
)

func Namespace() string {
	return os.Getenv(ENV_ROLLOUT_TEST_NAMESPACE)
}

func getConfig() (*rest.Config, error) {
	kubeconfig := os.Getenv(ENV_ROLLOUT_TEST_KUBECONFIG)
	context := os.Getenv(ENV_ROLLOUT_TEST_KUBECTX)

	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
		&clientcmd.ConfigOverrides{CurrentContext: context},
	).ClientConfig()
}

// NewClient connects to the cluster for testing.
//
// This function requires environment variables below:
//
// - ROLLOUT_TEST_KUBECONFIG : filepath to kubeconfig file knows test environment
//
// - ROLLOUT_TEST_NAMESPACE : k8s namespace for testing
//
// and optionally,
//
// - ROLLOUT_TEST_KUBECTX : k8s context for testing. (should be found in ROLLOUT_TEST_KUBECONFIG file)
//
// When ROLLOUT_TEST_NAMESPACE is not set, the test is skipped.
func NewClient(t *testing.T) *kubernetes.Clientset {
	t.Helper()

	if Namespace() == "" {
		t.Skipf("%s is not set. skipped.", ENV_ROLLOUT_TEST_NAMESPACE)
	}

	config, err := getConfig()
	if err != nil {
		t.Fatal(err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		t.Fatal(err)
	}

	return clientset
}
