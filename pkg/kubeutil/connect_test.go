package kubeutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/rollout/pkg/kubeutil"
)

const kubeconfig = `
apiVersion: v1
kind: Config
clusters:
  - name: local
    cluster:
      server: https://127.0.0.1:6443
  - name: other
    cluster:
      server: https://10.0.0.1:6443
users:
  - name: admin
    user:
      token: example
contexts:
  - name: local
    context: {cluster: local, user: admin}
  - name: other
    context: {cluster: other, user: admin}
current-context: local
`

func TestKubeconfig(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit")
	fromEnv := filepath.Join(dir, "env")
	for _, p := range []string{explicit, fromEnv} {
		if err := os.WriteFile(p, []byte(kubeconfig), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("HOME", filepath.Join(dir, "nohome"))

	t.Run("explicit path wins", func(t *testing.T) {
		t.Setenv("KUBECONFIG", fromEnv)
		if actual := kubeutil.Kubeconfig(explicit); actual != explicit {
			t.Errorf("actual: %s", actual)
		}
	})

	t.Run("KUBECONFIG is used without explicit path", func(t *testing.T) {
		t.Setenv("KUBECONFIG", fromEnv)
		if actual := kubeutil.Kubeconfig(""); actual != fromEnv {
			t.Errorf("actual: %s", actual)
		}
	})

	t.Run("directories are not kubeconfig", func(t *testing.T) {
		t.Setenv("KUBECONFIG", dir)
		if actual := kubeutil.Kubeconfig(""); actual != "" {
			t.Errorf("actual: %s", actual)
		}
	})
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	if err := os.WriteFile(path, []byte(kubeconfig), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("current context", func(t *testing.T) {
		config, err := kubeutil.Config(path, "")
		if err != nil {
			t.Fatal(err)
		}
		if config.Host != "https://127.0.0.1:6443" {
			t.Errorf("host: %s", config.Host)
		}
	})

	t.Run("context is selectable", func(t *testing.T) {
		config, err := kubeutil.Config(path, "other")
		if err != nil {
			t.Fatal(err)
		}
		if config.Host != "https://10.0.0.1:6443" {
			t.Errorf("host: %s", config.Host)
		}
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		if _, err := kubeutil.Config(filepath.Join(dir, "missing"), ""); err == nil {
			t.Error("no error")
		}
	})
}
