// Package k8sclient builds the typed Kubernetes clientset shared by every
// resource manager in this service (the L1 Kubernetes Client Adapter).
package k8sclient

import (
	"fmt"
	"os"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Client wraps the typed clientset plus the rest.Config used to build it,
// since the snapshot engine's exec-stream needs the raw config to build a
// remotecommand executor.
type Client struct {
	Clientset kubernetes.Interface
	Config    *rest.Config
}

// New builds a Client. If kubeconfigPath is non-empty it is used directly;
// otherwise in-cluster config is attempted first, falling back to the
// default kubeconfig loading rules (KUBECONFIG env var, then ~/.kube/config).
func New(kubeconfigPath string) (*Client, error) {
	cfg, err := resolveConfig(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes clientset: %w", err)
	}

	return &Client{Clientset: clientset, Config: cfg}, nil
}

func resolveConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}

	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if envPath := os.Getenv("KUBECONFIG"); envPath != "" {
		loadingRules.ExplicitPath = envPath
	}
	overrides := &clientcmd.ConfigOverrides{}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
}

// Ready reports whether the client can reach the API server, used by the
// readiness probe.
func (c *Client) Ready() bool {
	if c == nil || c.Clientset == nil {
		return false
	}
	_, err := c.Clientset.Discovery().ServerVersion()
	return err == nil
}
