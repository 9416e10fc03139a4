// Package namespace implements the L2 Namespace Manager: idempotent
// create, list, get and delete of Kubernetes namespaces, plus the
// default-deny network policy that accompanies every namespace this
// service creates.
package namespace

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/config"
)

// Namespace is the projection of a Kubernetes Namespace used throughout
// this service.
type Namespace struct {
	ID   string
	Name string
}

// Manager is the L2 Namespace Manager.
type Manager struct {
	client kubernetes.Interface
	log    *logrus.Entry
}

// New builds a namespace Manager bound to the given clientset.
func New(client kubernetes.Interface) *Manager {
	return &Manager{
		client: client,
		log:    logrus.WithField("component", "namespace-manager"),
	}
}

func (m *Manager) checkClient() error {
	if m == nil || m.client == nil {
		return apierrors.NewRuntimeEnvironmentError("namespace manager: kubernetes client is not configured")
	}
	return nil
}

// List returns every namespace visible to the client.
func (m *Manager) List(ctx context.Context) ([]Namespace, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	list, err := m.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apierrors.NewAPIError("failed to list namespaces", err)
	}
	out := make([]Namespace, 0, len(list.Items))
	for _, ns := range list.Items {
		out = append(out, project(&ns))
	}
	return out, nil
}

// Get returns the namespace by name, or (nil, nil) if it does not exist
// (404 folded into empty-result per spec §7).
func (m *Manager) Get(ctx context.Context, name string) (*Namespace, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	ns, err := m.client.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if apierrs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to get namespace %q", name), err)
	}
	out := project(ns)
	return &out, nil
}

// Create is a read-before-write idempotent operation: if the namespace
// already exists it is returned unchanged; otherwise it is created along
// with a default-deny ingress NetworkPolicy scoped to it.
func (m *Manager) Create(ctx context.Context, name string) (*Namespace, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	if existing, err := m.Get(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		m.log.WithField("namespace", name).Debug("namespace already exists, returning existing")
		return existing, nil
	}

	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: name},
	}
	created, err := m.client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil {
		if apierrs.IsAlreadyExists(err) {
			return m.Get(ctx, name)
		}
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to create namespace %q", name), err)
	}

	if err := m.createDefaultDenyPolicy(ctx, name); err != nil {
		return nil, err
	}

	out := project(created)
	return &out, nil
}

// createDefaultDenyPolicy installs a NetworkPolicy with an empty pod
// selector (matches every pod in the namespace) and no ingress rules,
// denying all inbound traffic by default.
func (m *Manager) createDefaultDenyPolicy(ctx context.Context, namespace string) error {
	policy := &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "default-deny-ingress",
			Namespace: namespace,
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeIngress},
		},
	}
	_, err := m.client.NetworkingV1().NetworkPolicies(namespace).Create(ctx, policy, metav1.CreateOptions{})
	if err != nil && !apierrs.IsAlreadyExists(err) {
		return apierrors.NewAPIError(fmt.Sprintf("failed to create default-deny network policy in %q", namespace), err)
	}
	return nil
}

// Delete invokes the API delete then polls Get until it returns empty,
// bounded by NamespaceTerminationTimeout (the source polls unbounded;
// spec §9 directs implementers to bound it).
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	err := m.client.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrs.IsNotFound(err) {
		return apierrors.NewAPIError(fmt.Sprintf("failed to delete namespace %q", name), err)
	}

	pollErr := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.NamespaceTerminationTimeout, true,
		func(ctx context.Context) (bool, error) {
			existing, err := m.Get(ctx, name)
			if err != nil {
				return false, err
			}
			return existing == nil, nil
		})
	if pollErr != nil {
		return apierrors.NewTimeoutError("namespace %q did not terminate within %s", name, config.NamespaceTerminationTimeout)
	}
	return nil
}

func project(ns *corev1.Namespace) Namespace {
	return Namespace{
		ID:   string(ns.UID),
		Name: ns.Name,
	}
}
