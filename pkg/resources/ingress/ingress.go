// Package ingress implements the L2 Ingress Manager: idempotent
// nginx-class ingress creation fanning out one path per backing service
// port, address readiness polling, and the save-all-associated-services
// cascade.
package ingress

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	networkingv1 "k8s.io/api/networking/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/resources/service"
)

// View is the uniform projection of a Kubernetes Ingress.
type View struct {
	ID                 string
	Name               string
	Namespace          string
	Address            string
	AssociatedServices []service.View
}

// Port mirrors the two fixed listener ports every ingress exposes.
type Port struct {
	Name string
	Port int32
}

// FixedPorts is the two-entry port list every ingress carries, per spec
// §3: 80/http and 443/https.
var FixedPorts = []Port{
	{Name: "http", Port: 80},
	{Name: "https", Port: 443},
}

// CreateSpec describes the ingress the orchestrator wants created.
// ServicePorts drives one path per port, per spec §4.5.
type CreateSpec struct {
	Namespace    string
	Name         string
	ServiceName  string
	Host         string
	ServicePorts []int32
}

// ServiceLister is the narrow capability this manager needs from the
// Service Manager to compute associated_services and to fan out saves.
type ServiceLister interface {
	List(ctx context.Context, namespace string) ([]service.View, error)
	SaveServicePods(ctx context.Context, namespace, name string) ([]string, error)
}

// Manager is the L2 Ingress Manager.
type Manager struct {
	client   kubernetes.Interface
	services ServiceLister
	log      *logrus.Entry
}

// New builds an ingress Manager.
func New(client kubernetes.Interface, services ServiceLister) *Manager {
	return &Manager{
		client:   client,
		services: services,
		log:      logrus.WithField("component", "ingress-manager"),
	}
}

func (m *Manager) checkClient() error {
	if m == nil || m.client == nil {
		return apierrors.NewRuntimeEnvironmentError("ingress manager: kubernetes client is not configured")
	}
	return nil
}

// List returns every ingress in the namespace, joined with its
// associated services (the unique service names referenced by its rule
// paths).
func (m *Manager) List(ctx context.Context, namespace string) ([]View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	list, err := m.client.NetworkingV1().Ingresses(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to list ingresses in %q", namespace), err)
	}
	out := make([]View, 0, len(list.Items))
	for i := range list.Items {
		v, err := m.project(ctx, &list.Items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Get returns the named ingress, or (nil, nil) if it does not exist.
func (m *Manager) Get(ctx context.Context, namespace, name string) (*View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	ing, err := m.client.NetworkingV1().Ingresses(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to get ingress %q", name), err)
	}
	v, err := m.project(ctx, ing)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create is idempotent by (namespace, name). Builds an nginx-class
// ingress with one path per service port, each routing
// /<prefix>/port-<i> to the backing service, where prefix is the first
// hyphen-separated token of the ingress name. Polls the ingress address
// until populated or timeout.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	if existing, err := m.Get(ctx, spec.Namespace, spec.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	prefix := strings.SplitN(spec.Name, "-", 2)[0]
	pathType := networkingv1.PathTypePrefix

	var paths []networkingv1.HTTPIngressPath
	for i, port := range spec.ServicePorts {
		paths = append(paths, networkingv1.HTTPIngressPath{
			Path:     fmt.Sprintf("/%s/port-%d", prefix, i),
			PathType: &pathType,
			Backend: networkingv1.IngressBackend{
				Service: &networkingv1.IngressServiceBackend{
					Name: spec.ServiceName,
					Port: networkingv1.ServiceBackendPort{Number: port},
				},
			},
		})
	}

	className := "nginx"
	manifest := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name: spec.Name,
			Annotations: map[string]string{
				"nginx.ingress.kubernetes.io/rewrite-target":       "/",
				"nginx.ingress.kubernetes.io/proxy-read-timeout":   "3600",
				"nginx.ingress.kubernetes.io/proxy-send-timeout":   "3600",
				"nginx.ingress.kubernetes.io/proxy-connect-timeout": "3600",
				"nginx.ingress.kubernetes.io/websocket-services":   spec.ServiceName,
			},
		},
		Spec: networkingv1.IngressSpec{
			IngressClassName: &className,
			Rules: []networkingv1.IngressRule{
				{
					Host: spec.Host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{Paths: paths},
					},
				},
			},
		},
	}

	created, err := m.client.NetworkingV1().Ingresses(spec.Namespace).Create(ctx, manifest, metav1.CreateOptions{})
	if err != nil {
		if apierrs.IsAlreadyExists(err) {
			return m.Get(ctx, spec.Namespace, spec.Name)
		}
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to create ingress %q", spec.Name), err)
	}

	if err := m.pollAddress(ctx, spec.Namespace, spec.Name); err != nil {
		return nil, err
	}

	final, err := m.client.NetworkingV1().Ingresses(spec.Namespace).Get(ctx, created.Name, metav1.GetOptions{})
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to re-read ingress %q after create", spec.Name), err)
	}
	v, err := m.project(ctx, final)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *Manager) pollAddress(ctx context.Context, namespace, name string) error {
	err := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.IngressAddressTimeout, true,
		func(ctx context.Context) (bool, error) {
			ing, err := m.client.NetworkingV1().Ingresses(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return false, err
			}
			return addressOf(ing) != "", nil
		})
	if err != nil {
		return apierrors.NewTimeoutError("ingress %q address not assigned within %s", name, config.IngressAddressTimeout)
	}
	return nil
}

// SaveIngressServices walks associated_services and calls
// Service.SaveServicePods on each, flattening the results.
func (m *Manager) SaveIngressServices(ctx context.Context, namespace, name string) ([]string, error) {
	ing, err := m.Get(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if ing == nil {
		return nil, apierrors.NewValidationError("ingress %q not found", name)
	}

	var images []string
	for _, svc := range ing.AssociatedServices {
		saved, err := m.services.SaveServicePods(ctx, namespace, svc.Name)
		if err != nil {
			return nil, err
		}
		images = append(images, saved...)
	}
	return images, nil
}

// Delete invokes the API delete then polls Get until empty.
func (m *Manager) Delete(ctx context.Context, namespace, name string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	err := m.client.NetworkingV1().Ingresses(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrs.IsNotFound(err) {
		return apierrors.NewAPIError(fmt.Sprintf("failed to delete ingress %q", name), err)
	}

	pollErr := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.IngressTerminationTimeout, true,
		func(ctx context.Context) (bool, error) {
			existing, err := m.Get(ctx, namespace, name)
			if err != nil {
				return false, err
			}
			return existing == nil, nil
		})
	if pollErr != nil {
		return apierrors.NewTimeoutError("ingress %q did not terminate within %s", name, config.IngressTerminationTimeout)
	}
	return nil
}

func (m *Manager) project(ctx context.Context, ing *networkingv1.Ingress) (View, error) {
	serviceNames := map[string]bool{}
	for _, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}
		for _, path := range rule.HTTP.Paths {
			if path.Backend.Service != nil {
				serviceNames[path.Backend.Service.Name] = true
			}
		}
	}

	var associated []service.View
	if m.services != nil {
		all, err := m.services.List(ctx, ing.Namespace)
		if err != nil {
			return View{}, err
		}
		for _, svc := range all {
			if serviceNames[svc.Name] {
				associated = append(associated, svc)
			}
		}
	}

	return View{
		ID:                 string(ing.UID),
		Name:               ing.Name,
		Namespace:          ing.Namespace,
		Address:            addressOf(ing),
		AssociatedServices: associated,
	}, nil
}

func addressOf(ing *networkingv1.Ingress) string {
	if len(ing.Status.LoadBalancer.Ingress) == 0 {
		return ""
	}
	entry := ing.Status.LoadBalancer.Ingress[0]
	if entry.IP != "" {
		return entry.IP
	}
	return entry.Hostname
}
