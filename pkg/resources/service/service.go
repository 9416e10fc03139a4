// Package service implements the L2 Service Manager: idempotent
// ClusterIP/LoadBalancer service creation with cluster-IP readiness
// polling, the pod-selector join (associated_pods), and the
// save-all-associated-pods fan-out.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/resources/pod"
)

// Type mirrors the Kubernetes Service type this manager can build.
type Type string

const (
	ClusterIP    Type = "ClusterIP"
	NodePort     Type = "NodePort"
	LoadBalancer Type = "LoadBalancer"
)

// Port mirrors a published service port.
type Port struct {
	Name       string
	Port       int32
	TargetPort int32
	Protocol   string
	NodePort   int32
}

// View is the uniform projection of a Kubernetes Service.
type View struct {
	ID             string
	Name           string
	Namespace      string
	ClusterIP      string
	Ports          []Port
	ServiceType    Type
	AssociatedPods []pod.View
}

// CreateSpec describes the service the orchestrator wants created.
type CreateSpec struct {
	Namespace string
	Name      string
	PodName   string
	Ports     []Port
	Type      Type
}

// PodLister is the narrow capability this manager needs from the Pod
// Manager to compute associated_pods and to fan out saves.
type PodLister interface {
	List(ctx context.Context, namespace string) ([]pod.View, error)
	Save(ctx context.Context, namespace, name string) (string, error)
}

// Manager is the L2 Service Manager.
type Manager struct {
	client kubernetes.Interface
	pods   PodLister
	log    *logrus.Entry
}

// New builds a service Manager.
func New(client kubernetes.Interface, pods PodLister) *Manager {
	return &Manager{
		client: client,
		pods:   pods,
		log:    logrus.WithField("component", "service-manager"),
	}
}

func (m *Manager) checkClient() error {
	if m == nil || m.client == nil {
		return apierrors.NewRuntimeEnvironmentError("service manager: kubernetes client is not configured")
	}
	return nil
}

// List returns every service in the namespace, each joined with its
// associated pods.
func (m *Manager) List(ctx context.Context, namespace string) ([]View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	list, err := m.client.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to list services in %q", namespace), err)
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

// Get returns the named service, or (nil, nil) if it does not exist.
func (m *Manager) Get(ctx context.Context, namespace, name string) (*View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	svc, err := m.client.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to get service %q", name), err)
	}
	v, err := m.project(ctx, svc)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create is idempotent by (namespace, name). Ports are built from the
// request and re-verified for publish/target port uniqueness as a local
// defense-in-depth check (the orchestrator validates this upstream).
// After submit, Create polls the cluster IP until populated or timeout.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	if existing, err := m.Get(ctx, spec.Namespace, spec.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if err := validateUniquePorts(spec.Ports); err != nil {
		return nil, err
	}

	var svcPorts []corev1.ServicePort
	for _, p := range spec.Ports {
		sp := corev1.ServicePort{
			Name:       p.Name,
			Port:       p.Port,
			TargetPort: intstr.FromInt32(p.TargetPort),
			Protocol:   protocolOf(p.Protocol),
		}
		if spec.Type == NodePort && p.NodePort != 0 {
			sp.NodePort = p.NodePort
		}
		svcPorts = append(svcPorts, sp)
	}

	manifest := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: spec.Name},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": spec.PodName},
			Ports:    svcPorts,
			Type:     corev1.ServiceType(spec.Type),
		},
	}

	created, err := m.client.CoreV1().Services(spec.Namespace).Create(ctx, manifest, metav1.CreateOptions{})
	if err != nil {
		if apierrs.IsAlreadyExists(err) {
			return m.Get(ctx, spec.Namespace, spec.Name)
		}
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to create service %q", spec.Name), err)
	}

	if err := m.pollClusterIP(ctx, spec.Namespace, spec.Name); err != nil {
		return nil, err
	}

	final, err := m.client.CoreV1().Services(spec.Namespace).Get(ctx, created.Name, metav1.GetOptions{})
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to re-read service %q after create", spec.Name), err)
	}
	v, err := m.project(ctx, final)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (m *Manager) pollClusterIP(ctx context.Context, namespace, name string) error {
	err := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.ServiceClusterIPTimeout, true,
		func(ctx context.Context) (bool, error) {
			svc, err := m.client.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return false, err
			}
			return svc.Spec.ClusterIP != "" && svc.Spec.ClusterIP != corev1.ClusterIPNone, nil
		})
	if err != nil {
		return apierrors.NewTimeoutError("service %q cluster IP not assigned within %s", name, config.ServiceClusterIPTimeout)
	}
	return nil
}

// SaveServicePods enumerates associated pods and saves each, in parallel,
// bounded by ServicePodsWorkerPoolSize. Per-pod failures are logged and
// excluded from the result rather than failing the whole call.
func (m *Manager) SaveServicePods(ctx context.Context, namespace, name string) ([]string, error) {
	svc, err := m.Get(ctx, namespace, name)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, apierrors.NewValidationError("service %q not found", name)
	}

	type result struct {
		image string
		err   error
	}

	sem := make(chan struct{}, config.ServicePodsWorkerPoolSize)
	results := make([]result, len(svc.AssociatedPods))
	var wg sync.WaitGroup

	for i, p := range svc.AssociatedPods {
		wg.Add(1)
		go func(i int, podName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			image, err := m.pods.Save(ctx, namespace, podName)
			results[i] = result{image: image, err: err}
		}(i, p.Name)
	}
	wg.Wait()

	var images []string
	for i, r := range results {
		if r.err != nil {
			m.log.WithError(r.err).WithField("pod", svc.AssociatedPods[i].Name).Warn("failed to save pod")
			continue
		}
		images = append(images, r.image)
	}
	return images, nil
}

// Delete invokes the API delete then polls Get until empty.
func (m *Manager) Delete(ctx context.Context, namespace, name string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	err := m.client.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrs.IsNotFound(err) {
		return apierrors.NewAPIError(fmt.Sprintf("failed to delete service %q", name), err)
	}

	pollErr := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.ServiceTerminationTimeout, true,
		func(ctx context.Context) (bool, error) {
			existing, err := m.Get(ctx, namespace, name)
			if err != nil {
				return false, err
			}
			return existing == nil, nil
		})
	if pollErr != nil {
		return apierrors.NewTimeoutError("service %q did not terminate within %s", name, config.ServiceTerminationTimeout)
	}
	return nil
}

// project derives the uniform View, joining associated_pods by listing
// every pod in the namespace and retaining those whose labels are a
// superset of the service's selector.
func (m *Manager) project(ctx context.Context, svc *corev1.Service) (View, error) {
	var ports []Port
	for _, p := range svc.Spec.Ports {
		ports = append(ports, Port{
			Name:       p.Name,
			Port:       p.Port,
			TargetPort: p.TargetPort.IntVal,
			Protocol:   string(p.Protocol),
			NodePort:   p.NodePort,
		})
	}

	var associated []pod.View
	if m.pods != nil {
		pods, err := m.pods.List(ctx, svc.Namespace)
		if err != nil {
			return View{}, err
		}
		for _, p := range pods {
			if labelsSuperset(p.Labels, svc.Spec.Selector) {
				associated = append(associated, p)
			}
		}
	}

	return View{
		ID:             string(svc.UID),
		Name:           svc.Name,
		Namespace:      svc.Namespace,
		ClusterIP:      svc.Spec.ClusterIP,
		Ports:          ports,
		ServiceType:    Type(svc.Spec.Type),
		AssociatedPods: associated,
	}, nil
}

func labelsSuperset(labels, selector map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func validateUniquePorts(ports []Port) error {
	seenPublish := map[int32]bool{}
	seenTarget := map[int32]bool{}
	for _, p := range ports {
		if seenPublish[p.Port] {
			return apierrors.NewValidationError("duplicate publish port: %d", p.Port)
		}
		seenPublish[p.Port] = true
		if seenTarget[p.TargetPort] {
			return apierrors.NewValidationError("duplicate target port: %d", p.TargetPort)
		}
		seenTarget[p.TargetPort] = true
	}
	return nil
}

func protocolOf(p string) corev1.Protocol {
	switch p {
	case "UDP":
		return corev1.ProtocolUDP
	default:
		return corev1.ProtocolTCP
	}
}
