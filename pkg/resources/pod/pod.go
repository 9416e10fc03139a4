// Package pod implements the L2 Pod Manager: idempotent pod creation
// (always exactly three containers: main, snapshot sidecar, status
// sidecar sharing one EmptyDir volume), readiness/termination polling,
// and the save-image guard that delegates to the Snapshot Engine.
package pod

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	apierrs "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/snapshot"
)

// Snapshotter is the narrow capability the Pod Manager needs from the
// Snapshot Engine: run the save_image pipeline against an already
// verified-ready pod. Keeping this interface on the consumer side (here,
// rather than in the snapshot package) breaks the Pod <-> Snapshot
// cyclic dependency the original source worked around by splitting
// modules.
type Snapshotter interface {
	SaveImage(ctx context.Context, target snapshot.Target) (string, error)
}

// Manager is the L2 Pod Manager.
type Manager struct {
	client      kubernetes.Interface
	snapshotter Snapshotter
	log         *logrus.Entry
}

// New builds a pod Manager. snapshotter may be nil if Save will never be
// called (e.g. in tests exercising only CRUD).
func New(client kubernetes.Interface, snapshotter Snapshotter) *Manager {
	return &Manager{
		client:      client,
		snapshotter: snapshotter,
		log:         logrus.WithField("component", "pod-manager"),
	}
}

func (m *Manager) checkClient() error {
	if m == nil || m.client == nil {
		return apierrors.NewRuntimeEnvironmentError("pod manager: kubernetes client is not configured")
	}
	return nil
}

// List returns every pod in the given namespace, projected into View.
func (m *Manager) List(ctx context.Context, namespace string) ([]View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	list, err := m.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to list pods in %q", namespace), err)
	}
	out := make([]View, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, project(&list.Items[i]))
	}
	return out, nil
}

// Get returns the named pod, or (nil, nil) if it does not exist.
func (m *Manager) Get(ctx context.Context, namespace, name string) (*View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}
	p, err := m.client.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to get pod %q", name), err)
	}
	out := project(p)
	return &out, nil
}

// GetPodIP returns the pod's assigned IP, polling until it is populated
// or PodIPTimeout elapses.
func (m *Manager) GetPodIP(ctx context.Context, namespace, name string) (string, error) {
	var ip string
	err := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.PodIPTimeout, true,
		func(ctx context.Context) (bool, error) {
			p, err := m.Get(ctx, namespace, name)
			if err != nil {
				return false, err
			}
			if p == nil {
				return false, apierrors.NewAPIError(fmt.Sprintf("pod %q disappeared while waiting for IP", name), nil)
			}
			if p.IP != "" {
				ip = p.IP
				return true, nil
			}
			return false, nil
		})
	if err != nil {
		return "", apierrors.NewTimeoutError("pod %q IP not assigned within %s", name, config.PodIPTimeout)
	}
	return ip, nil
}

// Create is idempotent by (namespace, name): builds the main container
// from spec plus the fixed snapshot and status sidecars sharing one
// EmptyDir volume, submits the pod, and polls until it reaches Running.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*View, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	if existing, err := m.Get(ctx, spec.Namespace, spec.Name); err != nil {
		return nil, err
	} else if existing != nil {
		m.log.WithField("pod", spec.Name).Debug("pod already exists, returning existing")
		return existing, nil
	}

	manifest := buildManifest(spec)
	created, err := m.client.CoreV1().Pods(spec.Namespace).Create(ctx, manifest, metav1.CreateOptions{})
	if err != nil {
		if apierrs.IsAlreadyExists(err) {
			return m.Get(ctx, spec.Namespace, spec.Name)
		}
		return nil, apierrors.NewAPIError(fmt.Sprintf("failed to create pod %q", spec.Name), err)
	}

	if err := m.pollRunning(ctx, spec.Namespace, spec.Name); err != nil {
		return nil, err
	}

	final, err := m.Get(ctx, spec.Namespace, spec.Name)
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, apierrors.NewAPIError(fmt.Sprintf("pod %q disappeared immediately after creation", spec.Name), nil)
	}
	_ = created
	return final, nil
}

// pollRunning waits for the pod phase to become Running. Failed/Unknown
// phases abort immediately with a fatal error; the ambient timeout is
// PodRunningTimeout.
func (m *Manager) pollRunning(ctx context.Context, namespace, name string) error {
	err := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.PodRunningTimeout, true,
		func(ctx context.Context) (bool, error) {
			p, err := m.client.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return false, err
			}
			switch p.Status.Phase {
			case corev1.PodRunning:
				return true, nil
			case corev1.PodFailed, corev1.PodUnknown:
				return false, apierrors.NewAPIError(fmt.Sprintf("pod %q entered phase %s", name, p.Status.Phase), nil)
			default:
				return false, nil
			}
		})
	if err != nil {
		var phaseErr *apierrors.APIError
		if errors.As(err, &phaseErr) {
			return err
		}
		return apierrors.NewTimeoutError("pod %q did not reach Running within %s: %v", name, config.PodRunningTimeout, err)
	}
	return nil
}

// PollContainerReadiness waits until every named container reports
// Running, bounded by ContainerReadinessTimeout.
func (m *Manager) PollContainerReadiness(ctx context.Context, namespace, name string, containerNames []string) error {
	err := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.ContainerReadinessTimeout, true,
		func(ctx context.Context) (bool, error) {
			p, err := m.client.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				return false, err
			}
			statuses := map[string]corev1.ContainerStatus{}
			for _, cs := range p.Status.ContainerStatuses {
				statuses[cs.Name] = cs
			}
			for _, cn := range containerNames {
				cs, ok := statuses[cn]
				if !ok || cs.State.Running == nil {
					return false, nil
				}
			}
			return true, nil
		})
	if err != nil {
		return apierrors.NewTimeoutError("containers %v in pod %q not all running within %s", containerNames, name, config.ContainerReadinessTimeout)
	}
	return nil
}

// Save guards that the live pod has exactly the three fixed containers
// (main, snapshot sidecar, status sidecar), waits for them to be
// running, and delegates to the injected Snapshotter.
func (m *Manager) Save(ctx context.Context, namespace, name string) (string, error) {
	if err := m.checkClient(); err != nil {
		return "", err
	}
	if m.snapshotter == nil {
		return "", apierrors.NewConfigError("pod manager: no snapshotter configured")
	}

	p, err := m.Get(ctx, namespace, name)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", apierrors.NewValidationError("pod %q not found", name)
	}
	if len(p.AssociatedContainers) != 3 {
		return "", apierrors.NewValidationError("pod %q needs exactly a main container, snapshot sidecar, and status sidecar", name)
	}

	names := map[string]bool{}
	for _, c := range p.AssociatedContainers {
		names[c.Name] = true
	}
	if !names[config.SnapshotSidecarName] {
		return "", apierrors.NewValidationError("pod %q needs a snapshot sidecar container", name)
	}
	if !names[config.StatusSidecarName] {
		return "", apierrors.NewValidationError("pod %q needs a status sidecar container", name)
	}
	if !names[name] {
		return "", apierrors.NewValidationError("pod %q needs a main container named %q", name, name)
	}

	required := []string{name, config.SnapshotSidecarName, config.StatusSidecarName}
	if err := m.PollContainerReadiness(ctx, namespace, name, required); err != nil {
		return "", err
	}

	return m.snapshotter.SaveImage(ctx, snapshot.Target{
		Namespace:   namespace,
		PodName:     name,
		SidecarName: config.SnapshotSidecarName,
	})
}

// Delete invokes the API delete then polls Get until it returns empty,
// bounded by PodTerminationTimeout.
func (m *Manager) Delete(ctx context.Context, namespace, name string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	err := m.client.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil && !apierrs.IsNotFound(err) {
		return apierrors.NewAPIError(fmt.Sprintf("failed to delete pod %q", name), err)
	}

	pollErr := wait.PollUntilContextTimeout(ctx, config.PollInterval, config.PodTerminationTimeout, true,
		func(ctx context.Context) (bool, error) {
			existing, err := m.Get(ctx, namespace, name)
			if err != nil {
				return false, err
			}
			return existing == nil, nil
		})
	if pollErr != nil {
		return apierrors.NewTimeoutError("pod %q did not terminate within %s", name, config.PodTerminationTimeout)
	}
	return nil
}

func buildManifest(spec CreateSpec) *corev1.Pod {
	var envVars []corev1.EnvVar
	for k, v := range spec.Env {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: v})
	}

	var targetPorts []corev1.ContainerPort
	for _, p := range spec.Ports {
		targetPorts = append(targetPorts, corev1.ContainerPort{
			Name:          p.Name,
			ContainerPort: p.ContainerPort,
			Protocol:      protocolOf(p.Protocol),
		})
	}

	resources := buildResourceRequirements(spec.Resources)
	privileged := true

	mainContainer := corev1.Container{
		Name:  spec.Name,
		Image: spec.Image,
		Ports: targetPorts,
		Env:   envVars,
		SecurityContext: &corev1.SecurityContext{
			Privileged: &privileged,
		},
		VolumeMounts: []corev1.VolumeMount{snapshotVolumeMount()},
		Resources:    resources,
	}

	snapshotSidecar := corev1.Container{
		Name:  config.SnapshotSidecarName,
		Image: config.SnapshotSidecarImage,
		SecurityContext: &corev1.SecurityContext{
			Privileged: &privileged,
		},
		VolumeMounts: []corev1.VolumeMount{snapshotVolumeMount()},
		Resources:    resources,
	}

	statusSidecar := corev1.Container{
		Name:  config.StatusSidecarName,
		Image: config.StatusSidecarImage,
		SecurityContext: &corev1.SecurityContext{
			Privileged: &privileged,
		},
		Env:       envVars,
		Resources: resources,
	}

	emptyDir := &corev1.EmptyDirVolumeSource{}
	if spec.Resources.SnapshotSizeLimit != "" {
		if q, err := resource.ParseQuantity(spec.Resources.SnapshotSizeLimit); err == nil {
			emptyDir.SizeLimit = &q
		}
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:   spec.Name,
			Labels: map[string]string{"app": spec.Name},
			Annotations: map[string]string{
				"nginx.org/websocket-services":                   spec.Name,
				"nginx.ingress.kubernetes.io/proxy-read-timeout": "3600",
				"nginx.ingress.kubernetes.io/proxy-send-timeout": "3600",
			},
		},
		Spec: corev1.PodSpec{
			Volumes: []corev1.Volume{
				{
					Name:         "snapshot-volume",
					VolumeSource: corev1.VolumeSource{EmptyDir: emptyDir},
				},
			},
			Containers: []corev1.Container{mainContainer, snapshotSidecar, statusSidecar},
		},
	}
}

func snapshotVolumeMount() corev1.VolumeMount {
	return corev1.VolumeMount{Name: "snapshot-volume", MountPath: config.SnapshotMountPath}
}

func protocolOf(p string) corev1.Protocol {
	switch p {
	case "UDP":
		return corev1.ProtocolUDP
	default:
		return corev1.ProtocolTCP
	}
}

// buildResourceRequirements performs the table-driven mapping from
// spec §4.3: cpu/memory/ephemeral-storage request+limit buckets.
// snapshot_size_limit is intentionally excluded - it sizes the EmptyDir
// volume, not a container resource.
func buildResourceRequirements(rr ResourceRequirements) corev1.ResourceRequirements {
	requests := corev1.ResourceList{}
	limits := corev1.ResourceList{}

	set := func(bucket corev1.ResourceList, key corev1.ResourceName, value string) {
		if value == "" {
			return
		}
		if q, err := resource.ParseQuantity(value); err == nil {
			bucket[key] = q
		}
	}

	set(requests, corev1.ResourceCPU, rr.CPURequest)
	set(limits, corev1.ResourceCPU, rr.CPULimit)
	set(requests, corev1.ResourceMemory, rr.MemoryRequest)
	set(limits, corev1.ResourceMemory, rr.MemoryLimit)
	set(requests, corev1.ResourceEphemeralStorage, rr.EphemeralRequest)
	set(limits, corev1.ResourceEphemeralStorage, rr.EphemeralLimit)

	out := corev1.ResourceRequirements{}
	if len(requests) > 0 {
		out.Requests = requests
	}
	if len(limits) > 0 {
		out.Limits = limits
	}
	return out
}

// project derives the uniform View from a live corev1.Pod, including
// the per-container snapshot_size_limit pulled from the pod's EmptyDir
// volume rather than from any container's own resource envelope.
func project(p *corev1.Pod) View {
	snapshotSizeLimit := ""
	for _, v := range p.Spec.Volumes {
		if v.Name == "snapshot-volume" && v.EmptyDir != nil && v.EmptyDir.SizeLimit != nil {
			snapshotSizeLimit = v.EmptyDir.SizeLimit.String()
		}
	}

	descriptors := make([]ContainerDescriptor, 0, len(p.Spec.Containers))
	for _, c := range p.Spec.Containers {
		var ports []Port
		for _, cp := range c.Ports {
			ports = append(ports, Port{Name: cp.Name, ContainerPort: cp.ContainerPort, Protocol: string(cp.Protocol)})
		}
		descriptors = append(descriptors, ContainerDescriptor{
			Name:  c.Name,
			Image: c.Image,
			Ports: ports,
			Resources: ResourceRequirements{
				CPURequest:        quantityString(c.Resources.Requests, corev1.ResourceCPU),
				CPULimit:          quantityString(c.Resources.Limits, corev1.ResourceCPU),
				MemoryRequest:     quantityString(c.Resources.Requests, corev1.ResourceMemory),
				MemoryLimit:       quantityString(c.Resources.Limits, corev1.ResourceMemory),
				EphemeralRequest:  quantityString(c.Resources.Requests, corev1.ResourceEphemeralStorage),
				EphemeralLimit:    quantityString(c.Resources.Limits, corev1.ResourceEphemeralStorage),
				SnapshotSizeLimit: snapshotSizeLimit,
			},
		})
	}

	var podPorts []Port
	if len(p.Spec.Containers) > 0 {
		for _, cp := range p.Spec.Containers[0].Ports {
			podPorts = append(podPorts, Port{Name: cp.Name, ContainerPort: cp.ContainerPort, Protocol: string(cp.Protocol)})
		}
	}

	return View{
		ID:                   string(p.UID),
		Name:                 p.Name,
		Namespace:            p.Namespace,
		IP:                   p.Status.PodIP,
		Ports:                podPorts,
		Labels:               p.Labels,
		AssociatedContainers: descriptors,
	}
}

func quantityString(list corev1.ResourceList, name corev1.ResourceName) string {
	if list == nil {
		return ""
	}
	q, ok := list[name]
	if !ok {
		return ""
	}
	return q.String()
}
