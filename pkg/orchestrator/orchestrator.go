// Package orchestrator implements the Container Orchestrator (L3b):
// composes Namespace/Pod/Service/Ingress primitives under an exposure
// ladder into a single logical Container, and tears the composite back
// down with down-cascade deletion plus lingering-namespace reclamation.
// Grounded on original_source/src/containers/containers.py's
// KubernetesContainerHelper/KubernetesContainerManager.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/resources/ingress"
	"github.com/containermaker/container-maker-server/pkg/resources/namespace"
	"github.com/containermaker/container-maker-server/pkg/resources/pod"
	"github.com/containermaker/container-maker-server/pkg/resources/service"
)

// ExposureLevel is the ordinal that selects how much of the composite
// stack is materialized on create.
type ExposureLevel int

const (
	Internal        ExposureLevel = 1
	ClusterLocal    ExposureLevel = 2
	ClusterExternal ExposureLevel = 3
	Exposed         ExposureLevel = 4
)

// PublishInfo is one requested port mapping.
type PublishInfo struct {
	PublishPort int32
	TargetPort  int32
	Protocol    string
	NodePort    int32
}

// CreateSpec describes a createContainer request in typed form.
type CreateSpec struct {
	ImageName            string
	ContainerName         string
	NetworkName           string
	ExposureLevel         ExposureLevel
	PublishInformation    []PublishInfo
	EnvironmentVariables  map[string]string
	ResourceRequirements  pod.ResourceRequirements
}

// Manager is the Container Orchestrator.
type Manager struct {
	namespaces *namespace.Manager
	pods       *pod.Manager
	services   *service.Manager
	ingresses  *ingress.Manager
	log        *logrus.Entry
}

// New builds an orchestrator Manager over the four resource managers.
func New(namespaces *namespace.Manager, pods *pod.Manager, services *service.Manager, ingresses *ingress.Manager) *Manager {
	return &Manager{
		namespaces: namespaces,
		pods:       pods,
		services:   services,
		ingresses:  ingresses,
		log:        logrus.WithField("component", "orchestrator"),
	}
}

func validatePublishInformation(publish []PublishInfo) error {
	seenTarget := map[int32]bool{}
	seenPublish := map[int32]bool{}
	for _, p := range publish {
		if seenTarget[p.TargetPort] {
			return apierrors.NewValidationError("duplicate target port: %d", p.TargetPort)
		}
		seenTarget[p.TargetPort] = true
		if seenPublish[p.PublishPort] {
			return apierrors.NewValidationError("duplicate publish port: %d", p.PublishPort)
		}
		seenPublish[p.PublishPort] = true
	}
	return nil
}

// Create validates the request, creates the namespace (idempotent), then
// materializes the smallest composite satisfying spec.ExposureLevel:
// pod, then optionally a ClusterIP/LoadBalancer service, then optionally
// an ingress. The response projects the last resource created.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*Container, error) {
	if err := validatePublishInformation(spec.PublishInformation); err != nil {
		return nil, err
	}
	if _, err := m.namespaces.Create(ctx, spec.NetworkName); err != nil {
		return nil, err
	}

	podName := spec.ContainerName + config.PodNameSuffix

	targetPorts := make([]pod.Port, 0, len(spec.PublishInformation))
	seen := map[int32]bool{}
	for _, p := range spec.PublishInformation {
		if seen[p.TargetPort] {
			continue
		}
		seen[p.TargetPort] = true
		targetPorts = append(targetPorts, pod.Port{ContainerPort: p.TargetPort, Protocol: p.Protocol})
	}

	createdPod, err := m.pods.Create(ctx, pod.CreateSpec{
		Namespace: spec.NetworkName,
		Name:      podName,
		Image:     spec.ImageName,
		Ports:     targetPorts,
		Env:       spec.EnvironmentVariables,
		Resources: spec.ResourceRequirements,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pod: %w", err)
	}
	final := projectPod(*createdPod)

	if spec.ExposureLevel > Internal {
		serviceType := service.ClusterIP
		if spec.ExposureLevel > ClusterLocal {
			serviceType = service.LoadBalancer
		}

		svcPorts := make([]service.Port, 0, len(spec.PublishInformation))
		for _, p := range spec.PublishInformation {
			svcPorts = append(svcPorts, service.Port{
				Port:       p.PublishPort,
				TargetPort: p.TargetPort,
				Protocol:   p.Protocol,
				NodePort:   p.NodePort,
			})
		}

		createdService, err := m.services.Create(ctx, service.CreateSpec{
			Namespace: spec.NetworkName,
			Name:      spec.ContainerName + config.ServiceNameSuffix,
			PodName:   podName,
			Ports:     svcPorts,
			Type:      serviceType,
		})
		if err != nil {
			return nil, fmt.Errorf("creating service: %w", err)
		}
		final = projectService(*createdService)

		if spec.ExposureLevel > ClusterExternal {
			servicePorts := make([]int32, 0, len(createdService.Ports))
			for _, p := range createdService.Ports {
				servicePorts = append(servicePorts, p.Port)
			}

			createdIngress, err := m.ingresses.Create(ctx, ingress.CreateSpec{
				Namespace:    spec.NetworkName,
				Name:         spec.ContainerName + config.IngressNameSuffix,
				ServiceName:  createdService.Name,
				Host:         config.IngressHost(),
				ServicePorts: servicePorts,
			})
			if err != nil {
				return nil, fmt.Errorf("creating ingress: %w", err)
			}
			final = projectIngress(*createdIngress)
		}
	}

	return &final, nil
}

// List returns ingresses, the services not already counted under an
// ingress, and the pods not already counted under a service or ingress
// — each projected to the logical Container shape. Returns an empty
// slice (not an error) if the namespace does not exist.
func (m *Manager) List(ctx context.Context, network string) ([]Container, error) {
	ns, err := m.namespaces.Get(ctx, network)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, nil
	}

	ingresses, err := m.ingresses.List(ctx, network)
	if err != nil {
		return nil, err
	}
	ingressServiceNames := map[string]bool{}
	ingressPodNames := map[string]bool{}
	for _, ing := range ingresses {
		for _, svc := range ing.AssociatedServices {
			ingressServiceNames[svc.Name] = true
			for _, p := range svc.AssociatedPods {
				ingressPodNames[p.Name] = true
			}
		}
	}

	services, err := m.services.List(ctx, network)
	if err != nil {
		return nil, err
	}
	var uniqueServices []service.View
	uniqueServicePodNames := map[string]bool{}
	for _, svc := range services {
		if ingressServiceNames[svc.Name] {
			continue
		}
		uniqueServices = append(uniqueServices, svc)
		for _, p := range svc.AssociatedPods {
			uniqueServicePodNames[p.Name] = true
		}
	}

	pods, err := m.pods.List(ctx, network)
	if err != nil {
		return nil, err
	}
	var uniquePods []pod.View
	for _, p := range pods {
		if ingressPodNames[p.Name] || uniqueServicePodNames[p.Name] {
			continue
		}
		uniquePods = append(uniquePods, p)
	}

	containers := make([]Container, 0, len(ingresses)+len(uniqueServices)+len(uniquePods))
	for _, ing := range ingresses {
		containers = append(containers, projectIngress(ing))
	}
	for _, svc := range uniqueServices {
		containers = append(containers, projectService(svc))
	}
	for _, p := range uniquePods {
		containers = append(containers, projectPod(p))
	}
	return containers, nil
}

// checkPod, checkService, checkIngress scan the namespace's resources of
// one kind for an id match, mirroring
// KubernetesContainerHelper.check_pod/check_service/check_ingress.
func (m *Manager) checkPod(ctx context.Context, network, id string) (*pod.View, error) {
	pods, err := m.pods.List(ctx, network)
	if err != nil {
		return nil, err
	}
	for i := range pods {
		if pods[i].ID == id {
			return &pods[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) checkService(ctx context.Context, network, id string) (*service.View, error) {
	services, err := m.services.List(ctx, network)
	if err != nil {
		return nil, err
	}
	for i := range services {
		if services[i].ID == id {
			return &services[i], nil
		}
	}
	return nil, nil
}

func (m *Manager) checkIngress(ctx context.Context, network, id string) (*ingress.View, error) {
	ingresses, err := m.ingresses.List(ctx, network)
	if err != nil {
		return nil, err
	}
	for i := range ingresses {
		if ingresses[i].ID == id {
			return &ingresses[i], nil
		}
	}
	return nil, nil
}

// Get scans pod -> service -> ingress in the namespace and returns the
// first id match.
func (m *Manager) Get(ctx context.Context, id, network string) (*Container, error) {
	ns, err := m.namespaces.Get(ctx, network)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, apierrors.NewValidationError("network %q does not exist", network)
	}

	if p, err := m.checkPod(ctx, network, id); err != nil {
		return nil, err
	} else if p != nil {
		c := projectPod(*p)
		return &c, nil
	}
	if s, err := m.checkService(ctx, network, id); err != nil {
		return nil, err
	} else if s != nil {
		c := projectService(*s)
		return &c, nil
	}
	if i, err := m.checkIngress(ctx, network, id); err != nil {
		return nil, err
	} else if i != nil {
		c := projectIngress(*i)
		return &c, nil
	}
	return nil, apierrors.NewValidationError("container_id=%s not found in network=%s", id, network)
}

// Save delegates to the save operation of whichever primitive the id
// identifies: a pod saves itself (wrapped in a one-element list for
// shape uniformity), a service saves all its associated pods, an
// ingress saves all pods of all its associated services.
func (m *Manager) Save(ctx context.Context, id, network string) ([]string, error) {
	ns, err := m.namespaces.Get(ctx, network)
	if err != nil {
		return nil, err
	}
	if ns == nil {
		return nil, nil
	}

	if p, err := m.checkPod(ctx, network, id); err != nil {
		return nil, err
	} else if p != nil {
		image, err := m.pods.Save(ctx, network, p.Name)
		if err != nil {
			return nil, err
		}
		return []string{image}, nil
	}
	if s, err := m.checkService(ctx, network, id); err != nil {
		return nil, err
	} else if s != nil {
		return m.services.SaveServicePods(ctx, network, s.Name)
	}
	if i, err := m.checkIngress(ctx, network, id); err != nil {
		return nil, err
	} else if i != nil {
		return m.ingresses.SaveIngressServices(ctx, network, i.Name)
	}
	return nil, apierrors.NewValidationError("container_id=%s not found in network=%s", id, network)
}

// Delete identifies which primitive the id belongs to and down-cascades:
// a pod delete is just the pod; a service delete also deletes its
// associated pods; an ingress delete also deletes its associated
// services, which in turn cascade into their pods. After the cascade, a
// lingering-namespace sweep runs unconditionally.
func (m *Manager) Delete(ctx context.Context, id, network string) error {
	ns, err := m.namespaces.Get(ctx, network)
	if err != nil {
		return err
	}
	if ns == nil {
		return apierrors.NewValidationError("network %q does not exist", network)
	}

	if p, err := m.checkPod(ctx, network, id); err != nil {
		return err
	} else if p != nil {
		if err := m.pods.Delete(ctx, network, p.Name); err != nil {
			return err
		}
	}
	if s, err := m.checkService(ctx, network, id); err != nil {
		return err
	} else if s != nil {
		if err := m.deleteService(ctx, network, *s); err != nil {
			return err
		}
	}
	if i, err := m.checkIngress(ctx, network, id); err != nil {
		return err
	} else if i != nil {
		if err := m.deleteIngress(ctx, network, *i); err != nil {
			return err
		}
	}

	return m.sweepLingeringNamespaces(ctx)
}

func (m *Manager) deleteService(ctx context.Context, network string, svc service.View) error {
	for _, p := range svc.AssociatedPods {
		if err := m.pods.Delete(ctx, network, p.Name); err != nil {
			return err
		}
	}
	return m.services.Delete(ctx, network, svc.Name)
}

func (m *Manager) deleteIngress(ctx context.Context, network string, ing ingress.View) error {
	for _, svc := range ing.AssociatedServices {
		if err := m.deleteService(ctx, network, svc); err != nil {
			return err
		}
	}
	return m.ingresses.Delete(ctx, network, ing.Name)
}

// sweepLingeringNamespaces deletes every non-protected namespace that
// holds zero pods, zero services, and zero ingresses.
func (m *Manager) sweepLingeringNamespaces(ctx context.Context) error {
	namespaces, err := m.namespaces.List(ctx)
	if err != nil {
		return err
	}
	for _, ns := range namespaces {
		if config.ProtectedNamespaces[ns.Name] {
			continue
		}
		pods, err := m.pods.List(ctx, ns.Name)
		if err != nil {
			return err
		}
		services, err := m.services.List(ctx, ns.Name)
		if err != nil {
			return err
		}
		ingresses, err := m.ingresses.List(ctx, ns.Name)
		if err != nil {
			return err
		}
		if len(pods) == 0 && len(services) == 0 && len(ingresses) == 0 {
			if err := m.namespaces.Delete(ctx, ns.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
