package orchestrator

import (
	"github.com/containermaker/container-maker-server/pkg/resources/ingress"
	"github.com/containermaker/container-maker-server/pkg/resources/pod"
	"github.com/containermaker/container-maker-server/pkg/resources/service"
)

// ContainerType tags which Kubernetes primitive a logical Container is
// currently backed by.
type ContainerType string

const (
	ContainerTypePod     ContainerType = "pod"
	ContainerTypeService ContainerType = "service"
	ContainerTypeIngress ContainerType = "ingress"
)

// Port is the wire-facing port shape shared by every container type.
type Port struct {
	Name     string
	Port     int32
	Protocol string
}

// AssociatedResource is one node of a Container's child chain: a pod
// under a service, a service under an ingress, and so on.
type AssociatedResource struct {
	Name                string
	Type                ContainerType
	AssociatedResources []AssociatedResource
}

// Container is the tagged-variant union {Pod | Service | Ingress}
// exposed to callers, replacing the "key ending in _id" convention the
// original dictionary-based implementation relied on.
type Container struct {
	ID                  string
	Name                string
	IP                  string
	Network             string
	Type                ContainerType
	Ports               []Port
	AssociatedResources []AssociatedResource
}

func projectPod(p pod.View) Container {
	ports := make([]Port, 0, len(p.Ports))
	for _, pp := range p.Ports {
		ports = append(ports, Port{Name: pp.Name, Port: pp.ContainerPort, Protocol: pp.Protocol})
	}
	return Container{
		ID:      p.ID,
		Name:    p.Name,
		IP:      p.IP,
		Network: p.Namespace,
		Type:    ContainerTypePod,
		Ports:   ports,
	}
}

func projectService(s service.View) Container {
	ports := make([]Port, 0, len(s.Ports))
	for _, sp := range s.Ports {
		ports = append(ports, Port{Name: sp.Name, Port: sp.Port, Protocol: sp.Protocol})
	}
	associated := make([]AssociatedResource, 0, len(s.AssociatedPods))
	for _, p := range s.AssociatedPods {
		associated = append(associated, AssociatedResource{Name: p.Name, Type: ContainerTypePod})
	}
	return Container{
		ID:                  s.ID,
		Name:                s.Name,
		IP:                  s.ClusterIP,
		Network:             s.Namespace,
		Type:                ContainerTypeService,
		Ports:               ports,
		AssociatedResources: associated,
	}
}

func projectIngress(i ingress.View) Container {
	ports := make([]Port, 0, len(ingress.FixedPorts))
	for _, ip := range ingress.FixedPorts {
		ports = append(ports, Port{Name: ip.Name, Port: ip.Port, Protocol: "TCP"})
	}
	associated := make([]AssociatedResource, 0, len(i.AssociatedServices))
	for _, s := range i.AssociatedServices {
		children := make([]AssociatedResource, 0, len(s.AssociatedPods))
		for _, p := range s.AssociatedPods {
			children = append(children, AssociatedResource{Name: p.Name, Type: ContainerTypePod})
		}
		associated = append(associated, AssociatedResource{
			Name:                s.Name,
			Type:                ContainerTypeService,
			AssociatedResources: children,
		})
	}
	return Container{
		ID:                  i.ID,
		Name:                i.Name,
		IP:                  i.Address,
		Network:             i.Namespace,
		Type:                ContainerTypeIngress,
		Ports:               ports,
		AssociatedResources: associated,
	}
}
