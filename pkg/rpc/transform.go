package rpc

import (
	"github.com/containermaker/container-maker-server/pkg/orchestrator"
	"github.com/containermaker/container-maker-server/pkg/resources/pod"
)

func toOrchestratorResourceRequirements(r ResourceRequirements) pod.ResourceRequirements {
	return pod.ResourceRequirements{
		CPURequest:        r.CPURequest,
		CPULimit:          r.CPULimit,
		MemoryRequest:     r.MemoryRequest,
		MemoryLimit:       r.MemoryLimit,
		EphemeralRequest:  r.EphemeralRequest,
		EphemeralLimit:    r.EphemeralLimit,
		SnapshotSizeLimit: r.SnapshotSizeLimit,
	}
}

func toOrchestratorCreateSpec(req *CreateContainerRequest) orchestrator.CreateSpec {
	publish := make([]orchestrator.PublishInfo, 0, len(req.PublishInformation))
	for _, p := range req.PublishInformation {
		publish = append(publish, orchestrator.PublishInfo{
			PublishPort: p.PublishPort,
			TargetPort:  p.TargetPort,
			Protocol:    p.Protocol,
			NodePort:    p.NodePort,
		})
	}
	return orchestrator.CreateSpec{
		ImageName:            req.ImageName,
		ContainerName:        req.ContainerName,
		NetworkName:          req.NetworkName,
		ExposureLevel:        orchestrator.ExposureLevel(req.ExposureLevel),
		PublishInformation:   publish,
		EnvironmentVariables: req.EnvironmentVariables,
		ResourceRequirements: toOrchestratorResourceRequirements(req.ResourceRequirements),
	}
}

func toWireAssociatedResources(in []orchestrator.AssociatedResource) []AssociatedResource {
	out := make([]AssociatedResource, 0, len(in))
	for _, r := range in {
		out = append(out, AssociatedResource{
			ResourceName:        r.Name,
			ResourceType:        string(r.Type),
			AssociatedResources: toWireAssociatedResources(r.AssociatedResources),
		})
	}
	return out
}

func toWireContainer(c *orchestrator.Container) Container {
	ports := make([]Port, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, Port{Name: p.Name, Port: p.Port, Protocol: p.Protocol})
	}
	return Container{
		ContainerID:         c.ID,
		ContainerName:       c.Name,
		ContainerIP:         c.IP,
		ContainerNetwork:    c.Network,
		Ports:               ports,
		AssociatedResources: toWireAssociatedResources(c.AssociatedResources),
	}
}
