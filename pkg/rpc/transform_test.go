package rpc

import (
	"testing"

	"github.com/containermaker/container-maker-server/pkg/orchestrator"
)

func TestToOrchestratorCreateSpecCarriesPublishInformationAndResources(t *testing.T) {
	req := &CreateContainerRequest{
		ImageName:     "nginx:latest",
		ContainerName: "web",
		NetworkName:   "team-a",
		ExposureLevel: 3,
		PublishInformation: []PublishInformation{
			{PublishPort: 80, TargetPort: 8080, Protocol: "TCP", NodePort: 30080},
		},
		EnvironmentVariables: map[string]string{"FOO": "bar"},
		ResourceRequirements: ResourceRequirements{CPURequest: "100m", MemoryLimit: "256Mi"},
	}

	spec := toOrchestratorCreateSpec(req)

	if spec.ExposureLevel != orchestrator.ClusterExternal {
		t.Fatalf("expected exposure level 3 to map to ClusterExternal, got %v", spec.ExposureLevel)
	}
	if len(spec.PublishInformation) != 1 || spec.PublishInformation[0].NodePort != 30080 {
		t.Fatalf("publish information did not carry through: %+v", spec.PublishInformation)
	}
	if spec.ResourceRequirements.CPURequest != "100m" || spec.ResourceRequirements.MemoryLimit != "256Mi" {
		t.Fatalf("resource requirements did not carry through: %+v", spec.ResourceRequirements)
	}
	if spec.EnvironmentVariables["FOO"] != "bar" {
		t.Fatalf("environment variables did not carry through: %+v", spec.EnvironmentVariables)
	}
}

func TestToWireContainerFlattensNestedAssociatedResources(t *testing.T) {
	c := &orchestrator.Container{
		ID: "ing-1", Name: "web-ingress", IP: "203.0.113.10", Network: "team-a",
		Type:  orchestrator.ContainerTypeIngress,
		Ports: []orchestrator.Port{{Name: "http", Port: 80, Protocol: "TCP"}},
		AssociatedResources: []orchestrator.AssociatedResource{
			{
				Name: "web-service", Type: orchestrator.ContainerTypeService,
				AssociatedResources: []orchestrator.AssociatedResource{
					{Name: "web-pod", Type: orchestrator.ContainerTypePod},
				},
			},
		},
	}

	wire := toWireContainer(c)

	if wire.ContainerID != "ing-1" || wire.ContainerIP != "203.0.113.10" {
		t.Fatalf("top-level fields did not carry through: %+v", wire)
	}
	if len(wire.AssociatedResources) != 1 || wire.AssociatedResources[0].ResourceName != "web-service" {
		t.Fatalf("expected exactly the web-service association, got %+v", wire.AssociatedResources)
	}
	nested := wire.AssociatedResources[0].AssociatedResources
	if len(nested) != 1 || nested[0].ResourceName != "web-pod" {
		t.Fatalf("expected the service's nested pod to survive flattening, got %+v", nested)
	}
}
