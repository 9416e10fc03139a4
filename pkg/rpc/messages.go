// Package rpc is the Request Façade (L4): request/response message
// shapes, the JSON-over-gRPC wire codec, and one handler per RPC that
// transforms input, dispatches to the orchestrator, transforms output,
// and maps errors onto gRPC status codes. Grounded on
// original_source/src/grpc/servicer.py's per-RPC try/except shape.
package rpc

// PublishInformation is one requested port mapping on createContainer.
type PublishInformation struct {
	PublishPort int32  `json:"publish_port"`
	TargetPort  int32  `json:"target_port"`
	Protocol    string `json:"protocol"`
	NodePort    int32  `json:"node_port,omitempty"`
}

// ResourceRequirements is the wire shape of a create request's resource
// envelope.
type ResourceRequirements struct {
	CPURequest        string `json:"cpu_request,omitempty"`
	CPULimit          string `json:"cpu_limit,omitempty"`
	MemoryRequest     string `json:"memory_request,omitempty"`
	MemoryLimit       string `json:"memory_limit,omitempty"`
	EphemeralRequest  string `json:"ephemeral_request,omitempty"`
	EphemeralLimit    string `json:"ephemeral_limit,omitempty"`
	SnapshotSizeLimit string `json:"snapshot_size_limit,omitempty"`
}

// CreateContainerRequest is createContainer's request message.
type CreateContainerRequest struct {
	ImageName            string               `json:"image_name"`
	ContainerName        string               `json:"container_name"`
	NetworkName          string               `json:"network_name"`
	ExposureLevel        int32                `json:"exposure_level"`
	PublishInformation   []PublishInformation `json:"publish_information"`
	EnvironmentVariables map[string]string    `json:"environment_variables"`
	ResourceRequirements ResourceRequirements `json:"resource_requirements"`
}

// Port is a wire-level port entry on a Container.
type Port struct {
	Name     string `json:"name,omitempty"`
	Port     int32  `json:"port"`
	Protocol string `json:"protocol"`
}

// AssociatedResource is one node of a Container's associated_resources
// chain.
type AssociatedResource struct {
	ResourceName        string                `json:"resource_name"`
	ResourceType         string                `json:"resource_type"`
	ContainerResources   *ResourceRequirements `json:"container_resources,omitempty"`
	AssociatedResources []AssociatedResource  `json:"associated_resources,omitempty"`
}

// Container is the wire projection of the logical Container entity,
// returned by createContainer, listContainer, and getContainer.
type Container struct {
	ContainerID         string                `json:"container_id"`
	ContainerName        string                `json:"container_name"`
	ContainerIP          string                `json:"container_ip"`
	ContainerNetwork     string                `json:"container_network"`
	Ports                []Port                `json:"ports"`
	AssociatedResources  []AssociatedResource  `json:"associated_resources"`
}

// ListContainerRequest is listContainer's request message.
type ListContainerRequest struct {
	NetworkName string `json:"network_name"`
}

// ListContainerResponse is listContainer's response message.
type ListContainerResponse struct {
	Containers []Container `json:"containers"`
}

// GetContainerRequest is getContainer's request message.
type GetContainerRequest struct {
	ContainerID string `json:"container_id"`
	NetworkName string `json:"network_name"`
}

// DeleteContainerRequest is deleteContainer's request message.
type DeleteContainerRequest struct {
	ContainerID string `json:"container_id"`
	NetworkName string `json:"network_name"`
}

// DeleteContainerResponse is deleteContainer's response message.
type DeleteContainerResponse struct {
	ContainerID string `json:"container_id"`
	Status      string `json:"status"`
}

// SaveContainerRequest is saveContainer's request message.
type SaveContainerRequest struct {
	ContainerID string `json:"container_id"`
	NetworkName string `json:"network_name"`
}

// SavedPod is one entry of saveContainer's response.
type SavedPod struct {
	PodName       string `json:"pod_name"`
	NamespaceName string `json:"namespace_name"`
	ImageName     string `json:"image_name"`
}

// SaveContainerResponse is saveContainer's response message.
type SaveContainerResponse struct {
	SavedPods []SavedPod `json:"saved_pods"`
}
