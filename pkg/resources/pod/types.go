package pod

// Port mirrors a Kubernetes container port: an optional name, the
// container port number, and a protocol (TCP or UDP).
type Port struct {
	Name          string
	ContainerPort int32
	Protocol      string
}

// ResourceRequirements is the table-driven resource envelope from spec
// §4.3: cpu/memory/ephemeral-storage request+limit, plus a
// snapshot-volume size limit that is not a Kubernetes container resource
// (it sizes the shared EmptyDir instead). Empty strings mean "unset".
type ResourceRequirements struct {
	CPURequest       string
	CPULimit         string
	MemoryRequest    string
	MemoryLimit      string
	EphemeralRequest string
	EphemeralLimit   string
	SnapshotSizeLimit string
}

// ContainerDescriptor is the projection of one container within a pod:
// name, image, its own ports, and its resource envelope.
type ContainerDescriptor struct {
	Name      string
	Image     string
	Ports     []Port
	Resources ResourceRequirements
}

// View is the uniform projection of a Kubernetes Pod used by the
// orchestrator and the wire layer.
type View struct {
	ID                   string
	Name                 string
	Namespace            string
	IP                   string
	Ports                []Port
	Labels               map[string]string
	AssociatedContainers []ContainerDescriptor
}

// CreateSpec describes the pod the orchestrator wants created. The
// manager always builds exactly three containers: Image/Ports/Env/
// Resources describe the main container; the snapshot and status
// sidecars are fixed and added by the manager itself.
type CreateSpec struct {
	Namespace string
	Name      string
	Image     string
	Ports     []Port
	Env       map[string]string
	Resources ResourceRequirements
}
