package rpc

import (
	"context"
	"strings"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/orchestrator"
)

// Facade implements the five RPC handlers. It performs no business
// logic of its own: each method transforms the request, dispatches to
// the orchestrator, transforms the result, and maps any error onto a
// gRPC status via apierrors.ToGRPCStatus.
type Facade struct {
	orchestrator *orchestrator.Manager
}

// NewFacade builds a Facade over the given orchestrator.
func NewFacade(o *orchestrator.Manager) *Facade {
	return &Facade{orchestrator: o}
}

func (f *Facade) CreateContainer(ctx context.Context, req *CreateContainerRequest) (*Container, error) {
	spec := toOrchestratorCreateSpec(req)
	container, err := f.orchestrator.Create(ctx, spec)
	if err != nil {
		return nil, apierrors.ToGRPCStatus(err)
	}
	out := toWireContainer(container)
	return &out, nil
}

func (f *Facade) ListContainer(ctx context.Context, req *ListContainerRequest) (*ListContainerResponse, error) {
	containers, err := f.orchestrator.List(ctx, req.NetworkName)
	if err != nil {
		return nil, apierrors.ToGRPCStatus(err)
	}
	out := make([]Container, 0, len(containers))
	for i := range containers {
		out = append(out, toWireContainer(&containers[i]))
	}
	return &ListContainerResponse{Containers: out}, nil
}

func (f *Facade) GetContainer(ctx context.Context, req *GetContainerRequest) (*Container, error) {
	container, err := f.orchestrator.Get(ctx, req.ContainerID, req.NetworkName)
	if err != nil {
		return nil, apierrors.ToGRPCStatus(err)
	}
	out := toWireContainer(container)
	return &out, nil
}

func (f *Facade) DeleteContainer(ctx context.Context, req *DeleteContainerRequest) (*DeleteContainerResponse, error) {
	if err := f.orchestrator.Delete(ctx, req.ContainerID, req.NetworkName); err != nil {
		return nil, apierrors.ToGRPCStatus(err)
	}
	return &DeleteContainerResponse{ContainerID: req.ContainerID, Status: "Deleted"}, nil
}

func (f *Facade) SaveContainer(ctx context.Context, req *SaveContainerRequest) (*SaveContainerResponse, error) {
	images, err := f.orchestrator.Save(ctx, req.ContainerID, req.NetworkName)
	if err != nil {
		return nil, apierrors.ToGRPCStatus(err)
	}
	saved := make([]SavedPod, 0, len(images))
	for _, image := range images {
		saved = append(saved, SavedPod{NamespaceName: req.NetworkName, ImageName: image, PodName: podNameFromImage(image)})
	}
	return &SaveContainerResponse{SavedPods: saved}, nil
}

// podNameFromImage recovers the pod name from the fixed
// "<pod-name>-image:latest" tag convention (an optional "<repo>/" prefix
// is stripped too), since SaveImage returns only the image name.
func podNameFromImage(image string) string {
	name := image
	if idx := strings.LastIndexByte(name, '/'); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndexByte(name, ':'); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimSuffix(name, "-image")
}
