package rpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/containermaker/container-maker-server/pkg/orchestrator"
	"github.com/containermaker/container-maker-server/pkg/resources/ingress"
	"github.com/containermaker/container-maker-server/pkg/resources/namespace"
	"github.com/containermaker/container-maker-server/pkg/resources/pod"
	"github.com/containermaker/container-maker-server/pkg/resources/service"
)

func newTestFacade() *Facade {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		p := action.(k8stesting.CreateAction).GetObject().(*corev1.Pod)
		p.Status.Phase = corev1.PodRunning
		p.Status.PodIP = "10.1.2.3"
		return false, p, nil
	})

	nsMgr := namespace.New(client)
	podMgr := pod.New(client, nil)
	svcMgr := service.New(client, podMgr)
	ingMgr := ingress.New(client, svcMgr)
	return NewFacade(orchestrator.New(nsMgr, podMgr, svcMgr, ingMgr))
}

func TestCreateContainerHappyPath(t *testing.T) {
	f := newTestFacade()
	out, err := f.CreateContainer(context.Background(), &CreateContainerRequest{
		ImageName: "nginx:latest", ContainerName: "web", NetworkName: "team-a", ExposureLevel: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.ContainerIP != "10.1.2.3" {
		t.Fatalf("expected the pod IP to come through, got %q", out.ContainerIP)
	}
}

func TestGetContainerUnknownIDMapsToInvalidArgument(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()
	if _, err := f.CreateContainer(ctx, &CreateContainerRequest{
		ImageName: "nginx:latest", ContainerName: "web", NetworkName: "team-a", ExposureLevel: 1,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := f.GetContainer(ctx, &GetContainerRequest{ContainerID: "nonexistent", NetworkName: "team-a"})
	if err == nil {
		t.Fatal("expected an error for an unknown container id")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestDeleteContainerOnMissingNetworkMapsToInvalidArgument(t *testing.T) {
	f := newTestFacade()
	_, err := f.DeleteContainer(context.Background(), &DeleteContainerRequest{
		ContainerID: "some-id", NetworkName: "ghost-network",
	})
	if err == nil {
		t.Fatal("expected an error for a nonexistent network")
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestDeleteContainerHappyPath(t *testing.T) {
	f := newTestFacade()
	ctx := context.Background()
	created, err := f.CreateContainer(ctx, &CreateContainerRequest{
		ImageName: "nginx:latest", ContainerName: "web", NetworkName: "team-a", ExposureLevel: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := f.DeleteContainer(ctx, &DeleteContainerRequest{ContainerID: created.ContainerID, NetworkName: "team-a"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.Status != "Deleted" {
		t.Fatalf("unexpected status: %q", resp.Status)
	}
}

func TestPodNameFromImage(t *testing.T) {
	cases := map[string]string{
		"registry.example.com/web-pod-image:latest": "web-pod",
		"web-pod-image:latest":                       "web-pod",
		"web-pod-image":                               "web-pod",
	}
	for image, want := range cases {
		if got := podNameFromImage(image); got != want {
			t.Errorf("podNameFromImage(%q) = %q, want %q", image, got, want)
		}
	}
}
