package pod

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/snapshot"
)

// schedulingReactor mimics the kubelet: every pod submitted through the
// fake clientset is immediately marked Running with an assigned IP, so
// Manager.Create's readiness poll succeeds on its first iteration
// instead of blocking for the real PodRunningTimeout.
func schedulingReactor(action k8stesting.Action) (bool, runtime.Object, error) {
	create, ok := action.(k8stesting.CreateAction)
	if !ok {
		return false, nil, nil
	}
	p, ok := create.GetObject().(*corev1.Pod)
	if !ok {
		return false, nil, nil
	}
	p.Status.Phase = corev1.PodRunning
	p.Status.PodIP = "10.1.2.3"
	var containerStatuses []corev1.ContainerStatus
	for _, c := range p.Spec.Containers {
		containerStatuses = append(containerStatuses, corev1.ContainerStatus{
			Name:  c.Name,
			State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}},
		})
	}
	p.Status.ContainerStatuses = containerStatuses
	return false, p, nil
}

func newFakeClient() *fake.Clientset {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "pods", schedulingReactor)
	return client
}

func TestCreateBuildsThreeContainersAndPollsRunning(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, nil)
	ctx := context.Background()

	spec := CreateSpec{
		Namespace: "team-a",
		Name:      "web",
		Image:     "nginx:latest",
		Ports:     []Port{{ContainerPort: 8080, Protocol: "TCP"}},
	}

	view, err := mgr.Create(ctx, spec)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.IP != "10.1.2.3" {
		t.Fatalf("expected IP to be populated from the poll, got %q", view.IP)
	}
	if len(view.AssociatedContainers) != 3 {
		t.Fatalf("expected main + 2 sidecars, got %d containers", len(view.AssociatedContainers))
	}

	names := map[string]bool{}
	for _, c := range view.AssociatedContainers {
		names[c.Name] = true
	}
	if !names["web"] || !names[config.SnapshotSidecarName] || !names[config.StatusSidecarName] {
		t.Fatalf("missing expected container names, got %+v", names)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, nil)
	ctx := context.Background()
	spec := CreateSpec{Namespace: "team-a", Name: "web", Image: "nginx:latest"}

	first, err := mgr.Create(ctx, spec)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := mgr.Create(ctx, spec)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same pod back, got different IDs")
	}
}

type stubSnapshotter struct {
	image string
	err   error
	got   snapshot.Target
}

func (s *stubSnapshotter) SaveImage(ctx context.Context, target snapshot.Target) (string, error) {
	s.got = target
	return s.image, s.err
}

func TestSaveDelegatesToSnapshotterOnceReady(t *testing.T) {
	client := newFakeClient()
	snap := &stubSnapshotter{image: "registry.example.com/web:latest"}
	mgr := New(client, snap)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, CreateSpec{Namespace: "team-a", Name: "web", Image: "nginx:latest"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	image, err := mgr.Save(ctx, "team-a", "web")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if image != "registry.example.com/web:latest" {
		t.Fatalf("unexpected image: %q", image)
	}
	if snap.got.PodName != "web" || snap.got.Namespace != "team-a" || snap.got.SidecarName != config.SnapshotSidecarName {
		t.Fatalf("unexpected snapshot target passed through: %+v", snap.got)
	}
}

func TestSaveRejectsPodMissingSnapshotter(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, nil)
	ctx := context.Background()
	if _, err := mgr.Create(ctx, CreateSpec{Namespace: "team-a", Name: "web", Image: "nginx:latest"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.Save(ctx, "team-a", "web"); err == nil {
		t.Fatal("expected an error when no snapshotter is configured")
	}
}

func TestSaveRejectsUnknownPod(t *testing.T) {
	mgr := New(newFakeClient(), &stubSnapshotter{})
	if _, err := mgr.Save(context.Background(), "team-a", "missing"); err == nil {
		t.Fatal("expected a validation error for a pod that does not exist")
	}
}

func TestSavePropagatesSnapshotterError(t *testing.T) {
	client := newFakeClient()
	snap := &stubSnapshotter{err: errors.New("build failed")}
	mgr := New(client, snap)
	ctx := context.Background()
	if _, err := mgr.Create(ctx, CreateSpec{Namespace: "team-a", Name: "web", Image: "nginx:latest"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := mgr.Save(ctx, "team-a", "web"); err == nil {
		t.Fatal("expected the snapshotter's error to propagate")
	}
}

func TestDeleteRemovesPod(t *testing.T) {
	client := newFakeClient()
	mgr := New(client, nil)
	ctx := context.Background()
	if _, err := mgr.Create(ctx, CreateSpec{Namespace: "team-a", Name: "web", Image: "nginx:latest"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mgr.Delete(ctx, "team-a", "web"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	existing, err := mgr.Get(ctx, "team-a", "web")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if existing != nil {
		t.Fatalf("expected pod to be gone, got %+v", existing)
	}
}
