package service

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/containermaker/container-maker-server/pkg/resources/pod"
)

// ipamReactor mimics the cluster-IP allocator a real API server runs:
// every service submitted through the fake clientset is immediately
// given a cluster IP, so Manager.Create's readiness poll succeeds on
// its first iteration.
func ipamReactor(action k8stesting.Action) (bool, runtime.Object, error) {
	create, ok := action.(k8stesting.CreateAction)
	if !ok {
		return false, nil, nil
	}
	svc, ok := create.GetObject().(*corev1.Service)
	if !ok {
		return false, nil, nil
	}
	svc.Spec.ClusterIP = "10.96.0.10"
	return false, svc, nil
}

func newFakeClient() *fake.Clientset {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "services", ipamReactor)
	return client
}

type stubPodLister struct {
	pods    []pod.View
	savedBy map[string]string
	saveErr map[string]error
}

func (s *stubPodLister) List(ctx context.Context, namespace string) ([]pod.View, error) {
	return s.pods, nil
}

func (s *stubPodLister) Save(ctx context.Context, namespace, name string) (string, error) {
	if s.saveErr != nil {
		if err, ok := s.saveErr[name]; ok {
			return "", err
		}
	}
	if s.savedBy != nil {
		if image, ok := s.savedBy[name]; ok {
			return image, nil
		}
	}
	return "image-for-" + name, nil
}

func TestCreateJoinsAssociatedPodsBySelector(t *testing.T) {
	pods := &stubPodLister{pods: []pod.View{
		{Name: "web", Labels: map[string]string{"app": "web"}},
		{Name: "other", Labels: map[string]string{"app": "other"}},
	}}
	mgr := New(newFakeClient(), pods)
	ctx := context.Background()

	view, err := mgr.Create(ctx, CreateSpec{
		Namespace: "team-a",
		Name:      "web-service",
		PodName:   "web",
		Ports:     []Port{{Name: "http", Port: 80, TargetPort: 8080, Protocol: "TCP"}},
		Type:      ClusterIP,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.ClusterIP != "10.96.0.10" {
		t.Fatalf("expected cluster IP to be populated, got %q", view.ClusterIP)
	}
	if len(view.AssociatedPods) != 1 || view.AssociatedPods[0].Name != "web" {
		t.Fatalf("expected exactly the web pod to be associated, got %+v", view.AssociatedPods)
	}
}

func TestCreateRejectsDuplicatePublishPort(t *testing.T) {
	mgr := New(newFakeClient(), &stubPodLister{})
	_, err := mgr.Create(context.Background(), CreateSpec{
		Namespace: "team-a",
		Name:      "web-service",
		PodName:   "web",
		Ports: []Port{
			{Name: "a", Port: 80, TargetPort: 8080, Protocol: "TCP"},
			{Name: "b", Port: 80, TargetPort: 9090, Protocol: "TCP"},
		},
	})
	if err == nil {
		t.Fatal("expected a validation error for duplicate publish ports")
	}
}

func TestCreateRejectsDuplicateTargetPort(t *testing.T) {
	mgr := New(newFakeClient(), &stubPodLister{})
	_, err := mgr.Create(context.Background(), CreateSpec{
		Namespace: "team-a",
		Name:      "web-service",
		PodName:   "web",
		Ports: []Port{
			{Name: "a", Port: 80, TargetPort: 8080, Protocol: "TCP"},
			{Name: "b", Port: 443, TargetPort: 8080, Protocol: "TCP"},
		},
	})
	if err == nil {
		t.Fatal("expected a validation error for duplicate target ports")
	}
}

func TestSaveServicePodsFansOutAndSkipsFailures(t *testing.T) {
	pods := &stubPodLister{
		pods: []pod.View{
			{Name: "web-1", Labels: map[string]string{"app": "web"}},
			{Name: "web-2", Labels: map[string]string{"app": "web"}},
		},
		saveErr: map[string]error{"web-2": errSaveFailed},
	}
	mgr := New(newFakeClient(), pods)
	ctx := context.Background()

	if _, err := mgr.Create(ctx, CreateSpec{
		Namespace: "team-a", Name: "web-service", PodName: "web",
		Ports: []Port{{Name: "http", Port: 80, TargetPort: 8080, Protocol: "TCP"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	images, err := mgr.SaveServicePods(ctx, "team-a", "web-service")
	if err != nil {
		t.Fatalf("save service pods: %v", err)
	}
	if len(images) != 1 || images[0] != "image-for-web-1" {
		t.Fatalf("expected only web-1's image to survive the failed save, got %v", images)
	}
}

func TestDeleteRemovesService(t *testing.T) {
	mgr := New(newFakeClient(), &stubPodLister{})
	ctx := context.Background()
	if _, err := mgr.Create(ctx, CreateSpec{Namespace: "team-a", Name: "web-service", PodName: "web"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mgr.Delete(ctx, "team-a", "web-service"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	existing, err := mgr.Get(ctx, "team-a", "web-service")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if existing != nil {
		t.Fatalf("expected service to be gone, got %+v", existing)
	}
}

var errSaveFailed = errors.New("save failed")
