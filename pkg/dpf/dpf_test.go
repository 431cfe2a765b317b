package dpf

import (
	"context"
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
)

func newFakeClient() *Client {
	dyn := dynamicfake.NewSimpleDynamicClient(runtime.NewScheme())
	return New(dyn)
}

func TestCreateDpuDeviceThenAlreadyExists(t *testing.T) {
	c := newFakeClient()
	ctx := context.Background()

	if err := c.CreateDpuDevice(ctx, "dpf-system", "dpu-1", map[string]interface{}{"bfb": "v1"}); err != nil {
		t.Fatalf("unexpected error creating a fresh DPUDevice: %v", err)
	}

	err := c.CreateDpuDevice(ctx, "dpf-system", "dpu-1", map[string]interface{}{"bfb": "v1"})
	if carbideerr.KindOf(err) != carbideerr.KindAlreadyExists {
		t.Fatalf("got %v, want AlreadyExists on a duplicate create", err)
	}
}

func TestWaitForDpuDeviceReadyNotYetReady(t *testing.T) {
	c := newFakeClient()
	ctx := context.Background()
	if err := c.CreateDpuDevice(ctx, "dpf-system", "dpu-1", map[string]interface{}{}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	err := c.WaitForDpuDeviceReady(ctx, "dpf-system", "dpu-1")
	if !IsNotReady(err) {
		t.Fatalf("got %v, want the IsNotReady sentinel before status.ready is set", err)
	}
}

func TestWaitForDpuDeviceReadyBecomesReady(t *testing.T) {
	c := newFakeClient()
	ctx := context.Background()
	if err := c.CreateDpuDevice(ctx, "dpf-system", "dpu-1", map[string]interface{}{}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	obj, err := c.dyn.Resource(dpuDeviceGVR).Namespace("dpf-system").Get(ctx, "dpu-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching the object to mark it ready: %v", err)
	}
	if err := unstructured.SetNestedField(obj.Object, true, "status", "ready"); err != nil {
		t.Fatalf("setting status.ready: %v", err)
	}
	if _, err := c.dyn.Resource(dpuDeviceGVR).Namespace("dpf-system").UpdateStatus(ctx, obj, metav1.UpdateOptions{}); err != nil {
		t.Fatalf("updating status: %v", err)
	}

	if err := c.WaitForDpuDeviceReady(ctx, "dpf-system", "dpu-1"); err != nil {
		t.Fatalf("unexpected error once status.ready is true: %v", err)
	}
}

func TestNodeEffectAnnotationRoundTrip(t *testing.T) {
	c := newFakeClient()
	ctx := context.Background()
	if err := c.CreateDpuNode(ctx, "dpf-system", "node-1", map[string]interface{}{}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := c.UpdateNodeEffectAnnotation(ctx, "dpf-system", "node-1", "install"); err != nil {
		t.Fatalf("unexpected error setting the annotation: %v", err)
	}
	obj, err := c.dyn.Resource(dpuNodeGVR).Namespace("dpf-system").Get(ctx, "node-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching node: %v", err)
	}
	if obj.GetAnnotations()[NodeEffectAnnotation] != "install" {
		t.Fatalf("got annotations=%v, want %s=install", obj.GetAnnotations(), NodeEffectAnnotation)
	}

	if err := c.RemoveNodeEffectAnnotation(ctx, "dpf-system", "node-1"); err != nil {
		t.Fatalf("unexpected error removing the annotation: %v", err)
	}
	obj, err = c.dyn.Resource(dpuNodeGVR).Namespace("dpf-system").Get(ctx, "node-1", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("fetching node: %v", err)
	}
	if _, ok := obj.GetAnnotations()[NodeEffectAnnotation]; ok {
		t.Fatalf("expected the annotation to be removed, got %v", obj.GetAnnotations())
	}
}

func TestDeleteDpuIsIdempotent(t *testing.T) {
	c := newFakeClient()
	ctx := context.Background()
	if err := c.CreateDpuDevice(ctx, "dpf-system", "dpu-1", map[string]interface{}{}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := c.DeleteDpu(ctx, "dpf-system", "dpu-1"); err != nil {
		t.Fatalf("unexpected error on first delete: %v", err)
	}
	if err := c.DeleteDpu(ctx, "dpf-system", "dpu-1"); err != nil {
		t.Fatalf("delete on an already-deleted DPUDevice must be a no-op, got %v", err)
	}

	deleted, err := c.DpuDeleted(ctx, "dpf-system", "dpu-1")
	if err != nil || !deleted {
		t.Fatalf("got deleted=%v err=%v, want deleted=true", deleted, err)
	}
}
