// Package dpf implements the KubeClientProvider capability the §4.1 DPF
// variant issues its alternating protocol against: an external
// Kubernetes-based operator that owns DPU device/node lifecycle once site
// policy delegates reprovisioning to it. Carbide itself is not a Kubernetes
// controller (see SPEC_FULL.md §B) — this is the one boundary the design
// names explicitly, so it is the one place k8s.io/client-go's dynamic
// client is exercised, against the DPF operator's own CRDs rather than any
// CRD Carbide defines.
package dpf

import (
	"context"
	"errors"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/carbide-fleet/carbide/pkg/carbideerr"
)

// Group/version/resource coordinates for the external DPF operator's CRDs.
// Carbide treats these as opaque unstructured objects: it only ever sets
// the handful of fields the reprovision pipeline's protocol needs.
var (
	dpuDeviceGVR = schema.GroupVersionResource{Group: "dpf.nvidia.com", Version: "v1alpha1", Resource: "dpudevices"}
	dpuNodeGVR   = schema.GroupVersionResource{Group: "dpf.nvidia.com", Version: "v1alpha1", Resource: "dpunodes"}
)

// NodeEffectAnnotation is the annotation key the reconciler sets on a
// DpuNode to signal the operator should begin its OS-install effect, and
// removes once WaitForNetworkConfigAndRemoveAnnotation observes completion.
const NodeEffectAnnotation = "dpf.nvidia.com/node-effect"

// errNotReady is a sentinel wrapped into a carbideerr.DpfError when the
// operator reports a resource exists but isn't ready yet, so call sites can
// distinguish "keep waiting" from a genuine failure via IsNotReady.
var errNotReady = errors.New("dpf: resource not ready")

// IsNotReady reports whether err represents the DPF operator's "not ready"
// signal, which the reconciler must treat as Wait rather than Error (open
// question D.3 in SPEC_FULL.md).
func IsNotReady(err error) bool {
	return errors.Is(err, errNotReady)
}

// KubeClientProvider is the typed operation set the reprovision pipeline's
// DPF variant issues against the external operator.
type KubeClientProvider interface {
	CreateDpuDevice(ctx context.Context, namespace, name string, spec map[string]interface{}) error
	CreateDpuNode(ctx context.Context, namespace, name string, spec map[string]interface{}) error
	WaitForDpuDeviceReady(ctx context.Context, namespace, name string) error
	UpdateNodeEffectAnnotation(ctx context.Context, namespace, name, effect string) error
	RemoveNodeEffectAnnotation(ctx context.Context, namespace, name string) error
	UpdateDpuStatusToError(ctx context.Context, namespace, name, reason string) error
	DeleteDpu(ctx context.Context, namespace, name string) error
	DpuDeleted(ctx context.Context, namespace, name string) (bool, error)
}

// Client is the dynamic-client-backed KubeClientProvider implementation.
type Client struct {
	dyn dynamic.Interface
}

// New wraps an already-constructed dynamic.Interface (built by the caller
// from in-cluster or kubeconfig rest.Config — Carbide's own process
// bootstrap, not a controller-runtime manager).
func New(dyn dynamic.Interface) *Client {
	return &Client{dyn: dyn}
}

var _ KubeClientProvider = (*Client)(nil)

func (c *Client) CreateDpuDevice(ctx context.Context, namespace, name string, spec map[string]interface{}) error {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "dpf.nvidia.com/v1alpha1",
		"kind":       "DPUDevice",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": spec,
	}}
	_, err := c.dyn.Resource(dpuDeviceGVR).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return carbideerr.AlreadyExists("CreateDpuDevice", "DPUDevice", name)
	}
	if err != nil {
		return carbideerr.DpfError("CreateDpuDevice", "create failed", err)
	}
	return nil
}

func (c *Client) CreateDpuNode(ctx context.Context, namespace, name string, spec map[string]interface{}) error {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "dpf.nvidia.com/v1alpha1",
		"kind":       "DPUNode",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
		},
		"spec": spec,
	}}
	_, err := c.dyn.Resource(dpuNodeGVR).Namespace(namespace).Create(ctx, obj, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return carbideerr.AlreadyExists("CreateDpuNode", "DPUNode", name)
	}
	if err != nil {
		return carbideerr.DpfError("CreateDpuNode", "create failed", err)
	}
	return nil
}

// WaitForDpuDeviceReady makes one non-blocking check of the DPUDevice's
// status.ready field; the reconciler's own iteration cadence provides the
// "wait" by re-invoking this on the next pass rather than blocking here.
func (c *Client) WaitForDpuDeviceReady(ctx context.Context, namespace, name string) error {
	obj, err := c.dyn.Resource(dpuDeviceGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return carbideerr.NotFound("WaitForDpuDeviceReady", "DPUDevice", name)
	}
	if err != nil {
		return carbideerr.DpfError("WaitForDpuDeviceReady", "get failed", err)
	}
	ready, found, err := unstructured.NestedBool(obj.Object, "status", "ready")
	if err != nil {
		return carbideerr.DpfError("WaitForDpuDeviceReady", "malformed status.ready", err)
	}
	if !found || !ready {
		return carbideerr.DpfError("WaitForDpuDeviceReady", "device not ready", errNotReady)
	}
	return nil
}

func (c *Client) UpdateNodeEffectAnnotation(ctx context.Context, namespace, name, effect string) error {
	return c.patchAnnotation(ctx, namespace, name, NodeEffectAnnotation, &effect)
}

func (c *Client) RemoveNodeEffectAnnotation(ctx context.Context, namespace, name string) error {
	return c.patchAnnotation(ctx, namespace, name, NodeEffectAnnotation, nil)
}

func (c *Client) patchAnnotation(ctx context.Context, namespace, name, key string, value *string) error {
	obj, err := c.dyn.Resource(dpuNodeGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return carbideerr.NotFound("patchAnnotation", "DPUNode", name)
	}
	if err != nil {
		return carbideerr.DpfError("patchAnnotation", "get failed", err)
	}
	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	if value == nil {
		delete(annotations, key)
	} else {
		annotations[key] = *value
	}
	obj.SetAnnotations(annotations)
	_, err = c.dyn.Resource(dpuNodeGVR).Namespace(namespace).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return carbideerr.DpfError("patchAnnotation", "update failed", err)
	}
	return nil
}

func (c *Client) UpdateDpuStatusToError(ctx context.Context, namespace, name, reason string) error {
	obj, err := c.dyn.Resource(dpuDeviceGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return carbideerr.NotFound("UpdateDpuStatusToError", "DPUDevice", name)
	}
	if err != nil {
		return carbideerr.DpfError("UpdateDpuStatusToError", "get failed", err)
	}
	if err := unstructured.SetNestedField(obj.Object, "Error", "status", "phase"); err != nil {
		return carbideerr.DpfError("UpdateDpuStatusToError", "set phase failed", err)
	}
	if err := unstructured.SetNestedField(obj.Object, reason, "status", "reason"); err != nil {
		return carbideerr.DpfError("UpdateDpuStatusToError", "set reason failed", err)
	}
	_, err = c.dyn.Resource(dpuDeviceGVR).Namespace(namespace).UpdateStatus(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		return carbideerr.DpfError("UpdateDpuStatusToError", "status update failed", err)
	}
	return nil
}

func (c *Client) DeleteDpu(ctx context.Context, namespace, name string) error {
	err := c.dyn.Resource(dpuDeviceGVR).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return carbideerr.DpfError("DeleteDpu", "delete failed", err)
	}
	return nil
}

func (c *Client) DpuDeleted(ctx context.Context, namespace, name string) (bool, error) {
	_, err := c.dyn.Resource(dpuDeviceGVR).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return true, nil
	}
	if err != nil {
		return false, carbideerr.DpfError("DpuDeleted", "get failed", err)
	}
	return false, nil
}
