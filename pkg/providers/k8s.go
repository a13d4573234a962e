package providers

import (
	"context"
	"fmt"
	"sort"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/yaml"

	"github.com/tarkyaio/tarka/pkg/models"
)

// K8sClient implements K8sProvider. It never performs a write operation
// against the API server — every call it issues is a Get or List.
type K8sClient struct {
	clientset kubernetes.Interface
}

// NewK8sClient builds a client from a kubeconfig path, or from in-cluster
// config when kubeconfigPath is empty.
func NewK8sClient(kubeconfigPath string) (*K8sClient, error) {
	var cfg *rest.Config
	var err error
	if kubeconfigPath == "" {
		cfg, err = rest.InClusterConfig()
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	}
	if err != nil {
		return nil, fmt.Errorf("providers: build kube config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("providers: build kube clientset: %w", err)
	}
	return &K8sClient{clientset: clientset}, nil
}

// FetchContext resolves the identity's object, its owner chain, and any
// Warning/Normal events attached to it. A pod that no longer exists (e.g.
// already TTL-deleted by the kubelet) reports SlotEmpty, not
// SlotUnavailable: the API server answered, it simply has nothing left to
// show.
func (c *K8sClient) FetchContext(ctx context.Context, identity models.Identity) models.K8sContextSlot {
	if identity.Status != models.IdentityOK {
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: "identity not resolved"}
	}

	switch identity.Kind {
	case "Pod":
		return c.fetchPodContext(ctx, identity)
	case "Node":
		return c.fetchNodeContext(ctx, identity)
	case "Job":
		return c.fetchJobContext(ctx, identity)
	default:
		return c.fetchGenericContext(ctx, identity)
	}
}

func (c *K8sClient) fetchPodContext(ctx context.Context, identity models.Identity) models.K8sContextSlot {
	pod, err := c.clientset.CoreV1().Pods(identity.Namespace).Get(ctx, identity.Name, metav1.GetOptions{})
	if err != nil {
		if isNotFound(err) {
			return models.K8sContextSlot{Status: models.SlotEmpty, Reason: "pod no longer exists"}
		}
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	objYAML, _ := yaml.Marshal(pod)

	events, err := c.fetchEvents(ctx, identity.Namespace, pod.Name, "Pod")
	if err != nil {
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	return models.K8sContextSlot{
		Status:          models.SlotOK,
		ObjectYAML:      string(objYAML),
		OwnerChain:      ownerChain(pod.OwnerReferences),
		Events:          events,
		NodeName:        pod.Spec.NodeName,
		Phase:           string(pod.Status.Phase),
		Conditions:      podConditions(pod.Status.Conditions),
		ContainerStates: containerStates(pod.Status.ContainerStatuses),
	}
}

func podConditions(conds []corev1.PodCondition) []models.K8sCondition {
	out := make([]models.K8sCondition, 0, len(conds))
	for _, c := range conds {
		out = append(out, models.K8sCondition{
			Type:    string(c.Type),
			Status:  string(c.Status),
			Reason:  c.Reason,
			Message: c.Message,
		})
	}
	return out
}

func containerStates(statuses []corev1.ContainerStatus) []models.ContainerState {
	out := make([]models.ContainerState, 0, len(statuses))
	for _, cs := range statuses {
		state := models.ContainerState{
			Name:         cs.Name,
			Ready:        cs.Ready,
			RestartCount: cs.RestartCount,
		}
		if cs.State.Waiting != nil {
			state.WaitingReason = cs.State.Waiting.Reason
			state.WaitingMessage = cs.State.Waiting.Message
		}
		if cs.LastTerminationState.Terminated != nil {
			state.LastTermReason = cs.LastTerminationState.Terminated.Reason
			state.LastExitCode = cs.LastTerminationState.Terminated.ExitCode
		}
		out = append(out, state)
	}
	return out
}

func (c *K8sClient) fetchNodeContext(ctx context.Context, identity models.Identity) models.K8sContextSlot {
	node, err := c.clientset.CoreV1().Nodes().Get(ctx, identity.Name, metav1.GetOptions{})
	if err != nil {
		if isNotFound(err) {
			return models.K8sContextSlot{Status: models.SlotEmpty, Reason: "node no longer exists"}
		}
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}
	objYAML, _ := yaml.Marshal(node)

	events, err := c.fetchEvents(ctx, "", node.Name, "Node")
	if err != nil {
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	return models.K8sContextSlot{Status: models.SlotOK, ObjectYAML: string(objYAML), Events: events}
}

// fetchGenericContext covers Deployment/Job/other owner-shaped kinds by
// listing events scoped to the identity's name; the full object body is
// left empty since Tarka only has typed clients for Pod/Node (spec.md's
// non-goal on write operations, not on read breadth, but additional typed
// fetchers are a natural extension point — see DESIGN.md).
func (c *K8sClient) fetchGenericContext(ctx context.Context, identity models.Identity) models.K8sContextSlot {
	events, err := c.fetchEvents(ctx, identity.Namespace, identity.Name, identity.Kind)
	if err != nil {
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}
	if len(events) == 0 {
		return models.K8sContextSlot{Status: models.SlotEmpty}
	}
	return models.K8sContextSlot{Status: models.SlotOK, Events: events}
}

// fetchJobContext resolves a Job's status/spec (attempts, backoff_limit,
// failure condition) for the job_failed family's feature extraction —
// this is the object body generic identities don't otherwise get, since a
// TTL-deleted Job's pod can no longer answer these questions itself.
func (c *K8sClient) fetchJobContext(ctx context.Context, identity models.Identity) models.K8sContextSlot {
	job, err := c.clientset.BatchV1().Jobs(identity.Namespace).Get(ctx, identity.Name, metav1.GetOptions{})
	if err != nil {
		if isNotFound(err) {
			return models.K8sContextSlot{Status: models.SlotEmpty, Reason: "job no longer exists"}
		}
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	events, err := c.fetchEvents(ctx, identity.Namespace, job.Name, "Job")
	if err != nil {
		return models.K8sContextSlot{Status: models.SlotUnavailable, Reason: err.Error()}
	}

	backoffLimit := int32(6) // Kubernetes' default when spec.backoffLimit is unset
	if job.Spec.BackoffLimit != nil {
		backoffLimit = *job.Spec.BackoffLimit
	}

	var failureReason string
	for _, cond := range job.Status.Conditions {
		if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
			failureReason = cond.Reason
			break
		}
	}

	objYAML, _ := yaml.Marshal(job)

	return models.K8sContextSlot{
		Status:     models.SlotOK,
		ObjectYAML: string(objYAML),
		Events:     events,
		JobStatus: &models.JobStatusInfo{
			Active:        job.Status.Active,
			Succeeded:     job.Status.Succeeded,
			Failed:        job.Status.Failed,
			BackoffLimit:  backoffLimit,
			FailureReason: failureReason,
		},
	}
}

// ResolvePodForOwner finds the live pod a Job is (or was) running, via the
// `job-name` label the Job controller sets on every pod it creates. Returns
// the most recently created match, or (_, false) once the pod has already
// been TTL-deleted — the caller then falls back to a historical,
// prefix-matched log query.
func (c *K8sClient) ResolvePodForOwner(ctx context.Context, identity models.Identity) (string, bool) {
	if identity.Kind != "Job" {
		return "", false
	}

	list, err := c.clientset.CoreV1().Pods(identity.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", identity.Name),
	})
	if err != nil || len(list.Items) == 0 {
		return "", false
	}

	pods := list.Items
	sort.Slice(pods, func(i, j int) bool {
		return pods[i].CreationTimestamp.After(pods[j].CreationTimestamp.Time)
	})
	return pods[0].Name, true
}

func (c *K8sClient) fetchEvents(ctx context.Context, namespace, name, kind string) ([]models.K8sEvent, error) {
	fieldSelector := fmt.Sprintf("involvedObject.name=%s,involvedObject.kind=%s", name, kind)
	list, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{FieldSelector: fieldSelector})
	if err != nil {
		return nil, err
	}

	out := make([]models.K8sEvent, 0, len(list.Items))
	for _, e := range list.Items {
		out = append(out, models.K8sEvent{
			Reason:        e.Reason,
			Message:       e.Message,
			Type:          e.Type,
			Count:         e.Count,
			LastTimestamp: e.LastTimestamp.Time,
		})
	}
	return out, nil
}

func ownerChain(refs []metav1.OwnerReference) []models.OwnerRef {
	out := make([]models.OwnerRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, models.OwnerRef{Kind: r.Kind, Name: r.Name})
	}
	return out
}

func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}
