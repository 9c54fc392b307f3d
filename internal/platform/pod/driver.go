package pod

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"maestro/internal/api"
	"maestro/internal/platform"
	"maestro/pkg/logging"
)

const (
	podSubsystem = "PodDriver"

	// configMountDir is where the managed server image reads its
	// configuration inside the pod. The ConfigMap key appears as
	// {configMountDir}/config.yaml.
	configMountDir = "/etc/managed-server"
	configKey      = "config.yaml"

	managedByLabel = "app.kubernetes.io/managed-by"
	instanceLabel  = "maestro.io/instance"
)

// Config holds the pod driver settings.
type Config struct {
	// Image is the managed server image to run.
	Image string

	// Namespace is where pods and config maps are created.
	// Defaults to "default".
	Namespace string

	// ShutdownTimeout becomes the pod deletion grace period.
	// Defaults to 10 seconds.
	ShutdownTimeout time.Duration
}

// Driver runs managed servers as Kubernetes pods. Each instance gets
// one pod and one ConfigMap carrying the materialized configuration.
type Driver struct {
	mu      sync.Mutex
	cfg     Config
	cl      client.Client
	tracked map[string]*api.RuntimeInfo
}

// New creates a pod driver connected to the cluster resolved by the
// standard kubeconfig / in-cluster detection chain.
func New(cfg Config) (*Driver, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("pod driver requires an image")
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("no Kubernetes cluster access: %w", err)
	}

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))

	cl, err := client.New(restConfig, client.Options{
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return newDriver(cfg, cl), nil
}

// newDriver wires a driver to an existing client. Tests inject a fake
// client here.
func newDriver(cfg Config, cl client.Client) *Driver {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Driver{
		cfg:     cfg,
		cl:      cl,
		tracked: make(map[string]*api.RuntimeInfo),
	}
}

// Platform reports the platform kind this driver serves.
func (d *Driver) Platform() api.PlatformKind {
	return api.PlatformPod
}

// Available verifies the cluster is reachable and the driver may list
// pods in its namespace.
func (d *Driver) Available(ctx context.Context) error {
	podList := &corev1.PodList{}
	if err := d.cl.List(ctx, podList, client.InNamespace(d.cfg.Namespace), client.Limit(1)); err != nil {
		return fmt.Errorf("kubernetes cluster not usable: %w", err)
	}
	return nil
}

// Allocate returns the binding for a configuration that does not pin a
// port. Pods get their own network namespace, so the shared host port
// pool does not apply and nothing is reserved.
func (d *Driver) Allocate(_ *platform.PortAllocator, _ string) (api.ServerBinding, error) {
	return api.ServerBinding{
		Host: "0.0.0.0",
		Port: platform.DefaultPortRangeStart,
	}, nil
}

// Start creates the instance's ConfigMap and pod and reports the
// observed runtime info.
func (d *Driver) Start(ctx context.Context, instanceID string, cfg api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	if info, ok := d.tracked[instanceID]; ok && info.Status == api.StatusRunning {
		d.mu.Unlock()
		return nil, api.NewConflictError(instanceID, "pod already running")
	}
	d.mu.Unlock()

	if cfg.Port == 0 {
		binding, err := d.Allocate(nil, instanceID)
		if err != nil {
			return nil, api.NewPlatformError(api.PlatformPod, "allocate", instanceID, err)
		}
		cfg.Host = binding.Host
		cfg.Port = binding.Port
	}

	data, err := platform.MarshalConfig(cfg)
	if err != nil {
		return nil, api.NewPlatformError(api.PlatformPod, "start", instanceID, err)
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      configMapName(instanceID),
			Namespace: d.cfg.Namespace,
			Labels:    instanceLabels(instanceID),
		},
		Data: map[string]string{
			configKey: string(data),
		},
	}
	if err := d.cl.Create(ctx, cm); err != nil {
		if !apierrors.IsAlreadyExists(err) {
			return nil, api.NewPlatformError(api.PlatformPod, "start", instanceID,
				fmt.Errorf("failed to create config map: %w", err))
		}
		// Restart path: the config map survives stops, refresh it.
		if err := d.cl.Update(ctx, cm); err != nil {
			return nil, api.NewPlatformError(api.PlatformPod, "start", instanceID,
				fmt.Errorf("failed to update config map: %w", err))
		}
	}

	pod := d.buildPod(instanceID, cfg)
	if err := d.cl.Create(ctx, pod); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil, api.NewConflictError(instanceID, "pod already exists")
		}
		return nil, api.NewPlatformError(api.PlatformPod, "start", instanceID,
			fmt.Errorf("failed to create pod: %w", err))
	}

	now := time.Now()
	info := &api.RuntimeInfo{
		InstanceID:   instanceID,
		Status:       api.StatusRunning,
		StartedAt:    now,
		PodName:      pod.Name,
		PodNamespace: pod.Namespace,
		Metadata: map[string]string{
			"configMap": cm.Name,
			"port":      strconv.Itoa(cfg.Port),
		},
	}

	d.mu.Lock()
	d.tracked[instanceID] = info
	clone := info.Clone()
	d.mu.Unlock()

	logging.Info(podSubsystem, "Started pod %s/%s for instance %s", pod.Namespace, pod.Name, instanceID)
	return clone, nil
}

// Stop deletes the instance's pod with the configured grace period. The
// ConfigMap stays so a later start can refresh it.
func (d *Driver) Stop(ctx context.Context, instanceID string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	info, ok := d.tracked[instanceID]
	d.mu.Unlock()
	if !ok {
		return nil, api.NewRuntimeNotFoundError(instanceID)
	}

	grace := int64(d.cfg.ShutdownTimeout / time.Second)
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(instanceID),
			Namespace: d.cfg.Namespace,
		},
	}
	if err := d.cl.Delete(ctx, pod, client.GracePeriodSeconds(grace)); err != nil && !apierrors.IsNotFound(err) {
		return nil, api.NewPlatformError(api.PlatformPod, "stop", instanceID,
			fmt.Errorf("failed to delete pod: %w", err))
	}

	d.mu.Lock()
	info.Status = api.StatusStopped
	info.ErrorMessage = ""
	if info.StoppedAt == nil {
		now := time.Now()
		info.StoppedAt = &now
	}
	clone := info.Clone()
	d.mu.Unlock()

	logging.Info(podSubsystem, "Stopped pod %s/%s for instance %s", d.cfg.Namespace, pod.Name, instanceID)
	return clone, nil
}

// Restart stops and then starts the pod.
func (d *Driver) Restart(ctx context.Context, instanceID string, cfg *api.DeclaredConfiguration) (*api.RuntimeInfo, error) {
	return platform.RestartByStopStart(ctx, d, instanceID, cfg)
}

// Status reads the live pod phase and refreshes the tracked runtime
// info.
func (d *Driver) Status(ctx context.Context, instanceID string) (*api.RuntimeInfo, error) {
	d.mu.Lock()
	info, ok := d.tracked[instanceID]
	d.mu.Unlock()
	if !ok {
		return nil, api.NewRuntimeNotFoundError(instanceID)
	}

	pod := &corev1.Pod{}
	key := client.ObjectKey{Name: podName(instanceID), Namespace: d.cfg.Namespace}
	if err := d.cl.Get(ctx, key, pod); err != nil {
		if !apierrors.IsNotFound(err) {
			return nil, api.NewPlatformError(api.PlatformPod, "status", instanceID,
				fmt.Errorf("failed to get pod: %w", err))
		}

		// The pod is gone. If we stopped it that is expected, a
		// disappearance while running is an error.
		d.mu.Lock()
		if info.Status == api.StatusRunning || info.Status == api.StatusCreated {
			info.Status = api.StatusError
			info.ErrorMessage = "pod no longer exists"
			if info.StoppedAt == nil {
				now := time.Now()
				info.StoppedAt = &now
			}
		}
		clone := info.Clone()
		d.mu.Unlock()
		return clone, nil
	}

	status, errorMessage, metadata := mapPodPhase(pod)

	d.mu.Lock()
	info.Status = status
	info.ErrorMessage = errorMessage
	for k, v := range metadata {
		info.Metadata[k] = v
	}
	if status == api.StatusStopped || status == api.StatusError {
		if info.StoppedAt == nil {
			now := time.Now()
			info.StoppedAt = &now
		}
	}
	clone := info.Clone()
	d.mu.Unlock()

	return clone, nil
}

// ListAll returns runtime info for every tracked instance.
func (d *Driver) ListAll(ctx context.Context) ([]*api.RuntimeInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos := make([]*api.RuntimeInfo, 0, len(d.tracked))
	for _, info := range d.tracked {
		infos = append(infos, info.Clone())
	}
	return infos, nil
}

// Purge removes the pod and its ConfigMap after the final stop.
func (d *Driver) Purge(ctx context.Context, instanceID string) error {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(instanceID),
			Namespace: d.cfg.Namespace,
		},
	}
	if err := d.cl.Delete(ctx, pod); err != nil && !apierrors.IsNotFound(err) {
		return api.NewPlatformError(api.PlatformPod, "purge", instanceID,
			fmt.Errorf("failed to delete pod: %w", err))
	}

	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      configMapName(instanceID),
			Namespace: d.cfg.Namespace,
		},
	}
	if err := d.cl.Delete(ctx, cm); err != nil && !apierrors.IsNotFound(err) {
		return api.NewPlatformError(api.PlatformPod, "purge", instanceID,
			fmt.Errorf("failed to delete config map: %w", err))
	}

	d.mu.Lock()
	delete(d.tracked, instanceID)
	d.mu.Unlock()

	logging.Debug(podSubsystem, "Purged pod artifacts for instance %s", instanceID)
	return nil
}

// buildPod assembles the pod manifest for an instance. The kubelet must
// not restart the managed server on its own, restarts belong to the
// control plane.
func (d *Driver) buildPod(instanceID string, cfg api.DeclaredConfiguration) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName(instanceID),
			Namespace: d.cfg.Namespace,
			Labels:    instanceLabels(instanceID),
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:  "managed-server",
					Image: d.cfg.Image,
					Ports: []corev1.ContainerPort{
						{ContainerPort: int32(cfg.Port)},
					},
					VolumeMounts: []corev1.VolumeMount{
						{
							Name:      "config",
							MountPath: configMountDir,
							ReadOnly:  true,
						},
					},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: "config",
					VolumeSource: corev1.VolumeSource{
						ConfigMap: &corev1.ConfigMapVolumeSource{
							LocalObjectReference: corev1.LocalObjectReference{
								Name: configMapName(instanceID),
							},
						},
					},
				},
			},
		},
	}
}

// mapPodPhase maps a pod phase onto an instance status plus error
// message and exit metadata where the phase carries them.
func mapPodPhase(pod *corev1.Pod) (api.InstanceStatus, string, map[string]string) {
	switch pod.Status.Phase {
	case corev1.PodRunning:
		return api.StatusRunning, "", nil
	case corev1.PodPending:
		return api.StatusCreated, "", nil
	case corev1.PodSucceeded:
		return api.StatusStopped, "", nil
	case corev1.PodFailed:
		message, metadata := terminationDetails(pod)
		if message == "" {
			message = "pod failed"
		}
		return api.StatusError, message, metadata
	default:
		return api.StatusError, fmt.Sprintf("pod in phase %q", pod.Status.Phase), nil
	}
}

// terminationDetails extracts the exit code, time and reason from the
// first terminated container status.
func terminationDetails(pod *corev1.Pod) (string, map[string]string) {
	for _, cs := range pod.Status.ContainerStatuses {
		term := cs.State.Terminated
		if term == nil {
			continue
		}
		reason := term.Reason
		if reason == "" {
			reason = "pod failed"
		}
		metadata := map[string]string{
			"exitCode": strconv.Itoa(int(term.ExitCode)),
			"exitTime": term.FinishedAt.Format(time.RFC3339),
			"reason":   reason,
		}
		return fmt.Sprintf("managed server exited with code %d", term.ExitCode), metadata
	}

	if pod.Status.Message != "" {
		return pod.Status.Message, nil
	}
	return "", nil
}

func podName(instanceID string) string {
	return "maestro-" + instanceID
}

func configMapName(instanceID string) string {
	return podName(instanceID) + "-config"
}

func instanceLabels(instanceID string) map[string]string {
	return map[string]string{
		managedByLabel: "maestro",
		instanceLabel:  instanceID,
	}
}
