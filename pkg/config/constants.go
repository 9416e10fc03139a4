package config

import "time"

// Fixed names, ports and timeouts shared across resource managers, the
// snapshot engine, and the orchestrator. Grounded on
// original_source/src/resources/resource_config.py.
const (
	MainContainerNameSuffix = "main"
	SnapshotSidecarName     = "snapshot-sidecar"
	SnapshotSidecarImage    = "zim95/snapshot_sidecar:latest"
	StatusSidecarName       = "status-sidecar"
	StatusSidecarImage      = "zim95/status_sidecar:latest"

	SnapshotMountPath = "/mnt/snapshot"
	SnapshotTarName   = "full_fs_snapshot"

	PodNameSuffix     = "-pod"
	ServiceNameSuffix = "-service"
	IngressNameSuffix = "-ingress"

	// RepoNameEnvVar and RepoPasswordEnvVar hold the registry credentials
	// consumed by the snapshot engine's login/push steps.
	RepoNameEnvVar     = "REPO_NAME"
	RepoPasswordEnvVar = "REPO_PASSWORD"
)

// Poll timeouts, per spec §5's table.
const (
	PodRunningTimeout           = 80 * time.Second
	PodIPTimeout                = 20 * time.Second
	PodTerminationTimeout       = 20 * time.Second
	ServiceClusterIPTimeout     = 20 * time.Second
	ServiceTerminationTimeout   = 20 * time.Second
	IngressAddressTimeout       = 60 * time.Second
	IngressTerminationTimeout   = 20 * time.Second
	ContainerReadinessTimeout   = 30 * time.Second
	NamespaceTerminationTimeout = 20 * time.Second

	SnapshotBuildTimeout = 25 * time.Minute
	SnapshotPushTimeout  = 25 * time.Minute

	PollInterval = 1 * time.Second
)

// Retry policy, per spec §4.6's pipeline table / §5.
const (
	LoginMaxRetries  = 3
	LoginBackoffBase = 2 * time.Second

	BuildMaxRetries  = 3
	BuildBackoffBase = 5 * time.Second
)

// ServicePodsWorkerPoolSize bounds the fan-out of
// ServiceManager.SaveServicePods, per spec §4.4/§5.
const ServicePodsWorkerPoolSize = 4
