package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/k8sclient"
)

// Engine drives the nine-step snapshot-to-registry pipeline: build a tar
// of the main container's filesystem inside the shared EmptyDir volume,
// unpack it in the snapshot sidecar, wrap it in a Dockerfile, build, tag,
// login, push, and garbage-collect the local image copy. Grounded on
// original_source/src/resources/pod_manager.py's ExecUtility/SaveUtility.
type Engine struct {
	restCfg    *rest.Config
	clientset  kubernetes.Interface
	repoName   string
	repoPass   string
	log        *logrus.Entry
}

// New builds a snapshot Engine. REPO_NAME and REPO_PASSWORD are required
// process-wide configuration; their absence is a startup-visible error
// per spec §4.6 step 0, not a deferred per-call failure.
func New(client *k8sclient.Client) (*Engine, error) {
	repoName := os.Getenv(config.RepoNameEnvVar)
	repoPass := os.Getenv(config.RepoPasswordEnvVar)
	if repoName == "" || repoPass == "" {
		return nil, apierrors.NewConfigError(
			"snapshot engine: %s and %s must both be set", config.RepoNameEnvVar, config.RepoPasswordEnvVar)
	}
	return &Engine{
		restCfg:   client.Config,
		clientset: client.Clientset,
		repoName:  repoName,
		repoPass:  repoPass,
		log:       logrus.WithField("component", "snapshot-engine"),
	}, nil
}

// SaveImage runs the full pipeline against target and returns the local
// image name "<pod-name>-image:latest"; the repo-qualified reference that
// was pushed is not returned.
func (e *Engine) SaveImage(ctx context.Context, target Target) (string, error) {
	log := e.log.WithField("pod", target.PodName).WithField("namespace", target.Namespace)

	// Step 1: precondition — the shared EmptyDir volume must be mounted
	// and writable in both the main container and the snapshot sidecar
	// before any tar/untar work is attempted.
	if err := e.checkSharedVolume(ctx, target); err != nil {
		return "", err
	}

	// Step 2: build a tar of the main container's filesystem into the
	// shared volume.
	tarPath := fmt.Sprintf("%s/%s.tar", config.SnapshotMountPath, config.SnapshotTarName)
	buildTarCmd := fmt.Sprintf("tar -cf %s --exclude=%s -C / .", tarPath, config.SnapshotMountPath)
	if _, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.PodName, buildTarCmd); err != nil {
		return "", fmt.Errorf("building filesystem tar: %w", err)
	}
	log.Info("built filesystem snapshot tar in main container")

	// Step 3: unpack the tar inside the snapshot sidecar, which has its
	// own rootfs staging directory under the shared mount.
	unpackCmd := fmt.Sprintf("mkdir -p %s/rootfs && tar -xf %s -C %s/rootfs", config.SnapshotMountPath, tarPath, config.SnapshotMountPath)
	if _, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, unpackCmd); err != nil {
		return "", fmt.Errorf("unpacking snapshot tar in sidecar: %w", err)
	}
	log.Info("unpacked snapshot tar in sidecar")

	// Step 4: write a minimal Dockerfile that layers the unpacked rootfs.
	dockerfile := "FROM scratch\nCOPY rootfs/ /\n"
	writeDockerfileCmd := fmt.Sprintf("cat > %s/Dockerfile <<'EOF'\n%sEOF", config.SnapshotMountPath, dockerfile)
	if _, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, writeDockerfileCmd); err != nil {
		return "", fmt.Errorf("writing dockerfile: %w", err)
	}

	// localTag is the fixed "<pod-name>-image:latest" convention spec'd
	// by the save-container contract (original_source's
	// `image_name = f'{data.pod_name}-image:latest'`); pushTag is the
	// distinct repo-qualified reference actually sent to the registry.
	localTag := fmt.Sprintf("%s-image:latest", target.PodName)
	pushTag := fmt.Sprintf("%s/%s", e.repoName, localTag)

	// Step 5: build the image under the local tag, retrying
	// unconditionally on any failure — a Dockerfile syntax error, a full
	// disk, or a daemon hiccup are all retried alike, matching
	// pod_manager.py:build_image's unconditional retry loop — then
	// verify both that the output reports success AND that `docker
	// images` actually finds the tag, per spec step 5.
	buildCmd := fmt.Sprintf("docker build -t %s %s", localTag, config.SnapshotMountPath)
	buildOutput, err := retryWithBackoff(ctx, config.BuildMaxRetries, config.BuildBackoffBase,
		func(attempt int) (string, error) {
			return e.ExecStream(ctx, target.Namespace, target.PodName, target.SidecarName, buildCmd, config.SnapshotBuildTimeout)
		},
		isBuildSuccess,
		alwaysRetryable,
	)
	if err != nil {
		return "", fmt.Errorf("building image after %d attempts: %w", config.BuildMaxRetries, err)
	}
	if !isBuildSuccess(buildOutput) {
		return "", apierrors.NewAPIError("image build did not report success", errors.New(truncate(buildOutput, 500)))
	}

	verifyCmd := fmt.Sprintf("docker images %s", localTag)
	verifyOutput, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, verifyCmd)
	if err != nil {
		return "", fmt.Errorf("verifying built image: %w", err)
	}
	if !strings.Contains(verifyOutput, localTag) {
		return "", apierrors.NewAPIError("built image not found by docker images", errors.New(truncate(verifyOutput, 500)))
	}
	log.Info("built and verified image")

	// Step 6: tag the verified local image with the repo-qualified
	// reference that will actually be pushed.
	tagCmd := fmt.Sprintf("docker tag %s %s", localTag, pushTag)
	if _, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, tagCmd); err != nil {
		return "", fmt.Errorf("tagging image: %w", err)
	}

	// Step 7: docker login, retried when the output matches the closed
	// set of substrings in retryableSubstrings (error, timeout,
	// connection, network, unauthorized, authentication); an exec error
	// is retried regardless of output.
	loginCmd := fmt.Sprintf("docker login -u %s -p %s", e.repoName, e.repoPass)
	_, err = retryWithBackoff(ctx, config.LoginMaxRetries, config.LoginBackoffBase,
		func(attempt int) (string, error) {
			return e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, loginCmd)
		},
		isLoginSuccess,
		isRetryableOutput,
	)
	if err != nil {
		return "", fmt.Errorf("docker login after %d attempts: %w", config.LoginMaxRetries, err)
	}
	log.Info("logged in to registry")

	// Step 8: push the repo-qualified tag, bounded by SnapshotPushTimeout
	// via the streamed exec variant so push progress is visible in logs.
	pushCmd := fmt.Sprintf("docker push %s", pushTag)
	pushOutput, err := e.ExecStream(ctx, target.Namespace, target.PodName, target.SidecarName, pushCmd, config.SnapshotPushTimeout)
	if err != nil {
		return "", fmt.Errorf("pushing image: %w", err)
	}
	if !isPushSuccess(pushOutput) {
		return "", apierrors.NewAPIError("image push did not report success", errors.New(truncate(pushOutput, 500)))
	}
	log.Info("pushed image")

	// Step 9: local garbage collection of both tags. Failure here is
	// logged, not fatal — see the Open Question resolution on
	// SaveUtility's local GC behavior: the original raises on this
	// failure, but the redesign explicitly treats it as a best-effort
	// cleanup step.
	gcCmd := fmt.Sprintf("docker rmi %s %s", localTag, pushTag)
	if out, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, gcCmd); err != nil {
		log.WithError(err).WithField("output", out).Warn("local image garbage collection failed, continuing")
	}

	return localTag, nil
}

func (e *Engine) checkSharedVolume(ctx context.Context, target Target) error {
	checkCmd := fmt.Sprintf("test -d %s && test -w %s", config.SnapshotMountPath, config.SnapshotMountPath)
	if _, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.PodName, checkCmd); err != nil {
		return apierrors.NewAPIError(fmt.Sprintf("shared snapshot volume not ready in main container %q", target.PodName), err)
	}
	if _, err := e.ExecBuffered(ctx, target.Namespace, target.PodName, target.SidecarName, checkCmd); err != nil {
		return apierrors.NewAPIError(fmt.Sprintf("shared snapshot volume not ready in sidecar %q", target.SidecarName), err)
	}
	return nil
}

func isBuildSuccess(output string) bool {
	return strings.Contains(output, "Successfully built") || strings.Contains(output, "Successfully tagged")
}

func isLoginSuccess(output string) bool {
	return strings.Contains(output, "Login Succeeded")
}

func isPushSuccess(output string) bool {
	return strings.Contains(output, "Pushed") || strings.Contains(output, "digest:")
}
