package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
)

func newExecutor(cfg *rest.Config, clientset kubernetes.Interface, namespace, podName, containerName string, command []string) (remotecommand.Executor, error) {
	req := clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(podName).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: containerName,
			Command:   command,
			Stdin:     false,
			Stdout:    true,
			Stderr:    true,
			TTY:       false,
		}, scheme.ParameterCodec)

	return remotecommand.NewSPDYExecutor(cfg, "POST", req.URL())
}

// ExecBuffered runs a short command in the named container and returns
// its full combined stdout+stderr as a single string, once the command
// exits. Used for all non-streaming pipeline steps.
func (e *Engine) ExecBuffered(ctx context.Context, namespace, podName, containerName, command string) (string, error) {
	exec, err := newExecutor(e.restCfg, e.clientset, namespace, podName, containerName, []string{"/bin/bash", "-c", command})
	if err != nil {
		return "", apierrors.NewAPIError("failed to build exec session", err)
	}

	var out bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &out,
		Stderr: &out,
	})
	if err != nil {
		if ctx.Err() != nil {
			return out.String(), apierrors.NewTimeoutError("command in %s/%s timed out: %v", podName, containerName, ctx.Err())
		}
		return out.String(), apierrors.NewAPIError("command execution failed", err)
	}
	return strings.TrimSpace(out.String()), nil
}

// ExecStream runs a long-running command in the named container,
// streaming each output line to the engine's logger as it arrives and
// accumulating the full output, bounded by the given absolute timeout.
// The underlying exec session is guaranteed to be released on every exit
// path (command completion, stream error, or timeout).
func (e *Engine) ExecStream(ctx context.Context, namespace, podName, containerName, command string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec, err := newExecutor(e.restCfg, e.clientset, namespace, podName, containerName, []string{"/bin/bash", "-c", command})
	if err != nil {
		return "", apierrors.NewAPIError("failed to build exec session", err)
	}

	pr, pw := io.Pipe()
	streamErr := make(chan error, 1)
	go func() {
		err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdout: pw,
			Stderr: pw,
		})
		_ = pw.CloseWithError(err)
		streamErr <- err
	}()

	var output strings.Builder
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line)
		output.WriteByte('\n')
		if strings.TrimSpace(line) != "" {
			e.log.WithField("container", containerName).Info(line)
		}
	}

	err = <-streamErr
	if err != nil {
		if ctx.Err() != nil {
			return output.String(), apierrors.NewTimeoutError("command in %s/%s exceeded %s", podName, containerName, timeout)
		}
		return output.String(), apierrors.NewAPIError("streamed command execution failed", err)
	}
	return strings.TrimSpace(output.String()), nil
}
