package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"

	"github.com/containermaker/container-maker-server/pkg/config"
	"github.com/containermaker/container-maker-server/pkg/health"
	"github.com/containermaker/container-maker-server/pkg/k8sclient"
	"github.com/containermaker/container-maker-server/pkg/orchestrator"
	"github.com/containermaker/container-maker-server/pkg/resources/ingress"
	"github.com/containermaker/container-maker-server/pkg/resources/namespace"
	"github.com/containermaker/container-maker-server/pkg/resources/pod"
	"github.com/containermaker/container-maker-server/pkg/resources/service"
	"github.com/containermaker/container-maker-server/pkg/rpc"
	"github.com/containermaker/container-maker-server/pkg/snapshot"
	"github.com/containermaker/container-maker-server/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:   "containermakerd [options]",
	Short: "Container Maker gRPC server",
	Long: `
Container Maker gRPC server

Exposes createContainer, listContainer, getContainer, deleteContainer
and saveContainer over gRPC, composing Kubernetes namespaces, pods,
services and ingresses into a logical Container at a chosen exposure
level.

  # show this help
  containermakerd -h

  # show version information
  containermakerd --version

  # start the server on the default address/port
  containermakerd

  # start with TLS enabled
  containermakerd --use_ssl`,
	Run: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("version") {
			fmt.Println(version.Version)
			return
		}
		initLogging()
		if err := run(); err != nil {
			klog.Errorf("containermakerd exited with error: %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and quit")
	rootCmd.Flags().Int("server_threads", 10, "Number of gRPC stream worker goroutines")
	rootCmd.Flags().String("address", "[::]", "Address to listen on")
	rootCmd.Flags().Int("port", 50052, "Port to listen on")
	rootCmd.Flags().Bool("use_ssl", false, "Enable TLS on the gRPC listener")
	rootCmd.Flags().Int("health_port", 8082, "Port serving /healthz and /readyz")
	rootCmd.Flags().String("kubeconfig", "", "Path to a kubeconfig file (defaults to in-cluster config)")
	rootCmd.Flags().Int("log_level", 0, "klog verbosity level")
	_ = viper.BindPFlags(rootCmd.Flags())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

func initLogging() {
	logLevel := viper.GetInt("log_level")
	if logLevel < 0 {
		logLevel = 0
	}
	cfg := textlogger.NewConfig(
		textlogger.Output(os.Stderr),
		textlogger.Verbosity(logLevel),
	)
	logger := textlogger.NewLogger(cfg)
	klog.SetLoggerWithOptions(logger)

	flagSet := flag.NewFlagSet("containermakerd", flag.ContinueOnError)
	klog.InitFlags(flagSet)
	if err := flagSet.Parse([]string{"--v", strconv.Itoa(logLevel)}); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing log level: %v\n", err)
	}
	klog.V(0).Infof("logging initialized with level %d", logLevel)
}

func run() error {
	client, err := k8sclient.New(viper.GetString("kubeconfig"))
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	snapshotEngine, err := snapshot.New(client)
	if err != nil {
		return fmt.Errorf("building snapshot engine: %w", err)
	}

	podManager := pod.New(client.Clientset, snapshotEngine)
	serviceManager := service.New(client.Clientset, podManager)
	ingressManager := ingress.New(client.Clientset, serviceManager)
	namespaceManager := namespace.New(client.Clientset)
	orch := orchestrator.New(namespaceManager, podManager, serviceManager, ingressManager)
	facade := rpc.NewFacade(orch)

	serverOpts, err := grpcServerOptions()
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(serverOpts...)
	rpc.RegisterContainerMakerAPIServer(grpcServer, facade)

	address := fmt.Sprintf("%s:%d", viper.GetString("address"), viper.GetInt("port"))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}

	checker := health.NewHealthChecker(client)
	healthMux := http.NewServeMux()
	health.AttachHealthEndpoints(healthMux, checker)
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", viper.GetInt("health_port")),
		Handler: healthMux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 2)
	go func() {
		klog.V(0).Infof("gRPC server listening on %s", address)
		checker.SetReady(true)
		if err := grpcServer.Serve(listener); err != nil {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		klog.V(0).Infof("health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("health server: %w", err)
		}
	}()

	select {
	case sig := <-sigChan:
		klog.V(0).Infof("received signal %v, shutting down gracefully", sig)
		checker.SetReady(false)
		grpcServer.GracefulStop()
		_ = healthServer.Close()
		return nil
	case err := <-serveErr:
		return err
	}
}

func grpcServerOptions() ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{
		grpc.NumStreamWorkers(uint32(viper.GetInt("server_threads"))),
	}

	if !viper.GetBool("use_ssl") {
		return opts, nil
	}

	keyPEM, err := config.ReadCertMaterial("SERVER_KEY", "./cert/server.key")
	if err != nil {
		return nil, err
	}
	certPEM, err := config.ReadCertMaterial("SERVER_CRT", "./cert/server.crt")
	if err != nil {
		return nil, err
	}
	caPEM, err := config.ReadCertMaterial("CA_CRT", "./cert/ca.crt")
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("loading server key pair: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}

	opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	return opts, nil
}
