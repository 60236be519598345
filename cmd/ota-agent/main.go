package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	otaapiv1alpha1 "github.com/uptime-industries/ota-agent/api/otaapi/v1alpha1"
	"github.com/uptime-industries/ota-agent/internal/agent"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

var configFile string

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "path of the configuration file (default /etc/ota-agent/ota-agent.yaml)")
}

var rootCmd = &cobra.Command{
	Use:          "ota-agent",
	Short:        "ota-agent updates the SOC packages and the MCU firmware of the robot",
	SilenceUsage: true,
	RunE:         run,
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// setup logger
	zapLogger, err := log.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	zapLogger = zapLogger.With(zap.String("app", "ota-agent"))
	defer func() {
		_ = zapLogger.Sync()
	}()
	_ = zap.ReplaceGlobals(zapLogger.With(zap.String("scope", "global")))

	ctx, stop := signal.NotifyContext(log.IntoContext(cmd.Context(), zapLogger), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otaAgent, err := agent.NewOtaAgent(ctx, agent.Options{Config: cfg.Agent})
	if err != nil {
		log.FromContext(ctx).Error("Failed to create agent", zap.Error(err))
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	// Run agent
	group.Go(func() error {
		err := otaAgent.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.FromContext(ctx).Error("Failed to run agent", zap.Error(err))
			return err
		}
		return nil
	})

	// setup gRPC API
	grpcListener, err := listen(cfg.Listen.GRPC)
	if err != nil {
		stop()
		_ = group.Wait()
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen.GRPC, err)
	}
	grpcServer := grpc.NewServer()
	otaapiv1alpha1.RegisterOtaAgentServiceServer(grpcServer, agent.NewGrpcServiceFor(otaAgent))
	group.Go(func() error {
		log.FromContext(ctx).Info("Starting gRPC server", zap.String("addr", cfg.Listen.GRPC))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.FromContext(ctx).Error("Failed to serve gRPC", zap.Error(err))
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	// setup prometheus and status stream endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws/status", agent.StatusStreamHandler(otaAgent))
	server := &http.Server{
		Addr:              cfg.Listen.HTTP,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	group.Go(func() error {
		log.FromContext(ctx).Info("Starting HTTP server", zap.String("addr", cfg.Listen.HTTP))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.FromContext(ctx).Error("Failed to start HTTP server", zap.Error(err))
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.FromContext(ctx).Error("Failed to shutdown HTTP server", zap.Error(err))
		}
		return nil
	})

	err = group.Wait()
	if err != nil {
		log.FromContext(ctx).Error("Exiting", zap.Error(err))
		return err
	}
	log.FromContext(ctx).Info("Exiting")
	return nil
}

// listen opens a unix socket for unix:// addresses and a TCP listener otherwise.
func listen(addr string) (net.Listener, error) {
	path, ok := strings.CutPrefix(addr, "unix://")
	if !ok {
		return net.Listen("tcp", addr)
	}
	// remove a stale socket of a previous instance
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return net.Listen("unix", path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
