// ABOUTME: HTTP server lifecycle: TCP or Tailscale listeners, graceful shutdown
// ABOUTME: Tailscale exposure uses tsnet so the app needs no open ports

package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// App owns the HTTP server and its listener
type App struct {
	server      *Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
}

// NewApp wires the Server's routes into an http.Server
func NewApp(server *Server) *App {
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	return &App{
		server: server,
		httpServer: &http.Server{
			Addr:              server.cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until the context is canceled or the server fails
func (a *App) Run(ctx context.Context) error {
	ln, err := a.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.server.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		a.server.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		a.server.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := a.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (a *App) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.httpServer.Shutdown(ctx)
	if a.tsnetServer != nil {
		if closeErr := a.tsnetServer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// setupListener creates a listener based on configuration (Tailscale or TCP).
func (a *App) setupListener(ctx context.Context) (net.Listener, error) {
	if a.server.cfg.Tailscale.Enabled {
		return a.setupTailscaleListener(ctx)
	}

	ln, err := net.Listen("tcp", a.server.cfg.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupTailscaleListener creates a tsnet server and returns its HTTP listener.
func (a *App) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := a.server.cfg.Tailscale
	logger := a.server.logger

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	a.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := a.tsnetServer.Up(ctx)
	if err != nil {
		_ = a.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	logTailscaleStatus(logger, tsCfg.Hostname, status)

	ln, err := a.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = a.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

func logTailscaleStatus(logger *slog.Logger, hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "copilot-chat", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}
