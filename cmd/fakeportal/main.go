// Package main runs a local SRUN portal for trying the client without a
// campus network. It implements the same endpoints and checks the password
// hash, the info blob and the checksum of every login.
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/srun-login/internal/certgen"
	"github.com/atinyakov/srun-login/internal/logger"
	"github.com/atinyakov/srun-login/internal/server/handler/http"
	"github.com/atinyakov/srun-login/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// accountsFlag collects repeated -account user:password values.
type accountsFlag map[string]string

func (a accountsFlag) String() string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

func (a accountsFlag) Set(v string) error {
	user, pass, ok := strings.Cut(v, ":")
	if !ok || user == "" {
		return fmt.Errorf("account must be user:password, got %q", v)
	}
	a[user] = pass
	return nil
}

func main() {
	var (
		addr     string
		acID     string
		ttl      time.Duration
		useTLS   bool
		caOut    string
		logLevel string
		accounts = accountsFlag{}
	)
	flag.StringVar(&addr, "a", "127.0.0.1:8080", "run on ip:port server")
	flag.StringVar(&acID, "ac-id", "1", "ac_id announced in the portal redirect")
	flag.DurationVar(&ttl, "challenge-ttl", time.Minute, "challenge lifetime")
	flag.BoolVar(&useTLS, "tls", false, "serve HTTPS with a generated self-signed certificate")
	flag.StringVar(&caOut, "ca-out", "fakeportal-ca.pem", "where to write the generated certificate (with -tls)")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Var(accounts, "account", "user:password accepted by the portal (repeatable)")
	flag.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	zapLogger := log.Log

	if len(accounts) == 0 {
		zapLogger.Warn("no -account given, every login will be refused")
	}

	portalService := service.NewPortalService(acID, accounts, ttl)
	portalHandler := &http.PortalHandler{PortalService: portalService}
	router := http.NewRouter(portalHandler, zapLogger)

	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if useTLS {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		certPEM, keyPEM, err := certgen.GenerateSelfSigned([]string{cmp.Or(host, "localhost"), "localhost"}, 24*time.Hour)
		if err != nil {
			zapLogger.Fatal("failed to generate certificate", zap.Error(err))
		}
		if err := os.WriteFile(caOut, certPEM, 0o644); err != nil {
			zapLogger.Fatal("failed to write certificate", zap.Error(err))
		}
		tlsConfig, err := certgen.ServerConfig(certPEM, keyPEM)
		if err != nil {
			zapLogger.Fatal("failed to load certificate", zap.Error(err))
		}
		server.TLSConfig = tlsConfig
		zapLogger.Info("wrote portal certificate, pass it to the client with -ca-file", zap.String("path", caOut))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zapLogger.Info("starting fake portal",
		zap.String("addr", addr),
		zap.String("ac_id", acID),
		zap.Bool("tls", useTLS),
		zap.Int("accounts", len(accounts)),
	)

	var err error
	if useTLS {
		err = server.ListenAndServeTLS("", "")
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
	zapLogger.Info("fake portal stopped")
}
