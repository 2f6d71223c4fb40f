// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
	"github.com/cobaltcore-dev/consolegw/internal/db"
	"github.com/cobaltcore-dev/consolegw/internal/monitoring"
	"github.com/cobaltcore-dev/consolegw/internal/sso"
	"github.com/cobaltcore-dev/consolegw/pkg/console"
	"github.com/cobaltcore-dev/consolegw/pkg/gateway"
	"github.com/cobaltcore-dev/consolegw/pkg/session"
	"github.com/go-logr/logr"
	"github.com/sapcc/go-bits/must"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var scheme = runtime.NewScheme()

func init() {
	must.Succeed(clientgoscheme.AddToScheme(scheme))
}

// State shared by all commands, set up before a command runs.
type app struct {
	config     conf.Config
	httpClient *http.Client
	registry   *monitoring.Registry
	store      session.Store
	k8sClient  client.Client
	// Closes resources opened by the store.
	closers []func()
}

func (a *app) setup(ctx context.Context, configPath, secretsPath string) error {
	var err error
	if configPath != "" {
		a.config, err = conf.ReadConfig(configPath, secretsPath)
	} else {
		a.config = conf.GetConfigOrDie()
	}
	if err != nil {
		return err
	}
	a.config.GetLoggingConfig().SetDefaultLogger()
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.registry = monitoring.NewRegistry(a.config.GetMonitoringConfig())
	a.httpClient, err = sso.NewHTTPClient(a.config.GetKeystoneConfig().SSO)
	if err != nil {
		return err
	}
	a.store, err = a.newStore(ctx)
	return err
}

func (a *app) close() {
	for _, c := range a.closers {
		c()
	}
}

// Kubernetes client for secrets, created on first use.
func (a *app) kubernetesClient() (client.Client, error) {
	if a.k8sClient != nil {
		return a.k8sClient, nil
	}
	// Route controller-runtime logs through the same handler as ours.
	ctrl.SetLogger(logr.FromSlogHandler(slog.Default().Handler()))
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}
	a.k8sClient, err = client.New(restConfig, client.Options{Scheme: scheme})
	return a.k8sClient, err
}

func (a *app) newStore(ctx context.Context) (session.Store, error) {
	c := a.config.GetSessionConfig()
	name := c.Name
	if name == "" {
		name = "default"
	}
	switch c.Backend {
	case "", conf.SessionBackendFile:
		path := c.Path
		if path == "" {
			var err error
			if path, err = session.DefaultPath(); err != nil {
				return nil, err
			}
		}
		return session.FileStore{Path: path}, nil
	case conf.SessionBackendSecret:
		k8sClient, err := a.kubernetesClient()
		if err != nil {
			return nil, err
		}
		ref := corev1.SecretReference{Namespace: c.SecretRef.Namespace, Name: c.SecretRef.Name}
		return session.SecretStore{Client: k8sClient, Ref: ref}, nil
	case conf.SessionBackendKeyring:
		return session.KeyringStore{Service: c.KeyringService, User: name}, nil
	case conf.SessionBackendDB:
		database, err := db.NewPostgresDB(ctx, c.DB, db.NewDBMonitor(a.registry))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, database.Close)
		return session.NewDBStore(&database, name)
	default:
		return nil, fmt.Errorf("unknown session backend %q", c.Backend)
	}
}

// Options for console clients built from the configuration.
func (a *app) consoleOptions() console.Options {
	keystoneConf := a.config.GetKeystoneConfig()
	gatewayConf := a.config.GetGatewayConfig()
	return console.Options{
		KeystoneEndpoint: keystoneConf.URL,
		UserDomainName:   keystoneConf.UserDomainName,
		Interface:        keystoneConf.Interface,
		CatalogVersion:   gatewayConf.CatalogVersion,
		HTTPClient:       a.httpClient,
		RequestTimeout:   gatewayConf.RequestTimeoutDuration(),
		CatalogTimeout:   gatewayConf.CatalogFetchTimeoutDuration(),
		Diagnostics:      gateway.LogSink{LogBodies: gatewayConf.LogResponseBodies},
		Registerer:       a.registry,
	}
}

// Restore the client of the stored session.
func (a *app) restore(ctx context.Context) (*console.Client, error) {
	c, err := session.Restore(ctx, a.store, a.consoleOptions())
	if errors.Is(err, session.ErrNoSession) {
		return nil, errors.New("not logged in, run consolegw login first")
	}
	return c, err
}

// Persist the session of the client.
func (a *app) save(ctx context.Context, c *console.Client) error {
	if err := a.store.Save(ctx, c.Serialize()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
