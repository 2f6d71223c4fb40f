// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
	"github.com/cobaltcore-dev/consolegw/pkg/gateway"
	"github.com/cobaltcore-dev/consolegw/pkg/session"
	"github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/osext"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	corev1 "k8s.io/api/core/v1"
)

// Environment variable holding the password. Takes precedence over the config.
const passwordEnv = "CONSOLEGW_PASSWORD"

func newRootCommand() *cobra.Command {
	a := &app{}
	var configPath, secretsPath string
	root := &cobra.Command{
		Use:           "consolegw",
		Short:         "Authenticated gateway to the OpenStack services of a cloud",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), configPath, secretsPath)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path of the config file, defaults to $CONSOLEGW_CONFIG")
	root.PersistentFlags().StringVar(&secretsPath, "secrets", "", "path of the secrets file merged over the config")

	root.AddCommand(
		newLoginCommand(a),
		newScopeCommand(a),
		newRenewCommand(a),
		newRegionsCommand(a),
		newRegionCommand(a),
		newCatalogCommand(a),
		newResolveCommand(a),
		newGetCommand(a),
		newMethodsCommand(a),
		newLogoutCommand(a),
		newKeepaliveCommand(a),
	)
	return root
}

func newLoginCommand(a *app) *cobra.Command {
	var username, projectID, region string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to keystone and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			keystoneConf := a.config.GetKeystoneConfig()

			var c *console.Client
			if keystoneConf.SecretRef.IsSet() {
				k8sClient, err := a.kubernetesClient()
				if err != nil {
					return err
				}
				ref := corev1.SecretReference{Namespace: keystoneConf.SecretRef.Namespace, Name: keystoneConf.SecretRef.Name}
				c, err = session.Connector{Client: k8sClient}.FromSecretRef(ctx, ref, a.consoleOptions())
				if err != nil {
					return err
				}
			} else {
				if username == "" {
					username = keystoneConf.Username
				}
				if username == "" {
					return errors.New("no username given, use --username or keystone.username")
				}
				password, err := readPassword(cmd, keystoneConf.Password)
				if err != nil {
					return err
				}
				if projectID == "" {
					projectID = keystoneConf.ProjectID
				}
				c, err = console.New(a.consoleOptions())
				if err != nil {
					return err
				}
				result, err := c.Login(ctx, username, password, projectID)
				if err != nil {
					return err
				}
				printScope(cmd.OutOrStdout(), username, result.Project.Name, result.Role)
			}
			if region == "" {
				region = keystoneConf.Region
			}
			if region != "" {
				c.SetActiveRegion(region)
			}
			return a.save(ctx, c)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "keystone user, defaults to keystone.username")
	cmd.Flags().StringVar(&projectID, "project", "", "project to scope to, defaults to keystone.projectID")
	cmd.Flags().StringVar(&region, "region", "", "region to select, defaults to keystone.region")
	return cmd
}

// Read the password from the environment, falling back to the config and
// then to a terminal prompt.
func readPassword(cmd *cobra.Command, configured string) (string, error) {
	if password := osext.GetenvOrDefault(passwordEnv, configured); password != "" {
		return password, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password configured and stdin is not a terminal, set %s", passwordEnv)
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func printScope(w io.Writer, user, project, role string) {
	if project == "" {
		fmt.Fprintf(w, "logged in as %s\n", user)
		return
	}
	fmt.Fprintf(w, "logged in as %s in project %s with role %s\n", user, project, role)
}

func newScopeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scope PROJECT_ID",
		Short: "Exchange the session token for one scoped to the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			result, err := c.Identity().ExchangeTokenForScope(ctx, args[0])
			if err != nil {
				return err
			}
			printScope(cmd.OutOrStdout(), result.User.Name, result.Project.Name, result.Role)
			return a.save(ctx, c)
		},
	}
}

func newRenewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Renew the tokens of the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			if _, err := renewTokens(ctx, c, 0, true); err != nil {
				return err
			}
			return a.save(ctx, c)
		},
	}
}

func newRegionsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions of the service catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			regions, err := c.Regions(ctx)
			if err != nil {
				return err
			}
			_, active, err := c.Identity().ActiveServices(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(regions))
			for _, region := range regions {
				marker := ""
				if region == active {
					marker = "*"
				}
				rows = append(rows, []string{region, marker})
			}
			if err := writeTable(cmd.OutOrStdout(), []string{"REGION", "ACTIVE"}, rows); err != nil {
				return err
			}
			// Keep the fetched catalog for the next invocation.
			return a.save(ctx, c)
		},
	}
}

func newRegionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "region NAME",
		Short: "Select the region whose endpoints are used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			regions, err := c.Regions(ctx)
			if err != nil {
				return err
			}
			if !slices.Contains(regions, args[0]) {
				return fmt.Errorf("unknown region %q, available: %s", args[0], strings.Join(regions, ", "))
			}
			c.SetActiveRegion(args[0])
			return a.save(ctx, c)
		},
	}
}

func newCatalogCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show the endpoints of the service catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			index, err := c.Identity().RegionMap(ctx)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, region := range index.Regions() {
				services, _ := index.Region(region)
				for _, name := range sortedKeys(services) {
					for _, iface := range sortedKeys(services[name]) {
						rows = append(rows, []string{region, name, services[name][iface].Type, iface, services[name][iface].URL})
					}
				}
			}
			if err := writeTable(cmd.OutOrStdout(), []string{"REGION", "SERVICE", "TYPE", "INTERFACE", "URL"}, rows); err != nil {
				return err
			}
			return a.save(ctx, c)
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Flags shared by commands that address a service.
type requestFlags struct {
	iface    string
	version  string
	unscoped bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.iface, "interface", "", "endpoint interface, defaults to the configured one")
	cmd.Flags().StringVar(&f.version, "version", "", "replace the catalog version of the endpoint, e.g. v4")
}

// Build the request from the defaults of the service, overridden by the flags.
func (f requestFlags) request(c *console.Client, service, path string) gateway.Request {
	r := c.Service(service).Request(path)
	r.Unscoped = f.unscoped
	if f.iface != "" {
		r.Interface = option.Some(f.iface)
	}
	if f.version != "" {
		r.Version = option.Some(f.version)
	}
	return r
}

func newResolveCommand(a *app) *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "resolve SERVICE",
		Short: "Print the endpoint of a service in the active region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			u, err := c.Gateway().URL(ctx, flags.request(c, args[0], ""))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newGetCommand(a *app) *cobra.Command {
	var flags requestFlags
	var all string
	cmd := &cobra.Command{
		Use:   "get SERVICE PATH",
		Short: "Send an authenticated GET request to a service and print the JSON response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.restore(ctx)
			if err != nil {
				return err
			}
			r := flags.request(c, args[0], args[1])
			var result any
			if all != "" {
				result, err = c.Gateway().BasicGetAll(ctx, r, all)
			} else {
				var body json.RawMessage
				err = c.Gateway().BasicGet(ctx, r, &body)
				result = body
			}
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			return a.save(ctx, c)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.unscoped, "unscoped", false, "authenticate with the unscoped token")
	cmd.Flags().StringVar(&all, "all", "", "follow pagination links and collect the items under this key")
	return cmd
}

func newMethodsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "methods [SERVICE]",
		Short: "List the methods of the known services",
		Args:  cobra.MaximumNArgs(1),
		// The method table is static, no session is needed.
		RunE: func(cmd *cobra.Command, args []string) error {
			service := ""
			if len(args) == 1 {
				service = args[0]
			}
			c, err := console.New(a.consoleOptions())
			if err != nil {
				return err
			}
			methods := c.Methods().List(service)
			if len(methods) == 0 {
				return fmt.Errorf("no methods known for service %q", service)
			}
			rows := make([][]string, 0, len(methods))
			for _, m := range methods {
				rows = append(rows, []string{m.Service, m.Name, m.Verb, m.Path, m.Description})
			}
			return writeTable(cmd.OutOrStdout(), []string{"SERVICE", "METHOD", "VERB", "PATH", "DESCRIPTION"}, rows)
		},
	}
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the tokens and delete the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := session.Restore(ctx, a.store, a.consoleOptions())
			switch {
			case errors.Is(err, session.ErrNoSession):
				return nil
			case err != nil:
				slog.Warn("failed to restore session, deleting it anyway", "error", err)
			default:
				c.Logout()
			}
			return a.store.Delete(ctx)
		},
	}
}

func newKeepaliveCommand(a *app) *cobra.Command {
	var interval, renewBefore time.Duration
	cmd := &cobra.Command{
		Use:   "keepalive",
		Short: "Periodically renew the session tokens and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeepalive(cmd.Context(), a, interval, renewBefore)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between checks, with jitter")
	cmd.Flags().DurationVar(&renewBefore, "renew-before", 10*time.Minute, "renew tokens that expire within this duration")
	return cmd
}
