// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
	"github.com/cobaltcore-dev/consolegw/internal/sso"
	"github.com/cobaltcore-dev/consolegw/pkg/console"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Keystone login data read from a kubernetes secret.
type KeystoneSecret struct {
	URL            string
	Region         string
	Username       string
	Password       string
	UserDomainName string
	ProjectID      string
	// Client certificate for keystone and the services, if any.
	SSO conf.SSOConfig
}

// Kubernetes connector which initializes the console client from a secret.
type Connector struct {
	// Kubernetes API client to use.
	client.Client
}

// Read the keystone login data from the referenced secret.
// The keys url, username and password are required, region,
// userDomainName and projectID are optional. A client certificate is
// read from cert, key and selfSigned.
func (c Connector) ReadSecret(ctx context.Context, ref corev1.SecretReference) (KeystoneSecret, error) {
	authSecret := &corev1.Secret{}
	if err := c.Get(ctx, client.ObjectKey{
		Namespace: ref.Namespace,
		Name:      ref.Name,
	}, authSecret); err != nil {
		return KeystoneSecret{}, err
	}
	var missing []error
	required := func(key string) string {
		value, ok := authSecret.Data[key]
		if !ok {
			missing = append(missing, fmt.Errorf("missing %s in auth secret", key))
		}
		return string(value)
	}
	result := KeystoneSecret{
		URL:            required("url"),
		Username:       required("username"),
		Password:       required("password"),
		Region:         string(authSecret.Data["region"]),
		UserDomainName: string(authSecret.Data["userDomainName"]),
		ProjectID:      string(authSecret.Data["projectID"]),
		SSO: conf.SSOConfig{
			Cert:       string(authSecret.Data["cert"]),
			CertKey:    string(authSecret.Data["key"]),
			SelfSigned: string(authSecret.Data["selfSigned"]) == "true",
		},
	}
	if len(missing) > 0 {
		return KeystoneSecret{}, errors.Join(missing...)
	}
	return result, nil
}

// Create a console client with the login data from the referenced secret,
// log in and scope to the project if the secret names one.
// The keystone endpoint and user domain of the options are overridden.
func (c Connector) FromSecretRef(ctx context.Context, ref corev1.SecretReference, opts console.Options) (*console.Client, error) {
	secret, err := c.ReadSecret(ctx, ref)
	if err != nil {
		return nil, err
	}
	opts.KeystoneEndpoint = secret.URL
	if secret.SSO.Cert != "" {
		if opts.HTTPClient, err = sso.NewHTTPClient(secret.SSO); err != nil {
			return nil, err
		}
	}
	if secret.UserDomainName != "" {
		opts.UserDomainName = secret.UserDomainName
	}
	consoleClient, err := console.New(opts)
	if err != nil {
		return nil, err
	}
	if secret.Region != "" {
		consoleClient.SetActiveRegion(secret.Region)
	}
	if _, err := consoleClient.Login(ctx, secret.Username, secret.Password, secret.ProjectID); err != nil {
		return nil, err
	}
	return consoleClient, nil
}
