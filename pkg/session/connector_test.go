// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"strings"
	"testing"
	"time"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
	testlibKeystone "github.com/cobaltcore-dev/consolegw/testlib/keystone"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func authSecret(data map[string]string) *corev1.Secret {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Namespace: "default", Name: "keystone"},
		Data:       map[string][]byte{},
	}
	for key, value := range data {
		secret.Data[key] = []byte(value)
	}
	return secret
}

func TestConnector_FromSecretRef(t *testing.T) {
	server := testlibKeystone.NewServer(t)
	server.Catalog = []testlibKeystone.Service{{
		Name: "nova", Type: "compute",
		Endpoints: []testlibKeystone.Endpoint{
			{ID: "e1", Region: "r1", Interface: "internal", URL: server.URL + "/nova/v3"},
			{ID: "e2", Region: "r2", Interface: "internal", URL: server.URL + "/nova-r2/v3"},
		},
	}}
	k8sClient := fake.NewClientBuilder().WithObjects(authSecret(map[string]string{
		"url":            server.IdentityURL(),
		"username":       "admin",
		"password":       "secret",
		"userDomainName": "Default",
		"projectID":      "p1",
		"region":         "r2",
	})).Build()

	ref := corev1.SecretReference{Namespace: "default", Name: "keystone"}
	client, err := Connector{Client: k8sClient}.FromSecretRef(t.Context(), ref, console.Options{RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	creds := client.Credentials().Snapshot()
	if creds.ScopedToken == nil || creds.ActiveProjectID != "p1" || creds.ActiveRegion != "r2" {
		t.Errorf("expected a scoped session in r2, got %+v", creds)
	}
	endpoint, err := client.Service("nova").Endpoint(t.Context())
	if err != nil || endpoint != server.URL+"/nova-r2/v3" {
		t.Errorf("expected the r2 endpoint, got %q: %v", endpoint, err)
	}

	// The session survives a round trip through a store.
	store := FileStore{Path: t.TempDir() + "/session.json"}
	if err := store.Save(t.Context(), client.Serialize()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	restored, err := Restore(t.Context(), store, console.Options{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, err := restored.Service("nova").Endpoint(t.Context()); err != nil || got != endpoint {
		t.Errorf("expected the restored client to resolve %q, got %q: %v", endpoint, got, err)
	}
}

func TestConnector_MissingKeys(t *testing.T) {
	k8sClient := fake.NewClientBuilder().WithObjects(authSecret(map[string]string{
		"url": "https://identity.example.com/v3",
	})).Build()
	ref := corev1.SecretReference{Namespace: "default", Name: "keystone"}
	_, err := Connector{Client: k8sClient}.ReadSecret(t.Context(), ref)
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"username", "password"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected the error to name %s, got %q", key, err)
		}
	}
}

func TestConnector_MissingSecret(t *testing.T) {
	k8sClient := fake.NewClientBuilder().Build()
	ref := corev1.SecretReference{Namespace: "default", Name: "missing"}
	if _, err := (Connector{Client: k8sClient}).ReadSecret(t.Context(), ref); err == nil {
		t.Fatal("expected an error")
	}
}

func TestConnector_SSOWithoutKey(t *testing.T) {
	k8sClient := fake.NewClientBuilder().WithObjects(authSecret(map[string]string{
		"url":      "https://identity.example.com/v3",
		"username": "admin",
		"password": "secret",
		"cert":     "-----BEGIN CERTIFICATE-----",
	})).Build()
	ref := corev1.SecretReference{Namespace: "default", Name: "keystone"}
	secret, err := Connector{Client: k8sClient}.ReadSecret(t.Context(), ref)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if secret.SSO.Cert == "" || secret.SSO.SelfSigned {
		t.Errorf("unexpected sso config %+v", secret.SSO)
	}
	if _, err := (Connector{Client: k8sClient}).FromSecretRef(t.Context(), ref, console.Options{}); err == nil {
		t.Error("expected an error for a certificate without key")
	}
}
