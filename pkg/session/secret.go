// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

// Key of the session in the secret data.
const SecretKey = "session.json"

// SecretStore keeps the session in a kubernetes secret.
type SecretStore struct {
	// Kubernetes API client to use.
	client.Client
	Ref corev1.SecretReference
}

func (s SecretStore) key() client.ObjectKey {
	return client.ObjectKey{Namespace: s.Ref.Namespace, Name: s.Ref.Name}
}

func (s SecretStore) Load(ctx context.Context) (console.Snapshot, error) {
	secret := &corev1.Secret{}
	if err := s.Get(ctx, s.key(), secret); err != nil {
		if apierrors.IsNotFound(err) {
			return console.Snapshot{}, ErrNoSession
		}
		return console.Snapshot{}, err
	}
	data, ok := secret.Data[SecretKey]
	if !ok {
		return console.Snapshot{}, ErrNoSession
	}
	return decode(data)
}

// Save the session, creating the secret if it does not exist yet.
func (s SecretStore) Save(ctx context.Context, snapshot console.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	secret := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{
		Namespace: s.Ref.Namespace,
		Name:      s.Ref.Name,
	}}
	_, err = controllerutil.CreateOrUpdate(ctx, s.Client, secret, func() error {
		if secret.Labels == nil {
			secret.Labels = map[string]string{}
		}
		secret.Labels["app.kubernetes.io/managed-by"] = "consolegw"
		if secret.Data == nil {
			secret.Data = map[string][]byte{}
		}
		secret.Data[SecretKey] = data
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session to secret %s/%s: %w", s.Ref.Namespace, s.Ref.Name, err)
	}
	return nil
}

// Delete the session. The secret itself is kept, other keys may live in it.
func (s SecretStore) Delete(ctx context.Context) error {
	secret := &corev1.Secret{}
	if err := s.Get(ctx, s.key(), secret); err != nil {
		return client.IgnoreNotFound(err)
	}
	if _, ok := secret.Data[SecretKey]; !ok {
		return nil
	}
	delete(secret.Data, SecretKey)
	return s.Update(ctx, secret)
}
