package gcs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "photos"})
	require.Error(t, err)

	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)

	store, err := New(&storage.Client{}, Config{Bucket: "photos"})
	require.NoError(t, err)
	assert.Equal(t, "photos", store.bucket)
}

func TestPutObjectRequiresKey(t *testing.T) {
	store, err := New(&storage.Client{}, Config{Bucket: "photos"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "  ", "image/jpeg", strings.NewReader("x"))
	require.Error(t, err)
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(errors.New("googleapi: Error 412: conditionNotMet")))
	assert.True(t, isPreconditionFailed(errors.New("Precondition Failed")))
	assert.False(t, isPreconditionFailed(errors.New("googleapi: Error 403: forbidden")))
}
