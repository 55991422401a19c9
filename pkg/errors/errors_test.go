package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratakv/strata/pkg/errors"
)

func TestAdapterError_WrapsSentinel(t *testing.T) {
	err := errors.NewError("update", "users", errors.ErrNotFound)

	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "strata: update operation failed: record not found", err.Error())
}

func TestAdapterError_UnwrapReachesStorageError(t *testing.T) {
	storageErr := stderrors.New("provisioned throughput exceeded")
	err := errors.NewError("findAll", "posts", storageErr)

	assert.True(t, stderrors.Is(err, storageErr))
	assert.False(t, errors.IsNotFound(err))

	var ae *errors.AdapterError
	require.True(t, stderrors.As(err, &ae))
	assert.Equal(t, "findAll", ae.Op)
	assert.Equal(t, "posts", ae.Kind)
}

func TestAdapterError_Context(t *testing.T) {
	err := errors.NewErrorWithContext("create", "users", errors.ErrConditionFailed,
		map[string]any{"id": int64(9)})

	assert.True(t, errors.IsConditionFailed(err))
	assert.Equal(t, int64(9), err.Context["id"])
}

func TestSentinels_SurviveFmtWrapping(t *testing.T) {
	err := fmt.Errorf("compiling where clause: %w", errors.ErrUnsupportedOperator)
	assert.True(t, errors.IsUnsupportedOperator(err))

	err = fmt.Errorf("loading relation: %w", errors.ErrUnsupportedRelationShape)
	assert.True(t, errors.IsUnsupportedRelationShape(err))
}
