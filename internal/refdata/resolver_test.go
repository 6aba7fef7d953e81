package refdata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/storetest"
)

func TestResolveCreatesOnFirstSight(t *testing.T) {
	fake := storetest.New()
	r := NewResolver(fake)

	id, err := r.Resolve(context.Background(), schema.RefKindPayer, "PAY-01")
	require.NoError(t, err)
	require.NotNil(t, id)

	again, err := r.Resolve(context.Background(), schema.RefKindPayer, "PAY-01")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, *id, *again)
	assert.Equal(t, 1, r.Size())
}

func TestResolveCachesPerKind(t *testing.T) {
	fake := storetest.New()
	r := NewResolver(fake)

	payer, err := r.Resolve(context.Background(), schema.RefKindPayer, "X-1")
	require.NoError(t, err)
	clinician, err := r.Resolve(context.Background(), schema.RefKindClinician, "X-1")
	require.NoError(t, err)

	// Same code under different kinds is two distinct references
	assert.NotEqual(t, *payer, *clinician)
	assert.Equal(t, 2, r.Size())
}

func TestResolveEmptyCodeIsNil(t *testing.T) {
	fake := storetest.New()
	r := NewResolver(fake)

	id, err := r.Resolve(context.Background(), schema.RefKindProvider, "")
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Zero(t, r.Size())
}

func TestResolveSecondLookupSkipsStore(t *testing.T) {
	fake := storetest.New()
	r := NewResolver(fake)

	_, err := r.Resolve(context.Background(), schema.RefKindDenial, "DN-01")
	require.NoError(t, err)

	// The store now fails, but the cached entry still resolves
	fake.Errs["GetOrCreateRefCode"] = errors.New("connection refused")
	id, err := r.Resolve(context.Background(), schema.RefKindDenial, "DN-01")
	require.NoError(t, err)
	assert.NotNil(t, id)

	_, err = r.Resolve(context.Background(), schema.RefKindDenial, "DN-02")
	assert.Error(t, err)
}
