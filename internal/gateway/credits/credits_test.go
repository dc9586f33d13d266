package credits

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
	"github.com/santridigital/kreator-gateway/internal/shared/storage"
)

func TestCost(t *testing.T) {
	assert.Equal(t, 6, Cost(FeatureCreateImage))
	assert.Equal(t, 40, Cost(FeatureEditImage))
	assert.Equal(t, 40, Cost(FeatureMergeImages))
	assert.Equal(t, 10, Cost(FeatureImageTo3D))
	assert.Equal(t, 80, Cost(FeatureTextToVideo5s))
	assert.Equal(t, 160, Cost(FeatureTextToVideo10s))
	assert.Equal(t, 0, Cost(Feature("unknown")))
}

func TestVideoFeature(t *testing.T) {
	assert.Equal(t, FeatureTextToVideo5s, VideoFeature(false, 5))
	assert.Equal(t, FeatureTextToVideo10s, VideoFeature(false, 10))
	assert.Equal(t, FeatureImageToVideo5s, VideoFeature(true, 5))
	assert.Equal(t, FeatureImageToVideo10s, VideoFeature(true, 10))
	// Anything other than 10 bills as the short variant.
	assert.Equal(t, FeatureTextToVideo5s, VideoFeature(false, 7))
	assert.Equal(t, FeatureImageToVideo5s, VideoFeature(true, 0))
}

func TestLedgerDeduct(t *testing.T) {
	ctx := context.Background()
	store := credentials.NewStore(storage.NewMemoryStore(), nil)

	creds, err := store.Save(ctx, credentials.SaveInput{
		Name: "Paid", Key: "sk-a", Mode: credentials.ModeFixed1000,
	}, "")
	require.NoError(t, err)
	id := creds[0].ID

	ledger := NewLedger(store)
	ledger.Deduct(ctx, id, FeatureEditImage)
	ledger.Deduct(ctx, id, FeatureCreateImage)

	creds, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000-40-6, creds[0].CurrentCredit)
}

func TestLedgerDeductUnknownFeature(t *testing.T) {
	ctx := context.Background()
	store := credentials.NewStore(storage.NewMemoryStore(), nil)

	creds, err := store.Save(ctx, credentials.SaveInput{
		Name: "Paid", Key: "sk-a", Mode: credentials.ModeFixed1000,
	}, "")
	require.NoError(t, err)

	ledger := NewLedger(store)
	ledger.Deduct(ctx, creds[0].ID, Feature("unknown"))

	creds, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, creds[0].CurrentCredit)
}
