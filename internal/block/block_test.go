package block_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-collection-bridge/internal/block"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
	"github.com/feral-file/ff-collection-bridge/internal/mocks"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// testProviderMocks contains all the mocks needed for testing the block provider
type testProviderMocks struct {
	ctrl     *gomock.Controller
	reader   *mocks.MockChainReader
	clock    *mocks.MockClock
	provider block.Provider
}

func setupTestProvider(t *testing.T, cfg block.Config) *testProviderMocks {
	ctrl := gomock.NewController(t)
	tm := &testProviderMocks{
		ctrl:   ctrl,
		reader: mocks.NewMockChainReader(ctrl),
		clock:  mocks.NewMockClock(ctrl),
	}
	tm.reader.EXPECT().ID().Return(domain.ChainEthereumSepolia).AnyTimes()
	tm.provider = block.NewProvider(tm.reader, cfg, tm.clock)
	return tm
}

func tearDownTestProvider(tm *testProviderMocks) {
	tm.ctrl.Finish()
}

var (
	now         = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	errNotReady = errors.New("chain unavailable")
	testConfig  = block.Config{TTL: 10 * time.Second, StaleWindow: 2 * time.Minute}
)

func TestProvider_GetLatestBlock_CachesWithinTTL(t *testing.T) {
	tm := setupTestProvider(t, testConfig)
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	gomock.InOrder(
		tm.clock.EXPECT().Now().Return(now),
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(1000), nil),
		tm.clock.EXPECT().Now().Return(now.Add(5*time.Second)),
		tm.clock.EXPECT().Now().Return(now.Add(11*time.Second)),
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(1001), nil),
	)

	number, err := tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), number)

	// within TTL
	number, err = tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), number)

	// expired
	number, err = tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1001), number)
}

func TestProvider_GetLatestBlock_ZeroTTLAlwaysReads(t *testing.T) {
	tm := setupTestProvider(t, block.Config{})
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	tm.clock.EXPECT().Now().Return(now).Times(2)
	gomock.InOrder(
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(1), nil),
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(2), nil),
	)

	first, err := tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)
	second, err := tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
}

func TestProvider_GetLatestBlock_StaleFallback(t *testing.T) {
	tm := setupTestProvider(t, testConfig)
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	gomock.InOrder(
		tm.clock.EXPECT().Now().Return(now),
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(1000), nil),
		tm.clock.EXPECT().Now().Return(now.Add(time.Minute)),
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(0), errNotReady),
		tm.clock.EXPECT().Now().Return(now.Add(3*time.Minute)),
		tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(0), errNotReady),
	)

	_, err := tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)

	// stale but within the window
	number, err := tm.provider.GetLatestBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), number)

	// beyond the window
	_, err = tm.provider.GetLatestBlock(ctx)
	assert.ErrorIs(t, err, errNotReady)
}

func TestProvider_GetLatestBlock_NoCache(t *testing.T) {
	tm := setupTestProvider(t, testConfig)
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	tm.clock.EXPECT().Now().Return(now)
	tm.reader.EXPECT().BlockNumber(ctx).Return(uint64(0), errNotReady)

	_, err := tm.provider.GetLatestBlock(ctx)
	assert.ErrorIs(t, err, errNotReady)
	assert.Contains(t, err.Error(), "no valid cache available")
}

func TestProvider_GetBlockTimestamp_CachesForever(t *testing.T) {
	tm := setupTestProvider(t, testConfig)
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	blockTime := now.Add(-time.Hour)
	tm.clock.EXPECT().Now().Return(now).Times(3)
	tm.reader.EXPECT().BlockTime(ctx, uint64(7)).Return(blockTime, nil).Times(1)
	tm.reader.EXPECT().BlockTime(ctx, uint64(8)).Return(blockTime.Add(time.Second), nil).Times(1)

	for i := 0; i < 2; i++ {
		ts, err := tm.provider.GetBlockTimestamp(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, blockTime, ts)
	}

	ts, err := tm.provider.GetBlockTimestamp(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, blockTime.Add(time.Second), ts)
}

func TestProvider_GetBlockTimestamp_TTLAndStaleFallback(t *testing.T) {
	tm := setupTestProvider(t, block.Config{TimestampTTL: time.Minute, StaleWindow: 5 * time.Minute})
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	blockTime := now.Add(-time.Hour)
	gomock.InOrder(
		tm.clock.EXPECT().Now().Return(now),
		tm.reader.EXPECT().BlockTime(ctx, uint64(7)).Return(blockTime, nil),
		tm.clock.EXPECT().Now().Return(now.Add(2*time.Minute)),
		tm.reader.EXPECT().BlockTime(ctx, uint64(7)).Return(time.Time{}, errNotReady),
		tm.clock.EXPECT().Now().Return(now.Add(10*time.Minute)),
		tm.reader.EXPECT().BlockTime(ctx, uint64(7)).Return(time.Time{}, errNotReady),
	)

	_, err := tm.provider.GetBlockTimestamp(ctx, 7)
	require.NoError(t, err)

	ts, err := tm.provider.GetBlockTimestamp(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, blockTime, ts)

	_, err = tm.provider.GetBlockTimestamp(ctx, 7)
	assert.ErrorIs(t, err, errNotReady)
}

func TestProvider_GetBlockTimestamp_ResetsWhenFull(t *testing.T) {
	tm := setupTestProvider(t, block.Config{MaxTimestamps: 2})
	defer tearDownTestProvider(tm)
	ctx := context.Background()

	tm.clock.EXPECT().Now().Return(now).AnyTimes()
	tm.reader.EXPECT().BlockTime(ctx, gomock.Any()).Return(now, nil).Times(4)

	// 1 and 2 fill the cache, 3 resets it, so 1 is read again
	for _, n := range []uint64{1, 2, 3, 1} {
		_, err := tm.provider.GetBlockTimestamp(ctx, n)
		require.NoError(t, err)
	}
}
