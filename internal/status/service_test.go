package status

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mcportal/internal/database"
	"mcportal/internal/mcping"
	"mcportal/internal/models"
)

type memRepo struct {
	rows    map[int64]models.StatusSnapshot
	upserts int
}

func (m *memRepo) GetStatusSnapshot(_ context.Context, id int64) (*models.StatusSnapshot, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (m *memRepo) UpsertStatusSnapshot(_ context.Context, snap *models.StatusSnapshot) error {
	m.upserts++
	m.rows[snap.ServerID] = *snap
	return nil
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, host string, port int) (*mcping.Response, error) {
	args := m.Called(ctx, host, port)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mcping.Response), args.Error(1)
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestServiceCacheLifecycle(t *testing.T) {
	repo := &memRepo{rows: make(map[int64]models.StatusSnapshot)}
	prober := new(mockProber)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, prober, zerolog.New(io.Discard)).WithClock(func() time.Time { return now })
	ctx := context.Background()

	prober.On("Probe", ctx, "mc.example.org", 25565).Return(&mcping.Response{
		PlayersOnline: intPtr(4),
		PlayersMax:    intPtr(20),
		Version:       strPtr("1.20.4"),
		LatencyMS:     12.3,
		Raw:           []byte(`{}`),
	}, nil).Once()

	res := svc.Get(ctx, 1, "mc.example.org", 25565, 30*time.Second)
	assert.True(t, res.Online)
	assert.False(t, res.Cached)
	assert.Equal(t, 4, *res.PlayersOnline)
	assert.InDelta(t, 12.3, *res.LatencyMS, 0.001)
	assert.Equal(t, 1, repo.upserts)

	// Within the TTL the stored row is served without probing.
	now = now.Add(30 * time.Second)
	res = svc.Get(ctx, 1, "mc.example.org", 25565, 30*time.Second)
	assert.True(t, res.Cached)
	assert.True(t, res.Online)
	assert.Equal(t, "1.20.4", *res.Version)
	assert.Equal(t, 1, repo.upserts)

	// Past the TTL a failed probe overwrites the row with offline.
	now = now.Add(time.Millisecond)
	prober.On("Probe", ctx, "mc.example.org", 25565).Return(nil, errors.New("i/o timeout")).Once()
	res = svc.Get(ctx, 1, "mc.example.org", 25565, 30*time.Second)
	assert.False(t, res.Online)
	assert.False(t, res.Cached)
	assert.Nil(t, res.PlayersOnline)
	assert.Equal(t, 2, repo.upserts)
	assert.False(t, repo.rows[1].Online)
	assert.Equal(t, now, repo.rows[1].CheckedAt)

	prober.AssertExpectations(t)
}

func TestServiceShortTTLProbesAgain(t *testing.T) {
	repo := &memRepo{rows: make(map[int64]models.StatusSnapshot)}
	prober := new(mockProber)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, prober, zerolog.New(io.Discard)).WithClock(func() time.Time { return now })
	ctx := context.Background()

	prober.On("Probe", ctx, "h", 1).Return(nil, errors.New("refused")).Twice()

	svc.Get(ctx, 9, "h", 1, time.Second)
	now = now.Add(2 * time.Second)
	res := svc.Get(ctx, 9, "h", 1, time.Second)
	assert.False(t, res.Cached)
	prober.AssertExpectations(t)
}

func TestGetAllKeepsOrder(t *testing.T) {
	repo := &memRepo{rows: map[int64]models.StatusSnapshot{
		2: {ServerID: 2, Online: true, CheckedAt: time.Now()},
	}}
	prober := new(mockProber)
	svc := NewService(repo, prober, zerolog.New(io.Discard))
	ctx := context.Background()
	prober.On("Probe", ctx, "a", 25565).Return(nil, errors.New("down"))

	results := svc.GetAll(ctx, []ServerRef{{ID: 1, Host: "a", Port: 25565}, {ID: 2, Host: "b", Port: 25565}}, time.Minute)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ServerID)
	assert.False(t, results[0].Online)
	assert.True(t, results[1].Cached)
}

func TestServiceSubSecondTTLWithSQLite(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "portal.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	srv, err := models.NewServer("Lobby", "h", 1)
	require.NoError(t, err)
	id, err := db.CreateServer(ctx, srv)
	require.NoError(t, err)

	prober := new(mockProber)
	prober.On("Probe", ctx, "h", 1).Return(nil, errors.New("refused")).Once()

	now := time.Date(2024, 5, 1, 12, 0, 0, 900_000_000, time.UTC)
	svc := NewService(db, prober, logger).WithClock(func() time.Time { return now })

	assert.False(t, svc.Get(ctx, id, "h", 1, time.Second).Cached)

	// 400ms later the row is still fresh for a one second poll TTL.
	now = now.Add(400 * time.Millisecond)
	assert.True(t, svc.Get(ctx, id, "h", 1, time.Second).Cached)
	prober.AssertExpectations(t)
}
