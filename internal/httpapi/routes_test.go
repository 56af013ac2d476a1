package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-room-backend/internal/hub"
	"github.com/DoyleJ11/coop-room-backend/internal/metrics"
	"github.com/DoyleJ11/coop-room-backend/internal/protocol"
	"github.com/DoyleJ11/coop-room-backend/internal/room"
)

type nopOutbox struct{}

func (nopOutbox) Send(protocol.Message) error { return nil }

func newTestAPI(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	m := metrics.New()
	h := hub.NewHub(context.Background(), room.Options{Logger: zap.NewNop(), Metrics: m})
	srv := httptest.NewServer(SetupRoutes(Deps{
		Hub:       h,
		Metrics:   m,
		Logger:    zap.NewNop(),
		CORSAllow: []string{"*"},
	}))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
		srv.Close()
	})
	return srv, h
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestAPI(t)

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCreateRoom_ReturnsFreeCode(t *testing.T) {
	srv, h := newTestAPI(t)

	res, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Regexp(t, `^[A-Z0-9]{6}$`, body.Code)

	// Handing out a code does not open the room.
	codes, err := h.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, codes)
}

func TestListAndGetRoom(t *testing.T) {
	srv, h := newTestAPI(t)
	ctx := context.Background()

	rm, err := h.Ensure(ctx, "ABC123")
	require.NoError(t, err)
	require.NoError(t, rm.Join(ctx, "P_A", nopOutbox{}))

	res, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var list struct {
		Rooms []RoomSummary `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "ABC123", list.Rooms[0].Code)
	assert.Equal(t, 1, list.Rooms[0].Members)
	assert.Equal(t, []string{"P_A"}, list.Rooms[0].Players)

	res2, err := http.Get(srv.URL + "/rooms/ABC123")
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)

	var one RoomSummary
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&one))
	assert.Equal(t, 1, one.Round)
	assert.False(t, one.Lock.Active)

	res3, err := http.Get(srv.URL + "/rooms/NOPE00")
	require.NoError(t, err)
	defer res3.Body.Close()
	assert.Equal(t, http.StatusNotFound, res3.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, h := newTestAPI(t)

	_, err := h.Ensure(context.Background(), "MET001")
	require.NoError(t, err)

	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rooms_active 1")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}
