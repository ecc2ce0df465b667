package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tankwanghow/pou-con-sub002/internal/api"
	"github.com/tankwanghow/pou-con-sub002/internal/controller"
	"github.com/tankwanghow/pou-con-sub002/internal/domain"
	"github.com/tankwanghow/pou-con-sub002/internal/events"
	"github.com/tankwanghow/pou-con-sub002/internal/gateway"
	"github.com/tankwanghow/pou-con-sub002/internal/gateway/virtual"
	"github.com/tankwanghow/pou-con-sub002/internal/interlock"
)

func virtualPoint(address string) domain.PointRef {
	return domain.PointRef{Backend: domain.BackendVirtual, Address: address}
}

func newTestServer(t *testing.T) (*httptest.Server, *virtual.Store) {
	t.Helper()

	store := virtual.NewStore(zerolog.Nop())
	router := gateway.NewRouter(time.Second, zerolog.Nop(), nil)
	router.Register(domain.BackendVirtual, store)

	sup := controller.NewSupervisor(router, interlock.Static{Allow: true}, events.Multi{}, zerolog.Nop(), nil)

	_, err := sup.Add(domain.Equipment{
		Name:       "light-1",
		Title:      "House Lights",
		Kind:       domain.KindLight,
		OnOff:      virtualPoint("light-1.on"),
		AutoManual: virtualPoint("light-1.am"),
	})
	require.NoError(t, err)
	_, err = sup.Add(domain.Equipment{
		Name:        "fan-1",
		Title:       "Tunnel Fan 1",
		Kind:        domain.KindFan,
		OnOff:       virtualPoint("fan-1.on"),
		RunFeedback: virtualPoint("fan-1.run"),
		AutoManual:  virtualPoint("fan-1.am"),
		Trip:        virtualPoint("fan-1.trip"),
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	api.NewHandler(sup, zerolog.Nop()).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func decodeState(t *testing.T, resp *http.Response) domain.State {
	t.Helper()
	defer resp.Body.Close()
	var st domain.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func TestListEquipment(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/equipment")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var list api.StatusListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Equipment, 2)
	assert.Equal(t, "fan-1", list.Equipment[0].Name, "sorted by name")
	assert.Equal(t, "light-1", list.Equipment[1].Name)
}

func TestGetEquipment(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/equipment/light-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	st := decodeState(t, resp)
	assert.Equal(t, "light-1", st.Name)
	assert.Equal(t, "House Lights", st.Title)
	assert.Equal(t, domain.ModeManual, st.Mode)
	assert.True(t, st.ModeIsVirtual)
}

func TestGetEquipment_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/equipment/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTurnOnOff(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/equipment/light-1/on", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	st := decodeState(t, resp)
	assert.True(t, st.CommandedOn)

	v, err := store.Read(context.Background(), "", "light-1.on")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "coil written through the gateway")

	resp, err = http.Post(srv.URL+"/api/equipment/light-1/off", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	st = decodeState(t, resp)
	assert.False(t, st.CommandedOn)
}

func TestCommandRequiresPost(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/equipment/light-1/on")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSetMode(t *testing.T) {
	srv, store := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/equipment/fan-1/mode", "application/json",
		strings.NewReader(`{"mode":"auto"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	st := decodeState(t, resp)
	assert.Equal(t, domain.ModeAuto, st.Mode)

	v, err := store.Read(context.Background(), "", "fan-1.am")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "virtual selector written")

	resp, err = http.Post(srv.URL+"/api/equipment/fan-1/mode", "application/json",
		strings.NewReader(`{"mode":"turbo"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/equipment/fan-1/mode", "application/json",
		strings.NewReader(`not json`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSubresource(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/equipment/light-1/explode", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
