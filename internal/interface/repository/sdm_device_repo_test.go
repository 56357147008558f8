package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestcheckout-service/internal/domain/entity"
	"nestcheckout-service/pkg/logger"
	"nestcheckout-service/pkg/retry"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return s.token, s.err
}

const listingJSON = `{
  "devices": [
    {
      "name": "enterprises/proj/devices/dev-1",
      "traits": {
        "sdm.devices.traits.Info": {"customName": "Living Room"},
        "sdm.devices.traits.ThermostatMode": {"mode": "HEAT"},
        "sdm.devices.traits.Temperature": {"ambientTemperatureCelsius": 21.5},
        "sdm.devices.traits.Humidity": {"ambientHumidityPercent": 40}
      }
    },
    {
      "name": "enterprises/proj/devices/dev-2",
      "traits": {
        "sdm.devices.traits.ThermostatMode": {"mode": "COOL"}
      }
    },
    {
      "name": "enterprises/proj/devices/cam-1",
      "traits": {
        "sdm.devices.traits.CameraLiveStream": {}
      }
    }
  ]
}`

func newTestRepo(t *testing.T, handler http.Handler) (*SDMDeviceRepository, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	repo := NewSDMDeviceRepositoryWithBaseURL("proj", server.URL, staticTokens{token: "tok"}, logger.NewNop()).(*SDMDeviceRepository)
	repo.policy = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	return repo, server
}

func TestListDevices_FiltersToThermostats(t *testing.T) {
	var authHeader atomic.Value
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		assert.Equal(t, "/enterprises/proj/devices", r.URL.Path)
		io.WriteString(w, listingJSON)
	}))

	devices, err := repo.ListDevices(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, devices, 2, "camera must be filtered out")

	assert.Equal(t, "Bearer tok", authHeader.Load())

	living := devices[0]
	assert.Equal(t, "dev-1", living.DeviceID)
	assert.Equal(t, "enterprises/proj/devices/dev-1", living.Name)
	assert.Equal(t, "Living Room", living.DisplayName)
	assert.Equal(t, entity.ModeHeat, living.CurrentMode)
	require.NotNil(t, living.AmbientTemperature)
	assert.InDelta(t, 21.5, *living.AmbientTemperature, 0.001)
	require.NotNil(t, living.HumidityPercent)
	assert.InDelta(t, 40, *living.HumidityPercent, 0.001)

	// No Info trait: sentinel display name.
	assert.Equal(t, "Unknown", devices[1].DisplayName)
}

func TestListDevices_ServesFromCache(t *testing.T) {
	var requests atomic.Int64
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		io.WriteString(w, listingJSON)
	}))

	_, err := repo.ListDevices(context.Background(), false)
	require.NoError(t, err)
	_, err = repo.ListDevices(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requests.Load())

	_, err = repo.ListDevices(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), requests.Load(), "forceRefresh must bypass the cache")
}

func TestListDevices_RetriesTransientFailures(t *testing.T) {
	var requests atomic.Int64
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, listingJSON)
	}))

	devices, err := repo.ListDevices(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, int64(3), requests.Load())
}

func TestListDevices_ExhaustedRetriesReturnError(t *testing.T) {
	var requests atomic.Int64
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := repo.ListDevices(context.Background(), false)
	var apiErr *entity.DeviceAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, int64(3), requests.Load())
}

func TestSetMode_PostsExecuteCommand(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		io.WriteString(w, "{}")
	}))

	require.NoError(t, repo.SetMode(context.Background(), "dev-1", entity.ModeOff))

	assert.Equal(t, "/enterprises/proj/devices/dev-1:executeCommand", gotPath)
	assert.Equal(t, "sdm.devices.commands.ThermostatMode.SetMode", gotBody["command"])
	params, ok := gotBody["params"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "OFF", params["mode"])
}

func TestSetMode_DoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int64
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"message": "invalid mode"}}`)
	}))

	err := repo.SetMode(context.Background(), "dev-1", "BOGUS")
	var apiErr *entity.DeviceAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, int64(1), requests.Load(), "4xx must not be retried")
}

func TestSetMode_AuthFailureIsNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the API without a token")
	}))
	t.Cleanup(server.Close)

	tokens := staticTokens{err: &entity.AuthError{Err: errors.New("invalid_grant")}}
	repo := NewSDMDeviceRepositoryWithBaseURL("proj", server.URL, tokens, logger.NewNop()).(*SDMDeviceRepository)
	repo.policy = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	err := repo.SetMode(context.Background(), "dev-1", entity.ModeOff)
	var authErr *entity.AuthError
	require.ErrorAs(t, err, &authErr)
}

func TestTurnOffMany_ContinuesOnError(t *testing.T) {
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "dev-2") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, "{}")
	}))

	results := repo.TurnOffMany(context.Background(), []string{"dev-1", "dev-2", "dev-3"})

	require.Len(t, results, 3)
	assert.True(t, results["dev-1"])
	assert.False(t, results["dev-2"])
	assert.True(t, results["dev-3"], "failure on dev-2 must not suppress dev-3")
}

func TestDeviceStatus(t *testing.T) {
	repo, _ := newTestRepo(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, listingJSON)
	}))

	status, err := repo.DeviceStatus(context.Background(), "dev-2")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, entity.ModeCool, status.CurrentMode)

	missing, err := repo.DeviceStatus(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
