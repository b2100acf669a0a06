package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quacker/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCriticalDownMakesSystemUnhealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterPing("store", true, func(context.Context) error { return errors.New("disk gone") })
	c.RegisterPing("cache", false, func(context.Context) error { return nil })

	c.RunChecks(context.Background())
	assert.False(t, c.IsSystemHealthy())

	w := httptest.NewRecorder()
	c.HTTPHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status     string      `json:"status"`
		Components []Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Components, 2)
	assert.Equal(t, "cache", body.Components[0].Name)
	assert.Equal(t, StatusUp, body.Components[0].Status)
	assert.Equal(t, "disk gone", body.Components[1].Error)
}

func TestNonCriticalDownStaysHealthy(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterPing("cache", false, func(context.Context) error { return errors.New("redis down") })

	var seen []bool
	c.OnChange(func(h bool) { seen = append(seen, h) })
	c.RunChecks(context.Background())

	assert.True(t, c.IsSystemHealthy())
	assert.Equal(t, []bool{true}, seen)
}

func TestGRPCHealthMirrorsChecker(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	up := false
	c.RegisterPing("store", true, func(context.Context) error {
		if up {
			return nil
		}
		return errors.New("down")
	})

	srv := NewGRPCServer(c, "quacker")
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	c.RunChecks(ctx)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: "quacker"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	up = true
	c.RunChecks(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "quacker"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
