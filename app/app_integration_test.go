// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/influxdb"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hotcirc/hotcirc/app"
	"github.com/hotcirc/hotcirc/config"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

// AppIntegrationTestSuite exercises the full daemon lifecycle against real
// InfluxDB and MQTT containers, with sensors served by local HTTP stubs.
type AppIntegrationTestSuite struct {
	suite.Suite
	influxContainer testcontainers.Container
	mqttContainer   testcontainers.Container
	influxURL       string
	brokerURL       string
}

func TestAppIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AppIntegrationTestSuite))
}

func (s *AppIntegrationTestSuite) SetupSuite() {
	logger.Initialize("error", "json")
	ctx := context.Background()

	influxContainer, err := influxdb.Run(ctx,
		"influxdb:2.7-alpine",
		influxdb.WithV2Auth("test-org", "test-bucket", "test-user", "test-password"),
		influxdb.WithV2AdminToken("test-token"),
	)
	s.Require().NoError(err)
	s.influxContainer = influxContainer

	s.influxURL, err = influxContainer.ConnectionUrl(ctx)
	s.Require().NoError(err)

	mqttContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:1.6",
			ExposedPorts: []string{"1883/tcp"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
		},
		Started: true,
	})
	s.Require().NoError(err)
	s.mqttContainer = mqttContainer

	host, err := mqttContainer.Host(ctx)
	s.Require().NoError(err)
	port, err := mqttContainer.MappedPort(ctx, "1883")
	s.Require().NoError(err)
	s.brokerURL = fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func (s *AppIntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.mqttContainer != nil {
		s.Require().NoError(s.mqttContainer.Terminate(ctx))
	}
	if s.influxContainer != nil {
		s.Require().NoError(s.influxContainer.Terminate(ctx))
	}
}

// sensorStub serves a fixed ESPHome-style sensor reading.
func sensorStub(id string, value float64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"id":"sensor-%s","value":%.1f,"state":"%.1f °C"}`, id, value, value)
	}))
}

func (s *AppIntegrationTestSuite) TestAppLifecycle() {
	outlet := sensorStub("outlet", 42.0)
	defer outlet.Close()
	ret := sensorStub("return", 38.5)
	defer ret.Close()

	tempDir := s.T().TempDir()
	stateFile := filepath.Join(tempDir, "state.json")
	configPath := filepath.Join(tempDir, "config.yaml")

	configContent := fmt.Sprintf(`
control:
  tick_interval: 200ms
sensors:
  outlet:
    url: %s
  return:
    url: %s
  poll_interval: 100ms
  staleness: 2s
mqtt:
  broker: %s
influxdb:
  url: %s
  token: test-token
  organization: test-org
  bucket: test-bucket
storage:
  cache_dir: %s
  state_file: %s
logging:
  level: error
  format: json
`, outlet.URL, ret.URL, s.brokerURL, s.influxURL, filepath.Join(tempDir, "cache"), stateFile)
	s.Require().NoError(os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := config.Load(configPath)
	s.Require().NoError(err)

	application, err := app.New(cfg, "9093", configPath)
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() {
		done <- application.Run()
	}()

	// Give the control loop a few ticks.
	time.Sleep(2 * time.Second)

	resp, err := http.Get("http://localhost:9093/health")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://localhost:9093/ready")
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	p, err := os.FindProcess(os.Getpid())
	s.Require().NoError(err)
	s.Require().NoError(p.Signal(os.Interrupt))

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(15 * time.Second):
		s.T().Fatal("App did not shut down gracefully")
	}

	// The shutdown path persists the controller snapshot.
	_, err = os.Stat(stateFile)
	s.NoError(err, "state file should exist after shutdown")
}
