// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/manager"
	"github.com/relabs-tech/controller_manager/internal/metrics"
	"github.com/relabs-tech/controller_manager/internal/platform/sim"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Transport = config.TransportMemory
	cfg.PluginName = "pid_speed"
	cfg.ControlPeriodMs = 5
	cfg.SimStateIntervalMs = 5
	cfg.SimInfoIntervalMs = 5
	return cfg
}

func testPlugin(bypass bool) *config.Plugin {
	return &config.Plugin{
		InputModes:  []controlmode.Code{controlmode.CodeHover, 0x65},
		OutputModes: []controlmode.Code{0x49},
		Parameters:  map[string]float64{"kp": 1},
		UseBypass:   &bypass,
	}
}

func TestOpenBus(t *testing.T) {
	cfg := testConfig()
	bus, err := OpenBus(cfg, "test")
	require.NoError(t, err)
	assert.IsType(t, &transport.MemoryBus{}, bus)

	cfg.Transport = "smoke_signals"
	_, err = OpenBus(cfg, "test")
	assert.Error(t, err)
}

func TestNewManager_Errors(t *testing.T) {
	cfg := testConfig()
	bus := transport.NewMemoryBus()
	topics := transport.NewTopics("")

	cfg.PluginName = ""
	_, err := NewManager(cfg, testPlugin(false), bus, topics, metrics.New(nil))
	assert.Error(t, err)

	cfg.PluginName = "does_not_exist"
	_, err = NewManager(cfg, testPlugin(false), bus, topics, metrics.New(nil))
	assert.Error(t, err)
}

// runStack starts a simulated platform and a manager on one memory bus.
func runStack(t *testing.T, plugin *config.Plugin) (*manager.Manager, transport.Bus, transport.Topics, context.Context) {
	t.Helper()
	cfg := testConfig()
	bus := transport.NewMemoryBus()
	topics := transport.NewTopics("drone0")

	m, err := NewManager(cfg, plugin, bus, topics, metrics.New(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = sim.New(bus, topics, simOptions(cfg)).Run(ctx) }()
	go func() { defer wg.Done(); _ = m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return m, bus, topics, ctx
}

func setModeEventually(t *testing.T, ctx context.Context, bus transport.Bus, topics transport.Topics, mode controlmode.Mode) {
	t.Helper()
	require.Eventually(t, func() bool {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return SetMode(reqCtx, bus, topics, mode) == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStack_ControllerDrivesSimulator(t *testing.T) {
	m, bus, topics, ctx := runStack(t, testPlugin(false))

	out := &lockedBuffer{}
	require.NoError(t, SubscribeConsole(bus, topics, out))

	setModeEventually(t, ctx, bus, topics, controlmode.Decode(0x65))
	st := m.Status()
	assert.True(t, st.Established)
	assert.False(t, st.Bypass)
	assert.Equal(t, controlmode.Decode(0x49), st.OutputMode)

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[TWIST]") && strings.Contains(out.String(), "[THRUST]")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStack_PluginBypassOverride(t *testing.T) {
	m, bus, topics, ctx := runStack(t, testPlugin(true))

	setModeEventually(t, ctx, bus, topics, controlmode.Decode(0x65))
	st := m.Status()
	assert.True(t, st.Established)
	assert.True(t, st.Bypass)
	assert.Equal(t, controlmode.Decode(0x65), st.OutputMode)
}

func TestSetMode_Refused(t *testing.T) {
	_, bus, topics, ctx := runStack(t, testPlugin(false))

	// Attitude is neither declared by the plugin nor advertised by the simulator.
	var err error
	require.Eventually(t, func() bool {
		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		err = SetMode(reqCtx, bus, topics, controlmode.Decode(0x35))
		return err != nil && !strings.Contains(err.Error(), "no responders")
	}, 2*time.Second, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrModeRefused)
}

type staticStatus manager.Status

func (s staticStatus) Status() manager.Status { return manager.Status(s) }

func TestWebHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	met.SetNegotiationState(true, false)

	src := staticStatus{Established: true, OutputMode: controlmode.Decode(0x49)}
	srv := httptest.NewServer(NewWebHandler(src, reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	var got manager.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.True(t, got.Established)
	assert.Equal(t, controlmode.Decode(0x49), got.OutputMode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "controller_manager_negotiation_established 1")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var pushed manager.Status
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.True(t, pushed.Established)
}
