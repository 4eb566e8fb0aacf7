package web

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-taro/internal/metrics"
	"github.com/teslashibe/go-taro/pkg/creature"
	"github.com/teslashibe/go-taro/pkg/mouth"
	"github.com/teslashibe/go-taro/pkg/pipeline"
)

func testSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Mouth: mouth.Stats{
			Pulse: 1100,
			State: "tracking",
			Pipeline: pipeline.Stats{
				Running: true,
				Cycles:  99,
				Outputs: []pipeline.OutputStats{{Device: "speaker"}},
			},
		},
		Creature: creature.Stats{
			Neck:  &creature.NeckStats{Pulse: 1500, Target: 1500},
			Wings: &creature.WingsStats{Ready: true},
		},
	}
}

func newTestServer() (*Server, *metrics.Metrics) {
	m := metrics.New(testSnapshot)
	cfg := DefaultConfig()
	cfg.StatusInterval = 10 * time.Millisecond
	return NewServer(cfg, testSnapshot, m, nil), m
}

func TestHandleStatus(t *testing.T) {
	s, m := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if st.Mouth.Pulse != 1100 || st.Mouth.State != "tracking" {
		t.Errorf("Unexpected mouth status: %+v", st.Mouth)
	}
	if st.Mouth.Pipeline.Cycles != 99 {
		t.Errorf("Expected 99 cycles, got %d", st.Mouth.Pipeline.Cycles)
	}
	if st.Creature.Neck == nil || st.Creature.Neck.Pulse != 1500 {
		t.Errorf("Expected neck pulse 1500, got %+v", st.Creature.Neck)
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/status", "200")); got != 1 {
		t.Errorf("Expected 1 recorded request, got %v", got)
	}
}

func TestHandleMetrics(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/metrics", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "taro_pipeline_cycles_total 99") {
		t.Errorf("Expected cycles metric in output, got:\n%s", body)
	}
}

func TestStatusWS_RequiresUpgrade(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/status", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}

func TestServe_PushesStatus(t *testing.T) {
	s, _ := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/ws/status"
	var conn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Dial failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer conn.Close()

	// Initial status plus at least one periodic push.
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var st Status
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("message %d: read failed: %v", i, err)
		}
		if st.Mouth.Pulse != 1100 {
			t.Errorf("message %d: expected pulse 1100, got %v", i, st.Mouth.Pulse)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStatusClient(t *testing.T) {
	s, _ := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, ln)

	dialCtx, dialCancel := context.WithTimeout(ctx, 2*time.Second)
	defer dialCancel()
	var c *StatusClient
	for {
		c, err = DialStatus(dialCtx, ln.Addr().String())
		if err == nil {
			break
		}
		if dialCtx.Err() != nil {
			t.Fatalf("DialStatus failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	defer c.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 2*time.Second)
	defer readCancel()
	st, err := c.Next(readCtx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if st.Creature.Wings == nil || !st.Creature.Wings.Ready {
		t.Errorf("Expected wings ready, got %+v", st.Creature.Wings)
	}

	short, shortCancel := context.WithCancel(ctx)
	shortCancel()
	if _, err := c.Next(short); err == nil {
		t.Error("Expected error with cancelled context")
	}
}

func TestStatusWS_ReconnectReleasesClients(t *testing.T) {
	s, _ := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	for i := 0; i < 5; i++ {
		dialCtx, dialCancel := context.WithTimeout(ctx, 2*time.Second)
		var c *StatusClient
		for {
			c, err = DialStatus(dialCtx, ln.Addr().String())
			if err == nil || dialCtx.Err() != nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			dialCancel()
			t.Fatalf("connection %d: dial failed: %v", i, err)
		}

		// Read a few pushes so the write pump is active when the client leaves.
		for j := 0; j < 3; j++ {
			if _, err := c.Next(dialCtx); err != nil {
				t.Fatalf("connection %d: read failed: %v", i, err)
			}
		}
		c.Close()
		dialCancel()

		deadline := time.Now().Add(2 * time.Second)
		for s.statusHub.ClientCount() != 0 {
			if time.Now().After(deadline) {
				t.Fatalf("connection %d: expected client released, %d remain", i, s.statusHub.ClientCount())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"not a number", Config{Port: "http", StatusInterval: time.Second}, true},
		{"out of range", Config{Port: "70000", StatusInterval: time.Second}, true},
		{"zero interval", Config{Port: "8080"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
