package simulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/langchou/fleetgazer/internal/ingest"
	"github.com/langchou/fleetgazer/internal/models"
)

func TestTracker_Read(t *testing.T) {
	Convey("Given a tracker near San Francisco", t, func() {
		base := models.Position{Lat: 37.7749, Lng: -122.4194}
		tracker := NewTracker("VH-001", base, fuelOf(0.3), 42)
		now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

		Convey("Then every reading decodes as valid telemetry", func() {
			prevFuel := 0.3
			for i := 0; i < 50; i++ {
				reading := tracker.Read(now)
				raw, err := json.Marshal(reading)
				So(err, ShouldBeNil)

				u, err := ingest.DecodeTelemetry(raw)
				So(err, ShouldBeNil)
				So(u.ID, ShouldEqual, "VH-001")
				So(*u.Position, ShouldNotResemble, models.Position{})
				So(u.Position.Lat, ShouldAlmostEqual, base.Lat, jitterDegrees)
				So(u.Position.Lng, ShouldAlmostEqual, base.Lng, jitterDegrees)
				So(*u.Speed, ShouldBeBetweenOrEqual, 0.0, float64(maxSpeed))

				So(*u.FuelLevel, ShouldBeLessThanOrEqualTo, prevFuel)
				So(*u.FuelLevel, ShouldBeGreaterThanOrEqualTo, 0.0)
				prevFuel = *u.FuelLevel
			}
			So(*tracker.Read(now).Timestamp, ShouldEqual, now.UnixMilli())
		})

		Convey("Then an unknown fuel level starts from the default", func() {
			fresh := NewTracker("VH-009", base, nil, 1)
			So(*fresh.Read(now).FuelLevel, ShouldBeBetweenOrEqual, defaultFuel-maxFuelBurn, defaultFuel)
		})

		Convey("Then an empty tank stays empty", func() {
			empty := NewTracker("VH-004", base, fuelOf(0), 1)
			for i := 0; i < 5; i++ {
				So(*empty.Read(now).FuelLevel, ShouldEqual, 0.0)
			}
		})

		Convey("Then an out of range fuel level is clamped", func() {
			full := NewTracker("VH-005", base, fuelOf(140), 1)
			So(*full.Read(now).FuelLevel, ShouldBeBetweenOrEqual, 100-maxFuelBurn, 100.0)
		})
	})
}

func fuelOf(v float64) *float64 { return &v }

type telemetrySink struct {
	mu       sync.Mutex
	received []models.Telemetry
	status   int
}

func (s *telemetrySink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/vehicles":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []models.Vehicle{{ID: "VH-001", Status: models.StatusActive, FuelLevel: 78}},
		})
	case r.Method == http.MethodPost && r.URL.Path == "/api/telemetry":
		var t models.Telemetry
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.received = append(s.received, t)
		status := s.status
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"vehicle not found"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *telemetrySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

func TestClient(t *testing.T) {
	Convey("Given a fleet server", t, func() {
		sink := &telemetrySink{}
		server := httptest.NewServer(sink)
		defer server.Close()
		client := NewClient(server.URL + "/")
		ctx := context.Background()

		Convey("When the fleet is fetched", func() {
			vehicles, err := client.Fleet(ctx)

			Convey("Then the vehicle list is decoded", func() {
				So(err, ShouldBeNil)
				So(vehicles, ShouldHaveLength, 1)
				So(vehicles[0].ID, ShouldEqual, "VH-001")
			})
		})

		Convey("When several rounds are run", func() {
			trackers := []*Tracker{
				NewTracker("VH-001", models.Position{}, fuelOf(50), 1),
				NewTracker("VH-002", models.Position{}, fuelOf(50), 2),
			}
			Run(ctx, client, trackers, time.Millisecond, 3, zap.NewNop())

			Convey("Then each tracker reports once per round", func() {
				So(sink.count(), ShouldEqual, 6)
				So(sink.received[0].VehicleID, ShouldEqual, "VH-001")
				So(sink.received[1].VehicleID, ShouldEqual, "VH-002")
			})
		})

		Convey("When the server rejects telemetry", func() {
			sink.status = http.StatusNotFound
			err := client.SendTelemetry(ctx, NewTracker("VH-404", models.Position{}, nil, 3).Read(time.Now()))

			Convey("Then the status and body are reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "status 404")
				So(err.Error(), ShouldContainSubstring, "vehicle not found")
			})
		})
	})
}
