package state

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/langchou/fleetgazer/internal/models"
)

func fixtureFleet() []models.Vehicle {
	return []models.Vehicle{
		{ID: "VH-001", Kind: "Truck", Status: models.StatusActive, Position: models.Position{Lat: 37.7749, Lng: -122.4194}, Speed: 65, FuelLevel: 78, LastUpdate: "2 min ago"},
		{ID: "VH-002", Kind: "Van", Status: models.StatusIdle, Position: models.Position{Lat: 37.7833, Lng: -122.4167}, Speed: 0, FuelLevel: 45, LastUpdate: "5 min ago"},
		{ID: "VH-003", Kind: "Car", Status: models.StatusAlert, Position: models.Position{Lat: 37.7694, Lng: -122.4862}, Speed: 0, FuelLevel: 12, LastUpdate: "1 min ago", Driver: "USR-002"},
	}
}

func ptr[T any](v T) *T { return &v }

func TestStore_LoadAll(t *testing.T) {
	Convey("Given an empty store", t, func() {
		store := NewStore()
		So(store.Len(), ShouldEqual, 0)
		So(store.List(), ShouldBeEmpty)

		Convey("When loading vehicles with unique ids", func() {
			fleet := fixtureFleet()
			err := store.LoadAll(fleet)

			Convey("Then List returns the same sequence in the same order", func() {
				So(err, ShouldBeNil)
				So(store.List(), ShouldResemble, fleet)
				So(store.Len(), ShouldEqual, 3)
			})

			Convey("And a second load replaces the contents entirely", func() {
				replacement := []models.Vehicle{fleet[2], fleet[0]}
				So(store.LoadAll(replacement), ShouldBeNil)
				So(store.List(), ShouldResemble, replacement)

				_, err := store.Get("VH-002")
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			})

			Convey("And loading an empty sequence clears the store", func() {
				So(store.LoadAll(nil), ShouldBeNil)
				So(store.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the input contains a duplicate id", func() {
			So(store.LoadAll(fixtureFleet()), ShouldBeNil)
			before := store.List()

			dup := fixtureFleet()
			dup[2].ID = "VH-001"
			err := store.LoadAll(dup)

			Convey("Then it fails with ErrValidation and keeps the prior state", func() {
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "VH-001")
				So(store.List(), ShouldResemble, before)
			})
		})

		Convey("When a vehicle breaks an invariant", func() {
			bad := fixtureFleet()
			bad[1].FuelLevel = 120
			err := store.LoadAll(bad)

			Convey("Then it fails with ErrValidation", func() {
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
				So(store.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a vehicle has no id", func() {
			bad := fixtureFleet()
			bad[0].ID = ""
			So(errors.Is(store.LoadAll(bad), ErrValidation), ShouldBeTrue)
		})
	})
}

func TestStore_ApplyUpdate(t *testing.T) {
	Convey("Given a store loaded with three vehicles", t, func() {
		store := NewStore()
		So(store.LoadAll(fixtureFleet()), ShouldBeNil)

		Convey("When VH-002 receives a speed-only update", func() {
			merged, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-002", Speed: ptr(40.0)})

			Convey("Then only the speed changes and the label is refreshed", func() {
				So(err, ShouldBeNil)
				So(merged.Status, ShouldEqual, models.StatusIdle)
				So(merged.Speed, ShouldEqual, 40.0)
				So(merged.FuelLevel, ShouldEqual, 45.0)
				So(merged.Kind, ShouldEqual, "Van")
				So(merged.Position, ShouldResemble, models.Position{Lat: 37.7833, Lng: -122.4167})
				So(merged.LastUpdate, ShouldEqual, models.LastUpdateJustNow)

				stored, err := store.Get("VH-002")
				So(err, ShouldBeNil)
				So(stored, ShouldResemble, merged)
			})

			Convey("And the other vehicles are untouched", func() {
				list := store.List()
				So(list[0], ShouldResemble, fixtureFleet()[0])
				So(list[2], ShouldResemble, fixtureFleet()[2])
			})
		})

		Convey("When an update supplies every field", func() {
			u := models.VehicleUpdate{
				ID:         "VH-003",
				Kind:       ptr("Truck"),
				Status:     ptr(models.StatusActive),
				Position:   &models.Position{Lat: 1, Lng: 2},
				Speed:      ptr(88.0),
				FuelLevel:  ptr(50.0),
				LastUpdate: ptr("3 min ago"),
				Driver:     ptr("USR-001"),
			}
			merged, err := store.ApplyUpdate(u)

			Convey("Then every supplied field wins except the forced label", func() {
				So(err, ShouldBeNil)
				So(merged, ShouldResemble, models.Vehicle{
					ID:         "VH-003",
					Kind:       "Truck",
					Status:     models.StatusActive,
					Position:   models.Position{Lat: 1, Lng: 2},
					Speed:      88,
					FuelLevel:  50,
					LastUpdate: models.LastUpdateJustNow,
					Driver:     "USR-001",
				})
			})
		})

		Convey("When the same update is applied twice", func() {
			u := models.VehicleUpdate{ID: "VH-001", FuelLevel: ptr(10.0), Status: ptr(models.StatusAlert)}
			first, err1 := store.ApplyUpdate(u)
			second, err2 := store.ApplyUpdate(u)

			Convey("Then the resulting values are identical", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(second, ShouldResemble, first)
			})
		})

		Convey("When the update targets an unknown id", func() {
			before := store.List()
			_, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-999", Speed: ptr(12.0)})

			Convey("Then it fails with ErrNotFound and the store is unchanged", func() {
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)
				So(store.List(), ShouldResemble, before)
			})
		})

		Convey("When the update carries an out-of-range value", func() {
			before := store.List()
			_, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-001", Speed: ptr(-5.0)})

			Convey("Then it fails with ErrValidation and the store is unchanged", func() {
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
				So(store.List(), ShouldResemble, before)
			})
		})

		Convey("When a returned vehicle is modified by the caller", func() {
			v, err := store.Get("VH-001")
			So(err, ShouldBeNil)
			v.Speed = 999

			Convey("Then the store keeps its own copy", func() {
				stored, _ := store.Get("VH-001")
				So(stored.Speed, ShouldEqual, 65.0)
			})
		})
	})
}

func TestStore_Remove(t *testing.T) {
	Convey("Given a loaded store", t, func() {
		store := NewStore()
		So(store.LoadAll(fixtureFleet()), ShouldBeNil)

		Convey("When removing a vehicle in the middle", func() {
			So(store.Remove("VH-002"), ShouldBeNil)

			Convey("Then the remaining order is preserved", func() {
				list := store.List()
				So(len(list), ShouldEqual, 2)
				So(list[0].ID, ShouldEqual, "VH-001")
				So(list[1].ID, ShouldEqual, "VH-003")
			})

			Convey("And removing it again reports ErrNotFound", func() {
				So(errors.Is(store.Remove("VH-002"), ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestStore_StaleSince(t *testing.T) {
	Convey("Given a store with a controllable clock", t, func() {
		now := time.Date(2024, 4, 28, 10, 0, 0, 0, time.UTC)
		store := NewStore(WithClock(func() time.Time { return now }))
		So(store.LoadAll(fixtureFleet()), ShouldBeNil)

		Convey("When only VH-003 reports after three minutes", func() {
			now = now.Add(3 * time.Minute)
			_, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-003", Speed: ptr(5.0)})
			So(err, ShouldBeNil)

			Convey("Then the other two are stale for a two minute window", func() {
				So(store.StaleSince(now.Add(-2*time.Minute)), ShouldResemble, []string{"VH-001", "VH-002"})

				seen, ok := store.LastSeen("VH-003")
				So(ok, ShouldBeTrue)
				So(seen.Equal(now), ShouldBeTrue)
			})
		})

		Convey("When nothing is older than the cutoff", func() {
			So(store.StaleSince(now.Add(-time.Minute)), ShouldBeEmpty)
		})
	})
}

func TestStore_History(t *testing.T) {
	Convey("Given a store keeping three points per vehicle", t, func() {
		now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
		store := NewStore(WithHistoryLimit(3), WithClock(func() time.Time { return now }))
		So(store.LoadAll(fixtureFleet()), ShouldBeNil)

		Convey("When nothing has moved yet", func() {
			h, err := store.History("VH-001", 0)

			Convey("Then the history is empty", func() {
				So(err, ShouldBeNil)
				So(h, ShouldBeEmpty)
			})
		})

		Convey("When updates without a position arrive", func() {
			_, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-001", Speed: ptr(30.0)})
			So(err, ShouldBeNil)

			Convey("Then no point is recorded", func() {
				h, _ := store.History("VH-001", 0)
				So(h, ShouldBeEmpty)
			})
		})

		Convey("When a device reports its heading and time", func() {
			recorded := now.Add(-3 * time.Second)
			_, err := store.ApplyUpdate(models.VehicleUpdate{
				ID:         "VH-002",
				Position:   &models.Position{Lat: 37.79, Lng: -122.41},
				Speed:      ptr(22.0),
				Heading:    ptr(-90.0),
				RecordedAt: &recorded,
			})
			So(err, ShouldBeNil)

			Convey("Then the point carries them", func() {
				h, err := store.History("VH-002", 0)
				So(err, ShouldBeNil)
				So(h, ShouldHaveLength, 1)
				So(h[0].ID, ShouldNotBeEmpty)
				So(h[0].VehicleID, ShouldEqual, "VH-002")
				So(h[0].Lat, ShouldEqual, 37.79)
				So(h[0].Lng, ShouldEqual, -122.41)
				So(h[0].Speed, ShouldEqual, 22.0)
				So(h[0].Heading, ShouldEqual, 270.0)
				So(h[0].Timestamp, ShouldEqual, recorded)
			})
		})

		Convey("When more positions arrive than the limit", func() {
			for i := 1; i <= 5; i++ {
				_, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-001", Position: &models.Position{Lat: float64(i), Lng: 0}})
				So(err, ShouldBeNil)
			}

			Convey("Then only the latest points are kept, oldest first", func() {
				h, err := store.History("VH-001", 0)
				So(err, ShouldBeNil)
				So(h, ShouldHaveLength, 3)
				So(h[0].Lat, ShouldEqual, 3.0)
				So(h[2].Lat, ShouldEqual, 5.0)
				So(h[2].Timestamp, ShouldEqual, now)
				So(h[2].Speed, ShouldEqual, 65.0)
			})

			Convey("Then a limit returns the most recent points", func() {
				h, _ := store.History("VH-001", 2)
				So(h, ShouldHaveLength, 2)
				So(h[0].Lat, ShouldEqual, 4.0)
			})

			Convey("Then a rejected update adds nothing", func() {
				_, err := store.ApplyUpdate(models.VehicleUpdate{ID: "VH-001", Position: &models.Position{Lat: 6, Lng: 0}, Speed: ptr(-1.0)})
				So(errors.Is(err, ErrValidation), ShouldBeTrue)
				h, _ := store.History("VH-001", 0)
				So(h[2].Lat, ShouldEqual, 5.0)
			})

			Convey("Then removing or reloading drops the track", func() {
				So(store.Remove("VH-001"), ShouldBeNil)
				_, err := store.History("VH-001", 0)
				So(errors.Is(err, ErrNotFound), ShouldBeTrue)

				So(store.LoadAll(fixtureFleet()), ShouldBeNil)
				h, err := store.History("VH-001", 0)
				So(err, ShouldBeNil)
				So(h, ShouldBeEmpty)
			})
		})
	})
}
