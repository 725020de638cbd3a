package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/langchou/fleetgazer/internal/models"
)

func TestPositionRepository(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	Convey("Given a position repository keeping three points per vehicle", t, func() {
		ctx := context.Background()
		_, err := db.Pool.Exec(ctx, `DELETE FROM positions WHERE vehicle_id IN ('VH-TEST', 'VH-OTHER')`)
		So(err, ShouldBeNil)
		repo := NewPositionRepository(db, 3)

		base := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			So(repo.Create(ctx, &models.Location{
				ID:        uuid.NewString(),
				VehicleID: "VH-TEST",
				Lat:       float64(i),
				Lng:       -122,
				Timestamp: base.Add(time.Duration(i) * time.Second),
				Speed:     10,
				Heading:   90,
			}), ShouldBeNil)
		}
		So(repo.Create(ctx, &models.Location{ID: uuid.NewString(), VehicleID: "VH-OTHER", Timestamp: base}), ShouldBeNil)

		Convey("When the track is listed", func() {
			track, err := repo.ListByVehicleID(ctx, "VH-TEST", 0)

			Convey("Then only the latest points remain, oldest first", func() {
				So(err, ShouldBeNil)
				So(track, ShouldHaveLength, 3)
				So(track[0].Lat, ShouldEqual, 2.0)
				So(track[2].Lat, ShouldEqual, 4.0)
				So(track[2].Heading, ShouldEqual, 90.0)
				So(track[2].Timestamp.Equal(base.Add(4*time.Second)), ShouldBeTrue)
			})
		})

		Convey("When a smaller limit is given", func() {
			track, err := repo.ListByVehicleID(ctx, "VH-TEST", 1)
			So(err, ShouldBeNil)
			So(track, ShouldHaveLength, 1)
			So(track[0].Lat, ShouldEqual, 4.0)
		})
	})
}
