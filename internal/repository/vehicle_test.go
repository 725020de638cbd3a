package repository

import (
	"context"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/langchou/fleetgazer/internal/models"
)

// 需要可写的 PostgreSQL：TEST_DATABASE_URL=postgres://... go test ./internal/repository
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestVehicleRepository(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	Convey("Given an empty vehicles table", t, func() {
		ctx := context.Background()
		repo := NewVehicleRepository(db)
		So(repo.ReplaceAll(ctx, nil), ShouldBeNil)

		n, err := repo.Count(ctx)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 0)

		Convey("When a fleet is written", func() {
			fleet := []models.Vehicle{
				{ID: "VH-010", Kind: "Van", Status: models.StatusIdle, Position: models.Position{Lat: 1, Lng: 2}, Speed: 0, FuelLevel: 40, LastUpdate: "5 min ago"},
				{ID: "VH-002", Kind: "Truck", Status: models.StatusActive, Position: models.Position{Lat: 3, Lng: 4}, Speed: 70, FuelLevel: 90, LastUpdate: "just now", Driver: "USR-001"},
			}
			So(repo.ReplaceAll(ctx, fleet), ShouldBeNil)

			Convey("Then Load returns it in write order", func() {
				got, err := repo.Load(ctx)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, fleet)
			})
		})
	})
}

func TestNew_InvalidURL(t *testing.T) {
	Convey("Given a malformed database url", t, func() {
		_, err := New(context.Background(), "postgres://%zz")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "parse database url")
	})
}
