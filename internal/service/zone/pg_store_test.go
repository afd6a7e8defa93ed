package zone

import (
	"os"
	"testing"

	"parkclash/internal/model"
	"parkclash/internal/postgres"
	"parkclash/internal/util"

	"gorm.io/gorm"
)

// testDB opens TEST_DATABASE_URL or skips the test
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := postgres.Init(url)
	if err != nil {
		t.Fatalf("postgres.Init: %v", err)
	}
	return db
}

func cleanPark(t *testing.T, db *gorm.DB, parkID string) {
	t.Helper()
	clean := func() {
		db.Where("park_id = ?", parkID).Delete(&model.ZonePG{})
	}
	clean()
	t.Cleanup(clean)
}

func TestPGStoreContract(t *testing.T) {
	db := testDB(t)
	parkID := "pg-contract-" + util.ShortUUID()
	cleanPark(t, db, parkID)

	runStoreContract(t, NewPGStore(db), parkID)
}

func TestPGStoreConcurrentCapture(t *testing.T) {
	db := testDB(t)
	parkID := "pg-race-" + util.ShortUUID()
	cleanPark(t, db, parkID)

	runConcurrentCapture(t, NewPGStore(db), parkID)
}

func TestPGStoreContestedCapture(t *testing.T) {
	db := testDB(t)
	parkID := "pg-contest-" + util.ShortUUID()
	cleanPark(t, db, parkID)

	runContestedCapture(t, NewPGStore(db), parkID)
}
