package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupCommissionRepositoryTest(t *testing.T) (*GormCommissionRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:commission_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.AffiliateProfile{},
		&models.AffiliateTouch{},
		&models.CommissionEvent{},
		&models.CommissionLedger{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewCommissionRepository(db), db
}

func TestCommissionRepositoryInsertEventIfNewIsIdempotent(t *testing.T) {
	repo, _ := setupCommissionRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)

	event := models.CommissionEvent{
		AffiliateProfileID: 7,
		PatientID:          11,
		ClinicID:           1,
		SourceEventID:      "evt_commission_repo_1",
		SourceObjectID:     "ch_commission_repo_1",
		Amount:             models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
		Status:             constants.CommissionStatusApproved,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inserted, err := repo.InsertEventIfNew(&event)
	if err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to create a row")
	}

	duplicate := models.CommissionEvent{
		AffiliateProfileID: 7,
		PatientID:          11,
		ClinicID:           1,
		SourceEventID:      "evt_commission_repo_1",
		SourceObjectID:     "ch_commission_repo_1",
		Amount:             models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
		Status:             constants.CommissionStatusApproved,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inserted, err = repo.InsertEventIfNew(&duplicate)
	if err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate insert to be skipped")
	}

	events, total, err := repo.ListEvents(CommissionListFilter{Page: 1, PageSize: 10, AffiliateProfileID: 7})
	if err != nil {
		t.Fatalf("list events failed: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("expected exactly one commission event, got total=%d len=%d", total, len(events))
	}
}

func TestCommissionRepositoryDifferentAffiliateSameSourceAllowed(t *testing.T) {
	repo, _ := setupCommissionRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)

	for _, profileID := range []uint{1, 2} {
		event := models.CommissionEvent{
			AffiliateProfileID: profileID,
			PatientID:          5,
			ClinicID:           1,
			SourceEventID:      "evt_commission_repo_shared",
			Amount:             models.NewMoneyFromDecimal(decimal.NewFromInt(10)),
			Status:             constants.CommissionStatusApproved,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		inserted, err := repo.InsertEventIfNew(&event)
		if err != nil {
			t.Fatalf("insert for profile %d failed: %v", profileID, err)
		}
		if !inserted {
			t.Fatalf("expected insert for profile %d to create a row", profileID)
		}
	}
}

func TestCommissionRepositoryMarkEventReversed(t *testing.T) {
	repo, _ := setupCommissionRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)

	event := models.CommissionEvent{
		AffiliateProfileID: 3,
		PatientID:          4,
		ClinicID:           1,
		SourceEventID:      "evt_commission_repo_rev",
		SourceObjectID:     "ch_commission_repo_rev",
		Amount:             models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		Status:             constants.CommissionStatusApproved,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if _, err := repo.InsertEventIfNew(&event); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	found, err := repo.GetEventBySourceObject("ch_commission_repo_rev")
	if err != nil {
		t.Fatalf("lookup by source object failed: %v", err)
	}
	if found == nil {
		t.Fatalf("expected event by source object")
	}

	if err := repo.MarkEventReversed(found.ID, now); err != nil {
		t.Fatalf("mark reversed failed: %v", err)
	}
	reloaded, err := repo.GetEventByID(found.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Status != constants.CommissionStatusReversed {
		t.Fatalf("expected status reversed, got %s", reloaded.Status)
	}
	if reloaded.ReversedAt == nil {
		t.Fatalf("expected reversed_at to be set")
	}
}

func TestCommissionRepositoryReversalStats(t *testing.T) {
	repo, _ := setupCommissionRepositoryTest(t)
	now := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 4; i++ {
		status := constants.CommissionStatusApproved
		if i == 0 {
			status = constants.CommissionStatusReversed
		}
		event := models.CommissionEvent{
			AffiliateProfileID: 9,
			PatientID:          uint(100 + i),
			ClinicID:           1,
			SourceEventID:      fmt.Sprintf("evt_commission_repo_stats_%d", i),
			Amount:             models.NewMoneyFromDecimal(decimal.NewFromInt(20)),
			Status:             status,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if _, err := repo.InsertEventIfNew(&event); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	total, reversed, err := repo.ReversalStatsByProfile(9, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("reversal stats failed: %v", err)
	}
	if total != 4 || reversed != 1 {
		t.Fatalf("expected total=4 reversed=1, got total=%d reversed=%d", total, reversed)
	}
}
