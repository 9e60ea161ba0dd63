package auth

import (
	"testing"

	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAuthDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuthGrant{}, &models.Role{}, &models.RoleMember{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func boolPtr(b bool) *bool { return &b }

func TestSaveAuthorizationCreatesClassGrant(t *testing.T) {
	db := setupAuthDB(t)

	err := SaveAuthorization(db, SaveAuthorizationParams{
		FeatherName: "Invoice",
		RolePK:      1,
		Actions:     Actions{CanRead: boolPtr(true), CanCreate: boolPtr(true)},
	})
	if err != nil {
		t.Fatalf("SaveAuthorization failed: %v", err)
	}

	var grant models.AuthGrant
	if err := db.Where("feather_name = ? AND role_pk = ?", "Invoice", 1).First(&grant).Error; err != nil {
		t.Fatalf("expected grant row to exist: %v", err)
	}
	if grant.ObjectPK != -1 {
		t.Errorf("expected class grant object_pk=-1, got %d", grant.ObjectPK)
	}
	if !grant.CanRead || !grant.CanCreate {
		t.Errorf("expected canRead/canCreate to be true, got %+v", grant)
	}
}

func TestSaveAuthorizationDeletesRowWhenEverythingCleared(t *testing.T) {
	db := setupAuthDB(t)

	if err := SaveAuthorization(db, SaveAuthorizationParams{
		FeatherName: "Invoice", RolePK: 1,
		Actions: Actions{CanRead: boolPtr(true)},
	}); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	if err := SaveAuthorization(db, SaveAuthorizationParams{
		FeatherName: "Invoice", RolePK: 1,
		Actions: Actions{CanRead: boolPtr(false)},
	}); err != nil {
		t.Fatalf("clearing save failed: %v", err)
	}

	var count int64
	db.Model(&models.AuthGrant{}).Where("feather_name = ? AND role_pk = ?", "Invoice", 1).Count(&count)
	if count != 0 {
		t.Errorf("expected grant row to be deleted once every action and isMember clear, found %d rows", count)
	}
}

func TestPropagateAuthAppliesInheritedGrantAndStopsAtDirect(t *testing.T) {
	db := setupAuthDB(t)

	// objPK 10 has no direct grant -> gets an inherited one.
	// objPK 20 has a direct, non-inherited grant -> must be left alone.
	if err := db.Create(&models.AuthGrant{ObjectPK: 20, RolePK: 1, IsInherited: false, CanRead: true}).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	lookup := func(folderPK int64) ([]int64, []int64, error) {
		if folderPK == 1 {
			return []int64{10, 20}, []int64{2}, nil
		}
		if folderPK == 2 {
			return []int64{30}, nil, nil
		}
		return nil, nil, nil
	}

	if err := PropagateAuth(db, 1, 1, false, lookup); err != nil {
		t.Fatalf("PropagateAuth failed: %v", err)
	}

	var grant10 models.AuthGrant
	if err := db.Where("object_pk = ? AND role_pk = ?", 10, 1).First(&grant10).Error; err != nil {
		t.Fatalf("expected inherited grant on object 10: %v", err)
	}
	if !grant10.IsInherited || !grant10.IsMemberAuth {
		t.Errorf("expected inherited member grant on object 10, got %+v", grant10)
	}

	var grant20 models.AuthGrant
	if err := db.Where("object_pk = ? AND role_pk = ?", 20, 1).First(&grant20).Error; err != nil {
		t.Fatalf("expected direct grant on object 20 to still exist: %v", err)
	}
	if grant20.IsInherited {
		t.Error("expected direct grant on object 20 to remain non-inherited")
	}

	var grant30 models.AuthGrant
	if err := db.Where("object_pk = ? AND role_pk = ?", 30, 1).First(&grant30).Error; err != nil {
		t.Fatalf("expected propagation to reach child folder's object 30: %v", err)
	}
}

func TestPropagateAuthDeletedRetractsInheritedGrant(t *testing.T) {
	db := setupAuthDB(t)

	if err := db.Create(&models.AuthGrant{ObjectPK: 10, RolePK: 1, IsInherited: true, IsMemberAuth: true, CanRead: true}).Error; err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	lookup := func(folderPK int64) ([]int64, []int64, error) {
		return []int64{10}, nil, nil
	}

	if err := PropagateAuth(db, 1, 1, true, lookup); err != nil {
		t.Fatalf("PropagateAuth failed: %v", err)
	}

	var count int64
	db.Model(&models.AuthGrant{}).Where("object_pk = ? AND role_pk = ?", 10, 1).Count(&count)
	if count != 0 {
		t.Errorf("expected inherited grant to be retracted, found %d rows", count)
	}
}
