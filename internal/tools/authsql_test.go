package tools

import (
	"testing"

	"github.com/localnerve/featherdb/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupAuthSQLDB builds an in-memory database good enough to execute
// BuildAuthSQL's fragment end to end: roleClosureSQL's recursive CTE and
// the $auth lookups are plain SQL with no Postgres-specific syntax, so
// SQLite can run them directly. test_obj stands in for a real feather
// table, needing only the _pk column BuildAuthSQL qualifies against.
func setupAuthSQLDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuthGrant{}, &models.Role{}, &models.RoleMember{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Exec(`CREATE TABLE test_obj ("_pk" INTEGER PRIMARY KEY)`).Error; err != nil {
		t.Fatalf("failed to create test_obj: %v", err)
	}
	for _, pk := range []int64{1, 2, 3, 4} {
		if err := db.Exec(`INSERT INTO test_obj ("_pk") VALUES (?)`, pk).Error; err != nil {
			t.Fatalf("failed to seed test_obj: %v", err)
		}
	}
	return db
}

// evalAuthSQL builds the fragment for objectPK's row and reports whether it
// evaluates true. userParam/featherParam are passed as literal SQL string
// values (BuildAuthSQL string-substitutes them; it does not bind them).
func evalAuthSQL(t *testing.T, db *gorm.DB, action AuthAction, userLiteral string, objectPK int64) bool {
	t.Helper()
	frag, err := BuildAuthSQL(action, "test_obj", "Invoice", userLiteral, "'Invoice'", false)
	if err != nil {
		t.Fatalf("BuildAuthSQL failed: %v", err)
	}
	var result int
	query := `SELECT (` + frag + `) FROM test_obj WHERE "_pk" = ?`
	if err := db.Raw(query, objectPK).Scan(&result).Error; err != nil {
		t.Fatalf("query failed: %v (sql: %s)", err, query)
	}
	return result != 0
}

func TestBuildAuthSQLDirectAllowBeatsDirectDenyOnTie(t *testing.T) {
	db := setupAuthSQLDB(t)

	if err := db.Create(&models.RoleMember{RoleID: 10, MemberUserID: "u1"}).Error; err != nil {
		t.Fatalf("seed role_member failed: %v", err)
	}
	if err := db.Create(&models.RoleMember{RoleID: 11, MemberUserID: "u1"}).Error; err != nil {
		t.Fatalf("seed role_member failed: %v", err)
	}
	if err := db.Create(&models.AuthGrant{ObjectPK: 1, RolePK: 10, IsInherited: false, CanRead: false}).Error; err != nil {
		t.Fatalf("seed deny grant failed: %v", err)
	}
	if err := db.Create(&models.AuthGrant{ObjectPK: 1, RolePK: 11, IsInherited: false, CanRead: true}).Error; err != nil {
		t.Fatalf("seed allow grant failed: %v", err)
	}

	if !evalAuthSQL(t, db, CanRead, "'u1'", 1) {
		t.Error("expected an equally-direct allow to beat a direct deny on tie, got denied")
	}
}

func TestBuildAuthSQLDirectDenyVetoesInheritedAllow(t *testing.T) {
	db := setupAuthSQLDB(t)

	if err := db.Create(&models.RoleMember{RoleID: 30, MemberUserID: "u3"}).Error; err != nil {
		t.Fatalf("seed role_member failed: %v", err)
	}
	if err := db.Create(&models.AuthGrant{ObjectPK: 2, RolePK: 30, IsInherited: false, CanRead: false}).Error; err != nil {
		t.Fatalf("seed deny grant failed: %v", err)
	}
	if err := db.Create(&models.AuthGrant{ObjectPK: 2, RolePK: 30, IsInherited: true, IsMemberAuth: true, CanRead: true}).Error; err != nil {
		t.Fatalf("seed inherited grant failed: %v", err)
	}

	if evalAuthSQL(t, db, CanRead, "'u3'", 2) {
		t.Error("expected a direct deny to still veto a merely-inherited allow, got allowed")
	}
}

func TestBuildAuthSQLClassGrantBeatsDirectDenyOnTie(t *testing.T) {
	db := setupAuthSQLDB(t)

	if err := db.Create(&models.RoleMember{RoleID: 40, MemberUserID: "u4"}).Error; err != nil {
		t.Fatalf("seed role_member failed: %v", err)
	}
	if err := db.Create(&models.AuthGrant{ObjectPK: 4, RolePK: 40, IsInherited: false, CanRead: false}).Error; err != nil {
		t.Fatalf("seed deny grant failed: %v", err)
	}
	if err := db.Create(&models.AuthGrant{ObjectPK: -1, FeatherName: "Invoice", RolePK: 40, CanRead: true}).Error; err != nil {
		t.Fatalf("seed class grant failed: %v", err)
	}

	if !evalAuthSQL(t, db, CanRead, "'u4'", 4) {
		t.Error("expected a class grant to beat a direct deny on tie, got denied")
	}
}

func TestBuildAuthSQLNoGrantDeniesAccess(t *testing.T) {
	db := setupAuthSQLDB(t)

	if err := db.Create(&models.RoleMember{RoleID: 50, MemberUserID: "u5"}).Error; err != nil {
		t.Fatalf("seed role_member failed: %v", err)
	}

	if evalAuthSQL(t, db, CanRead, "'u5'", 3) {
		t.Error("expected no grant at all to deny access")
	}
}

func TestBuildAuthSQLSuperUserBypassesGrants(t *testing.T) {
	frag, err := BuildAuthSQL(CanRead, "test_obj", "Invoice", "'u1'", "'Invoice'", true)
	if err != nil {
		t.Fatalf("BuildAuthSQL failed: %v", err)
	}
	if frag != "TRUE" {
		t.Errorf("expected super user fragment to be TRUE, got %q", frag)
	}
}

func TestBuildAuthSQLUnknownActionErrors(t *testing.T) {
	if _, err := BuildAuthSQL(AuthAction("bogus"), "test_obj", "Invoice", "'u1'", "'Invoice'", false); err == nil {
		t.Error("expected an error for an unknown auth action")
	}
}
