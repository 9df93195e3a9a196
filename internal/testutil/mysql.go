// Package testutil starts a MySQL testcontainer with the queue schema
// applied. Use NewTestDB(t) in integration tests that need a real database;
// they skip under -short.
package testutil

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/seanpm2001/mysql-queue/internal/store"
)

// NewTestDB starts a MySQL container, runs the embedded migrations, and
// returns a connected pool. Container and pool are cleaned up via t.Cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL integration test in -short mode")
	}
	ctx := context.Background()

	ctr, err := tcmysql.Run(ctx,
		"mysql:8.4",
		tcmysql.WithDatabase("mysql_queue_test"),
		tcmysql.WithUsername("queue_test"),
		tcmysql.WithPassword("testpassword"),
	)
	if err != nil {
		t.Fatalf("start mysql container: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(ctx); err != nil {
			t.Logf("terminate mysql container: %v", err)
		}
	})

	// parseTime: TIMESTAMP columns scan into time.Time.
	// multiStatements: migration files hold more than one statement.
	connStr, err := ctr.ConnectionString(ctx, "parseTime=true", "multiStatements=true")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("mysql", connStr)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping mysql: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}
