package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/trustdiner/trustdiner-api/pkg/database"
)

// PostgresImage is the stock image used for integration tests.
const PostgresImage = "postgres:16-alpine"

const (
	testUser     = "trustdiner"
	testPassword = "test_password"
	adminDBName  = "trustdiner_admin"
	apiDBName    = "trustdiner_test"
)

// TestDB holds a shared PostgreSQL container and a superuser pool on the
// admin database. Use it for tests that create their own databases.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      string
}

// ConnStrFor returns a connection string for another database on the same
// server.
func (t *TestDB) ConnStrFor(user, password, dbName string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, t.Host, t.Port, dbName)
}

// SuperuserConnStr returns a superuser connection string for dbName.
func (t *TestDB) SuperuserConnStr(dbName string) string {
	return t.ConnStrFor(testUser, testPassword, dbName)
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       adminDBName,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		// The entrypoint restarts the server once after init scripts.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	testDB := &TestDB{
		Container: container,
		Host:      host,
		Port:      port.Port(),
	}
	testDB.ConnStr = testDB.SuperuserConnStr(adminDBName)

	pool, err := pgxpool.New(ctx, testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	testDB.Pool = pool

	return testDB, nil
}

// APIDB holds the API database connection with migrations applied.
// Use this for testing handlers, services, and repositories against a real database.
type APIDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedAPIDB     *APIDB
	sharedAPIDBOnce sync.Once
	sharedAPIDBErr  error
)

// GetAPIDB returns a shared, migrated database for integration tests.
// Tests must not assume an empty database; use unique names and ids.
func GetAPIDB(t *testing.T) *APIDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	testDB := GetTestDB(t)

	sharedAPIDBOnce.Do(func() {
		sharedAPIDB, sharedAPIDBErr = setupAPIDB(testDB)
	})

	if sharedAPIDBErr != nil {
		t.Fatalf("Failed to setup API database: %v", sharedAPIDBErr)
	}

	return sharedAPIDB
}

func setupAPIDB(testDB *TestDB) (*APIDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE "+apiDBName); err != nil {
		return nil, fmt.Errorf("failed to create API database: %w", err)
	}

	connStr := testDB.SuperuserConnStr(apiDBName)

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to API database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &APIDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}

// Scoped returns a context carrying a connection from the API database.
// The connection is released when the test finishes.
func (a *APIDB) Scoped(t *testing.T) context.Context {
	t.Helper()

	ctx, cleanup, err := a.DB.WithScope(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire connection: %v", err)
	}
	t.Cleanup(cleanup)
	return ctx
}
