package test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/go-gorp/gorp"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/rockbears/log"
	"github.com/stretchr/testify/require"

	"github.com/hostops/hops/engine/cache"
	"github.com/hostops/hops/engine/database"
	"github.com/hostops/hops/engine/database/dbmigrate"
)

// testingConfKeys maps configuration keys to the environment variables they are read from.
var testingConfKeys = map[string]string{
	"dbUser":        "HOPS_TEST_DB_USER",
	"dbPassword":    "HOPS_TEST_DB_PASSWORD",
	"dbName":        "HOPS_TEST_DB_NAME",
	"dbSchema":      "HOPS_TEST_DB_SCHEMA",
	"dbHost":        "HOPS_TEST_DB_HOST",
	"dbPort":        "HOPS_TEST_DB_PORT",
	"sslMode":       "HOPS_TEST_DB_SSLMODE",
	"redisHost":     "HOPS_TEST_REDIS_HOST",
	"redisPassword": "HOPS_TEST_REDIS_PASSWORD",
}

var (
	factoriesMutex sync.Mutex
	factories      = map[string]*database.DBConnectionFactory{}
)

// LoadTestingConf reads the integration test configuration from the environment.
// The test is skipped if one of the required keys is not set.
func LoadTestingConf(t *testing.T, required ...string) map[string]string {
	cfg := make(map[string]string, len(testingConfKeys))
	for k, env := range testingConfKeys {
		cfg[k] = os.Getenv(env)
	}
	for _, k := range required {
		if cfg[k] == "" {
			t.Skipf("%s is not set, skipping integration test", testingConfKeys[k])
		}
	}
	return cfg
}

// MigrateDir returns the directory of the sql migration files.
func MigrateDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "sql", "api")
}

// SetupPG returns a database connection on a migrated schema.
func SetupPG(t *testing.T) (*gorp.DbMap, *database.DBConnectionFactory) {
	log.Factory = log.NewTestingWrapper(t)
	cfg := LoadTestingConf(t, "dbUser", "dbPassword", "dbName", "dbHost")

	port := 5432
	if cfg["dbPort"] != "" {
		p, err := strconv.Atoi(cfg["dbPort"])
		require.NoError(t, err, "invalid %s", testingConfKeys["dbPort"])
		port = p
	}
	sslMode := cfg["sslMode"]
	if sslMode == "" {
		sslMode = "disable"
	}
	conf := database.DBConfiguration{
		User:     cfg["dbUser"],
		Password: cfg["dbPassword"],
		Name:     cfg["dbName"],
		Schema:   cfg["dbSchema"],
		Host:     cfg["dbHost"],
		Port:     port,
		SSLMode:  sslMode,
		MaxConn:  10,
		Timeout:  2000,
	}

	key := conf.User + conf.Name + conf.Schema + conf.Host + strconv.Itoa(conf.Port)
	factoriesMutex.Lock()
	defer factoriesMutex.Unlock()
	factory, ok := factories[key]
	if !ok {
		var err error
		factory, err = database.Init(context.TODO(), conf)
		require.NoError(t, err, "cannot open database")
		_, err = dbmigrate.Do(factory.DB, MigrateDir(), migrate.Up, false, 0)
		require.NoError(t, err, "cannot migrate database")
		factories[key] = factory
	}

	dbMap := factory.GetDBMap()()
	require.NotNil(t, dbMap, "unable to init database connection")
	return dbMap, factory
}

// SetupRedis returns a redis store, the test is skipped when no redis is configured.
func SetupRedis(t *testing.T) *cache.RedisStore {
	log.Factory = log.NewTestingWrapper(t)
	cfg := LoadTestingConf(t, "redisHost")
	store, err := cache.NewRedisStore(cfg["redisHost"], cfg["redisPassword"], 0, 60)
	require.NoError(t, err, "unable to connect to redis")
	t.Cleanup(func() { store.Client.Close() })
	return store
}
