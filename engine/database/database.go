package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-gorp/gorp"
	"github.com/lib/pq"
	"github.com/rockbears/log"

	"github.com/hostops/hops/sdk"
)

// DBConfiguration is the exposed type for database configuration.
type DBConfiguration struct {
	User            string `toml:"user" default:"hops" json:"user"`
	Role            string `toml:"role" default:"" commented:"true" comment:"Set a specific role to run SET ROLE for each connection" json:"role"`
	Password        string `toml:"password" default:"hops" json:"-"`
	Name            string `toml:"name" default:"hops" json:"name"`
	Schema          string `toml:"schema" default:"" commented:"true" json:"schema"`
	Host            string `toml:"host" default:"localhost" json:"host"`
	Port            int    `toml:"port" default:"5432" json:"port"`
	SSLMode         string `toml:"sslmode" default:"disable" comment:"DB SSL Mode: require (default), verify-full, or disable" json:"sslmode"`
	MaxConn         int    `toml:"maxconn" default:"20" comment:"DB Max connection" json:"maxconn"`
	ConnectTimeout  int    `toml:"connectTimeout" default:"10" comment:"Maximum wait for connection, in seconds" json:"connectTimeout"`
	ConnMaxIdleTime string `toml:"connMaxIdleTime" default:"" commented:"true" comment:"Maximum amount of time a connection may be idle, as a duration" json:"connMaxIdleTime"`
	ConnMaxLifetime string `toml:"connMaxLifetime" default:"" commented:"true" comment:"Maximum amount of time a connection may be reused, as a duration" json:"connMaxLifetime"`
	Timeout         int    `toml:"timeout" default:"3000" comment:"Statement timeout value in milliseconds" json:"timeout"`
}

// DBConnectionFactory is a database connection factory on postgres with gorp
type DBConnectionFactory struct {
	DBConfiguration
	Database *sql.DB
	mutex    *sync.Mutex
}

// DB returns the current sql.DB object
func (f *DBConnectionFactory) DB() *sql.DB {
	if f.Database == nil {
		if f.Name == "" {
			return nil
		}
		newF, err := Init(context.TODO(), f.DBConfiguration)
		if err != nil {
			err = sdk.WithStack(err)
			ctx := sdk.ContextWithStacktrace(context.TODO(), err)
			log.Error(ctx, "unable to init db connection: %v", err)
			return nil
		}
		*f = *newF
	}
	if err := f.Database.Ping(); err != nil {
		log.Error(context.TODO(), "Database> cannot ping db : %s", err)
		f.Database = nil
		return nil
	}
	return f.Database
}

// GetDBMap returns a gorp.DbMap pointer
func (f *DBConnectionFactory) GetDBMap() func() *gorp.DbMap {
	return func() *gorp.DbMap {
		return DBMap(f.DB())
	}
}

// Set is for testing purpose, we need to set manually the connection
func (f *DBConnectionFactory) Set(d *sql.DB) {
	f.Database = d
}

// Init initialize sql.DB object by checking environment variables and connecting to database
func Init(ctx context.Context, dbConfig DBConfiguration) (*DBConnectionFactory, error) {
	if dbConfig.Schema == "" {
		dbConfig.Schema = "public"
	}
	f := &DBConnectionFactory{
		DBConfiguration: dbConfig,
		mutex:           &sync.Mutex{},
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.User == "" || f.Password == "" || f.Name == "" || f.Host == "" || f.Port == 0 {
		return nil, sdk.WithStack(fmt.Errorf("missing database infos"))
	}

	if f.Timeout < 200 || f.Timeout > 30000 {
		f.Timeout = 3000
	}
	if f.ConnectTimeout <= 0 {
		f.ConnectTimeout = 10
	}

	// connect_timeout in seconds
	// statement_timeout in milliseconds
	connector, err := pq.NewConnector(f.dsn())
	if err != nil {
		log.Error(ctx, "cannot open database: %s", err)
		return nil, sdk.WithStack(err)
	}
	f.Database = sql.OpenDB(connector)

	if err = f.Database.Ping(); err != nil {
		f.Database = nil
		return nil, sdk.WithStack(err)
	}

	f.Database.SetMaxOpenConns(f.MaxConn)
	f.Database.SetMaxIdleConns(f.MaxConn / 2)
	if f.ConnMaxIdleTime != "" {
		connMaxIdleTime, err := time.ParseDuration(f.ConnMaxIdleTime)
		if err != nil {
			return nil, sdk.WrapError(err, "unable to parse connMaxIdleTime with %s on database.", f.ConnMaxIdleTime)
		}
		f.Database.SetConnMaxIdleTime(connMaxIdleTime)
	}
	if f.ConnMaxLifetime != "" {
		connMaxLifetime, err := time.ParseDuration(f.ConnMaxLifetime)
		if err != nil {
			return nil, sdk.WrapError(err, "unable to parse connMaxLifetime with %s on database.", f.ConnMaxLifetime)
		}
		f.Database.SetConnMaxLifetime(connMaxLifetime)
	}

	if _, err := f.Database.Exec(fmt.Sprintf("SET statement_timeout = %d", f.Timeout)); err != nil {
		log.Error(ctx, "unable to set statement_timeout with %d on database: %s", f.Timeout, err)
		return nil, sdk.WrapError(err, "unable to set statement_timeout with %d", f.Timeout)
	}

	if f.Role != "" {
		log.Debug(ctx, "database> setting role %s on database", f.Role)
		if _, err := f.Database.Exec("SET ROLE '" + f.Role + "'"); err != nil {
			log.Error(ctx, "unable to set role %s on database: %v", f.Role, err)
			return nil, sdk.WrapError(err, "unable to set role %s", f.Role)
		}
	}

	return f, nil
}

func (f *DBConnectionFactory) dsn() string {
	dsn := fmt.Sprintf("user=%s password='%s' dbname=%s host=%s port=%d sslmode=%s connect_timeout=%d", f.User, f.Password, f.Name, f.Host, f.Port, f.SSLMode, f.ConnectTimeout)
	if f.Schema != "public" {
		dsn += fmt.Sprintf(" search_path=%s", f.Schema)
	}
	return dsn
}

// Status returns database driver and status in a printable string
func (f *DBConnectionFactory) Status(ctx context.Context) sdk.MonitoringStatusLine {
	if f.Database == nil {
		return sdk.MonitoringStatusLine{Component: "Database Conns", Value: "No Connection", Status: sdk.MonitoringStatusAlert}
	}

	if err := f.Database.PingContext(ctx); err != nil {
		return sdk.MonitoringStatusLine{Component: "Database Conns", Value: "No Ping", Status: sdk.MonitoringStatusAlert}
	}

	return sdk.MonitoringStatusLine{Component: "Database Conns", Value: fmt.Sprintf("%d", f.Database.Stats().OpenConnections), Status: sdk.MonitoringStatusOK}
}

// Close closes the database, releasing any open resources.
func (f *DBConnectionFactory) Close() error {
	if f.Database != nil {
		return f.Database.Close()
	}
	return nil
}

// NewListener creates a new database connection dedicated to LISTEN / NOTIFY.
func (f *DBConnectionFactory) NewListener(minReconnectInterval time.Duration, maxReconnectInterval time.Duration, eventCallback pq.EventCallbackType) *pq.Listener {
	return pq.NewListener(f.dsn(), minReconnectInterval, maxReconnectInterval, eventCallback)
}
