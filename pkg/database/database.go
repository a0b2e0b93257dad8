package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	apperrors "github.com/BartekS5/orderload/pkg/errors"
	"github.com/BartekS5/orderload/pkg/logger"
)

// ConnectSQL opens a database/sql handle for the dialect's driver and pings
// it. Failures are classified as ConnectionFailure.
func ConnectSQL(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	if dsn == "" && d.Name() != DuckDB {
		return nil, apperrors.New(apperrors.ErrConnectionFailure, "connect "+d.Name(), "empty data source name")
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConnectionFailure, "open "+d.Name(), err)
	}
	// The load core is a single writer; one connection also keeps SQLite
	// and in-memory DuckDB handles pointing at the same database.
	if d.Name() == SQLite || d.Name() == DuckDB {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrConnectionFailure, "ping "+d.Name(), err)
	}

	logger.Info("connected to database", "dialect", d.Name())
	return db, nil
}

// ConnectMongo creates a client and verifies the primary is reachable.
func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConnectionFailure, "create mongo client", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, apperrors.Wrap(apperrors.ErrConnectionFailure, "ping mongo", err)
	}

	logger.Info("connected to MongoDB")
	return client, nil
}

// InTx runs fn inside a transaction. The transaction is rolled back when fn
// or the commit fails, so none of fn's writes are observable on error.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rolling back after error (rollback: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrSinkWriteFailure, "commit transaction", err)
	}
	return nil
}
