package importdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/metrics"
	"github.com/fhir-server/bulkimport/internal/common/database"
	"github.com/fhir-server/bulkimport/internal/common/runcontext"
)

// BulkLoader writes a table's rows to its destination in one go.
type BulkLoader interface {
	BulkLoad(ctx *runcontext.Context, table *Table) error
}

// PostgresBulkLoader copies rows into a temporary table using the postgres copy protocol and then moves them into
// the destination table, skipping rows that already exist. Each load runs on its own pooled connection in its own
// transaction.
type PostgresBulkLoader struct {
	db      *pgxpool.Pool
	metrics *metrics.Metrics
}

func NewPostgresBulkLoader(db *pgxpool.Pool, metrics *metrics.Metrics) *PostgresBulkLoader {
	return &PostgresBulkLoader{db: db, metrics: metrics}
}

func (l *PostgresBulkLoader) BulkLoad(ctx *runcontext.Context, table *Table) error {
	if table.Len() == 0 {
		return nil
	}
	start := time.Now()

	conn, err := l.db.Acquire(ctx)
	if err != nil {
		l.metrics.RecordDBError(metrics.DBOperationAcquire)
		return errors.WithStack(err)
	}
	defer conn.Release()

	tmpTable := database.UniqueTableName(table.Name)
	columns := strings.Join(table.Columns, ", ")

	createTmp := func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(
			`CREATE TEMPORARY TABLE %s ON COMMIT DROP AS SELECT %s FROM %s WITH NO DATA`,
			tmpTable, columns, table.Name))
		if err != nil {
			l.metrics.RecordDBError(metrics.DBOperationCreateTempTable)
		}
		return err
	}

	insertTmp := func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{tmpTable},
			table.Columns,
			pgx.CopyFromRows(table.Rows),
		)
		if err != nil {
			l.metrics.RecordDBError(metrics.DBOperationCopy)
		}
		return err
	}

	copyToDest := func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT DO NOTHING`,
			table.Name, columns, columns, tmpTable))
		if err != nil {
			l.metrics.RecordDBError(metrics.DBOperationInsert)
		}
		return err
	}

	err = batchInsert(ctx, conn, createTmp, insertTmp, copyToDest)
	if err != nil {
		return errors.WithMessagef(err, "bulk loading %d rows into %s", table.Len(), table.Name)
	}
	l.metrics.RecordRowsLoaded(table.Name, table.Len(), time.Since(start))
	return nil
}

func batchInsert(ctx *runcontext.Context, conn *pgxpool.Conn, createTmp func(pgx.Tx) error,
	insertTmp func(pgx.Tx) error, copyToDest func(pgx.Tx) error,
) error {
	return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.Deferrable,
	}, func(tx pgx.Tx) error {
		// Create a temporary table to hold the staging data
		err := createTmp(tx)
		if err != nil {
			return err
		}

		err = insertTmp(tx)
		if err != nil {
			return err
		}

		return copyToDest(tx)
	})
}
