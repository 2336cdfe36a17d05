// Command aggquery runs a batched relation aggregation against a live
// database: it introspects the schema, loads a batch of parent rows, and
// computes the requested aggregate for every parent with one grouped query.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XSAM/otelsql"
	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"aggbatch/internal/config"
	"aggbatch/internal/dbexec"
	"aggbatch/internal/loader"
	"aggbatch/internal/logging"
	"aggbatch/internal/observability"
	"aggbatch/internal/planner"
	"aggbatch/internal/schema"
	"aggbatch/internal/sqlutil"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("aggquery error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")
	table := pflag.String("table", "", "Parent table to load")
	relation := pflag.String("relation", "", "Collection relation to aggregate")
	aggregate := pflag.String("aggregate", "count", "Aggregate function: count, sum, avg, min, max, exists")
	column := pflag.String("column", planner.Wildcard, "Column to aggregate")
	where := pflag.String("where", "", "SQL condition applied to the relation rows")
	parentLimit := pflag.Uint64("parent-limit", 100, "Maximum number of parent rows to load")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("aggquery %s (%s)\n", Version, Commit)
		return nil
	}
	if *table == "" || *relation == "" {
		return errors.New("--table and --relation are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obsCfg := observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	}
	if obsCfg.ServiceVersion == "" || obsCfg.ServiceVersion == "dev" {
		obsCfg.ServiceVersion = Version
	}

	loggerProvider, err := observability.InitLoggerProvider(obsCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger provider: %w", err)
	}

	runID := uuid.New().String()
	logger := logging.NewLogger(logging.Config{
		Level:          cfg.Observability.Logging.Level,
		Format:         cfg.Observability.Logging.Format,
		LoggerProvider: loggerProvider.Provider(),
	}).WithRunID(runID)
	defer loggerProvider.Shutdown(context.Background(), logger.Logger)
	ctx = logging.WithLogger(ctx, logger)
	ctx = logging.WithRunIDContext(ctx, runID)

	var metrics *observability.BatchMetrics
	if cfg.Observability.MetricsEnabled {
		meterProvider, err := observability.InitMeterProvider(obsCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer meterProvider.Shutdown(context.Background(), logger.Logger)

		metrics, err = observability.InitMetrics(logger.Logger)
		if err != nil {
			return err
		}
		startMetricsServer(cfg.Observability.MetricsAddr, logger)
	}

	db, err := connectDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	exec := dbexec.NewStandardExecutor(db)

	s, err := schema.Introspect(ctx, exec, cfg.Database.Database)
	if err != nil {
		return fmt.Errorf("failed to introspect schema %q: %w", cfg.Database.Database, err)
	}
	logger.Info("schema introspected",
		slog.String("database", s.Name),
		slog.Int("tables", len(s.Tables)),
	)

	parentTable, err := s.Table(*table)
	if err != nil {
		return err
	}

	parents, err := loadParents(ctx, exec, parentTable, *parentLimit)
	if err != nil {
		return fmt.Errorf("failed to load parent rows: %w", err)
	}
	if len(parents) == 0 {
		logger.Info("no parent rows to aggregate", slog.String("table", *table))
		return nil
	}

	opts := []loader.Option{loader.WithMaxInClause(cfg.Batch.MaxInClause)}
	if metrics != nil {
		opts = append(opts, loader.WithMetrics(metrics))
	}
	l := loader.New(s, parentTable, exec, parents, opts...)

	started := time.Now()
	for _, parent := range parents {
		proxy := l.ProxyFor(parent, *relation)
		if *where != "" {
			proxy = proxy.Where(*where)
		}
		if err := reportAggregate(ctx, logger, parentTable, parent, proxy, planner.AggregateFunc(*aggregate), *column); err != nil {
			return err
		}
	}

	logger.Info("batch aggregation complete",
		slog.Int("parents", len(parents)),
		slog.Int64("queries_executed", l.QueriesExecuted()),
		slog.Int64("cache_hits", l.CacheHits()),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sql.DB
	var err error
	if cfg.Observability.MetricsEnabled {
		db, err = otelsql.Open("mysql", dsn, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			return nil, err
		}
		if _, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL)); err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	} else {
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, err
		}
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}

func startMetricsServer(addr string, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics endpoint listening", slog.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
}

// loadParents fetches one batch of parent rows ordered by primary key.
func loadParents(ctx context.Context, exec dbexec.QueryExecutor, table schema.Table, limit uint64) ([]loader.Row, error) {
	selected := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		selected[i] = sqlutil.Qualify(table.Name, col.Name)
	}

	builder := sq.Select(selected...).From(sqlutil.QuoteIdentifier(table.Name)).Limit(limit)
	if pk, ok := table.PrimaryKeyColumn(); ok {
		builder = builder.OrderBy(sqlutil.QuoteIdentifier(pk.Name))
	}
	query, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parents []loader.Row
	values := make([]interface{}, len(table.Columns))
	pointers := make([]interface{}, len(table.Columns))
	for i := range values {
		pointers[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		row := make(loader.Row, len(table.Columns))
		for i, col := range table.Columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[col.Name] = value
		}
		parents = append(parents, row)
	}
	return parents, rows.Err()
}

func reportAggregate(ctx context.Context, logger *logging.Logger, table schema.Table, parent loader.Row, proxy *loader.Proxy, fn planner.AggregateFunc, column string) error {
	parentKey := slog.Any("parent", parentIdentifier(table, parent))

	switch fn {
	case planner.FuncCount:
		n, err := proxy.Count(ctx, column)
		if err != nil {
			return err
		}
		logger.Info("aggregate", parentKey, slog.Int64("count", n))
	case planner.FuncSum:
		total, err := proxy.Sum(ctx, column)
		if err != nil {
			return err
		}
		logger.Info("aggregate", parentKey, slog.Float64("sum", total))
	case planner.FuncAvg:
		avg, ok, err := proxy.Avg(ctx, column)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("aggregate", parentKey, slog.String("avg", "none"))
		} else {
			logger.Info("aggregate", parentKey, slog.Float64("avg", avg))
		}
	case planner.FuncMin:
		value, ok, err := proxy.Min(ctx, column)
		if err != nil {
			return err
		}
		logger.Info("aggregate", parentKey, slog.Any("min", value), slog.Bool("present", ok))
	case planner.FuncMax:
		value, ok, err := proxy.Max(ctx, column)
		if err != nil {
			return err
		}
		logger.Info("aggregate", parentKey, slog.Any("max", value), slog.Bool("present", ok))
	case planner.FuncExists:
		exists, err := proxy.Exists(ctx)
		if err != nil {
			return err
		}
		logger.Info("aggregate", parentKey, slog.Bool("exists", exists))
	default:
		return fmt.Errorf("unknown aggregate function %q", fn)
	}
	return nil
}

func parentIdentifier(table schema.Table, parent loader.Row) interface{} {
	if pk, ok := table.PrimaryKeyColumn(); ok {
		return parent[pk.Name]
	}
	return parent
}
