// Command ormcore is a smoke-test harness for the mutation engine: it
// connects to the configured database, builds a small blog schema, and
// runs one nested create inside a transaction, printing the result.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/XSAM/otelsql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/pflag"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"ormcore/internal/config"
	"ormcore/internal/dbexec"
	"ormcore/internal/dialect"
	"ormcore/internal/logging"
	"ormcore/internal/mutate"
	"ormcore/internal/schema"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ormcore error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("ormcore %s (%s)\n", Version, Commit)
		return nil
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: os.Stderr,
	})

	d, ok := dialect.ByName(cfg.Database.DialectName())
	if !ok {
		return fmt.Errorf("unknown dialect %q", cfg.Database.DialectName())
	}

	db, err := connectDB(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	logger.Info("connected",
		slog.String("driver", cfg.Database.DriverName()),
		slog.String("dialect", d.Name),
	)

	s, err := blogSchema()
	if err != nil {
		return fmt.Errorf("failed to build schema: %w", err)
	}

	orch := mutate.New(s, d, dbexec.New(db, logger.Logger),
		mutate.WithLogger(logger),
		mutate.WithIsolation(isolationLevel(cfg.Mutation.Isolation)),
	)

	var created mutate.Entity
	err = orch.Transaction(ctx, func(ctx context.Context) error {
		var terr error
		created, terr = orch.Create(ctx, "Post", mutate.Entity{
			"title": "hello ormcore",
			"author": map[string]any{
				"connectOrCreate": map[string]any{
					"where":  map[string]any{"email": "demo@example.com"},
					"create": map[string]any{"email": "demo@example.com", "name": "Demo"},
				},
			},
			"tags": map[string]any{
				"connectOrCreate": []any{
					map[string]any{
						"where":  map[string]any{"name": "demo"},
						"create": map[string]any{"name": "demo"},
					},
				},
			},
		})
		return terr
	})
	if err != nil {
		return fmt.Errorf("nested create failed: %w", err)
	}

	out, err := json.MarshalIndent(created, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	dsn := cfg.Database.DSN()
	driver := cfg.Database.DriverName()

	var db *sql.DB
	var err error
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		attr := semconv.DBSystemMySQL
		if cfg.Database.DialectName() == "postgres" {
			attr = semconv.DBSystemPostgreSQL
		}
		opts := []otelsql.Option{otelsql.WithAttributes(attr)}
		if cfg.Observability.TracingEnabled {
			opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		}
		db, err = otelsql.Open(driver, dsn, opts...)
		if err == nil && cfg.Observability.MetricsEnabled {
			if _, merr := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(attr)); merr != nil {
				logger.Warn("failed to register DB stats metrics", slog.String("error", merr.Error()))
			}
		}
	} else {
		db, err = sql.Open(driver, dsn)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}

func isolationLevel(name string) sql.IsolationLevel {
	switch name {
	case "read-committed":
		return sql.LevelReadCommitted
	case "repeatable-read":
		return sql.LevelRepeatableRead
	case "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// blogSchema is the demo data model: a delegate content hierarchy, an
// author-owned post relation, and a many-to-many tag relation.
func blogSchema() (*schema.Schema, error) {
	b := schema.NewBuilder()

	b.Model(&schema.Model{Name: "User", IDFields: []string{"id"}})
	b.AddField("User", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("User", &schema.Field{Name: "email", Type: "String", Unique: true})
	b.AddField("User", &schema.Field{Name: "name", Type: "String", Optional: true})
	b.AddField("User", &schema.Field{Name: "posts", Type: "Post", Array: true,
		Relation: &schema.Relation{Opposite: "author"}})

	b.Model(&schema.Model{Name: "Content", IDFields: []string{"id"},
		IsDelegate: true, Discriminator: "contentType"})
	b.AddField("Content", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Content", &schema.Field{Name: "contentType", Type: "String"})
	b.AddField("Content", &schema.Field{Name: "createdAt", Type: "DateTime",
		Default: &schema.Default{Kind: schema.DefaultNow}})

	b.Model(&schema.Model{Name: "Post", BaseModel: "Content"})
	b.AddField("Post", &schema.Field{Name: "title", Type: "String"})
	b.AddField("Post", &schema.Field{Name: "authorId", Type: "Int", Optional: true,
		ForeignKeyFor: []string{"author"}})
	b.AddField("Post", &schema.Field{Name: "author", Type: "User", Optional: true,
		Relation: &schema.Relation{
			Fields:     []string{"authorId"},
			References: []string{"id"},
			Opposite:   "posts",
			OnDelete:   schema.ActionSetNull,
		}})
	b.AddField("Post", &schema.Field{Name: "tags", Type: "Tag", Array: true,
		Relation: &schema.Relation{Opposite: "posts"}})

	b.Model(&schema.Model{Name: "Tag", IDFields: []string{"id"}})
	b.AddField("Tag", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Tag", &schema.Field{Name: "name", Type: "String", Unique: true})
	b.AddField("Tag", &schema.Field{Name: "posts", Type: "Post", Array: true,
		Relation: &schema.Relation{Opposite: "tags"}})

	return b.Build()
}
