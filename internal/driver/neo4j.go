package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/config"
)

// Neo4jDriver owns the bolt connection pool. Queries run on Neo4j and
// Memgraph alike; SchemaQueries use Neo4j 5 syntax. Create one in main and
// close it on shutdown.
type Neo4jDriver struct {
	Driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

func NewNeo4jDriver(ctx context.Context, cfg config.Neo4jConfig, logger *zap.Logger) (*Neo4jDriver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	d := &Neo4jDriver{Driver: driver, database: cfg.Database, logger: logger}
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	logger.Info("connected to graph store", zap.String("uri", cfg.URI))
	return d, nil
}

func (d *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	if err := d.Driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph store connectivity check failed: %w", err)
	}
	return nil
}

func (d *Neo4jDriver) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *Neo4jDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if d.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(d.database))
	}

	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return neo4j.EagerResult{}, fmt.Errorf("failed to execute query: %w", err)
	}
	return *result, nil
}

func (d *Neo4jDriver) BuildIndices(ctx context.Context) error {
	return buildIndices(ctx, d.ExecuteQuery, d.logger)
}

type queryFunc func(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)

// buildIndices runs every schema query. Rules that already exist are
// skipped; any other failure is returned, joined with the rest.
func buildIndices(ctx context.Context, exec queryFunc, logger *zap.Logger) error {
	var errs []error
	for _, q := range SchemaQueries {
		_, err := exec(ctx, q, nil)
		switch {
		case err == nil:
		case IsAlreadyExists(err):
			logger.Debug("schema rule already exists", zap.String("query", q))
		default:
			errs = append(errs, fmt.Errorf("schema query %q: %w", q, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to build indices: %w", err)
	}
	return nil
}

// IsAlreadyExists reports whether err is a schema rule collision, such as
// Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists.
func IsAlreadyExists(err error) bool {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.HasPrefix(neoErr.Code, "Neo.ClientError.Schema.") && strings.HasSuffix(neoErr.Code, "AlreadyExists")
	}
	return false
}

const constraintViolationCode = "Neo.ClientError.Schema.ConstraintValidationFailed"

// IsConstraintViolation reports whether err is a uniqueness constraint failure.
func IsConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return neoErr.Code == constraintViolationCode
	}
	return false
}

// IsTransient reports whether err comes from connectivity loss or a
// server-side transient failure (deadlock, leader switch).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if neo4j.IsRetryable(err) || neo4j.IsConnectivityError(err) {
		return true
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.HasPrefix(neoErr.Code, "Neo.TransientError.")
	}
	return errors.Is(err, context.DeadlineExceeded)
}
