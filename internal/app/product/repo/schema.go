package repo

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	database "cloud.google.com/go/spanner/admin/database/apiv1"
	"cloud.google.com/go/spanner/admin/database/apiv1/databasepb"
	instance "cloud.google.com/go/spanner/admin/instance/apiv1"
	"cloud.google.com/go/spanner/admin/instance/apiv1/instancepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL statements of the ledger schema in apply order.
func Schema() []string {
	return SplitDDL(schemaSQL)
}

// SplitDDL drops comment lines and splits content on semicolons.
func SplitDDL(content string) []string {
	lines := strings.Split(content, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		cleaned = append(cleaned, line)
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

var ddlObject = regexp.MustCompile(`(?i)^CREATE\s+(?:UNIQUE\s+)?(?:NULL_FILTERED\s+)?(TABLE|INDEX)\s+` + "`?" + `(\w+)`)

func ddlObjectName(stmt string) string {
	m := ddlObject.FindStringSubmatch(stmt)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1]) + " " + strings.ToLower(m[2])
}

// MissingStatements returns the statements of wanted whose table or index
// is not created by any statement in current.
func MissingStatements(current, wanted []string) []string {
	have := make(map[string]bool, len(current))
	for _, stmt := range current {
		if name := ddlObjectName(stmt); name != "" {
			have[name] = true
		}
	}

	var missing []string
	for _, stmt := range wanted {
		if name := ddlObjectName(stmt); name == "" || !have[name] {
			missing = append(missing, stmt)
		}
	}
	return missing
}

// DatabaseConfig names a Spanner database.
type DatabaseConfig struct {
	ProjectID  string
	InstanceID string
	DatabaseID string
}

// InstancePath returns projects/<p>/instances/<i>.
func (c DatabaseConfig) InstancePath() string {
	return fmt.Sprintf("projects/%s/instances/%s", c.ProjectID, c.InstanceID)
}

// DatabasePath returns the fully qualified database name used by spanner.NewClient.
func (c DatabaseConfig) DatabasePath() string {
	return fmt.Sprintf("%s/databases/%s", c.InstancePath(), c.DatabaseID)
}

// ParseDatabasePath is the inverse of DatabaseConfig.DatabasePath.
func ParseDatabasePath(path string) (DatabaseConfig, error) {
	parts := strings.Split(path, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "instances" || parts[4] != "databases" ||
		parts[1] == "" || parts[3] == "" || parts[5] == "" {
		return DatabaseConfig{}, fmt.Errorf("malformed database path %q", path)
	}
	return DatabaseConfig{ProjectID: parts[1], InstanceID: parts[3], DatabaseID: parts[5]}, nil
}

// EnsureInstance creates the instance on the emulator config if it is missing.
func EnsureInstance(ctx context.Context, cfg DatabaseConfig) error {
	instanceAdmin, err := instance.NewInstanceAdminClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create instance admin client: %w", err)
	}
	defer instanceAdmin.Close()

	_, err = instanceAdmin.GetInstance(ctx, &instancepb.GetInstanceRequest{Name: cfg.InstancePath()})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to get instance: %w", err)
	}

	op, err := instanceAdmin.CreateInstance(ctx, &instancepb.CreateInstanceRequest{
		Parent:     "projects/" + cfg.ProjectID,
		InstanceId: cfg.InstanceID,
		Instance: &instancepb.Instance{
			Config:      fmt.Sprintf("projects/%s/instanceConfigs/emulator-config", cfg.ProjectID),
			DisplayName: cfg.InstanceID,
			NodeCount:   1,
		},
	})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	if _, err := op.Wait(ctx); err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to wait for instance creation: %w", err)
	}
	return nil
}

// Migrate creates the database with the full schema, or adds whatever
// tables and indexes an existing database lacks. It returns the applied
// statements.
func Migrate(ctx context.Context, cfg DatabaseConfig) ([]string, error) {
	adminClient, err := database.NewDatabaseAdminClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer adminClient.Close()

	current, err := adminClient.GetDatabaseDdl(ctx, &databasepb.GetDatabaseDdlRequest{Database: cfg.DatabasePath()})
	switch {
	case status.Code(err) == codes.NotFound:
		op, err := adminClient.CreateDatabase(ctx, &databasepb.CreateDatabaseRequest{
			Parent:          cfg.InstancePath(),
			CreateStatement: fmt.Sprintf("CREATE DATABASE `%s`", cfg.DatabaseID),
			ExtraStatements: Schema(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		if _, err := op.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for database creation: %w", err)
		}
		return Schema(), nil
	case err != nil:
		return nil, fmt.Errorf("failed to read database ddl: %w", err)
	}

	missing := MissingStatements(current.GetStatements(), Schema())
	if len(missing) == 0 {
		return nil, nil
	}

	op, err := adminClient.UpdateDatabaseDdl(ctx, &databasepb.UpdateDatabaseDdlRequest{
		Database:   cfg.DatabasePath(),
		Statements: missing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start DDL update: %w", err)
	}
	if err := op.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to apply DDL: %w", err)
	}
	return missing, nil
}

// DropDatabase removes the database. Tests use it to clean up.
func DropDatabase(ctx context.Context, cfg DatabaseConfig) error {
	adminClient, err := database.NewDatabaseAdminClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer adminClient.Close()

	return adminClient.DropDatabase(ctx, &databasepb.DropDatabaseRequest{Database: cfg.DatabasePath()})
}
