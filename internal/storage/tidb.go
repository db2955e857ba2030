package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/labuploads/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TiDBClient reads user roles and maintains post/upload references
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return NewTiDBClientFromDB(db), nil
}

// NewTiDBClientFromDB wraps an already opened database handle
func NewTiDBClientFromDB(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// GetUser retrieves a user's role by ID. A missing user yields nil, nil.
func (tc *TiDBClient) GetUser(ctx context.Context, uid string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_user",
		trace.WithAttributes(
			attribute.String("uid", uid),
		),
	)
	defer span.End()

	query := `SELECT id, role FROM users WHERE id = ?`

	var user models.User
	err := tc.db.QueryRowContext(ctx, query, uid).Scan(&user.ID, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

// IsPrivileged reports whether uid is an administrator or global moderator
func (tc *TiDBClient) IsPrivileged(ctx context.Context, uid string) (bool, error) {
	user, err := tc.GetUser(ctx, uid)
	if err != nil {
		return false, err
	}
	if user == nil {
		return false, nil
	}
	return user.IsPrivileged(), nil
}

// CreatePostUpload records that a post embeds an upload
func (tc *TiDBClient) CreatePostUpload(ctx context.Context, ref *models.PostUpload) error {
	ctx, span := tracer.Start(ctx, "tidb.create_post_upload",
		trace.WithAttributes(
			attribute.String("pid", ref.PostID),
			attribute.String("path", ref.Path),
		),
	)
	defer span.End()

	query := `INSERT IGNORE INTO post_uploads (pid, path) VALUES (?, ?)`

	_, err := tc.db.ExecContext(ctx, query, ref.PostID, ref.Path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert post upload: %w", err)
	}

	return nil
}

// DeletePostUpload removes a post's reference to an upload; a missing row is not an error
func (tc *TiDBClient) DeletePostUpload(ctx context.Context, ref *models.PostUpload) error {
	ctx, span := tracer.Start(ctx, "tidb.delete_post_upload",
		trace.WithAttributes(
			attribute.String("pid", ref.PostID),
			attribute.String("path", ref.Path),
		),
	)
	defer span.End()

	query := `DELETE FROM post_uploads WHERE pid = ? AND path = ?`

	res, err := tc.db.ExecContext(ctx, query, ref.PostID, ref.Path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete post upload: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil {
		span.SetAttributes(attribute.Int64("rows_affected", n))
	}
	return nil
}
