package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint failure.
const pgUniqueViolation = "23505"

// uniqueColumns are the principal columns guarded by unique indexes.
var uniqueColumns = []string{FieldEmail, FieldConfirmationToken, FieldResetPasswordToken}

// Principals is the bun backed account storage. Writes go through Save so
// the registered hooks see every change.
type Principals interface {
	Storage
	AuthTokenStore
	HookRegistry

	GetByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
}

type principals struct {
	repo      repository.Repository[*Principal]
	db        *bun.DB
	hooks     hookChain
	settings  settings
	useHashid bool
}

var _ Principals = (*principals)(nil)

// PrincipalsOption customizes the principals repository.
type PrincipalsOption func(*principals)

// WithHashidIDs derives ids of new principals from their email.
func WithHashidIDs(enabled bool) PrincipalsOption {
	return func(p *principals) {
		p.useHashid = enabled
	}
}

// WithPrincipalsOptions applies lifecycle options such as WithClock or WithLogger.
func WithPrincipalsOptions(opts ...Option) PrincipalsOption {
	return func(p *principals) {
		p.settings = newSettings("principals", opts...)
	}
}

func NewPrincipalsRepository(db *bun.DB, opts ...PrincipalsOption) Principals {
	repo := repository.NewRepository[*Principal](db, repository.ModelHandlers[*Principal]{
		NewRecord: func() *Principal { return &Principal{} },
		GetID: func(p *Principal) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Principal, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return FieldEmail
		},
	})

	r := &principals{
		repo:       repo,
		db:         db,
		settings:   newSettings("principals"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *principals) RegisterHooks(hooks ...SaveHook) {
	r.hooks.RegisterHooks(hooks...)
}

func (r *principals) HasField(field string) bool {
	table := r.db.Table(reflect.TypeOf((*Principal)(nil)).Elem())
	return table != nil && table.HasField(field)
}

// Save runs the save hooks and inserts or updates the principal. Session
// tokens are owned by UpdateAuthTokens and never written here on update.
func (r *principals) Save(ctx context.Context, acc Account) error {
	p, ok := acc.(*Principal)
	if !ok || p == nil {
		return wrapPersistence(newConfigurationError("principals repository only stores *Principal", map[string]any{
			"type": fmt.Sprintf("%T", acc),
		}))
	}

	return r.hooks.save(ctx, p, func(ctx context.Context, created bool) error {
		return r.write(ctx, p, created)
	})
}

func (r *principals) write(ctx context.Context, p *Principal, created bool) error {
	now := r.settings.now()
	p.UpdatedAt = &now
	if p.AuthTokens == nil {
		p.AuthTokens = []string{}
	}

	if created {
		if p.ID == uuid.Nil {
			p.ID = r.newID(p.Email)
		}
		if p.CreatedAt == nil {
			p.CreatedAt = &now
		}
		if _, err := r.repo.CreateTx(ctx, r.db, p); err != nil {
			return mapUniqueViolation(err)
		}
		return nil
	}

	res, err := r.db.NewUpdate().
		Model(p).
		ExcludeColumn("auth_tokens", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapUniqueViolation(err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return newNotFound(ErrAccountNotFound, map[string]any{"id": p.ID.String()})
	}
	return nil
}

func (r *principals) newID(email string) uuid.UUID {
	if r.useHashid && email != "" {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (r *principals) ExistsWithField(ctx context.Context, field, value string) (bool, error) {
	if !r.HasField(field) {
		return false, newConfigurationError("unknown principal field", map[string]any{metadataField: field})
	}
	return r.db.NewSelect().
		Model((*Principal)(nil)).
		Where("?TableAlias.? = ?", bun.Ident(field), value).
		Exists(ctx)
}

func (r *principals) FindOneByField(ctx context.Context, field, value string) (Account, error) {
	p, err := r.findOne(ctx, field, value)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *principals) GetByID(ctx context.Context, id uuid.UUID) (*Principal, error) {
	record, err := r.repo.GetByID(ctx, id.String())
	if err != nil {
		if isNoRows(err) {
			return nil, newNotFound(ErrAccountNotFound, map[string]any{"id": id.String()})
		}
		return nil, err
	}
	return record.MarkPersisted(), nil
}

func (r *principals) GetByEmail(ctx context.Context, email string) (*Principal, error) {
	return r.findOne(ctx, FieldEmail, strings.TrimSpace(email))
}

func (r *principals) findOne(ctx context.Context, field, value string) (*Principal, error) {
	if !r.HasField(field) {
		return nil, newConfigurationError("unknown principal field", map[string]any{metadataField: field})
	}

	record := &Principal{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(field), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, newNotFound(ErrAccountNotFound, map[string]any{metadataField: field})
		}
		return nil, err
	}

	return record.MarkPersisted(), nil
}

// UpdateAuthTokens rewrites the session token list inside a transaction.
// On postgres the row is locked for the duration.
func (r *principals) UpdateAuthTokens(ctx context.Context, id uuid.UUID, fn func([]string) []string) ([]string, error) {
	var tokens []string

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &Principal{}
		q := tx.NewSelect().
			Model(record).
			Column("id", "auth_tokens").
			Where("?TableAlias.id = ?", id)
		if r.db.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}

		if err := q.Scan(ctx); err != nil {
			if isNoRows(err) {
				return newNotFound(ErrAccountNotFound, map[string]any{"id": id.String()})
			}
			return err
		}

		tokens = fn(append([]string(nil), record.AuthTokens...))
		if tokens == nil {
			tokens = []string{}
		}
		record.AuthTokens = tokens

		_, err := tx.NewUpdate().
			Model(record).
			Column("auth_tokens").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

func (r *principals) FindByAuthToken(ctx context.Context, token string) (Account, error) {
	record := &Principal{}
	q := r.db.NewSelect().Model(record).Limit(1)

	if r.db.Dialect().Name() == dialect.PG {
		needle, err := json.Marshal([]string{token})
		if err != nil {
			return nil, err
		}
		q = q.Where("?TableAlias.auth_tokens::jsonb @> ?::jsonb", string(needle))
	} else {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(?TableAlias.auth_tokens) WHERE json_each.value = ?)", token)
	}

	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, newNotFound(ErrAccountNotFound, nil)
		}
		return nil, err
	}

	return record.MarkPersisted(), nil
}

// mapUniqueViolation turns driver level unique constraint failures on the
// principals table into ErrUniqueViolation attached to the column.
func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return newUniqueViolation(violatedColumn(pgErr.ConstraintName), err)
	}

	for e := err; e != nil; e = stderrors.Unwrap(e) {
		msg := e.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "duplicate key value violates unique constraint") {
			return newUniqueViolation(violatedColumn(msg), err)
		}
	}

	return err
}

func violatedColumn(detail string) string {
	for _, column := range uniqueColumns {
		if strings.Contains(detail, "principals."+column) || strings.Contains(detail, "principals_"+column) {
			return column
		}
	}
	return ""
}

func isNoRows(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
