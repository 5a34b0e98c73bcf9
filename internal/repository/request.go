package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// RequestFilters — фильтры списка заявок. nil — фильтр не применяется.
type RequestFilters struct {
	RequesterID *string
	Status      *model.RequestStatus
	ServiceID   *string
	// SubmittedFrom / SubmittedTo — диапазон submitted_at (включительно)
	SubmittedFrom *time.Time
	SubmittedTo   *time.Time
	// Search — подстрока кода заявки или названия услуги в снимке
	Search *string
}

// RequestRepository — CRUD для таблицы requests.
type RequestRepository interface {
	// Create вставляет заявку. Нарушение уникальности кода — ErrConflict,
	// ключа идемпотентности — ErrDuplicateIdempotencyKey.
	Create(ctx context.Context, req *model.Request) error
	// GetByID возвращает заявку с текущими данными услуги.
	GetByID(ctx context.Context, id string) (*model.Request, error)
	// GetForUpdate читает заявку с блокировкой строки (SELECT ... FOR UPDATE).
	// Вызывается только внутри транзакции.
	GetForUpdate(ctx context.Context, id string) (*model.Request, error)
	// FindByIdempotencyKey возвращает заявку, созданную с ключом идемпотентности.
	FindByIdempotencyKey(ctx context.Context, requesterID, key string) (*model.Request, error)
	// UpdateStatus меняет статус, только если текущий равен expected.
	// redirectedAt записывается, только если ещё не установлен.
	// Несовпадение статуса — ErrStaleStatus.
	UpdateStatus(ctx context.Context, id string, expected, next model.RequestStatus, redirectedAt *time.Time) (*model.Request, error)
	// Delete удаляет заявку.
	Delete(ctx context.Context, id string) error
	// List возвращает заявки по фильтрам, новые первыми.
	List(ctx context.Context, filters RequestFilters, limit, offset int) ([]*model.Request, error)
	// Count возвращает количество заявок по фильтрам.
	Count(ctx context.Context, filters RequestFilters) (int, error)
}

type requestRepo struct {
	db DBTX
}

// NewRequestRepository создаёт репозиторий заявок.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepo{db: db}
}

// Имена ограничений уникальности таблицы requests.
const (
	constraintRequestCode        = "requests_code_key"
	constraintRequestIdempotency = "idx_requests_idempotency"
)

// requestColumns — колонки заявки с LEFT JOIN текущей услуги (алиас s).
const requestColumns = `r.id, r.code, r.service_id, r.template_id, r.template_version,
	r.requester_id, r.requester_username, r.form_payload, r.status,
	r.submitted_at, r.redirected_at, r.sla_snapshot, r.service_snapshot,
	r.idempotency_key, r.created_at, r.updated_at,
	s.id, s.code, s.name, s.slug`

const requestFrom = `FROM requests r LEFT JOIN services s ON s.id = r.service_id`

// scanRequest сканирует строку с колонками requestColumns.
func scanRequest(row pgx.Row) (*model.Request, error) {
	req := &model.Request{}
	var svcID, svcCode, svcName, svcSlug *string
	err := row.Scan(
		&req.ID, &req.Code, &req.ServiceID, &req.TemplateID, &req.TemplateVersion,
		&req.Requester.ID, &req.Requester.Username, &req.FormPayload, &req.Status,
		&req.SubmittedAt, &req.RedirectedAt, &req.SLASnapshot, &req.ServiceSnapshot,
		&req.IdempotencyKey, &req.CreatedAt, &req.UpdatedAt,
		&svcID, &svcCode, &svcName, &svcSlug,
	)
	if err != nil {
		return nil, err
	}
	if svcID != nil {
		req.Service = &model.ServiceRef{ID: *svcID, Code: deref(svcCode), Name: deref(svcName), Slug: deref(svcSlug)}
	}
	if req.FormPayload == nil {
		req.FormPayload = map[string]any{}
	}
	return req, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *requestRepo) Create(ctx context.Context, req *model.Request) error {
	query := `
		INSERT INTO requests (
			id, code, service_id, template_id, template_version,
			requester_id, requester_username, form_payload, status,
			submitted_at, redirected_at, sla_snapshot, service_snapshot, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		req.ID, req.Code, req.ServiceID, req.TemplateID, req.TemplateVersion,
		req.Requester.ID, req.Requester.Username, req.FormPayload, req.Status,
		req.SubmittedAt, req.RedirectedAt, req.SLASnapshot, req.ServiceSnapshot, req.IdempotencyKey,
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == constraintRequestIdempotency {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("%w: код заявки %s (%s)", ErrConflict, req.Code, constraint)
		}
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.Request, error) {
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s %s WHERE r.id = $1`, requestColumns, requestFrom), id)
}

func (r *requestRepo) GetForUpdate(ctx context.Context, id string) (*model.Request, error) {
	// FOR UPDATE OF r: LEFT JOIN не допускает блокировку nullable-стороны
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s %s WHERE r.id = $1 FOR UPDATE OF r`, requestColumns, requestFrom), id)
}

func (r *requestRepo) FindByIdempotencyKey(ctx context.Context, requesterID, key string) (*model.Request, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE r.requester_id = $1 AND r.idempotency_key = $2`,
		requestColumns, requestFrom)
	return r.getOne(ctx, query, requesterID, key)
}

func (r *requestRepo) getOne(ctx context.Context, query string, args ...any) (*model.Request, error) {
	req, err := scanRequest(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return req, nil
}

func (r *requestRepo) UpdateStatus(
	ctx context.Context,
	id string,
	expected, next model.RequestStatus,
	redirectedAt *time.Time,
) (*model.Request, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE requests SET
			status = $3,
			redirected_at = COALESCE(redirected_at, $4)
		WHERE id = $1 AND status = $2`,
		id, expected, next, redirectedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления статуса заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrStaleStatus
	}
	return r.GetByID(ctx, id)
}

func (r *requestRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepo) List(ctx context.Context, filters RequestFilters, limit, offset int) ([]*model.Request, error) {
	where, args := buildRequestWhere(filters, 1)
	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s %s
		%s
		ORDER BY r.submitted_at DESC, r.id
		LIMIT $%d OFFSET $%d`, requestColumns, requestFrom, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (r *requestRepo) Count(ctx context.Context, filters RequestFilters) (int, error) {
	where, args := buildRequestWhere(filters, 1)
	var count int
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM requests r %s`, where), args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return count, nil
}

// buildRequestWhere строит WHERE по фильтрам. Нумерация аргументов с startArg.
func buildRequestWhere(f RequestFilters, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	add := func(cond string, arg any) {
		conditions = append(conditions, fmt.Sprintf(cond, argNum))
		args = append(args, arg)
		argNum++
	}

	if f.RequesterID != nil {
		add("r.requester_id = $%d", *f.RequesterID)
	}
	if f.Status != nil && *f.Status != "" {
		add("r.status = $%d", string(*f.Status))
	}
	if f.ServiceID != nil && *f.ServiceID != "" {
		add("r.service_id = $%d", *f.ServiceID)
	}
	if f.SubmittedFrom != nil {
		add("r.submitted_at >= $%d", *f.SubmittedFrom)
	}
	if f.SubmittedTo != nil {
		add("r.submitted_at <= $%d", *f.SubmittedTo)
	}
	if f.Search != nil && strings.TrimSpace(*f.Search) != "" {
		// Один аргумент для обоих условий
		cond := fmt.Sprintf("(r.code ILIKE $%d OR r.service_snapshot->>'name' ILIKE $%d)", argNum, argNum)
		conditions = append(conditions, cond)
		args = append(args, "%"+escapeLike(strings.TrimSpace(*f.Search))+"%")
		argNum++
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike экранирует спецсимволы LIKE (\ — экранирующий символ по умолчанию).
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
