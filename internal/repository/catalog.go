package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/servicedesk/internal/domain/model"
)

// CatalogRepository — чтение справочников каталога (услуги, SLA, шаблоны).
// Запись справочников выполняет администрирование каталога.
type CatalogRepository interface {
	// GetService возвращает услугу по ID.
	GetService(ctx context.Context, id string) (*model.Service, error)
	// GetSLA возвращает политику SLA по ID.
	GetSLA(ctx context.Context, id string) (*model.SLA, error)
	// GetTemplate возвращает шаблон с полями в порядке sort_order.
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
}

type catalogRepo struct {
	db DBTX
}

// NewCatalogRepository создаёт репозиторий каталога.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

const serviceColumns = `id, code, name, slug, description, category_id, subcategory_id, sla_id,
	priority, status, keywords, metadata, published_at, created_at, updated_at`

func (r *catalogRepo) GetService(ctx context.Context, id string) (*model.Service, error) {
	query := fmt.Sprintf(`SELECT %s FROM services WHERE id = $1`, serviceColumns)

	s := &model.Service{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Code, &s.Name, &s.Slug, &s.Description, &s.CategoryID, &s.SubcategoryID, &s.SLAID,
		&s.Priority, &s.Status, &s.Keywords, &s.Metadata, &s.PublishedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения услуги: %w", err)
	}
	return s, nil
}

func (r *catalogRepo) GetSLA(ctx context.Context, id string) (*model.SLA, error) {
	query := `
		SELECT id, name, description, first_response_minutes, resolution_minutes,
			pause_conditions, active, created_at, updated_at
		FROM slas WHERE id = $1`

	s := &model.SLA{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.Description, &s.FirstResponseMinutes, &s.ResolutionMinutes,
		&s.PauseConditions, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения SLA: %w", err)
	}
	return s, nil
}

func (r *catalogRepo) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	t := &model.Template{}
	err := r.db.QueryRow(ctx, `
		SELECT id, service_id, name, active, version, created_at, updated_at
		FROM templates WHERE id = $1`, id,
	).Scan(&t.ID, &t.ServiceID, &t.Name, &t.Active, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения шаблона: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, field_name, label, type, options, required,
			validation_pattern, validation_message, placeholder, sort_order
		FROM template_fields
		WHERE template_id = $1
		ORDER BY sort_order, field_name`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения полей шаблона: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.TemplateField
		if err := rows.Scan(
			&f.ID, &f.FieldName, &f.Label, &f.Type, &f.Options, &f.Required,
			&f.ValidationPattern, &f.ValidationMessage, &f.Placeholder, &f.Order,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования поля шаблона: %w", err)
		}
		t.Fields = append(t.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения полей шаблона: %w", err)
	}
	return t, nil
}
