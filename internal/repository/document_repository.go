package repository

import (
	"context"
	"errors"

	"mdcollab/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

type DocumentRepositoryInterface interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Document, error)
	Update(ctx context.Context, doc *model.Document) error
	Patch(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*model.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ DocumentRepositoryInterface = (*DocumentRepository)(nil)

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &doc, err
}

func (r *DocumentRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&docs).Error
	return docs, err
}

func (r *DocumentRepository) Update(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

// Patch applies a partial update (content and/or title) and returns the
// updated row. The sync engine's debounced flush lands here.
func (r *DocumentRepository) Patch(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDocumentNotFound
			}
			return err
		}
		return tx.Model(&doc).Updates(fields).Error
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Document{}).Error
}
