package repository

import (
	"context"
	"errors"

	"mdcollab/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentShareRepository struct {
	db *gorm.DB
}

type DocumentShareRepositoryInterface interface {
	Share(ctx context.Context, documentID, userID uuid.UUID, mode string) error
	Revoke(ctx context.Context, documentID, userID uuid.UUID) error
	GetShares(ctx context.Context, documentID uuid.UUID) ([]model.DocumentShare, error)
	GetSharedDocuments(ctx context.Context, userID uuid.UUID) ([]model.Document, error)
	ResolveMode(ctx context.Context, documentID, userID uuid.UUID) (string, error)
}

var _ DocumentShareRepositoryInterface = (*DocumentShareRepository)(nil)

func NewDocumentShareRepository(db *gorm.DB) *DocumentShareRepository {
	return &DocumentShareRepository{db: db}
}

// Share grants a user access to a document with the given mode. A fresh share
// clears any previous revocation, so it is the only path back to edit after
// a revoke.
func (r *DocumentShareRepository) Share(ctx context.Context, documentID, userID uuid.UUID, mode string) error {
	share := model.DocumentShare{
		DocumentID: documentID,
		UserID:     userID,
		Mode:       mode,
	}

	// Transaction to avoid racing concurrent shares for the same pair
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.DocumentShare
		err := tx.Where("document_id = ? AND user_id = ?", documentID, userID).First(&existing).Error

		if err == nil {
			existing.Mode = mode
			existing.Revoked = false
			return tx.Save(&existing).Error
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Create(&share).Error
	})
}

// Revoke downgrades an existing grant to view and marks it revoked. The grant
// row is kept, not deleted: a revoked user still sees the document read-only.
func (r *DocumentShareRepository) Revoke(ctx context.Context, documentID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var share model.DocumentShare
		err := tx.Where("document_id = ? AND user_id = ?", documentID, userID).First(&share).Error

		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No explicit grant yet: record the downgrade as a revoked
			// view-mode override of the document default.
			share = model.DocumentShare{
				DocumentID: documentID,
				UserID:     userID,
				Mode:       model.ModeView,
				Revoked:    true,
			}
			return tx.Create(&share).Error
		}
		if err != nil {
			return err
		}

		share.Mode = model.ModeView
		share.Revoked = true
		return tx.Save(&share).Error
	})
}

// GetShares returns the users holding a grant on a document
func (r *DocumentShareRepository) GetShares(ctx context.Context, documentID uuid.UUID) ([]model.DocumentShare, error) {
	var shares []model.DocumentShare

	err := r.db.WithContext(ctx).
		Preload("User").
		Where("document_id = ?", documentID).
		Find(&shares).Error

	return shares, err
}

// GetSharedDocuments returns documents shared with the user
func (r *DocumentShareRepository) GetSharedDocuments(ctx context.Context, userID uuid.UUID) ([]model.Document, error) {
	var docs []model.Document

	err := r.db.WithContext(ctx).
		Joins("JOIN document_shares ON document_shares.document_id = documents.id").
		Where("document_shares.user_id = ?", userID).
		Find(&docs).Error

	return docs, err
}

// ResolveMode returns the effective access mode for a user on a document:
// owner always edits; a per-user grant overrides the document default.
func (r *DocumentShareRepository) ResolveMode(ctx context.Context, documentID, userID uuid.UUID) (string, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ?", documentID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", err
	}

	if doc.OwnerID == userID {
		return model.ModeEdit, nil
	}

	var share model.DocumentShare
	err = r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		First(&share).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return doc.ShareMode, nil
	}
	if err != nil {
		return "", err
	}

	return share.Mode, nil
}
