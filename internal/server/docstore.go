package server

import (
	"context"
	"fmt"

	"mdcollab/internal/realtime"
	"mdcollab/internal/repository"

	"github.com/google/uuid"
)

// documentStore adapts the gorm repositories to the sync engine's Store
// interface. The engine works with string ids; everything behind this
// boundary is uuid-typed.
type documentStore struct {
	docs   repository.DocumentRepositoryInterface
	shares repository.DocumentShareRepositoryInterface
}

func newDocumentStore(docs repository.DocumentRepositoryInterface, shares repository.DocumentShareRepositoryInterface) *documentStore {
	return &documentStore{docs: docs, shares: shares}
}

var _ realtime.Store = (*documentStore)(nil)

func (s *documentStore) GetDocument(ctx context.Context, documentID, userID string) (*realtime.DocumentState, error) {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}
	uID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, repository.ErrDocumentNotFound
	}

	mode, err := s.shares.ResolveMode(ctx, docID, uID)
	if err != nil {
		return nil, err
	}

	return &realtime.DocumentState{
		Title:   doc.Title,
		Content: doc.Content,
		OwnerID: doc.OwnerID.String(),
		Mode:    realtime.Mode(mode),
	}, nil
}

func (s *documentStore) PatchContent(ctx context.Context, documentID, content string) error {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	_, err = s.docs.Patch(ctx, docID, map[string]interface{}{"content": content})
	return err
}

func (s *documentStore) RevokeAccess(ctx context.Context, documentID, targetUserID string) error {
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	targetID, err := uuid.Parse(targetUserID)
	if err != nil {
		return fmt.Errorf("invalid user id: %w", err)
	}
	return s.shares.Revoke(ctx, docID, targetID)
}
