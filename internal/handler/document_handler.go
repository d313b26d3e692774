package handler

import (
	"net/http"

	"mdcollab/internal/middleware"
	"mdcollab/internal/model"
	"mdcollab/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DocumentHandler struct {
	docRepo   repository.DocumentRepositoryInterface
	shareRepo repository.DocumentShareRepositoryInterface
}

func NewDocumentHandler(
	docRepo repository.DocumentRepositoryInterface,
	shareRepo repository.DocumentShareRepositoryInterface,
) *DocumentHandler {
	return &DocumentHandler{docRepo: docRepo, shareRepo: shareRepo}
}

type createDocumentRequest struct {
	Title     string `json:"title" binding:"required"`
	Content   string `json:"content"`
	ShareMode string `json:"share_mode" binding:"omitempty,oneof=edit view"`
}

type patchDocumentRequest struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	ShareMode *string `json:"share_mode" binding:"omitempty,oneof=edit view"`
}

type documentResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	OwnerID   string `json:"owner_id"`
	ShareMode string `json:"share_mode"`
}

func toDocumentResponse(doc *model.Document) documentResponse {
	return documentResponse{
		ID:        doc.ID.String(),
		Title:     doc.Title,
		Content:   doc.Content,
		OwnerID:   doc.OwnerID.String(),
		ShareMode: doc.ShareMode,
	}
}

func authenticatedUser(c *gin.Context) (uuid.UUID, bool) {
	userID, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return uuid.Nil, false
	}
	id, ok := userID.(uuid.UUID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user ID format"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *DocumentHandler) Create(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	shareMode := req.ShareMode
	if shareMode == "" {
		shareMode = model.ModeView
	}

	doc := &model.Document{
		ID:        uuid.New(),
		Title:     req.Title,
		Content:   req.Content,
		OwnerID:   userID,
		ShareMode: shareMode,
	}

	if err := h.docRepo.Create(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create document"})
		return
	}

	c.JSON(http.StatusCreated, toDocumentResponse(doc))
}

func (h *DocumentHandler) GetByID(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID format"})
		return
	}

	doc, err := h.docRepo.GetByID(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	mode, err := h.shareRepo.ResolveMode(c.Request.Context(), docID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve access"})
		return
	}

	resp := toDocumentResponse(doc)
	c.JSON(http.StatusOK, gin.H{
		"document":    resp,
		"access_mode": mode,
	})
}

// GetAll returns the documents the user owns plus the ones shared with them
func (h *DocumentHandler) GetAll(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	owned, err := h.docRepo.GetByOwner(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve documents"})
		return
	}

	shared, err := h.shareRepo.GetSharedDocuments(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve shared documents"})
		return
	}

	ownedResp := make([]documentResponse, 0, len(owned))
	for i := range owned {
		ownedResp = append(ownedResp, toDocumentResponse(&owned[i]))
	}
	sharedResp := make([]documentResponse, 0, len(shared))
	for i := range shared {
		sharedResp = append(sharedResp, toDocumentResponse(&shared[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"owned":  ownedResp,
		"shared": sharedResp,
	})
}

func (h *DocumentHandler) Patch(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID format"})
		return
	}

	var req patchDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	doc, err := h.docRepo.GetByID(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}

	if doc.OwnerID != userID {
		mode, err := h.shareRepo.ResolveMode(c.Request.Context(), docID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve access"})
			return
		}
		if mode != model.ModeEdit {
			c.JSON(http.StatusForbidden, gin.H{"error": "Edit access required"})
			return
		}
		// Default share mode can only be changed by the owner
		if req.ShareMode != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can change the share mode"})
			return
		}
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Content != nil {
		fields["content"] = *req.Content
	}
	if req.ShareMode != nil {
		fields["share_mode"] = *req.ShareMode
	}
	if len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	updated, err := h.docRepo.Patch(c.Request.Context(), docID, fields)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update document"})
		return
	}

	c.JSON(http.StatusOK, toDocumentResponse(updated))
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID format"})
		return
	}

	doc, err := h.docRepo.GetByID(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return
	}
	if doc.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can delete the document"})
		return
	}

	if err := h.docRepo.Delete(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}
