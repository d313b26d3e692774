package handler

import (
	"log"
	"net/http"

	"mdcollab/internal/channel"
	"mdcollab/internal/model"
	"mdcollab/internal/realtime"
	"mdcollab/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DocumentShareHandler struct {
	docRepo   repository.DocumentRepositoryInterface
	userRepo  repository.UserRepositoryInterface
	shareRepo repository.DocumentShareRepositoryInterface
	channel   channel.Channel
}

func NewDocumentShareHandler(
	docRepo repository.DocumentRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
	shareRepo repository.DocumentShareRepositoryInterface,
	ch channel.Channel,
) *DocumentShareHandler {
	return &DocumentShareHandler{
		docRepo:   docRepo,
		userRepo:  userRepo,
		shareRepo: shareRepo,
		channel:   ch,
	}
}

type shareDocumentRequest struct {
	Email string `json:"email" binding:"required,email"`
	Mode  string `json:"mode" binding:"required,oneof=edit view"`
}

type shareResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Mode    string `json:"mode"`
	Revoked bool   `json:"revoked"`
	IsOwner bool   `json:"is_owner"`
}

// ownedDocument loads the document and verifies the caller owns it
func (h *DocumentShareHandler) ownedDocument(c *gin.Context) (*model.Document, bool) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return nil, false
	}

	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document ID format"})
		return nil, false
	}

	doc, err := h.docRepo.GetByID(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
		return nil, false
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return nil, false
	}
	if doc.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the document owner can manage sharing"})
		return nil, false
	}
	return doc, true
}

// ShareDocument grants access by email. A fresh share is the only path back
// to edit for a previously revoked user.
func (h *DocumentShareHandler) ShareDocument(c *gin.Context) {
	doc, ok := h.ownedDocument(c)
	if !ok {
		return
	}

	var req shareDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	targetUser, err := h.userRepo.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find user"})
		return
	}
	if targetUser == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if targetUser.ID == doc.OwnerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot share document with yourself"})
		return
	}

	if err := h.shareRepo.Share(c.Request.Context(), doc.ID, targetUser.ID, req.Mode); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to share document"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Document shared successfully",
		"share": shareResponse{
			UserID: targetUser.ID.String(),
			Email:  targetUser.Email,
			Name:   targetUser.Name,
			Mode:   req.Mode,
		},
	})
}

// RevokeShare downgrades a collaborator to view. The downgrade is persisted
// first; only then are live sessions notified, so peers never hear about a
// downgrade that did not durably happen.
func (h *DocumentShareHandler) RevokeShare(c *gin.Context) {
	doc, ok := h.ownedDocument(c)
	if !ok {
		return
	}

	targetUserID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	if err := h.shareRepo.Revoke(c.Request.Context(), doc.ID, targetUserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke access"})
		return
	}

	// Notify live sessions through the document channel
	handle, err := h.channel.Join(c.Request.Context(), doc.ID.String())
	if err != nil {
		log.Printf("share: revocation broadcast join failed: %v", err)
	} else {
		msg := realtime.AccessRevokedMessage{
			DocumentID:   doc.ID.String(),
			TargetUserID: targetUserID.String(),
			OwnerID:      doc.OwnerID.String(),
			Mode:         realtime.ModeView,
			ForceReload:  false,
		}
		if err := handle.Send(c.Request.Context(), realtime.EventAccessRevoked, msg); err != nil {
			log.Printf("share: revocation broadcast failed: %v", err)
		}
		if err := handle.Leave(); err != nil {
			log.Printf("share: revocation broadcast leave failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Access revoked"})
}

// GetShares lists collaborators and their access modes
func (h *DocumentShareHandler) GetShares(c *gin.Context) {
	doc, ok := h.ownedDocument(c)
	if !ok {
		return
	}

	shares, err := h.shareRepo.GetShares(c.Request.Context(), doc.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve shares"})
		return
	}

	out := make([]shareResponse, 0, len(shares))
	for _, s := range shares {
		out = append(out, shareResponse{
			UserID:  s.UserID.String(),
			Email:   s.User.Email,
			Name:    s.User.Name,
			Mode:    s.Mode,
			Revoked: s.Revoked,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"default_mode": doc.ShareMode,
		"shares":       out,
	})
}

// GetSharedDocuments lists documents shared with the caller
func (h *DocumentShareHandler) GetSharedDocuments(c *gin.Context) {
	userID, ok := authenticatedUser(c)
	if !ok {
		return
	}

	docs, err := h.shareRepo.GetSharedDocuments(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve shared documents"})
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}

	c.JSON(http.StatusOK, gin.H{"shared": out})
}
