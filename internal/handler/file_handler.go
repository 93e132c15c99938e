package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/ims-api/pkg/errors"
	"github.com/noah-isme/ims-api/pkg/response"
	"github.com/noah-isme/ims-api/pkg/storage"
)

// FileHandler serves generated documents through signed, expiring tokens.
// The token is the sole credential; the endpoint itself is public.
type FileHandler struct {
	signer *storage.SignedURLSigner
	store  *storage.LocalStorage
}

// NewFileHandler constructs FileHandler.
func NewFileHandler(signer *storage.SignedURLSigner, store *storage.LocalStorage) *FileHandler {
	return &FileHandler{signer: signer, store: store}
}

// Download godoc
// @Summary Download a document by signed token
// @Tags Files
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /files/{token} [get]
func (h *FileHandler) Download(c *gin.Context) {
	if h.signer == nil || h.store == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrPreconditionFailed, "downloads are not configured"))
		return
	}
	_, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, http.StatusNotFound, "invalid or expired download token"))
		return
	}
	c.FileAttachment(h.store.Path(relPath), filepath.Base(relPath))
}
