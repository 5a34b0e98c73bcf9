// docs.go — отдача OpenAPI документа.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/servicedesk/internal/api/errors"
)

// DocsHandler отдаёт заранее сериализованный OpenAPI документ.
type DocsHandler struct {
	document []byte
}

// NewDocsHandler создаёт обработчик документации. document — JSON документа.
func NewDocsHandler(document []byte) *DocsHandler {
	return &DocsHandler{document: document}
}

// GetOpenAPIDocument — GET /api/v1/openapi.json.
func (h *DocsHandler) GetOpenAPIDocument(w http.ResponseWriter, _ *http.Request) {
	if h == nil || len(h.document) == 0 {
		apierrors.NotFound(w, "OpenAPI документ не загружен")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.document)
}
