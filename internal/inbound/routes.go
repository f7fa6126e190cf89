package inbound

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the admin message routes
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/mails", func(r chi.Router) {
		// GET /api/admin/mails - List messages (paginated, searchable)
		r.Get("/", handler.ListMessages)

		// GET /api/admin/mails/:id - Get full message
		r.Get("/{id}", handler.GetMessage)

		// POST /api/admin/mails/:id/archive - Archive message
		r.Post("/{id}/archive", handler.ArchiveMessage)

		// POST /api/admin/mails/:id/unarchive - Unarchive message
		r.Post("/{id}/unarchive", handler.UnarchiveMessage)

		// DELETE /api/admin/mails/:id - Delete message and attachment files
		r.Delete("/{id}", handler.DeleteMessage)
	})
}
