package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/knowsy/internal/knowsy"
)

type TopicResponse struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Items []TopicItemResponse `json:"items"`
}

type TopicItemResponse struct {
	Ref   knowsy.ItemRef `json:"ref"`
	Name  string         `json:"name"`
	Image string         `json:"image,omitempty"`
}

// handleTopics lists the topics a VIP can pick from: the shared catalog,
// plus the organization's own items when ?org= is given.
func handleTopics(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := st.Topics(r.Context(), r.URL.Query().Get("org"))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}

		resp := make([]TopicResponse, 0, len(topics))
		for _, t := range topics {
			items := make([]TopicItemResponse, 0, len(t.Items))
			for _, it := range t.Items {
				items = append(items, TopicItemResponse{Ref: it.Ref, Name: it.Item.Name, Image: it.Item.Image})
			}
			resp = append(resp, TopicResponse{ID: t.ID, Name: t.Name, Items: items})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
