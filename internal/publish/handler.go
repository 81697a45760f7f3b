package publish

import (
	"errors"
	"net/http"

	"github.com/austindbirch/postroom/internal/auth"
	"github.com/austindbirch/postroom/internal/idempotency"
	"github.com/austindbirch/postroom/internal/logging"
)

// Handler exposes newsletter submission over HTTP. It owns nothing but the
// form decoding and the verbatim write of the captured response; all
// semantics live in Service.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// SubmitNewsletter handles POST /admin/newsletters. Duplicate submissions get
// the exact bytes of the first acknowledgment.
func (h *Handler) SubmitNewsletter(w http.ResponseWriter, r *http.Request) {
	actorID, ok := auth.GetActorIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Publish(r.Context(),
		actorID,
		r.PostFormValue("idempotency_key"),
		IssueContent{
			Title:       r.PostFormValue("title"),
			HTMLContent: r.PostFormValue("html_content"),
			TextContent: r.PostFormValue("text_content"),
		},
	)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithContext(r.Context()).WithActor(actorID.String()).
			WithError(err).Error("newsletter submission failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeCaptured(w, resp)
}

// writeCaptured replays a captured response byte for byte, headers in their
// recorded order.
func writeCaptured(w http.ResponseWriter, resp idempotency.Response) {
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, h.Value)
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
