package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
)

const maxBodyBytes = 1 << 20

// Pinger reports storage health for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler exposes the router on path: GET for the handshake, POST for
// deliveries, plus GET /healthz.
func NewHandler(path string, router *Router, pinger Pinger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "webhook_handler")

	mux := http.NewServeMux()

	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		challenge, ok := router.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
		if !ok {
			log.WarnContext(req.Context(), "Webhook verification rejected", "mode", q.Get("hub.mode"))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		log.InfoContext(req.Context(), "Webhook verified")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, challenge)
	})

	mux.HandleFunc("POST "+path, func(w http.ResponseWriter, req *http.Request) {
		// The platform only needs to know the payload arrived; replies
		// failing must not trigger redelivery.
		defer acknowledge(w)

		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		if err != nil {
			log.WarnContext(req.Context(), "Failed to read delivery body", "error", err)
			return
		}

		// Admitted events must finish their dispatches and history writes
		// even if the platform hangs up; each Graph call has its own timeout.
		sum, err := router.HandleDelivery(context.WithoutCancel(req.Context()), body)
		if err != nil {
			log.WarnContext(req.Context(), "Dropping malformed delivery", "error", err, "size", len(body))
			return
		}
		log.InfoContext(req.Context(), "Delivery processed",
			"comments", sum.Comments,
			"duplicates", sum.Duplicates,
			"messages", sum.Messages,
			"echoes", sum.Echoes,
			"malformed", sum.Malformed,
			"dispatches", len(sum.Outcomes))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, req *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(req.Context()); err != nil {
				log.ErrorContext(req.Context(), "Health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = io.WriteString(w, "ok")
	})

	return mux
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}
