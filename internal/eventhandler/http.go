package eventhandler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server exposes the reconciler over SNS's HTTPS delivery protocol:
// SubscriptionConfirmation handshakes are followed automatically, and
// Notification bodies are unwrapped and handed to the Reconciler.
type Server struct {
	reconciler *Reconciler
	httpClient *http.Client
}

// NewServer constructs a Server.
func NewServer(r *Reconciler) *Server {
	return &Server{reconciler: r, httpClient: &http.Client{}}
}

// Routes builds the chi router SNS delivers HTTPS notifications to.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Amz-Sns-Message-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/events", s.handleNotification)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	var envelope SNSEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}

	switch envelope.Type {
	case "SubscriptionConfirmation":
		s.confirmSubscription(envelope)
		w.WriteHeader(http.StatusOK)
	case "Notification":
		ok := s.reconciler.ProcessMessage(r.Context(), envelope.Message)
		if !ok {
			w.WriteHeader(http.StatusOK) // lenient: never fail the SNS delivery
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// confirmSubscription follows SNS's SubscribeURL to complete the topic
// subscription handshake.
func (s *Server) confirmSubscription(envelope SNSEnvelope) {
	if envelope.SubscribeURL == "" {
		return
	}
	resp, err := s.httpClient.Get(envelope.SubscribeURL)
	if err != nil {
		return
	}
	defer resp.Body.Close()
}
