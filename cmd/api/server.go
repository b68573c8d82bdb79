package main

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"github.com/mcclellann/pawnledger/pkg/insights"
	"github.com/mcclellann/pawnledger/pkg/ledger"
	"github.com/mcclellann/pawnledger/pkg/metrics"
	"github.com/mcclellann/pawnledger/pkg/store"
)

// Server holds the ledger instance. The caller owns the storage and closes it.
type Server struct {
	ledger   *ledger.Ledger
	insights *insights.Service
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewServer(s store.Storage, m *metrics.Metrics, opts ...ledger.Option) *Server {
	srv := &Server{
		metrics: m,
		now:     time.Now,
	}
	// The server dates defaulted payments with the same clock the ledger uses.
	opts = append([]ledger.Option{ledger.WithRecorder(m)}, opts...)
	srv.ledger = ledger.NewLedger(s, append(opts, ledger.WithClock(func() time.Time { return srv.now() }))...)
	srv.insights = insights.NewService(s, func() time.Time { return srv.now() })
	return srv
}

// Routes builds the router wrapped in recovery, request logging and CORS.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	router.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods("PUT")
	router.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods("DELETE")

	router.HandleFunc("/items", s.listItemsHandler).Methods("GET")
	router.HandleFunc("/items", s.createItemHandler).Methods("POST")
	router.HandleFunc("/items/{id}", s.getItemHandler).Methods("GET")
	router.HandleFunc("/items/{id}", s.updateItemHandler).Methods("PUT")
	router.HandleFunc("/items/{id}", s.deleteItemHandler).Methods("DELETE")
	router.HandleFunc("/items/{id}/payments", s.applyPaymentHandler).Methods("POST")
	router.HandleFunc("/items/{id}/payments", s.paymentHistoryHandler).Methods("GET")
	router.HandleFunc("/items/{id}/interest", s.interestStatusHandler).Methods("GET")
	router.HandleFunc("/items/{id}/interest-history", s.interestHistoryHandler).Methods("GET")

	router.HandleFunc("/interest/calculate", s.calculateInterestHandler).Methods("POST")

	router.HandleFunc("/insights", s.insightsHandler).Methods("GET")
	router.HandleFunc("/insights/monthly", s.monthlyInsightsHandler).Methods("GET")
	router.HandleFunc("/insights/daily", s.dailyInsightsHandler).Methods("GET")

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})
	return corsHandler(requestLogging(recovery(router)))
}
