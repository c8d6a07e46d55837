package httpdocs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/swptgo/paycoord/internal/storage/paymentsdb"
)

// Coordinator is the slice of the payment coordinator the document
// server needs. A nil record with a nil error means "not found or
// wrong secret"; the two cases are deliberately indistinguishable.
type Coordinator interface {
	GetOffer(ctx context.Context, payeeID, offerID int64, offerSecret []byte) (*paymentsdb.Offer, error)
	GetProof(ctx context.Context, payeeID, proofID int64, proofSecret []byte) (*paymentsdb.PaymentProof, error)
}

// cacheHeader marks the documents immutable: the secret in the URL
// makes every URL single-use-forever, so a year of caching is safe.
const cacheHeader = "public, max-age=31536000"

const contentType = "application/ld+json"

// proofCacheSize bounds the rendered-proof cache. Proof documents are
// immutable, so entries never need invalidation, only eviction.
const proofCacheSize = 4096

type proofCacheKey struct {
	payeeID int64
	proofID int64
}

// Server serves offer and proof documents.
type Server struct {
	coord      Coordinator
	log        *zap.Logger
	proofCache *lru.Cache[proofCacheKey, []byte]
}

// NewServer creates a document server over the coordinator's read-only
// lookups.
func NewServer(coord Coordinator, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New[proofCacheKey, []byte](proofCacheSize)
	if err != nil {
		return nil, err
	}
	return &Server{coord: coord, log: log, proofCache: cache}, nil
}

// Handler returns the HTTP handler serving the document routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /formal-offers/{payeeID}/{offerID}/{secret}", s.handleOffer)
	mux.HandleFunc("GET /payment-proofs/{payeeID}/{proofID}/{secret}", s.handleProof)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe runs the document server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	s.log.Info("document server listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	payeeID, offerID, secret, ok := pathParams(r, "offerID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	offer, err := s.coord.GetOffer(r.Context(), payeeID, offerID, secret)
	if err != nil {
		s.log.Error("offer lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if offer == nil {
		http.NotFound(w, r)
		return
	}

	body, err := json.Marshal(newOfferDocument(offer))
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeDocument(w, body)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	payeeID, proofID, secret, ok := pathParams(r, "proofID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	// Serve from the cache only after the secret has been verified
	// against the stored proof at least once: the cache key must not
	// become a way around the secret check.
	proof, err := s.coord.GetProof(r.Context(), payeeID, proofID, secret)
	if err != nil {
		s.log.Error("proof lookup failed", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if proof == nil {
		http.NotFound(w, r)
		return
	}

	key := proofCacheKey{payeeID: payeeID, proofID: proofID}
	if body, hit := s.proofCache.Get(key); hit {
		writeDocument(w, body)
		return
	}

	body, err := json.Marshal(newProofDocument(proof))
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	s.proofCache.Add(key, body)
	writeDocument(w, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok","service":"paycoordd"}`)
}

func pathParams(r *http.Request, idName string) (payeeID, id int64, secret []byte, ok bool) {
	payeeID, err := strconv.ParseInt(r.PathValue("payeeID"), 10, 64)
	if err != nil {
		return 0, 0, nil, false
	}
	id, err = strconv.ParseInt(r.PathValue(idName), 10, 64)
	if err != nil {
		return 0, 0, nil, false
	}
	secret, err = base64.URLEncoding.DecodeString(r.PathValue("secret"))
	if err != nil {
		return 0, 0, nil, false
	}
	return payeeID, id, secret, true
}

func writeDocument(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheHeader)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
