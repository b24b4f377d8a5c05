// Package httpapi is the enclave's HTTP surface: the remote signing
// endpoint, key generation and import, and remote attestation, served
// behind the same gorilla/mux + negroni recovery stack the rest of this
// codebase's HTTP services use.
package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/tee-validator-signer/internal/attestation"
	"github.com/ethpandaops/tee-validator-signer/internal/keyimport"
	"github.com/ethpandaops/tee-validator-signer/internal/keystore"
	"github.com/ethpandaops/tee-validator-signer/internal/signingpipeline"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

// Server serves the enclave's HTTP API.
type Server struct {
	log    *logrus.Logger
	router *mux.Router
	server *http.Server

	keys       *keystore.KeyStore
	pipeline   *signingpipeline.Pipeline
	protection keyimport.ProtectionSeeder
	oracle     attestation.Oracle

	metricsEnabled     bool
	attestationEnabled bool
}

// Options configures a Server.
type Options struct {
	Keys               *keystore.KeyStore
	Pipeline           *signingpipeline.Pipeline
	Protection         keyimport.ProtectionSeeder
	Oracle             attestation.Oracle
	Log                *logrus.Logger
	MetricsEnabled     bool
	AttestationEnabled bool
}

// NewServer constructs a Server and registers its routes.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Server{
		log:                log,
		router:             mux.NewRouter(),
		keys:               opts.Keys,
		pipeline:           opts.Pipeline,
		protection:         opts.Protection,
		oracle:             opts.Oracle,
		metricsEnabled:     opts.MetricsEnabled,
		attestationEnabled: opts.AttestationEnabled,
	}

	s.registerRoutes()

	return s
}

// Handler returns the HTTP handler, wrapped in negroni's panic-recovery
// middleware, for both production and tests.
func (s *Server) Handler() http.Handler {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.UseHandler(s.router)

	return n
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/upcheck", s.handleUpcheck).Methods(http.MethodGet)

	eth2 := s.router.PathPrefix("/api/v1/eth2").Subrouter()
	eth2.HandleFunc("/sign/{bls_pub_hex}", s.handleSign).Methods(http.MethodPost)

	keystores := s.router.PathPrefix("/eth/v1/keystores").Subrouter()
	keystores.HandleFunc("", s.handleListImportedBLSKeys).Methods(http.MethodGet)
	keystores.HandleFunc("", s.handleImportBLSKey).Methods(http.MethodPost)

	blsKeygen := s.router.PathPrefix("/eth/v1/keygen/bls").Subrouter()
	blsKeygen.HandleFunc("", s.handleListGeneratedBLSKeys).Methods(http.MethodGet)
	blsKeygen.HandleFunc("", s.handleGenerateBLSKey).Methods(http.MethodPost)

	ethKeygen := s.router.PathPrefix("/eth/v1/keygen/secp256k1").Subrouter()
	ethKeygen.HandleFunc("", s.handleListGeneratedETHKeys).Methods(http.MethodGet)
	ethKeygen.HandleFunc("", s.handleGenerateETHKey).Methods(http.MethodPost)

	s.router.HandleFunc("/eth/v1/remote-attestation/{pub_hex}", s.handleRemoteAttestation).Methods(http.MethodPost)

	if s.metricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

func (s *Server) handleUpcheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForPipelineError maps the signing pipeline's error taxonomy onto
// the enclave's HTTP status codes.
func statusForPipelineError(err error) int {
	var pipelineErr *signingpipeline.Error
	if !errors.As(err, &pipelineErr) {
		return http.StatusInternalServerError
	}

	switch pipelineErr.Kind {
	case signingpipeline.KindMalformedRequest:
		return http.StatusBadRequest
	case signingpipeline.KindUnknownKey:
		return http.StatusNotFound
	case signingpipeline.KindSlashable:
		return http.StatusPreconditionFailed
	case signingpipeline.KindPersistenceFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// handleSign handles POST /api/v1/eth2/sign/{bls_pub_hex}.
func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("path", "/api/v1/eth2/sign")

	defer func() {
		if err := recover(); err != nil {
			log.WithField("panic", err).Error("panic while handling sign request")
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
		}
	}()

	pubkeyHex := mux.Vars(r)["bls_pub_hex"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	result, err := s.pipeline.SecureSign(r.Context(), pubkeyHex, body)
	if err != nil {
		log.WithError(err).WithField("pubkey", pubkeyHex).Warn("sign request rejected")
		writeError(w, statusForPipelineError(err), err.Error())

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"signature": "0x" + hex.EncodeToString(result.Signature[:]),
	})
}

// handleListImportedBLSKeys handles GET /eth/v1/keystores.
func (s *Server) handleListImportedBLSKeys(w http.ResponseWriter, _ *http.Request) {
	keys := s.keys.ListBLS()

	data := make([]keystoreListEntry, 0, len(keys))
	for _, pk := range keys {
		data = append(data, keystoreListEntry{ValidatingPubkey: pk, ReadOnly: true})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// keystoreListEntry mirrors the EIP-3075 keymanager list-keystores schema.
// DerivationPath is always empty since imported keys arrive as raw BLS
// secrets rather than derived from a mnemonic, and ReadOnly is always true
// since this enclave never exposes key material for export.
type keystoreListEntry struct {
	ValidatingPubkey string `json:"validating_pubkey"`
	DerivationPath   string `json:"derivation_path"`
	ReadOnly         bool   `json:"readonly"`
}

// importRequest mirrors the keymanager import contract: the keystore JSON
// travels as a string, the password protecting it travels ECIES-wrapped
// and hex-encoded, and an optional EIP-3076 interchange document seeds
// the imported key's slashing-protection watermark.
type importRequest struct {
	Keystore           string  `json:"keystore"`
	CTPasswordHex      string  `json:"ct_password_hex"`
	EncryptingPKHex    string  `json:"encrypting_pk_hex"`
	SlashingProtection *string `json:"slashing_protection"`
}

type importResultEntry struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func importResponse(status, message string) map[string]interface{} {
	return map[string]interface{}{"data": []importResultEntry{{Status: status, Message: message}}}
}

// handleImportBLSKey handles POST /eth/v1/keystores.
func (s *Server) handleImportBLSKey(w http.ResponseWriter, r *http.Request) {
	log := s.log.WithField("path", "/eth/v1/keystores")

	defer func() {
		if err := recover(); err != nil {
			log.WithField("panic", err).Error("panic while handling import request")
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
		}
	}()

	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, importResponse("error", "invalid JSON: "+err.Error()))
		return
	}

	encryptedPassword, err := hex.DecodeString(strings.TrimPrefix(req.CTPasswordHex, "0x"))
	if err != nil {
		writeJSON(w, http.StatusOK, importResponse("error", "invalid ct_password_hex"))
		return
	}

	recipient, ok := s.keys.ETHKeyPair(req.EncryptingPKHex)
	if !ok {
		writeJSON(w, http.StatusOK, importResponse("error", fmt.Sprintf("unknown encrypting key %s", req.EncryptingPKHex)))
		return
	}

	importReq := keyimport.Request{
		KeystoreJSON:      []byte(req.Keystore),
		EncryptedPassword: encryptedPassword,
	}

	if req.SlashingProtection != nil {
		importReq.SlashingProtection = []byte(*req.SlashingProtection)
	}

	result, err := keyimport.Import(s.keys, s.protection, recipient, importReq)
	if err != nil {
		log.WithError(err).Warn("key import rejected")
		writeJSON(w, http.StatusOK, importResponse("error", err.Error()))

		return
	}

	status := "imported"
	if result.Duplicate {
		status = "duplicate"
	}

	writeJSON(w, http.StatusOK, importResponse(status, result.PublicKeyHex))
}

// handleListGeneratedBLSKeys handles GET /eth/v1/keygen/bls.
func (s *Server) handleListGeneratedBLSKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"bls_keys": s.keys.ListBLS()})
}

// handleGenerateBLSKey handles POST /eth/v1/keygen/bls.
func (s *Server) handleGenerateBLSKey(w http.ResponseWriter, _ *http.Request) {
	pubkeyHex, err := s.keys.GenerateBLS()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"validating_pubkey": pubkeyHex})
}

// handleListGeneratedETHKeys handles GET /eth/v1/keygen/secp256k1.
func (s *Server) handleListGeneratedETHKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"eth_keys": s.keys.ListETH()})
}

// handleGenerateETHKey handles POST /eth/v1/keygen/secp256k1.
func (s *Server) handleGenerateETHKey(w http.ResponseWriter, _ *http.Request) {
	pubkeyHex, err := s.keys.GenerateETH()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"eth_pub_hex": pubkeyHex})
}

// handleRemoteAttestation handles POST /eth/v1/remote-attestation/{pub_hex}.
func (s *Server) handleRemoteAttestation(w http.ResponseWriter, r *http.Request) {
	if !s.attestationEnabled {
		writeError(w, http.StatusServiceUnavailable, "remote attestation is disabled")
		return
	}

	pubHex := mux.Vars(r)["pub_hex"]

	quote, err := s.oracle.Attest(pubHex)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"pubkey": quote.PublicKeyHex,
		"report": quote.ReportHex(),
	})
}

// Start starts the HTTP server listening on addr.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.WithField("addr", addr).Info("starting signer HTTP server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("signer HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
