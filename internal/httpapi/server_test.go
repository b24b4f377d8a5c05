package httpapi

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/ethpandaops/tee-validator-signer/internal/attestation"
	"github.com/ethpandaops/tee-validator-signer/internal/blssign"
	"github.com/ethpandaops/tee-validator-signer/internal/config"
	"github.com/ethpandaops/tee-validator-signer/internal/keylock"
	"github.com/ethpandaops/tee-validator-signer/internal/keystore"
	"github.com/ethpandaops/tee-validator-signer/internal/signingpipeline"
	"github.com/ethpandaops/tee-validator-signer/internal/slashdb"
	"github.com/stretchr/testify/require"
	keystorev4 "github.com/wealdtech/go-eth2-wallet-encryptor-keystorev4"
)

func newTestServer(t *testing.T) (*Server, *keystore.KeyStore) {
	t.Helper()

	dataDir := t.TempDir()

	keys, err := keystore.Open(dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keys.Close() })

	protection, err := slashdb.Open(dataDir, config.ReplayPolicyReject)
	require.NoError(t, err)
	t.Cleanup(func() { _ = protection.Close() })

	pipeline := signingpipeline.New(keys, protection, keylock.NewRegistry())

	srv := NewServer(Options{
		Keys:               keys,
		Pipeline:           pipeline,
		Protection:         protection,
		Oracle:             attestation.NewStub(),
		MetricsEnabled:     true,
		AttestationEnabled: true,
	})

	return srv, keys
}

func TestUpcheckReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/upcheck", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointServed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateAndListBLSKeys(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/eth/v1/keygen/bls", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var genResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &genResp))
	require.NotEmpty(t, genResp["validating_pubkey"])

	listReq := httptest.NewRequest(http.MethodGet, "/eth/v1/keygen/bls", nil)
	listRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listResp map[string][]string
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	require.Contains(t, listResp["bls_keys"], genResp["validating_pubkey"])
}

func TestGenerateAndListETHKeys(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/eth/v1/keygen/secp256k1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var genResp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &genResp))
	require.NotEmpty(t, genResp["eth_pub_hex"])

	listReq := httptest.NewRequest(http.MethodGet, "/eth/v1/keygen/secp256k1", nil)
	listRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listResp map[string][]string
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))
	require.Contains(t, listResp["eth_keys"], genResp["eth_pub_hex"])
}

func TestSignEndpointSignsValidBlock(t *testing.T) {
	srv, keys := newTestServer(t)

	pubkeyHex, err := keys.GenerateBLS()
	require.NoError(t, err)

	body := blockRequestJSON(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/eth2/sign/"+pubkeyHex, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["signature"], "0x"))
}

func TestSignEndpointRejectsUnknownKey(t *testing.T) {
	srv, _ := newTestServer(t)

	body := blockRequestJSON(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/eth2/sign/0xdeadbeef", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignEndpointRejectsSlashableBlock(t *testing.T) {
	srv, keys := newTestServer(t)

	pubkeyHex, err := keys.GenerateBLS()
	require.NoError(t, err)

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/eth2/sign/"+pubkeyHex, bytes.NewReader(blockRequestJSON(t, 10)))
	rec1 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/eth2/sign/"+pubkeyHex, bytes.NewReader(blockRequestJSON(t, 5)))
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusPreconditionFailed, rec2.Code)
}

func TestRemoteAttestationEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/eth/v1/remote-attestation/0xabc", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "0xabc", resp["pubkey"])
	require.NotEmpty(t, resp["report"])
}

func TestImportBLSKeyEndToEnd(t *testing.T) {
	srv, keys := newTestServer(t)

	genReq := httptest.NewRequest(http.MethodPost, "/eth/v1/keygen/secp256k1", nil)
	genRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(genRec, genReq)
	require.Equal(t, http.StatusOK, genRec.Code)

	var genResp map[string]string
	require.NoError(t, json.Unmarshal(genRec.Body.Bytes(), &genResp))

	recipient, ok := keys.ETHKeyPair(genResp["eth_pub_hex"])
	require.True(t, ok)

	kp := blssign.Generate()
	passphrase := "correct horse battery staple"

	cryptoMap, err := keystorev4.New().Encrypt(kp.SecretBytes(), passphrase)
	require.NoError(t, err)

	keystoreJSON, err := json.Marshal(map[string]interface{}{
		"crypto":  cryptoMap,
		"pubkey":  strings.TrimPrefix(kp.PublicKeyHex(), "0x"),
		"path":    "m/12381/3600/0/0",
		"uuid":    "00000000-0000-0000-0000-000000000000",
		"version": 4,
	})
	require.NoError(t, err)

	encryptedPassphrase := encryptECIES(t, &recipient.PrivateKey().PublicKey, []byte(passphrase))

	importBody, err := json.Marshal(map[string]string{
		"keystore":          string(keystoreJSON),
		"ct_password_hex":   "0x" + hex.EncodeToString(encryptedPassphrase),
		"encrypting_pk_hex": genResp["eth_pub_hex"],
	})
	require.NoError(t, err)

	importReq := httptest.NewRequest(http.MethodPost, "/eth/v1/keystores", bytes.NewReader(importBody))
	importReq.Header.Set("Content-Type", "application/json")
	importRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(importRec, importReq)

	require.Equal(t, http.StatusOK, importRec.Code)

	var importResp struct {
		Data []struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(importRec.Body.Bytes(), &importResp))
	require.Len(t, importResp.Data, 1)
	require.Equal(t, "imported", importResp.Data[0].Status)
	require.Equal(t, kp.PublicKeyHex(), importResp.Data[0].Message)

	listReq := httptest.NewRequest(http.MethodGet, "/eth/v1/keystores", nil)
	listRec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(listRec, listReq)

	var listResp struct {
		Data []struct {
			ValidatingPubkey string `json:"validating_pubkey"`
			ReadOnly         bool   `json:"readonly"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listResp))

	found := false

	for _, entry := range listResp.Data {
		if entry.ValidatingPubkey == kp.PublicKeyHex() {
			found = true
			require.True(t, entry.ReadOnly)
		}
	}

	require.True(t, found)
}

func encryptECIES(t *testing.T, pub *ecdsa.PublicKey, plaintext []byte) []byte {
	t.Helper()

	out, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), plaintext, nil, nil)
	require.NoError(t, err)

	return out
}

func blockRequestJSON(t *testing.T, slot uint64) []byte {
	t.Helper()

	payload := map[string]any{
		"type": "BLOCK",
		"fork_info": map[string]any{
			"fork": map[string]any{
				"previous_version": "0x00000000",
				"current_version":  "0x00000000",
				"epoch":            "0",
			},
			"genesis_validators_root": "0x" + strings.Repeat("00", 32),
		},
		"block": map[string]any{
			"slot":           strconv.FormatUint(slot, 10),
			"proposer_index": "1",
			"parent_root":    "0x" + strings.Repeat("00", 32),
			"state_root":     "0x" + strings.Repeat("00", 32),
			"body_root":      "0x" + strings.Repeat("00", 32),
		},
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return raw
}
