package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/ballot-ledger/crypto/signatures/ethereum"
	"github.com/vocdoni/ballot-ledger/log"
)

const (
	// maxRequestBodySize bounds every request body read by the handlers.
	maxRequestBodySize = 1 << 20
	// SignedRequestTTL is how far the timestamp of a signed request may be
	// from the server clock.
	SignedRequestTTL = 5 * time.Minute
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// readBody reads the request body, bounded by maxRequestBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		return nil, ErrMalformedBody.WithErr(err)
	}
	return body, nil
}

// decodeBody reads the request body and unmarshals it into out. The raw
// bytes are returned so that signatures can be checked over them.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) ([]byte, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, ErrMalformedBody.WithErr(err)
	}
	return body, nil
}

// requestSigner recovers the address that signed body from the signature
// header.
func requestSigner(r *http.Request, body []byte) (common.Address, error) {
	hexSig := r.Header.Get(SignatureHeader)
	if hexSig == "" {
		return common.Address{}, ErrMissingSignature
	}
	sig, err := ethereum.HexToSignature(hexSig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature.WithErr(err)
	}
	addr, err := ethereum.AddrFromSignature(body, sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature.WithErr(err)
	}
	return addr, nil
}

// checkFreshness rejects signed requests whose timestamp is too far from now.
func checkFreshness(timestamp int64, now time.Time) error {
	ts := time.Unix(timestamp, 0)
	if ts.Before(now.Add(-SignedRequestTTL)) || ts.After(now.Add(SignedRequestTTL)) {
		return ErrStaleRequest.Withf("timestamp %d, server time %d", timestamp, now.Unix())
	}
	return nil
}

func uint64Param(r *http.Request, key string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// parseHash decodes a 0x-prefixed 32 byte hex value.
func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("expected %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// parseAddress decodes a 0x-prefixed 20 byte hex address.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// writeError writes err as an API error. Errors that are not already an
// api.Error are mapped from their ledger class.
func writeError(w http.ResponseWriter, err error) {
	var apiErr Error
	if errors.As(err, &apiErr) {
		apiErr.Write(w)
		return
	}
	ledgerError(err).Write(w)
}
