// JWKS Mock — вспомогательный сервис для dev-окружения Link Gateway.
// Имитирует JWKS endpoint IdP: при старте генерирует RSA-пару,
// отдаёт публичный ключ по GET /jwks и подписывает JWT по POST /token.
// Полученным токеном можно дёргать POST /api/v1/links шлюза.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "dev-key-1"

// jwksKey — один ключ в JWKS (RFC 7517).
type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// tokenRequest — тело POST /token.
// Если scopes не переданы, подставляется links:mint.
type tokenRequest struct {
	Sub        string   `json:"sub"`
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttl_seconds"`
}

// mockClaims совместимы с auth middleware шлюза.
type mockClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

type mock struct {
	key    *rsa.PrivateKey
	jwks   []byte
	logger *slog.Logger
}

func (m *mock) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(m.jwks)
}

func (m *mock) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "невалидный JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Sub == "" {
		req.Sub = "dev-user"
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{"links:mint"}
	}
	ttl := req.TTLSeconds
	if ttl <= 0 {
		ttl = 3600
	}

	now := time.Now()
	claims := mockClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttl) * time.Second)),
			Issuer:    "jwks-mock",
		},
		Scopes: req.Scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID

	signed, err := token.SignedString(m.key)
	if err != nil {
		m.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		http.Error(w, "ошибка генерации токена", http.StatusInternalServerError)
		return
	}

	m.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.Int("ttl_seconds", ttl),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": signed})
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "8090"
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		logger.Error("Ошибка генерации RSA-ключа", slog.String("error", err.Error()))
		os.Exit(1)
	}

	jwks, err := json.Marshal(map[string][]jwksKey{
		"keys": {{
			Kty: "RSA",
			Kid: keyID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	if err != nil {
		logger.Error("Ошибка сериализации JWKS", slog.String("error", err.Error()))
		os.Exit(1)
	}

	m := &mock{key: key, jwks: jwks, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/jwks", m.handleJWKS)
	mux.HandleFunc("/token", m.handleToken)

	logger.Info("JWKS Mock запущен", slog.String("addr", ":"+port))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
