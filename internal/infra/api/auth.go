package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"collective-ledger/internal/domain/model"
)

const roleOperator = "operator"

// ActorClaims identify the caller of the API.
type ActorClaims struct {
	AdminOf []int64 `json:"admin_of,omitempty"`
	Role    string  `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator mints and verifies HS256 actor tokens.
type Authenticator struct {
	secret    []byte
	operators map[int64]struct{}
	ttl       time.Duration
}

func NewAuthenticator(secret string, operatorIDs []int64, ttl time.Duration) *Authenticator {
	ops := make(map[int64]struct{}, len(operatorIDs))
	for _, id := range operatorIDs {
		ops[id] = struct{}{}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{secret: []byte(secret), operators: ops, ttl: ttl}
}

// Mint signs a token for accountID.
func (a *Authenticator) Mint(accountID int64, adminOf []int64, operator bool) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		AdminOf: adminOf,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	if operator {
		claims.Role = roleOperator
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ActorFromRequest reads the bearer token and returns the actor it names.
func (a *Authenticator) ActorFromRequest(r *http.Request) (model.Actor, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return model.Actor{}, errors.New("missing token")
	}
	claims := &ActorClaims{}
	tkn, err := jwt.ParseWithClaims(strings.TrimSpace(hdr[7:]), claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return model.Actor{}, errors.New("invalid token")
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return model.Actor{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	_, op := a.operators[id]
	return model.Actor{
		AccountID: id,
		AdminOf:   claims.AdminOf,
		Operator:  op || claims.Role == roleOperator,
	}, nil
}

type actorKey struct{}

func withActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated actor stored by the Authenticate middleware.
func ActorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}
