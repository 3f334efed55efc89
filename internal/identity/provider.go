// Package identity turns bearer tokens minted by the external identity service into
// staff principals.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-admin-api/internal/models"
	"github.com/noah-isme/institute-admin-api/internal/service"
	"github.com/noah-isme/institute-admin-api/pkg/config"
	appErrors "github.com/noah-isme/institute-admin-api/pkg/errors"
)

type employeeReader interface {
	FindByID(ctx context.Context, id string) (*models.Employee, error)
}

type principalCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Provider verifies HS256 tokens and resolves their subject to an ACTIVE employee.
type Provider struct {
	secret    []byte
	issuer    string
	employees employeeReader
	cache     principalCache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewProvider constructs a Provider. cache may be nil.
func NewProvider(cfg config.JWTConfig, employees employeeReader, cache principalCache, ttl time.Duration, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		employees: employees,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
	}
}

// Resolve returns the principal for a bearer token. The "Bearer " prefix is optional.
func (p *Provider) Resolve(ctx context.Context, token string) (*models.Principal, error) {
	employeeID, err := p.Verify(token)
	if err != nil {
		return nil, err
	}

	key := service.PrincipalCacheKey(employeeID)
	if p.cache != nil {
		var cached models.Principal
		hit, err := p.cache.Get(ctx, key, &cached)
		if err == nil && hit && cached.Authenticated() {
			return &cached, nil
		}
	}

	employee, err := p.employees.FindByID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown employee")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve employee")
	}
	if employee.Status != models.EmployeeStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "employee is "+string(employee.Status))
	}

	principal := &models.Principal{EmployeeID: employee.ID, Role: employee.Role}
	if p.cache != nil {
		if err := p.cache.Set(ctx, key, principal, p.ttl); err != nil {
			p.logger.Debug("principal not cached", zap.String("employee_id", employee.ID), zap.Error(err))
		}
	}
	return principal, nil
}

// Verify checks signature, expiry and issuer and returns the token subject.
func (p *Provider) Verify(token string) (string, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if raw == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "missing token")
	}

	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if p.issuer != "" {
		options = append(options, jwt.WithIssuer(p.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	}, options...)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims.Subject, nil
}
