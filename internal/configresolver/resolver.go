package configresolver

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Cdineshreddy12/Wrapper-sub003/internal/mlog"
	"github.com/Cdineshreddy12/Wrapper-sub003/internal/models"
)

// builtinDefault is returned when no config row matches at any level.
var builtinDefault = models.OperationConfig{
	CreditCost:     decimal.NewFromInt(1),
	Unit:           "operation",
	UnitMultiplier: decimal.NewFromInt(1),
	FreeAllowance:  0,
	AllowOverage:   true,
	IsActive:       true,
}

// Source names the precedence level a ResolvedConfig came from.
type Source string

const (
	SourceEntity  Source = "entity"
	SourceTenant  Source = "tenant"
	SourceGlobal  Source = "global"
	SourceDefault Source = "default"
)

// ResolvedConfig is the effective pricing for one operation code.
type ResolvedConfig struct {
	Config models.OperationConfig
	Source Source
}

// Repository is the storage-backed lookup the Resolver drives. Each method returns
// (nil, nil) when no matching, active row exists at that level.
type Repository interface {
	FindEntityConfig(ctx context.Context, tenantID, entityID uuid.UUID, operationCode string) (*models.OperationConfig, error)
	FindTenantConfig(ctx context.Context, tenantID uuid.UUID, operationCode string) (*models.OperationConfig, error)
	FindGlobalConfig(ctx context.Context, operationCode string) (*models.OperationConfig, error)
	// OperationCodesForModule joins the module's permission list with its owning
	// application's appCode to produce every operationCode belonging to that module.
	OperationCodesForModule(ctx context.Context, moduleCode string) ([]string, error)
}

// Cache is the read-through cache sitting in front of Repository, backed by Redis
// A cache miss or a nil Cache simply falls through to Repository.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

// Resolver is the Config Resolver.
type Resolver struct {
	repo   Repository
	cache  Cache
	logger mlog.Logger
}

// NewResolver constructs a Resolver. cache may be nil to disable the read-through cache.
func NewResolver(repo Repository, cache Cache, logger mlog.Logger) *Resolver {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Resolver{repo: repo, cache: cache, logger: logger}
}

const cacheTTL = 30 * time.Second

func cacheKey(tenantID uuid.UUID, entityID *uuid.UUID, operationCode string) string {
	entityPart := "-"
	if entityID != nil {
		entityPart = entityID.String()
	}

	return "resolve:" + tenantID.String() + ":" + entityPart + ":" + operationCode
}

// Resolve implements the four-level precedence: entity, tenant, global, built-in
// default. It never fails for a
// missing config — the built-in default is returned with Source = "default". Only
// unexpected storage errors propagate. A Redis read-through cache sits in
// front of the storage lookup when one is configured.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, entityID *uuid.UUID, operationCode string) (ResolvedConfig, error) {
	if err := ValidateOperationCode(operationCode); err != nil {
		return ResolvedConfig{}, err
	}

	key := cacheKey(tenantID, entityID, operationCode)

	if r.cache != nil {
		if raw, ok := r.cache.Get(ctx, key); ok {
			if resolved, ok := decodeResolved(raw); ok {
				return resolved, nil
			}
		}
	}

	resolved, err := r.resolveUncached(ctx, tenantID, entityID, operationCode)
	if err != nil {
		return ResolvedConfig{}, err
	}

	if r.cache != nil {
		if raw, ok := encodeResolved(resolved); ok {
			r.cache.Set(ctx, key, raw, cacheTTL)
		}
	}

	return resolved, nil
}

func (r *Resolver) resolveUncached(ctx context.Context, tenantID uuid.UUID, entityID *uuid.UUID, operationCode string) (ResolvedConfig, error) {
	if entityID != nil {
		if cfg, err := r.repo.FindEntityConfig(ctx, tenantID, *entityID, operationCode); err != nil {
			return ResolvedConfig{}, err
		} else if cfg != nil {
			return ResolvedConfig{Config: *cfg, Source: SourceEntity}, nil
		}
	}

	if cfg, err := r.repo.FindTenantConfig(ctx, tenantID, operationCode); err != nil {
		return ResolvedConfig{}, err
	} else if cfg != nil {
		return ResolvedConfig{Config: *cfg, Source: SourceTenant}, nil
	}

	if cfg, err := r.repo.FindGlobalConfig(ctx, operationCode); err != nil {
		return ResolvedConfig{}, err
	} else if cfg != nil {
		return ResolvedConfig{Config: *cfg, Source: SourceGlobal}, nil
	}

	return ResolvedConfig{Config: builtinDefault, Source: SourceDefault}, nil
}

// ExpandModule enumerates every operationCode registered for moduleCode, for bulk
// configuration writes.
func (r *Resolver) ExpandModule(ctx context.Context, moduleCode string) ([]string, error) {
	return r.repo.OperationCodesForModule(ctx, moduleCode)
}

// Price computes the effective credit cost for quantity units of operationCode, given
// the tenant's month-to-date usage (for volume-tier selection). If cfg.VolumeTiers is
// non-empty, the tier with the largest Threshold <= monthToDateUsage overrides CreditCost.
func Price(cfg models.OperationConfig, quantity int64, monthToDateUsage int64) decimal.Decimal {
	cost := cfg.CreditCost

	if len(cfg.VolumeTiers) > 0 {
		tiers := append([]models.VolumeTier(nil), cfg.VolumeTiers...)
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })

		for _, tier := range tiers {
			if tier.Threshold <= monthToDateUsage {
				cost = tier.Cost
			}
		}
	}

	return cost.Mul(cfg.UnitMultiplier).Mul(decimal.NewFromInt(quantity))
}
