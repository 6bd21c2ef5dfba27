package insurance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/justdick/hms-billing/internal/platform/cache"
)

const ruleCacheTTL = time.Hour

// ruleCache is the slice of the cache client the rule repo uses.
type ruleCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// cachedRuleRepo decorates a RuleRepository with a redis lookup cache for
// the hot resolver paths. Writes invalidate every cached lookup for the
// rule's (plan, category) scope. Cache failures degrade to direct reads.
type cachedRuleRepo struct {
	inner  RuleRepository
	cache  ruleCache
	logger zerolog.Logger
}

// NewCachedRuleRepo wraps repo with a rule-lookup cache.
func NewCachedRuleRepo(repo RuleRepository, c *cache.Cache, logger zerolog.Logger) RuleRepository {
	return &cachedRuleRepo{inner: repo, cache: c, logger: logger}
}

func itemRulesKey(planID uuid.UUID, category, itemCode string) string {
	return fmt.Sprintf("rules:item:%s:%s:%s", planID, category, itemCode)
}

func categoryRulesKey(planID uuid.UUID, category string) string {
	return fmt.Sprintf("rules:category:%s:%s", planID, category)
}

func unmappedRulesKey(planID uuid.UUID, category string) string {
	return fmt.Sprintf("rules:unmapped:%s:%s", planID, category)
}

func (r *cachedRuleRepo) lookup(ctx context.Context, key string, load func() ([]*CoverageRule, error)) ([]*CoverageRule, error) {
	var cached []*CoverageRule
	hit, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("rule cache read failed")
	} else if hit {
		return cached, nil
	}
	rules, err := load()
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, rules, ruleCacheTTL); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("rule cache write failed")
	}
	return rules, nil
}

func (r *cachedRuleRepo) invalidate(ctx context.Context, cr *CoverageRule) {
	keys := []string{
		categoryRulesKey(cr.PlanID, cr.Category),
		unmappedRulesKey(cr.PlanID, cr.Category),
	}
	if cr.ItemCode != nil {
		keys = append(keys, itemRulesKey(cr.PlanID, cr.Category, *cr.ItemCode))
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn().Err(err).Str("plan_id", cr.PlanID.String()).Msg("rule cache invalidation failed")
	}
}

func (r *cachedRuleRepo) FindItemRules(ctx context.Context, planID uuid.UUID, category, itemCode string) ([]*CoverageRule, error) {
	return r.lookup(ctx, itemRulesKey(planID, category, itemCode), func() ([]*CoverageRule, error) {
		return r.inner.FindItemRules(ctx, planID, category, itemCode)
	})
}

func (r *cachedRuleRepo) FindCategoryRules(ctx context.Context, planID uuid.UUID, category string) ([]*CoverageRule, error) {
	return r.lookup(ctx, categoryRulesKey(planID, category), func() ([]*CoverageRule, error) {
		return r.inner.FindCategoryRules(ctx, planID, category)
	})
}

func (r *cachedRuleRepo) FindUnmappedRules(ctx context.Context, planID uuid.UUID, category string) ([]*CoverageRule, error) {
	return r.lookup(ctx, unmappedRulesKey(planID, category), func() ([]*CoverageRule, error) {
		return r.inner.FindUnmappedRules(ctx, planID, category)
	})
}

func (r *cachedRuleRepo) Create(ctx context.Context, cr *CoverageRule) error {
	if err := r.inner.Create(ctx, cr); err != nil {
		return err
	}
	r.invalidate(ctx, cr)
	return nil
}

func (r *cachedRuleRepo) Update(ctx context.Context, cr *CoverageRule) error {
	prev, err := r.inner.GetByID(ctx, cr.ID)
	if err != nil {
		return err
	}
	if err := r.inner.Update(ctx, cr); err != nil {
		return err
	}
	// Readers were served from the stored row's scope; drop its keys as
	// well as the updated rule's.
	r.invalidate(ctx, prev)
	r.invalidate(ctx, cr)
	return nil
}

func (r *cachedRuleRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	cr, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.inner.Deactivate(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, cr)
	return nil
}

func (r *cachedRuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*CoverageRule, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *cachedRuleRepo) ListByPlan(ctx context.Context, planID uuid.UUID, limit, offset int) ([]*CoverageRule, int, error) {
	return r.inner.ListByPlan(ctx, planID, limit, offset)
}
