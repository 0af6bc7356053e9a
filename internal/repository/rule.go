package repository

import (
	"context"
	"time"

	"fare/internal/domain"
)

// RuleRepository is the read surface of the pricing rule store. Rules are
// published elsewhere; this service only ever reads them.
type RuleRepository interface {
	// GetRule returns the rule in force for a service type at the given
	// instant. Returns ErrNotFound when no rule exists, which is the only
	// fatal condition in the quote path.
	GetRule(ctx context.Context, st domain.ServiceType, at time.Time) (*domain.PricingRule, error)

	// ServiceTypes lists the service types with a currently effective rule.
	ServiceTypes(ctx context.Context, at time.Time) ([]domain.ServiceType, error)
}
