package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type planRepository struct {
	db *gorm.DB
}

func (r *planRepository) GetByID(ctx context.Context, planID uuid.UUID) (domain.LicensePlan, error) {
	var rec planModel
	if err := conn(ctx, r.db).Where("plan_id = ?", planID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.LicensePlan{}, domain.ErrPlanNotFound
		}
		return domain.LicensePlan{}, err
	}
	return toDomainPlan(rec), nil
}

func (r *planRepository) GetAvailableByID(ctx context.Context, planID uuid.UUID) (domain.LicensePlan, error) {
	plan, err := r.GetByID(ctx, planID)
	if err != nil {
		return domain.LicensePlan{}, err
	}
	if !plan.IsActive {
		return domain.LicensePlan{}, domain.ErrPlanNotAvailable
	}
	return plan, nil
}
