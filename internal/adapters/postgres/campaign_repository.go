package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type campaignRepository struct {
	db *gorm.DB
}

func (r *campaignRepository) Create(ctx context.Context, campaign domain.Campaign) (domain.Campaign, error) {
	rec := campaignModel{
		CampaignID:   campaign.CampaignID,
		Name:         campaign.Name,
		Description:  campaign.Description,
		ProductID:    campaign.ProductID,
		PlanID:       campaign.PlanID,
		SeatLimit:    campaign.SeatLimit,
		SeatsUsed:    campaign.SeatsUsed,
		PerUserLimit: campaign.PerUserLimit,
		Status:       string(campaign.Status),
		ValidFrom:    campaign.ValidFrom,
		ValidUntil:   campaign.ValidUntil,
		CreatedBy:    campaign.CreatedBy,
		CreatedAt:    campaign.CreatedAt,
		UpdatedAt:    campaign.UpdatedAt,
	}
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		return domain.Campaign{}, err
	}
	return toDomainCampaign(rec), nil
}

func (r *campaignRepository) GetByID(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error) {
	var rec campaignModel
	if err := conn(ctx, r.db).Where("campaign_id = ?", campaignID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Campaign{}, domain.ErrCampaignNotFound
		}
		return domain.Campaign{}, err
	}
	return toDomainCampaign(rec), nil
}

// Update persists metadata and lifecycle fields. seats_used is deliberately
// excluded; only IncrementSeatsUsed may move it.
func (r *campaignRepository) Update(ctx context.Context, campaign domain.Campaign) error {
	res := conn(ctx, r.db).
		Model(&campaignModel{}).
		Where("campaign_id = ?", campaign.CampaignID).
		Updates(map[string]any{
			"name":           campaign.Name,
			"description":    campaign.Description,
			"seat_limit":     campaign.SeatLimit,
			"per_user_limit": campaign.PerUserLimit,
			"status":         string(campaign.Status),
			"valid_from":     campaign.ValidFrom,
			"valid_until":    campaign.ValidUntil,
			"updated_at":     campaign.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func (r *campaignRepository) List(ctx context.Context, status *domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int64, error) {
	q := conn(ctx, r.db).Model(&campaignModel{})
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []campaignModel
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	campaigns := make([]domain.Campaign, 0, len(rows))
	for _, row := range rows {
		campaigns = append(campaigns, toDomainCampaign(row))
	}
	return campaigns, total, nil
}

// IncrementSeatsUsed consumes one seat if and only if the campaign is still
// ACTIVE and under its limit at write time. RowsAffected reports the race.
func (r *campaignRepository) IncrementSeatsUsed(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	res := conn(ctx, r.db).Exec(`
		UPDATE redeem_campaigns
		SET seats_used = seats_used + 1
		WHERE campaign_id = ?
		  AND status = 'ACTIVE'
		  AND (seat_limit IS NULL OR seats_used < seat_limit)`,
		campaignID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
