package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type redemptionRepository struct {
	db *gorm.DB
}

func (r *redemptionRepository) Insert(ctx context.Context, redemption domain.Redemption) error {
	var ip *string
	if redemption.IPAddress != "" {
		ip = &redemption.IPAddress
	}
	rec := redemptionModel{
		RedemptionID: redemption.RedemptionID,
		CodeID:       redemption.CodeID,
		CampaignID:   redemption.CampaignID,
		UserID:       redemption.UserID,
		LicenseID:    redemption.LicenseID,
		RedeemedAt:   redemption.RedeemedAt,
		IPAddress:    ip,
		UserAgent:    redemption.UserAgent,
	}
	return conn(ctx, r.db).Create(&rec).Error
}

func (r *redemptionRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Redemption, error) {
	var rows []redemptionModel
	err := conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("redeemed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	redemptions := make([]domain.Redemption, 0, len(rows))
	for _, row := range rows {
		redemptions = append(redemptions, toDomainRedemption(row))
	}
	return redemptions, nil
}

type counterRepository struct {
	db *gorm.DB
}

// GetForUpdate creates the counter row lazily and returns it under an
// exclusive row lock. The lock holds to the end of the ambient transaction,
// which serializes concurrent claims by one user on one campaign.
func (r *counterRepository) GetForUpdate(ctx context.Context, userID, campaignID uuid.UUID) (domain.UserCampaignCounter, error) {
	db := conn(ctx, r.db)

	if err := db.Exec(`
		INSERT INTO user_campaign_counters (counter_id, user_id, campaign_id, count)
		VALUES (?, ?, ?, 0)
		ON CONFLICT (user_id, campaign_id) DO NOTHING`,
		uuid.New(), userID, campaignID).Error; err != nil {
		return domain.UserCampaignCounter{}, err
	}

	var rec counterModel
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Where("campaign_id = ?", campaignID).
		Take(&rec).Error
	if err != nil {
		return domain.UserCampaignCounter{}, err
	}
	return domain.UserCampaignCounter{
		CounterID:  rec.CounterID,
		UserID:     rec.UserID,
		CampaignID: rec.CampaignID,
		Count:      rec.Count,
	}, nil
}

func (r *counterRepository) Increment(ctx context.Context, counterID uuid.UUID) error {
	return conn(ctx, r.db).Exec(`
		UPDATE user_campaign_counters
		SET count = count + 1
		WHERE counter_id = ?`,
		counterID).Error
}
