package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type codeRepository struct {
	db *gorm.DB
}

func (r *codeRepository) Create(ctx context.Context, code domain.Code) (domain.Code, error) {
	rec := codeModel{
		CodeID:             code.CodeID,
		CampaignID:         code.CampaignID,
		CodeHash:           code.CodeHash,
		CodeType:           string(code.CodeType),
		MaxRedemptions:     code.MaxRedemptions,
		CurrentRedemptions: code.CurrentRedemptions,
		Active:             code.Active,
		ExpiresAt:          code.ExpiresAt,
		CreatedAt:          code.CreatedAt,
		UpdatedAt:          code.UpdatedAt,
	}
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Code{}, domain.ErrCodeHashDuplicate
		}
		return domain.Code{}, err
	}
	return toDomainCode(rec), nil
}

func (r *codeRepository) GetByID(ctx context.Context, codeID uuid.UUID) (domain.Code, error) {
	var rec codeModel
	if err := conn(ctx, r.db).Where("code_id = ?", codeID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Code{}, domain.ErrCodeNotFound
		}
		return domain.Code{}, err
	}
	return toDomainCode(rec), nil
}

func (r *codeRepository) GetByHash(ctx context.Context, codeHash string) (domain.Code, error) {
	var rec codeModel
	if err := conn(ctx, r.db).Where("code_hash = ?", codeHash).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Code{}, domain.ErrCodeNotFound
		}
		return domain.Code{}, err
	}
	return toDomainCode(rec), nil
}

func (r *codeRepository) ExistsByHash(ctx context.Context, codeHash string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&codeModel{}).
		Where("code_hash = ?", codeHash).
		Count(&count).Error
	return count > 0, err
}

func (r *codeRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]domain.Code, int64, error) {
	q := conn(ctx, r.db).Model(&codeModel{}).Where("campaign_id = ?", campaignID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []codeModel
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	codes := make([]domain.Code, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, toDomainCode(row))
	}
	return codes, total, nil
}

func (r *codeRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&codeModel{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).Error
	return count, err
}

// IncrementRedemptions moves the counter only while the code is active and
// below its cap at write time.
func (r *codeRepository) IncrementRedemptions(ctx context.Context, codeID uuid.UUID) (bool, error) {
	res := conn(ctx, r.db).Exec(`
		UPDATE redeem_codes
		SET current_redemptions = current_redemptions + 1,
		    updated_at = NOW()
		WHERE code_id = ?
		  AND active
		  AND current_redemptions < max_redemptions`,
		codeID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *codeRepository) Deactivate(ctx context.Context, codeID uuid.UUID, now time.Time) error {
	res := conn(ctx, r.db).
		Model(&codeModel{}).
		Where("code_id = ?", codeID).
		Updates(map[string]any{
			"active":     false,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCodeNotFound
	}
	return nil
}
