package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

type licenseRepository struct {
	db *gorm.DB
}

func (r *licenseRepository) Create(ctx context.Context, license domain.License) (domain.License, error) {
	rec := toLicenseModel(license)
	if err := conn(ctx, r.db).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.License{}, domain.ErrLicenseAlreadyExists
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error) {
	var rec licenseModel
	if err := conn(ctx, r.db).Where("license_id = ?", licenseID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) GetBySourceOrder(ctx context.Context, orderID uuid.UUID) (domain.License, error) {
	var rec licenseModel
	if err := conn(ctx, r.db).Where("source_order_id = ?", orderID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) FindNonRevokedByOwnerAndProduct(ctx context.Context, ownerID, productID uuid.UUID) (domain.License, error) {
	var rec licenseModel
	err := conn(ctx, r.db).
		Where("owner_id = ?", ownerID).
		Where("product_id = ?", productID).
		Where("status <> ?", string(domain.LicenseRevoked)).
		Order("created_at DESC").
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, productID *uuid.UUID, status *domain.LicenseStatus) ([]domain.License, error) {
	q := conn(ctx, r.db).Where("owner_id = ?", ownerID)
	if productID != nil {
		q = q.Where("product_id = ?", *productID)
	}
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	var rows []licenseModel
	if err := q.Order("valid_until DESC NULLS FIRST").Find(&rows).Error; err != nil {
		return nil, err
	}
	licenses := make([]domain.License, 0, len(rows))
	for _, row := range rows {
		licenses = append(licenses, toDomainLicense(row))
	}
	return licenses, nil
}

func (r *licenseRepository) ListCandidates(ctx context.Context, ownerID uuid.UUID, productID *uuid.UUID) ([]domain.License, error) {
	q := conn(ctx, r.db).
		Where("owner_id = ?", ownerID).
		Where("status = ?", string(domain.LicenseActive))
	if productID != nil {
		q = q.Where("product_id = ?", *productID)
	}
	var rows []licenseModel
	if err := q.Order("valid_until DESC NULLS FIRST").Find(&rows).Error; err != nil {
		return nil, err
	}
	licenses := make([]domain.License, 0, len(rows))
	for _, row := range rows {
		licenses = append(licenses, toDomainLicense(row))
	}
	return licenses, nil
}

func (r *licenseRepository) UpdateStatus(ctx context.Context, licenseID uuid.UUID, status domain.LicenseStatus, reason string, at time.Time) error {
	res := conn(ctx, r.db).
		Model(&licenseModel{}).
		Where("license_id = ?", licenseID).
		Updates(map[string]any{
			"status":        string(status),
			"status_reason": reason,
			"updated_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrLicenseNotFound
	}
	return nil
}

func (r *licenseRepository) Renew(ctx context.Context, licenseID uuid.UUID, validUntil time.Time, at time.Time) error {
	res := conn(ctx, r.db).
		Model(&licenseModel{}).
		Where("license_id = ?", licenseID).
		Where("status <> ?", string(domain.LicenseRevoked)).
		Updates(map[string]any{
			"status":        string(domain.LicenseActive),
			"status_reason": "",
			"valid_until":   validUntil,
			"updated_at":    at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrLicenseNotFound
	}
	return nil
}
