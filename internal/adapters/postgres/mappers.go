package postgres

import (
	"encoding/json"
	"errors"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainLicense(row licenseModel) domain.License {
	return domain.License{
		LicenseID:    row.LicenseID,
		OwnerID:      row.OwnerID,
		ProductID:    row.ProductID,
		PlanID:       row.PlanID,
		LicenseKey:   row.LicenseKey,
		Status:       domain.LicenseStatus(row.Status),
		MaxDevices:   row.MaxDevices,
		Entitlements: decodeEntitlements(row.Entitlements),
		ValidFrom:    row.ValidFrom,
		ValidUntil:   row.ValidUntil,
		StatusReason: row.StatusReason,
		SourceOrder:  row.SourceOrder,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toLicenseModel(license domain.License) licenseModel {
	return licenseModel{
		LicenseID:    license.LicenseID,
		OwnerID:      license.OwnerID,
		ProductID:    license.ProductID,
		PlanID:       license.PlanID,
		LicenseKey:   license.LicenseKey,
		Status:       string(license.Status),
		MaxDevices:   license.MaxDevices,
		Entitlements: encodeEntitlements(license.Entitlements),
		ValidFrom:    license.ValidFrom,
		ValidUntil:   license.ValidUntil,
		StatusReason: license.StatusReason,
		SourceOrder:  license.SourceOrder,
		CreatedAt:    license.CreatedAt,
		UpdatedAt:    license.UpdatedAt,
	}
}

func toDomainActivation(row activationModel) domain.Activation {
	return domain.Activation{
		ActivationID:      row.ActivationID,
		LicenseID:         row.LicenseID,
		DeviceFingerprint: row.DeviceFingerprint,
		DeviceDisplayName: row.DeviceDisplayName,
		ClientVersion:     row.ClientVersion,
		ClientOS:          row.ClientOS,
		Status:            domain.ActivationStatus(row.Status),
		LastSeenAt:        row.LastSeenAt,
		DeactivatedReason: row.DeactivatedReason,
		CreatedAt:         row.CreatedAt,
	}
}

func toDomainPlan(row planModel) domain.LicensePlan {
	return domain.LicensePlan{
		PlanID:       row.PlanID,
		Code:         row.Code,
		Name:         row.Name,
		ProductID:    row.ProductID,
		ProductCode:  row.ProductCode,
		MaxDevices:   row.MaxDevices,
		DurationDays: row.DurationDays,
		Entitlements: decodeEntitlements(row.Entitlements),
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
	}
}

func toDomainCampaign(row campaignModel) domain.Campaign {
	return domain.Campaign{
		CampaignID:   row.CampaignID,
		Name:         row.Name,
		Description:  row.Description,
		ProductID:    row.ProductID,
		PlanID:       row.PlanID,
		SeatLimit:    row.SeatLimit,
		SeatsUsed:    row.SeatsUsed,
		PerUserLimit: row.PerUserLimit,
		Status:       domain.CampaignStatus(row.Status),
		ValidFrom:    row.ValidFrom,
		ValidUntil:   row.ValidUntil,
		CreatedBy:    row.CreatedBy,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toDomainCode(row codeModel) domain.Code {
	return domain.Code{
		CodeID:             row.CodeID,
		CampaignID:         row.CampaignID,
		CodeHash:           row.CodeHash,
		CodeType:           domain.CodeType(row.CodeType),
		MaxRedemptions:     row.MaxRedemptions,
		CurrentRedemptions: row.CurrentRedemptions,
		Active:             row.Active,
		ExpiresAt:          row.ExpiresAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainRedemption(row redemptionModel) domain.Redemption {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.Redemption{
		RedemptionID: row.RedemptionID,
		CodeID:       row.CodeID,
		CampaignID:   row.CampaignID,
		UserID:       row.UserID,
		LicenseID:    row.LicenseID,
		RedeemedAt:   row.RedeemedAt,
		IPAddress:    ip,
		UserAgent:    row.UserAgent,
	}
}

func encodeEntitlements(entitlements []string) string {
	if len(entitlements) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(entitlements)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeEntitlements(raw string) []string {
	if raw == "" {
		return nil
	}
	var entitlements []string
	if err := json.Unmarshal([]byte(raw), &entitlements); err != nil {
		return nil
	}
	return entitlements
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
