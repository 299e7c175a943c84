package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type activationRepository struct {
	db *gorm.DB
}

// AcquireSlot allocates one slot for the device. It runs inside a transaction
// that first locks the license row: the live-count predicates below read
// statement snapshots, so without the lock two allocators for different
// devices can both see capacity-1 before either commits and overrun the
// license. The lock serializes them; the count then re-checks capacity under
// mutual exclusion. The unique (license_id, device_fingerprint) index keeps
// one row per device; a previously deactivated device reactivates its own
// row, a new device inserts. RowsAffected decides the outcome: zero means no
// free slot and the caller must fall through.
func (r *activationRepository) AcquireSlot(ctx context.Context, params ports.SlotParams) (domain.Activation, bool, error) {
	var (
		activation domain.Activation
		acquired   bool
	)
	err := inTx(ctx, r.db, func(txCtx context.Context) error {
		db := conn(txCtx, r.db)

		if err := db.Exec(`SELECT license_id FROM licenses WHERE license_id = ? FOR UPDATE`,
			params.LicenseID).Error; err != nil {
			return err
		}

		res := db.Exec(`
			UPDATE license_activations
			SET status = 'ACTIVE',
			    device_display_name = ?,
			    client_version = ?,
			    client_os = ?,
			    last_seen_at = ?,
			    deactivated_reason = '',
			    deactivated_at = NULL
			WHERE license_id = ?
			  AND device_fingerprint = ?
			  AND status = 'DEACTIVATED'
			  AND (SELECT COUNT(*) FROM license_activations live
			       WHERE live.license_id = ? AND live.status = 'ACTIVE'
			         AND live.last_seen_at >= ?) < ?`,
			params.DeviceDisplayName, params.ClientVersion, params.ClientOS, params.Now,
			params.LicenseID, params.DeviceFingerprint,
			params.LicenseID, params.LiveAfter, params.Capacity)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			res = db.Exec(`
				INSERT INTO license_activations
					(activation_id, license_id, device_fingerprint, device_display_name,
					 client_version, client_os, status, last_seen_at, created_at)
				SELECT ?, ?, ?, ?, ?, ?, 'ACTIVE', ?, ?
				WHERE (SELECT COUNT(*) FROM license_activations live
				       WHERE live.license_id = ? AND live.status = 'ACTIVE'
				         AND live.last_seen_at >= ?) < ?
				ON CONFLICT (license_id, device_fingerprint) DO NOTHING`,
				uuid.New(), params.LicenseID, params.DeviceFingerprint, params.DeviceDisplayName,
				params.ClientVersion, params.ClientOS, params.Now, params.Now,
				params.LicenseID, params.LiveAfter, params.Capacity)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}

		got, err := r.GetByDevice(txCtx, params.LicenseID, params.DeviceFingerprint)
		if err != nil {
			return err
		}
		activation = got
		acquired = true
		return nil
	})
	if err != nil {
		return domain.Activation{}, false, err
	}
	return activation, acquired, nil
}

func (r *activationRepository) RefreshHeartbeat(ctx context.Context, licenseID uuid.UUID, fingerprint, clientVersion, clientOS string, now time.Time) (bool, error) {
	updates := map[string]any{"last_seen_at": now}
	if clientVersion != "" {
		updates["client_version"] = clientVersion
	}
	if clientOS != "" {
		updates["client_os"] = clientOS
	}
	res := conn(ctx, r.db).
		Model(&activationModel{}).
		Where("license_id = ?", licenseID).
		Where("device_fingerprint = ?", fingerprint).
		Where("status = ?", string(domain.ActivationActive)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReclaimStale terminates the oldest activation whose heartbeat predates
// threshold. SKIP LOCKED in the subselect guarantees exactly one concurrent
// caller wins each stale row.
func (r *activationRepository) ReclaimStale(ctx context.Context, licenseID uuid.UUID, threshold, now time.Time) (domain.Activation, bool, error) {
	var rec activationModel
	res := conn(ctx, r.db).Raw(`
		UPDATE license_activations
		SET status = 'DEACTIVATED',
		    deactivated_reason = ?,
		    deactivated_at = ?
		WHERE activation_id = (
			SELECT activation_id FROM license_activations
			WHERE license_id = ? AND status = 'ACTIVE' AND last_seen_at < ?
			ORDER BY last_seen_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		domain.ReasonAutoResolveStale, now, licenseID, threshold).
		Scan(&rec)
	if res.Error != nil {
		return domain.Activation{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Activation{}, false, nil
	}
	return toDomainActivation(rec), true, nil
}

func (r *activationRepository) Deactivate(ctx context.Context, activationID uuid.UUID, reason string, now time.Time) (bool, error) {
	res := conn(ctx, r.db).
		Model(&activationModel{}).
		Where("activation_id = ?", activationID).
		Where("status = ?", string(domain.ActivationActive)).
		Updates(map[string]any{
			"status":             string(domain.ActivationDeactivated),
			"deactivated_reason": reason,
			"deactivated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *activationRepository) DeactivateAllForLicense(ctx context.Context, licenseID uuid.UUID, reason string, now time.Time) (int64, error) {
	res := conn(ctx, r.db).
		Model(&activationModel{}).
		Where("license_id = ?", licenseID).
		Where("status = ?", string(domain.ActivationActive)).
		Updates(map[string]any{
			"status":             string(domain.ActivationDeactivated),
			"deactivated_reason": reason,
			"deactivated_at":     now,
		})
	return res.RowsAffected, res.Error
}

func (r *activationRepository) GetByDevice(ctx context.Context, licenseID uuid.UUID, fingerprint string) (domain.Activation, error) {
	var rec activationModel
	err := conn(ctx, r.db).
		Where("license_id = ?", licenseID).
		Where("device_fingerprint = ?", fingerprint).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Activation{}, domain.ErrActivationNotFound
		}
		return domain.Activation{}, err
	}
	return toDomainActivation(rec), nil
}

func (r *activationRepository) GetByIDs(ctx context.Context, activationIDs []uuid.UUID) ([]domain.Activation, error) {
	if len(activationIDs) == 0 {
		return nil, nil
	}
	var rows []activationModel
	if err := conn(ctx, r.db).Where("activation_id IN ?", activationIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	activations := make([]domain.Activation, 0, len(rows))
	for _, row := range rows {
		activations = append(activations, toDomainActivation(row))
	}
	return activations, nil
}

func (r *activationRepository) ListActive(ctx context.Context, licenseID uuid.UUID, liveAfter time.Time) ([]domain.Activation, error) {
	var rows []activationModel
	err := conn(ctx, r.db).
		Where("license_id = ?", licenseID).
		Where("status = ?", string(domain.ActivationActive)).
		Where("last_seen_at >= ?", liveAfter).
		Order("last_seen_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	activations := make([]domain.Activation, 0, len(rows))
	for _, row := range rows {
		activations = append(activations, toDomainActivation(row))
	}
	return activations, nil
}

func (r *activationRepository) CountActive(ctx context.Context, licenseID uuid.UUID, liveAfter time.Time) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&activationModel{}).
		Where("license_id = ?", licenseID).
		Where("status = ?", string(domain.ActivationActive)).
		Where("last_seen_at >= ?", liveAfter).
		Count(&count).Error
	return count, err
}
