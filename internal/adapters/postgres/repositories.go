package postgres

import (
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Tx          ports.TxManager
	Licenses    ports.LicenseRepository
	Activations ports.ActivationRepository
	Plans       ports.PlanRepository
	Campaigns   ports.CampaignRepository
	Codes       ports.CodeRepository
	Redemptions ports.RedemptionRepository
	Counters    ports.CounterRepository
	Outbox      ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Tx:          NewTxManager(db),
		Licenses:    &licenseRepository{db: db},
		Activations: &activationRepository{db: db},
		Plans:       &planRepository{db: db},
		Campaigns:   &campaignRepository{db: db},
		Codes:       &codeRepository{db: db},
		Redemptions: &redemptionRepository{db: db},
		Counters:    &counterRepository{db: db},
		Outbox:      &outboxRepository{db: db},
	}
}
