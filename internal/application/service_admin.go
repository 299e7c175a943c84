package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

const maxCodeGenerateCount = 500

// CreateCampaign registers a redeem campaign bound to an available plan.
func (s *Service) CreateCampaign(ctx context.Context, adminID uuid.UUID, req CampaignRequest) (CampaignView, error) {
	if req.Name == "" {
		return CampaignView{}, fmt.Errorf("%w: name is required", domain.ErrInvalidRequest)
	}
	if req.SeatLimit != nil && *req.SeatLimit <= 0 {
		return CampaignView{}, fmt.Errorf("%w: seat_limit must be positive", domain.ErrInvalidRequest)
	}
	if req.PerUserLimit < 0 {
		return CampaignView{}, fmt.Errorf("%w: per_user_limit must not be negative", domain.ErrInvalidRequest)
	}
	plan, err := s.plans.GetAvailableByID(ctx, req.PlanID)
	if err != nil {
		return CampaignView{}, err
	}
	if plan.ProductID != req.ProductID {
		return CampaignView{}, fmt.Errorf("%w: plan does not belong to the campaign product", domain.ErrInvalidRequest)
	}

	now := s.nowFn()
	campaign := domain.Campaign{
		CampaignID:   uuid.New(),
		Name:         req.Name,
		Description:  req.Description,
		ProductID:    req.ProductID,
		PlanID:       req.PlanID,
		SeatLimit:    req.SeatLimit,
		PerUserLimit: req.PerUserLimit,
		Status:       domain.CampaignActive,
		ValidFrom:    req.ValidFrom,
		ValidUntil:   req.ValidUntil,
		CreatedBy:    adminID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := s.campaigns.Create(ctx, campaign)
	if err != nil {
		return CampaignView{}, err
	}
	return s.campaignView(ctx, created)
}

// UpdateCampaign edits metadata and limits. The seat limit may only move up;
// lowering it under seats already consumed would break the full-claim
// invariant retroactively.
func (s *Service) UpdateCampaign(ctx context.Context, campaignID uuid.UUID, req CampaignRequest) (CampaignView, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return CampaignView{}, err
	}
	if campaign.Status == domain.CampaignEnded {
		return CampaignView{}, fmt.Errorf("%w: campaign has ended", domain.ErrCampaignNotActive)
	}
	if req.SeatLimit != nil && *req.SeatLimit < campaign.SeatsUsed {
		return CampaignView{}, fmt.Errorf("%w: seat_limit below seats already used", domain.ErrInvalidRequest)
	}
	if req.Name != "" {
		campaign.Name = req.Name
	}
	campaign.Description = req.Description
	campaign.SeatLimit = req.SeatLimit
	campaign.PerUserLimit = req.PerUserLimit
	campaign.ValidFrom = req.ValidFrom
	campaign.ValidUntil = req.ValidUntil
	campaign.UpdatedAt = s.nowFn()
	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return CampaignView{}, err
	}
	return s.campaignView(ctx, campaign)
}

func (s *Service) GetCampaign(ctx context.Context, campaignID uuid.UUID) (CampaignView, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return CampaignView{}, err
	}
	return s.campaignView(ctx, campaign)
}

func (s *Service) ListCampaigns(ctx context.Context, status *domain.CampaignStatus, page PageQuery) (Page[CampaignView], error) {
	limit, offset := page.limitOffset()
	campaigns, total, err := s.campaigns.List(ctx, status, limit, offset)
	if err != nil {
		return Page[CampaignView]{}, err
	}
	views := make([]CampaignView, 0, len(campaigns))
	for _, c := range campaigns {
		view, err := s.campaignView(ctx, c)
		if err != nil {
			return Page[CampaignView]{}, err
		}
		views = append(views, view)
	}
	return Page[CampaignView]{Items: views, Total: total}, nil
}

// PauseCampaign, ResumeCampaign and EndCampaign drive the campaign state
// machine through its domain transitions.
func (s *Service) PauseCampaign(ctx context.Context, campaignID uuid.UUID) (CampaignView, error) {
	return s.transitionCampaign(ctx, campaignID, (*domain.Campaign).Pause)
}

func (s *Service) ResumeCampaign(ctx context.Context, campaignID uuid.UUID) (CampaignView, error) {
	return s.transitionCampaign(ctx, campaignID, (*domain.Campaign).Resume)
}

func (s *Service) EndCampaign(ctx context.Context, campaignID uuid.UUID) (CampaignView, error) {
	return s.transitionCampaign(ctx, campaignID, (*domain.Campaign).End)
}

func (s *Service) transitionCampaign(ctx context.Context, campaignID uuid.UUID, transition func(*domain.Campaign, time.Time) error) (CampaignView, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return CampaignView{}, err
	}
	if err := transition(&campaign, s.nowFn()); err != nil {
		return CampaignView{}, err
	}
	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return CampaignView{}, err
	}
	return s.campaignView(ctx, campaign)
}

// GenerateCodes mints codes for a campaign. RANDOM mints Count fresh codes
// and returns their plaintext exactly once; REUSABLE stores the hash of one
// admin-chosen code. Hash collisions on random codes retry with a fresh draw.
func (s *Service) GenerateCodes(ctx context.Context, campaignID uuid.UUID, req CodeGenerateRequest) (CodeGenerateResponse, error) {
	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return CodeGenerateResponse{}, err
	}
	if campaign.Status == domain.CampaignEnded {
		return CodeGenerateResponse{}, fmt.Errorf("%w: campaign has ended", domain.ErrCampaignNotActive)
	}
	if req.MaxRedemptions <= 0 {
		return CodeGenerateResponse{}, fmt.Errorf("%w: max_redemptions must be positive", domain.ErrInvalidRequest)
	}

	switch req.CodeType {
	case domain.CodeTypeRandom:
		return s.generateRandomCodes(ctx, &campaign, req)
	case domain.CodeTypeReusable:
		return s.createReusableCode(ctx, &campaign, req)
	default:
		return CodeGenerateResponse{}, fmt.Errorf("%w: unknown code_type %q", domain.ErrInvalidRequest, req.CodeType)
	}
}

func (s *Service) generateRandomCodes(ctx context.Context, campaign *domain.Campaign, req CodeGenerateRequest) (CodeGenerateResponse, error) {
	if req.Count <= 0 || req.Count > maxCodeGenerateCount {
		return CodeGenerateResponse{}, fmt.Errorf("%w: count must be 1-%d", domain.ErrInvalidRequest, maxCodeGenerateCount)
	}

	plaintext := make([]string, 0, req.Count)
	err := s.tx.InTx(ctx, func(txCtx context.Context) error {
		for i := 0; i < req.Count; i++ {
			code, display, err := s.mintRandomCode(txCtx, campaign, req)
			if err != nil {
				return err
			}
			if _, err := s.codes.Create(txCtx, code); err != nil {
				return err
			}
			plaintext = append(plaintext, display)
		}
		return nil
	})
	if err != nil {
		return CodeGenerateResponse{}, err
	}
	return CodeGenerateResponse{Count: len(plaintext), Codes: plaintext}, nil
}

// mintRandomCode draws fresh codes until the hash is unused. The draw space is
// 36^16, so more than a couple of retries means the RNG is broken.
func (s *Service) mintRandomCode(ctx context.Context, campaign *domain.Campaign, req CodeGenerateRequest) (domain.Code, string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		raw, err := s.hasher.GenerateRandomCode()
		if err != nil {
			return domain.Code{}, "", err
		}
		codeHash := s.hasher.Hash(raw)
		exists, err := s.codes.ExistsByHash(ctx, codeHash)
		if err != nil {
			return domain.Code{}, "", err
		}
		if exists {
			continue
		}
		now := s.nowFn()
		return domain.Code{
			CodeID:         uuid.New(),
			CampaignID:     campaign.CampaignID,
			CodeHash:       codeHash,
			CodeType:       domain.CodeTypeRandom,
			MaxRedemptions: req.MaxRedemptions,
			Active:         true,
			ExpiresAt:      req.ExpiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}, s.hasher.FormatForDisplay(raw), nil
	}
	return domain.Code{}, "", fmt.Errorf("exhausted attempts generating a unique code")
}

func (s *Service) createReusableCode(ctx context.Context, campaign *domain.Campaign, req CodeGenerateRequest) (CodeGenerateResponse, error) {
	if req.CustomCode == "" {
		return CodeGenerateResponse{}, fmt.Errorf("%w: custom_code is required for REUSABLE codes", domain.ErrInvalidRequest)
	}
	normalized, err := s.hasher.Normalize(req.CustomCode)
	if err != nil {
		return CodeGenerateResponse{}, err
	}
	if err := s.hasher.Validate(normalized); err != nil {
		return CodeGenerateResponse{}, err
	}
	codeHash := s.hasher.Hash(normalized)
	exists, err := s.codes.ExistsByHash(ctx, codeHash)
	if err != nil {
		return CodeGenerateResponse{}, err
	}
	if exists {
		return CodeGenerateResponse{}, domain.ErrCodeHashDuplicate
	}
	now := s.nowFn()
	_, err = s.codes.Create(ctx, domain.Code{
		CodeID:         uuid.New(),
		CampaignID:     campaign.CampaignID,
		CodeHash:       codeHash,
		CodeType:       domain.CodeTypeReusable,
		MaxRedemptions: req.MaxRedemptions,
		Active:         true,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return CodeGenerateResponse{}, err
	}
	return CodeGenerateResponse{Count: 1, Codes: []string{normalized}}, nil
}

func (s *Service) ListCodes(ctx context.Context, campaignID uuid.UUID, page PageQuery) (Page[CodeView], error) {
	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		return Page[CodeView]{}, err
	}
	limit, offset := page.limitOffset()
	codes, total, err := s.codes.ListByCampaign(ctx, campaignID, limit, offset)
	if err != nil {
		return Page[CodeView]{}, err
	}
	views := make([]CodeView, 0, len(codes))
	for _, c := range codes {
		views = append(views, CodeView{
			CodeID:             c.CodeID,
			CampaignID:         c.CampaignID,
			CodeType:           c.CodeType,
			MaxRedemptions:     c.MaxRedemptions,
			CurrentRedemptions: c.CurrentRedemptions,
			Active:             c.Active,
			ExpiresAt:          c.ExpiresAt,
			CreatedAt:          c.CreatedAt,
		})
	}
	return Page[CodeView]{Items: views, Total: total}, nil
}

// DeactivateCode disables a code without touching past redemptions.
func (s *Service) DeactivateCode(ctx context.Context, codeID uuid.UUID) error {
	if _, err := s.codes.GetByID(ctx, codeID); err != nil {
		return err
	}
	return s.codes.Deactivate(ctx, codeID, s.nowFn())
}

func (s *Service) campaignView(ctx context.Context, campaign domain.Campaign) (CampaignView, error) {
	codeCount, err := s.codes.CountByCampaign(ctx, campaign.CampaignID)
	if err != nil {
		return CampaignView{}, err
	}
	return CampaignView{
		CampaignID:   campaign.CampaignID,
		Name:         campaign.Name,
		Description:  campaign.Description,
		ProductID:    campaign.ProductID,
		PlanID:       campaign.PlanID,
		SeatLimit:    campaign.SeatLimit,
		SeatsUsed:    campaign.SeatsUsed,
		PerUserLimit: campaign.PerUserLimit,
		Status:       campaign.Status,
		ValidFrom:    campaign.ValidFrom,
		ValidUntil:   campaign.ValidUntil,
		CodeCount:    codeCount,
		CreatedAt:    campaign.CreatedAt,
	}, nil
}
