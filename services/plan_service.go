package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CreatePlanRequest struct {
	TeamMemberIDs []uint `json:"team_member_ids" binding:"required,min=1"`
	Description   string `json:"description" binding:"required"`
	ImageURL      string `json:"image_url"`
}

// PlanService manages admin-authored plans addressed to team members
type PlanService struct {
	db  *gorm.DB
	loc *time.Location
	log logrus.FieldLogger
	now func() time.Time
}

func NewPlanService(db *gorm.DB, loc *time.Location, log logrus.FieldLogger) *PlanService {
	if loc == nil {
		loc = time.UTC
	}
	return &PlanService{db: db, loc: loc, log: log.WithField("component", "plan_service"), now: utcNow}
}

// CreatePlans writes one plan per addressed team member, all or nothing
func (s *PlanService) CreatePlans(ctx context.Context, adminID uint, req CreatePlanRequest) ([]models.TeamMemberPlan, error) {
	if len(req.TeamMemberIDs) == 0 {
		return nil, apperr.Validation("at least one team member is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, apperr.Validation("plan description is required")
	}

	plans := make([]models.TeamMemberPlan, 0, len(req.TeamMemberIDs))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen := map[uint]bool{}
		for _, id := range req.TeamMemberIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			var member models.User
			if err := tx.First(&member, id).Error; err != nil || member.Role != models.RoleTeamMember {
				return apperr.Validation("invalid team member").WithDetail("team_member_id", id)
			}
			plans = append(plans, models.TeamMemberPlan{
				AdminID:      adminID,
				TeamMemberID: id,
				Description:  req.Description,
				ImageURL:     req.ImageURL,
			})
		}
		if err := tx.Create(&plans).Error; err != nil {
			return fmt.Errorf("create plans: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"admin_id": adminID, "count": len(plans)}).Info("plans created")
	return plans, nil
}

func (s *PlanService) ListPlans(ctx context.Context) ([]models.TeamMemberPlan, error) {
	var plans []models.TeamMemberPlan
	if err := s.db.WithContext(ctx).Preload("TeamMember").Order("created_at desc").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// ListForTeamMember returns a member's plans, newest first; todayOnly limits them to the current reporting day
func (s *PlanService) ListForTeamMember(ctx context.Context, teamMemberID uint, todayOnly bool) ([]models.TeamMemberPlan, error) {
	q := s.db.WithContext(ctx).Preload("Admin").Where("team_member_id = ?", teamMemberID)
	if todayOnly {
		start, end := dayBounds(s.now(), s.loc)
		q = q.Where("created_at >= ? AND created_at < ?", start, end)
	}
	var plans []models.TeamMemberPlan
	if err := q.Order("created_at desc").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

// MarkRead flags a plan as read by its addressee; marking twice keeps the first read time
func (s *PlanService) MarkRead(ctx context.Context, planID, teamMemberID uint) (*models.TeamMemberPlan, error) {
	var plan models.TeamMemberPlan
	db := s.db.WithContext(ctx)
	if err := db.Where("id = ? AND team_member_id = ?", planID, teamMemberID).First(&plan).Error; err != nil {
		return nil, notFoundOr(err, "Plan")
	}
	if plan.IsRead {
		return &plan, nil
	}
	now := s.now()
	if err := db.Model(&plan).Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, fmt.Errorf("mark plan read: %w", err)
	}
	plan.IsRead = true
	plan.ReadAt = &now
	return &plan, nil
}

func (s *PlanService) DeletePlan(ctx context.Context, planID uint) error {
	res := s.db.WithContext(ctx).Delete(&models.TeamMemberPlan{}, planID)
	if res.Error != nil {
		return fmt.Errorf("delete plan: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Plan")
	}
	return nil
}
