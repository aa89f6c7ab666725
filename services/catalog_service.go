package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"
	"bite-me-buddy/session"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CreateServiceRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// UpdateServiceRequest lists the mutable service fields; nil leaves a field unchanged
type UpdateServiceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

type CreateMenuItemRequest struct {
	ServiceID   uint            `json:"service_id" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	IsAvailable *bool           `json:"is_available"`
}

// UpdateMenuItemRequest lists the mutable menu item fields; nil leaves a field unchanged
type UpdateMenuItemRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"image_url"`
	IsAvailable *bool            `json:"is_available"`
}

func (r UpdateServiceRequest) apply(svc *models.Service) error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return apperr.Validation("service name cannot be empty")
		}
		svc.Name = name
	}
	if r.Description != nil {
		svc.Description = *r.Description
	}
	if r.ImageURL != nil {
		svc.ImageURL = *r.ImageURL
	}
	return nil
}

func (r UpdateMenuItemRequest) apply(item *models.MenuItem) error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			return apperr.Validation("menu item name cannot be empty")
		}
		item.Name = name
	}
	if r.Description != nil {
		item.Description = *r.Description
	}
	if r.Price != nil {
		if err := validatePrice(*r.Price); err != nil {
			return err
		}
		item.Price = *r.Price
	}
	if r.ImageURL != nil {
		item.ImageURL = *r.ImageURL
	}
	if r.IsAvailable != nil {
		item.IsAvailable = *r.IsAvailable
	}
	return nil
}

func validatePrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return apperr.Validation("price must be greater than zero")
	}
	if !p.Equal(p.Round(2)) {
		return apperr.Validation("price cannot have more than two decimal places")
	}
	return nil
}

// CatalogService manages services and menu items. Public reads are cached in the
// session store when one is configured; every write drops the cached entries.
type CatalogService struct {
	db       *gorm.DB
	cache    *session.Store
	cacheTTL time.Duration
	log      logrus.FieldLogger
}

func NewCatalogService(db *gorm.DB, cache *session.Store, cacheTTL time.Duration, log logrus.FieldLogger) *CatalogService {
	return &CatalogService{
		db:       db,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.WithField("component", "catalog_service"),
	}
}

// cached serves key from the cache or fills it with load. Cache faults only cost a reload.
func (s *CatalogService) cached(ctx context.Context, key string, dest any, load func() error) error {
	found, err := s.cache.GetJSON(ctx, key, dest)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("catalog cache read failed")
	}
	if found && err == nil {
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	if err := s.cache.SetJSON(ctx, key, dest, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("catalog cache write failed")
	}
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context) {
	if err := s.cache.InvalidateCatalog(ctx); err != nil {
		s.log.WithError(err).Warn("catalog cache invalidation failed")
	}
}

// ListServices returns every service, name ordered
func (s *CatalogService) ListServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	err := s.cached(ctx, session.CatalogKey("services"), &services, func() error {
		if err := s.db.WithContext(ctx).Order("name asc").Find(&services).Error; err != nil {
			return fmt.Errorf("list services: %w", err)
		}
		return nil
	})
	return services, err
}

// GetService returns a service with its currently available menu items
func (s *CatalogService) GetService(ctx context.Context, id uint) (*models.Service, error) {
	var svc models.Service
	key := session.CatalogKey("service:" + strconv.FormatUint(uint64(id), 10))
	err := s.cached(ctx, key, &svc, func() error {
		err := s.db.WithContext(ctx).
			Preload("MenuItems", func(db *gorm.DB) *gorm.DB {
				return db.Where("is_available = ?", true).Order("name asc")
			}).
			First(&svc, id).Error
		if err != nil {
			return notFoundOr(err, "Service")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &svc, nil
}

// ListMenuItems returns items for admin views, including unavailable ones
func (s *CatalogService) ListMenuItems(ctx context.Context, serviceID uint) ([]models.MenuItem, error) {
	q := s.db.WithContext(ctx).Order("service_id asc").Order("name asc")
	if serviceID != 0 {
		q = q.Where("service_id = ?", serviceID)
	}
	var items []models.MenuItem
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	return items, nil
}

func (s *CatalogService) GetMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, notFoundOr(err, "Menu item")
	}
	return &item, nil
}

func (s *CatalogService) ensureServiceNameFree(tx *gorm.DB, name string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.Service{}).Where("name = ? AND id <> ?", name, exceptID).Count(&count).Error; err != nil {
		return fmt.Errorf("check service name: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("a service named '" + name + "' already exists")
	}
	return nil
}

func (s *CatalogService) CreateService(ctx context.Context, req CreateServiceRequest) (*models.Service, error) {
	svc := models.Service{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
	if svc.Name == "" {
		return nil, apperr.Validation("service name is required")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureServiceNameFree(tx, svc.Name, 0); err != nil {
			return err
		}
		if err := tx.Create(&svc).Error; err != nil {
			return fmt.Errorf("create service: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.log.WithFields(logrus.Fields{"service_id": svc.ID, "name": svc.Name}).Info("service created")
	return &svc, nil
}

func (s *CatalogService) UpdateService(ctx context.Context, id uint, req UpdateServiceRequest) (*models.Service, error) {
	var svc models.Service
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&svc, id).Error; err != nil {
			return notFoundOr(err, "Service")
		}
		if err := req.apply(&svc); err != nil {
			return err
		}
		if err := s.ensureServiceNameFree(tx, svc.Name, svc.ID); err != nil {
			return err
		}
		if err := tx.Save(&svc).Error; err != nil {
			return fmt.Errorf("update service: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &svc, nil
}

// DeleteService removes a service and its menu items. Services referenced by orders are kept.
func (s *CatalogService) DeleteService(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		if err := tx.First(&svc, id).Error; err != nil {
			return notFoundOr(err, "Service")
		}
		var orders int64
		if err := tx.Model(&models.Order{}).Where("service_id = ?", id).Count(&orders).Error; err != nil {
			return fmt.Errorf("count service orders: %w", err)
		}
		if orders > 0 {
			return apperr.Conflict("service has orders and cannot be deleted").WithDetail("orders", orders)
		}
		if err := tx.Where("service_id = ?", id).Delete(&models.MenuItem{}).Error; err != nil {
			return fmt.Errorf("delete menu items: %w", err)
		}
		if err := tx.Delete(&svc).Error; err != nil {
			return fmt.Errorf("delete service: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.log.WithField("service_id", id).Info("service deleted")
	return nil
}

func (s *CatalogService) CreateMenuItem(ctx context.Context, req CreateMenuItemRequest) (*models.MenuItem, error) {
	item := models.MenuItem{
		ServiceID:   req.ServiceID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		IsAvailable: true,
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
	if item.Name == "" {
		return nil, apperr.Validation("menu item name is required")
	}
	if err := validatePrice(item.Price); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		if err := tx.First(&svc, req.ServiceID).Error; err != nil {
			return notFoundOr(err, "Service")
		}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("create menu item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.log.WithFields(logrus.Fields{"menu_item_id": item.ID, "service_id": item.ServiceID}).Info("menu item created")
	return &item, nil
}

// UpdateMenuItem changes catalog data only; placed orders keep their snapshots
func (s *CatalogService) UpdateMenuItem(ctx context.Context, id uint, req UpdateMenuItemRequest) (*models.MenuItem, error) {
	var item models.MenuItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&item, id).Error; err != nil {
			return notFoundOr(err, "Menu item")
		}
		if err := req.apply(&item); err != nil {
			return err
		}
		if err := tx.Save(&item).Error; err != nil {
			return fmt.Errorf("update menu item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return &item, nil
}

// ToggleMenuItem flips availability and returns the new state
func (s *CatalogService) ToggleMenuItem(ctx context.Context, id uint) (*models.MenuItem, error) {
	item, err := s.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}
	available := !item.IsAvailable
	return s.UpdateMenuItem(ctx, id, UpdateMenuItemRequest{IsAvailable: &available})
}

func (s *CatalogService) DeleteMenuItem(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.MenuItem{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete menu item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Menu item")
	}
	s.invalidate(ctx)
	s.log.WithField("menu_item_id", id).Info("menu item deleted")
	return nil
}
