package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"reelvault/internal/models"
	"reelvault/internal/utils"
)

// AccessService owns the IP whitelist, IP access requests and the audit logs
type AccessService struct {
	db *gorm.DB
}

// NewAccessService creates a new access service
func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{db: db}
}

// WhitelistUpdate carries editable whitelist fields; nil leaves a field unchanged
type WhitelistUpdate struct {
	IPAddress   *string
	Description *string
	IsActive    *bool
}

// IsWhitelisted reports whether ip has an active whitelist entry
func (s *AccessService) IsWhitelisted(ip string) (bool, error) {
	normalized, err := utils.NormalizeIP(ip)
	if err != nil {
		return false, nil
	}

	var count int64
	err = s.db.Model(&models.IPWhitelistEntry{}).
		Where("ip_address = ? AND is_active = ?", normalized, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check whitelist: %w", err)
	}
	return count > 0, nil
}

// ActiveAddresses lists every address currently admitted
func (s *AccessService) ActiveAddresses() ([]string, error) {
	var addresses []string
	err := s.db.Model(&models.IPWhitelistEntry{}).
		Where("is_active = ?", true).
		Order("ip_address ASC").
		Pluck("ip_address", &addresses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active whitelist: %w", err)
	}
	return addresses, nil
}

// ListWhitelist returns every whitelist entry, newest first
func (s *AccessService) ListWhitelist() ([]models.IPWhitelistEntry, error) {
	var entries []models.IPWhitelistEntry
	if err := s.db.Order("added_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch whitelist: %w", err)
	}
	return entries, nil
}

func (s *AccessService) GetWhitelistEntry(id int64) (*models.IPWhitelistEntry, error) {
	var entry models.IPWhitelistEntry
	if err := s.db.First(&entry, id).Error; err != nil {
		return nil, notFound(err, "whitelist entry")
	}
	return &entry, nil
}

// AddWhitelistEntry validates and stores a new active address
func (s *AccessService) AddWhitelistEntry(ip, description string, addedBy *int64) (*models.IPWhitelistEntry, error) {
	normalized, err := utils.NormalizeIP(ip)
	if err != nil {
		return nil, invalidInput("%s", err.Error())
	}

	exists, err := s.addressTaken(s.db, normalized, 0)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("address %s is already whitelisted: %w", normalized, ErrConflict)
	}

	entry := &models.IPWhitelistEntry{
		IPAddress:   normalized,
		Description: strings.TrimSpace(description),
		AddedBy:     addedBy,
		AddedAt:     time.Now().UTC(),
		IsActive:    true,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to add whitelist entry: %w", err)
	}
	return entry, nil
}

func (s *AccessService) addressTaken(db *gorm.DB, ip string, exceptID int64) (bool, error) {
	var count int64
	err := db.Model(&models.IPWhitelistEntry{}).
		Where("ip_address = ? AND id <> ?", ip, exceptID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check whitelist: %w", err)
	}
	return count > 0, nil
}

// UpdateWhitelistEntry edits an entry. The entry matching currentIP cannot be
// deactivated or moved to another address.
func (s *AccessService) UpdateWhitelistEntry(id int64, update WhitelistUpdate, currentIP string) (*models.IPWhitelistEntry, error) {
	entry, err := s.GetWhitelistEntry(id)
	if err != nil {
		return nil, err
	}
	own := sameIP(entry.IPAddress, currentIP)

	if update.IPAddress != nil {
		normalized, err := utils.NormalizeIP(*update.IPAddress)
		if err != nil {
			return nil, invalidInput("%s", err.Error())
		}
		if normalized != entry.IPAddress {
			if own {
				return nil, ErrForbiddenSelf
			}
			taken, err := s.addressTaken(s.db, normalized, id)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, fmt.Errorf("address %s is already whitelisted: %w", normalized, ErrConflict)
			}
			entry.IPAddress = normalized
		}
	}
	if update.Description != nil {
		entry.Description = strings.TrimSpace(*update.Description)
	}
	if update.IsActive != nil {
		if own && !*update.IsActive {
			return nil, ErrForbiddenSelf
		}
		entry.IsActive = *update.IsActive
	}

	err = s.db.Model(entry).Updates(map[string]interface{}{
		"ip_address":  entry.IPAddress,
		"description": entry.Description,
		"is_active":   entry.IsActive,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update whitelist entry: %w", err)
	}
	return entry, nil
}

// ToggleWhitelistEntry flips the active flag
func (s *AccessService) ToggleWhitelistEntry(id int64, currentIP string) (*models.IPWhitelistEntry, error) {
	entry, err := s.GetWhitelistEntry(id)
	if err != nil {
		return nil, err
	}
	active := !entry.IsActive
	return s.UpdateWhitelistEntry(id, WhitelistUpdate{IsActive: &active}, currentIP)
}

// DeleteWhitelistEntry removes an entry other than the caller's own address
func (s *AccessService) DeleteWhitelistEntry(id int64, currentIP string) (*models.IPWhitelistEntry, error) {
	entry, err := s.GetWhitelistEntry(id)
	if err != nil {
		return nil, err
	}
	if sameIP(entry.IPAddress, currentIP) {
		return nil, ErrForbiddenSelf
	}
	if err := s.db.Delete(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to delete whitelist entry: %w", err)
	}
	return entry, nil
}

func sameIP(a, b string) bool {
	na, errA := utils.NormalizeIP(a)
	nb, errB := utils.NormalizeIP(b)
	return errA == nil && errB == nil && na == nb
}

// HasPendingIPRequest reports whether ip already waits for a decision
func (s *AccessService) HasPendingIPRequest(ip string) (bool, error) {
	var count int64
	err := s.db.Model(&models.IPAccessRequest{}).
		Where("ip_address = ? AND status = ?", ip, models.StatusPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pending requests: %w", err)
	}
	return count > 0, nil
}

// CreateIPRequest stores a request for access. Only one pending request per address is kept.
func (s *AccessService) CreateIPRequest(ip, name, reason string) (*models.IPAccessRequest, error) {
	normalized, err := utils.NormalizeIP(ip)
	if err != nil {
		return nil, invalidInput("%s", err.Error())
	}
	name = strings.TrimSpace(name)
	reason = strings.TrimSpace(reason)
	if name == "" || reason == "" {
		return nil, invalidInput("name and reason are required")
	}

	req := &models.IPAccessRequest{
		IPAddress:   normalized,
		Name:        name,
		Reason:      reason,
		Status:      models.StatusPending,
		RequestedAt: time.Now().UTC(),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.IPAccessRequest{}).
			Where("ip_address = ? AND status = ?", normalized, models.StatusPending).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check pending requests: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("a request for %s is already pending: %w", normalized, ErrConflict)
		}
		return tx.Create(req).Error
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListIPRequests returns IP access requests, pending first, optionally filtered by status
func (s *AccessService) ListIPRequests(status string) ([]models.IPAccessRequest, error) {
	var requests []models.IPAccessRequest
	query := s.db.Model(&models.IPAccessRequest{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.
		Order(fmt.Sprintf("CASE WHEN status = '%s' THEN 0 ELSE 1 END, requested_at DESC, id DESC", models.StatusPending)).
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ip requests: %w", err)
	}
	return requests, nil
}

// CountPendingIPRequests counts IP requests waiting for a decision
func (s *AccessService) CountPendingIPRequests() (int64, error) {
	var count int64
	if err := s.db.Model(&models.IPAccessRequest{}).Where("status = ?", models.StatusPending).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count ip requests: %w", err)
	}
	return count, nil
}

// ApproveIPRequest accepts a pending request and adds or reactivates the whitelist entry
func (s *AccessService) ApproveIPRequest(id, adminID int64) (*models.IPAccessRequest, error) {
	var req models.IPAccessRequest
	now := time.Now().UTC()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.decide(tx, &req, id, adminID, models.StatusApproved, now); err != nil {
			return err
		}

		var entry models.IPWhitelistEntry
		err := tx.Where("ip_address = ?", req.IPAddress).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.IPWhitelistEntry{
				IPAddress:   req.IPAddress,
				Description: fmt.Sprintf("Approved request: %s", req.Name),
				AddedBy:     &adminID,
				AddedAt:     now,
				IsActive:    true,
			}).Error
		case err != nil:
			return err
		default:
			return tx.Model(&entry).Update("is_active", true).Error
		}
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// DenyIPRequest rejects a pending request
func (s *AccessService) DenyIPRequest(id, adminID int64) (*models.IPAccessRequest, error) {
	var req models.IPAccessRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.decide(tx, &req, id, adminID, models.StatusDenied, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *AccessService) decide(tx *gorm.DB, req *models.IPAccessRequest, id, adminID int64, status string, now time.Time) error {
	if err := tx.First(req, id).Error; err != nil {
		return notFound(err, "ip request")
	}
	if req.Status != models.StatusPending {
		return fmt.Errorf("request is %s, not pending: %w", req.Status, ErrInvalidState)
	}

	err := tx.Model(req).Updates(map[string]interface{}{
		"status":       status,
		"processed_at": now,
		"processed_by": adminID,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update ip request: %w", err)
	}
	req.Status = status
	req.ProcessedAt = &now
	req.ProcessedBy = &adminID
	return nil
}

// LogAccess appends an access log entry
func (s *AccessService) LogAccess(userID *int64, ip, action string, success bool) error {
	entry := &models.AccessLogEntry{
		UserID:     userID,
		IPAddress:  ip,
		Action:     truncate(action, 200),
		Success:    success,
		AccessTime: time.Now().UTC(),
	}
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write access log: %w", err)
	}
	return nil
}

// LogAdminAction appends an admin action log entry
func (s *AccessService) LogAdminAction(userID *int64, ip, action string, success bool) error {
	entry := &models.AdminAccessLog{
		UserID:     userID,
		IPAddress:  ip,
		Action:     truncate(action, 200),
		Success:    success,
		AccessTime: time.Now().UTC(),
	}
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write admin log: %w", err)
	}
	return nil
}

// AccessLogs returns one page of the access log, newest first
func (s *AccessService) AccessLogs(limit, offset int) ([]models.AccessLogEntry, int64, error) {
	var entries []models.AccessLogEntry
	var total int64
	if err := s.db.Model(&models.AccessLogEntry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count access log: %w", err)
	}
	err := s.db.Order("access_time DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch access log: %w", err)
	}
	return entries, total, nil
}

// AdminLogs returns one page of the admin action log, newest first
func (s *AccessService) AdminLogs(limit, offset int) ([]models.AdminAccessLog, int64, error) {
	var entries []models.AdminAccessLog
	var total int64
	if err := s.db.Model(&models.AdminAccessLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count admin log: %w", err)
	}
	err := s.db.Order("access_time DESC, id DESC").Limit(limit).Offset(offset).Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch admin log: %w", err)
	}
	return entries, total, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// cut on a rune boundary so the result stays valid UTF-8
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
