package services

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"reelvault/internal/models"
)

// RequestService manages content requests made by users
type RequestService struct {
	db *gorm.DB
}

// NewRequestService creates a new request service
func NewRequestService(db *gorm.DB) *RequestService {
	return &RequestService{db: db}
}

// ValidStatus reports whether status is a known request status
func ValidStatus(status string) bool {
	switch status {
	case models.StatusPending, models.StatusApproved, models.StatusDenied, models.StatusUploaded:
		return true
	}
	return false
}

// CreateRequest validates and stores a new pending request
func (s *RequestService) CreateRequest(req *models.MovieRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.SeriesName = strings.TrimSpace(req.SeriesName)

	if req.Title == "" {
		return invalidInput("title is required")
	}
	if req.RequestType == "" {
		req.RequestType = models.RequestTypeMovie
	}
	switch req.RequestType {
	case models.RequestTypeMovie:
	case models.RequestTypeSeries:
		if req.SeriesName == "" {
			return invalidInput("series_name is required for series requests")
		}
	default:
		return invalidInput("request_type must be %q or %q", models.RequestTypeMovie, models.RequestTypeSeries)
	}

	req.ID = 0
	req.Status = models.StatusPending
	req.RequestedAt = time.Now().UTC()
	req.ProcessedAt = nil
	req.ProcessedBy = nil
	req.AdminNotes = ""

	if err := s.db.Create(req).Error; err != nil {
		return fmt.Errorf("failed to create movie request: %w", err)
	}
	return nil
}

func (s *RequestService) GetRequest(id int64) (*models.MovieRequest, error) {
	var req models.MovieRequest
	if err := s.db.Preload("User").First(&req, id).Error; err != nil {
		return nil, notFound(err, "movie request")
	}
	return &req, nil
}

// ListRequests returns one page of requests, optionally filtered by status
func (s *RequestService) ListRequests(status string, limit, offset int) ([]models.MovieRequest, int64, error) {
	var requests []models.MovieRequest
	var total int64

	byStatus := func(db *gorm.DB) *gorm.DB {
		if status != "" {
			return db.Where("status = ?", status)
		}
		return db
	}

	if err := s.db.Model(&models.MovieRequest{}).Scopes(byStatus).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count movie requests: %w", err)
	}

	err := s.db.Scopes(byStatus).Preload("User").
		Order("requested_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&requests).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch movie requests: %w", err)
	}

	return requests, total, nil
}

// UserRequests returns the most recent requests of one user
func (s *RequestService) UserRequests(userID int64, limit int) ([]models.MovieRequest, error) {
	var requests []models.MovieRequest
	err := s.db.Where("user_id = ?", userID).
		Order("requested_at DESC, id DESC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user requests: %w", err)
	}
	return requests, nil
}

// UserRequestCounts counts one user's requests per status, plus "total"
func (s *RequestService) UserRequestCounts(userID int64) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.Model(&models.MovieRequest{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count user requests: %w", err)
	}

	counts := map[string]int64{
		"total":               0,
		models.StatusPending:  0,
		models.StatusApproved: 0,
		models.StatusDenied:   0,
		models.StatusUploaded: 0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
		counts["total"] += row.Count
	}
	return counts, nil
}

// CountPending counts requests waiting for an admin decision
func (s *RequestService) CountPending() (int64, error) {
	var count int64
	if err := s.db.Model(&models.MovieRequest{}).Where("status = ?", models.StatusPending).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return count, nil
}

// Approve accepts a pending request
func (s *RequestService) Approve(id, adminID int64, notes string) (*models.MovieRequest, error) {
	return s.transition(id, adminID, notes, models.StatusApproved, true)
}

// Deny rejects a pending request
func (s *RequestService) Deny(id, adminID int64, notes string) (*models.MovieRequest, error) {
	return s.transition(id, adminID, notes, models.StatusDenied, true)
}

// MarkUploaded records that the requested content is now in the library.
// Any current status may be marked uploaded.
func (s *RequestService) MarkUploaded(id, adminID int64, notes string) (*models.MovieRequest, error) {
	return s.transition(id, adminID, notes, models.StatusUploaded, false)
}

func (s *RequestService) transition(id, adminID int64, notes, status string, pendingOnly bool) (*models.MovieRequest, error) {
	req, err := s.GetRequest(id)
	if err != nil {
		return nil, err
	}
	if pendingOnly && req.Status != models.StatusPending {
		return nil, fmt.Errorf("request is %s, not pending: %w", req.Status, ErrInvalidState)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": now,
		"processed_by": adminID,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		updates["admin_notes"] = notes
		req.AdminNotes = notes
	}

	query := s.db.Model(&models.MovieRequest{}).Where("id = ?", id)
	if pendingOnly {
		query = query.Where("status = ?", models.StatusPending)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update movie request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("request changed concurrently: %w", ErrInvalidState)
	}

	req.Status = status
	req.ProcessedAt = &now
	req.ProcessedBy = &adminID
	return req, nil
}
