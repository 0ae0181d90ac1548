package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"gorm.io/datatypes"
)

// statsWindow 统计最近天数
const statsWindow = 7

// AnalyticsService 统计与分享
type AnalyticsService struct {
	formRepo      *repository.FormRepository
	analyticsRepo *repository.AnalyticsRepository
	shareRepo     *repository.ShareRepository
	baseURL       string
	now           func() time.Time
	newID         func() string
}

func NewAnalyticsService(repos *repository.Repositories, baseURL string) *AnalyticsService {
	return &AnalyticsService{
		formRepo:      repos.Form,
		analyticsRepo: repos.Analytics,
		shareRepo:     repos.Share,
		baseURL:       strings.TrimRight(baseURL, "/"),
		now:           time.Now,
		newID:         newUUID,
	}
}

// RecordShareReq 分享行为
type RecordShareReq struct {
	Platform string                 `json:"platform" binding:"required"`
	Data     map[string]interface{} `json:"data"`
}

// RecordShare 记录一次分享行为（仅所有者）
func (s *AnalyticsService) RecordShare(ctx context.Context, formID, ownerID string, req RecordShareReq) error {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return err
	}
	platform := strings.TrimSpace(req.Platform)
	if platform == "" {
		return NewInvalidError("platform is required")
	}

	data := datatypes.JSONMap{"platform": platform}
	for k, v := range req.Data {
		data[k] = v
	}
	event := &entity.ShareEvent{
		ID:        s.newID(),
		FormID:    form.ID,
		Platform:  platform,
		EventData: data,
		CreatedBy: ownerID,
	}
	if err := s.shareRepo.CreateEvent(ctx, event); err != nil {
		return fmt.Errorf("record share: %w", err)
	}
	return nil
}

// DailyResponses 每日完成数
type DailyResponses struct {
	Date      string `json:"date"`
	Responses int    `json:"responses"`
}

// FormStats 表单统计
type FormStats struct {
	Views             int              `json:"views"`
	Responses         int              `json:"responses"`
	ConversionRate    float64          `json:"conversionRate"`
	AvgCompletionTime string           `json:"avgCompletionTime"`
	DailyResponses    []DailyResponses `json:"dailyResponses"`
	Shares            map[string]int64 `json:"shares"`
}

// GetStats 最近 7 天统计
func (s *AnalyticsService) GetStats(ctx context.Context, formID, ownerID string) (*FormStats, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.analyticsRepo.ListRecent(ctx, form.ID, statsWindow)
	if err != nil {
		return nil, fmt.Errorf("load analytics: %w", err)
	}
	shares, err := s.shareRepo.CountEvents(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("load share events: %w", err)
	}
	stats := computeStats(rows)
	stats.Shares = shares
	return stats, nil
}

// computeStats rows 为日期倒序，dailyResponses 按日期正序输出
func computeStats(rows []entity.FormAnalytics) *FormStats {
	stats := &FormStats{DailyResponses: make([]DailyResponses, 0, len(rows))}
	weighted := 0
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		stats.Views += r.Views
		stats.Responses += r.CompletedResponses
		weighted += r.AvgCompletionTime * r.CompletedResponses
		stats.DailyResponses = append(stats.DailyResponses, DailyResponses{Date: r.Date, Responses: r.CompletedResponses})
	}
	if stats.Views > 0 {
		stats.ConversionRate = math.Round(float64(stats.Responses)/float64(stats.Views)*1000) / 10
	}
	avg := 0
	if stats.Responses > 0 {
		avg = weighted / stats.Responses
	}
	stats.AvgCompletionTime = formatDuration(avg)
	return stats
}

// formatDuration 秒 -> "Xm Ys"
func formatDuration(seconds int) string {
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// CreateShareReq 创建分享链接
type CreateShareReq struct {
	Type      string     `json:"type"`
	ExpiresAt *time.Time `json:"expiresAt"`
	MaxUses   int        `json:"maxUses"`
}

// ShareLink 分享链接及完整 URL
type ShareLink struct {
	entity.FormShare
	URL string `json:"url"`
}

// CreateShare 创建分享链接
func (s *AnalyticsService) CreateShare(ctx context.Context, formID, ownerID string, req CreateShareReq) (*ShareLink, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	shareType := req.Type
	if shareType == "" {
		shareType = entity.ShareTypeLink
	}
	if !entity.IsValidShareType(shareType) {
		return nil, NewInvalidError("Invalid share type: must be one of link, embed, qr")
	}
	if req.MaxUses < 0 {
		return nil, NewInvalidError("maxUses must not be negative")
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(s.now()) {
		return nil, NewInvalidError("expiresAt must be in the future")
	}

	share := &entity.FormShare{
		ID:         s.newID(),
		FormID:     form.ID,
		ShareToken: strings.ReplaceAll(s.newID(), "-", ""),
		Type:       shareType,
		ExpiresAt:  req.ExpiresAt,
		MaxUses:    req.MaxUses,
		CreatedBy:  ownerID,
	}
	if err := s.shareRepo.Create(ctx, share); err != nil {
		return nil, fmt.Errorf("create share: %w", err)
	}
	return s.link(*share), nil
}

// ListShares 表单的分享链接
func (s *AnalyticsService) ListShares(ctx context.Context, formID, ownerID string) ([]ShareLink, error) {
	form, err := s.loadOwned(ctx, formID, ownerID)
	if err != nil {
		return nil, err
	}
	shares, err := s.shareRepo.ListByForm(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	out := make([]ShareLink, 0, len(shares))
	for _, sh := range shares {
		out = append(out, *s.link(sh))
	}
	return out, nil
}

// ResolveShare 解析分享 token 并计一次使用
func (s *AnalyticsService) ResolveShare(ctx context.Context, token string) (*ShareLink, error) {
	share, err := s.shareRepo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFoundError("Share link not found")
		}
		return nil, fmt.Errorf("load share: %w", err)
	}
	ok, err := s.shareRepo.ConsumeUse(ctx, share.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("consume share: %w", err)
	}
	if !ok {
		return nil, NewNotFoundError("Share link expired")
	}
	share.CurrentUses++
	return s.link(*share), nil
}

func (s *AnalyticsService) link(share entity.FormShare) *ShareLink {
	return &ShareLink{FormShare: share, URL: s.baseURL + "/f/" + share.FormID}
}

func (s *AnalyticsService) loadOwned(ctx context.Context, formID, ownerID string) (*entity.Form, error) {
	return loadOwnedForm(ctx, s.formRepo, formID, ownerID)
}
