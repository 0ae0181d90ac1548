package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/builder"
	"github.com/Unknown-Bytes/formerr/internal/storage"
)

// DraftService 服务端保存的表单编排草稿
type DraftService struct {
	store storage.KVStore
	forms *FormService
	ttl   time.Duration
}

func NewDraftService(store storage.KVStore, forms *FormService, ttl time.Duration) *DraftService {
	return &DraftService{store: store, forms: forms, ttl: ttl}
}

// CreateDraftReq 新建草稿；FormID 不为空时载入已有表单继续编辑
type CreateDraftReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FormID      string `json:"formId"`
}

// CreateDraft 新建草稿
func (s *DraftService) CreateDraft(ctx context.Context, ownerID string, req CreateDraftReq) (*builder.Draft, error) {
	var draft *builder.Draft
	if req.FormID != "" {
		form, err := s.forms.GetForm(ctx, req.FormID, ownerID)
		if err != nil {
			return nil, err
		}
		draft = builder.FromForm(form)
	} else {
		title := strings.TrimSpace(req.Title)
		if title == "" {
			return nil, NewInvalidError("Title is required")
		}
		draft = builder.New(ownerID, title, req.Description)
	}
	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// GetDraft 获取草稿，非所有者视为不存在
func (s *DraftService) GetDraft(ctx context.Context, ownerID, draftID string) (*builder.Draft, error) {
	raw, err := s.store.Get(ctx, draftID)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, NewNotFoundError("Draft not found")
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var draft builder.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", draftID, err)
	}
	if draft.OwnerID != ownerID {
		return nil, NewNotFoundError("Draft not found")
	}
	return &draft, nil
}

// Mutate 加载草稿，执行编辑并保存
func (s *DraftService) Mutate(ctx context.Context, ownerID, draftID string, fn func(d *builder.Draft) error) (*builder.Draft, error) {
	draft, err := s.GetDraft(ctx, ownerID, draftID)
	if err != nil {
		return nil, err
	}
	if err := fn(draft); err != nil {
		return nil, fromBuilderError(err)
	}
	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// DeleteDraft 丢弃草稿
func (s *DraftService) DeleteDraft(ctx context.Context, ownerID, draftID string) error {
	if _, err := s.GetDraft(ctx, ownerID, draftID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, draftID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Flush 草稿整体落库，成功后删除草稿
func (s *DraftService) Flush(ctx context.Context, ownerID, draftID string) (*FlushResult, error) {
	draft, err := s.GetDraft(ctx, ownerID, draftID)
	if err != nil {
		return nil, err
	}
	result, err := s.forms.FlushDraft(ctx, ownerID, draft)
	if err != nil {
		return nil, err
	}
	// 删除失败时草稿按 TTL 过期
	_ = s.store.Delete(ctx, draftID)
	return result, nil
}

func (s *DraftService) save(ctx context.Context, draft *builder.Draft) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.store.Set(ctx, draft.ID, raw, s.ttl); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}
