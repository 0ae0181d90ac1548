package service

import (
	"context"
	"testing"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordShare(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	form := env.createSurvey(t)

	require.NoError(t, env.svc.Analytics.RecordShare(ctx, form.ID, ownerID, RecordShareReq{Platform: "whatsapp"}))
	require.NoError(t, env.svc.Analytics.RecordShare(ctx, form.ID, ownerID, RecordShareReq{
		Platform: "twitter", Data: map[string]interface{}{"campaign": "launch"},
	}))
	require.NoError(t, env.svc.Analytics.RecordShare(ctx, form.ID, ownerID, RecordShareReq{Platform: "twitter"}))

	err := env.svc.Analytics.RecordShare(ctx, form.ID, otherID, RecordShareReq{Platform: "twitter"})
	requireCode(t, err, ErrorNotFound)
	err = env.svc.Analytics.RecordShare(ctx, form.ID, ownerID, RecordShareReq{Platform: "  "})
	requireCode(t, err, ErrorInvalid)

	var events []entity.ShareEvent
	require.NoError(t, env.db.Where("form_id = ?", form.ID).Find(&events).Error)
	require.Len(t, events, 3)

	stats, err := env.svc.Analytics.GetStats(ctx, form.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"whatsapp": 1, "twitter": 2}, stats.Shares)
}

func TestGetStats(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	form := env.createSurvey(t)
	env.publish(t, form.ID)

	for i := 0; i < 4; i++ {
		_, err := env.svc.Response.GetPublicForm(ctx, form.ID)
		require.NoError(t, err)
	}
	env.submitSurvey(t, form.ID, "Day one")

	env.advance(24 * time.Hour)
	_, err := env.svc.Response.GetPublicForm(ctx, form.ID)
	require.NoError(t, err)
	env.submitSurvey(t, form.ID, "Day two")

	stats, err := env.svc.Analytics.GetStats(ctx, form.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Views)
	assert.Equal(t, 2, stats.Responses)
	assert.Equal(t, 40.0, stats.ConversionRate)
	assert.Equal(t, "1m 30s", stats.AvgCompletionTime)
	assert.Equal(t, []DailyResponses{
		{Date: "2024-03-15", Responses: 1},
		{Date: "2024-03-16", Responses: 1},
	}, stats.DailyResponses)

	_, err = env.svc.Analytics.GetStats(ctx, form.ID, otherID)
	requireCode(t, err, ErrorNotFound)
}

func TestComputeStats(t *testing.T) {
	stats := computeStats(nil)
	assert.Equal(t, 0.0, stats.ConversionRate)
	assert.Equal(t, "0m 0s", stats.AvgCompletionTime)
	assert.Empty(t, stats.DailyResponses)

	stats = computeStats([]entity.FormAnalytics{
		{Date: "2024-03-02", Views: 2, CompletedResponses: 1, AvgCompletionTime: 200},
		{Date: "2024-03-01", Views: 1, CompletedResponses: 2, AvgCompletionTime: 50},
	})
	assert.Equal(t, 100.0, stats.ConversionRate)
	assert.Equal(t, "1m 40s", stats.AvgCompletionTime)
	assert.Equal(t, "2024-03-01", stats.DailyResponses[0].Date)

	stats = computeStats([]entity.FormAnalytics{{Date: "2024-03-01", Views: 3, CompletedResponses: 1}})
	assert.Equal(t, 33.3, stats.ConversionRate)
}

func TestShares(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	form := env.createSurvey(t)

	link, err := env.svc.Analytics.CreateShare(ctx, form.ID, ownerID, CreateShareReq{MaxUses: 2})
	require.NoError(t, err)
	assert.Equal(t, entity.ShareTypeLink, link.Type)
	assert.Equal(t, "http://forms.test/f/"+form.ID, link.URL)
	assert.Len(t, link.ShareToken, 32)

	resolved, err := env.svc.Analytics.ResolveShare(ctx, link.ShareToken)
	require.NoError(t, err)
	assert.Equal(t, form.ID, resolved.FormID)
	assert.Equal(t, 1, resolved.CurrentUses)

	_, err = env.svc.Analytics.ResolveShare(ctx, link.ShareToken)
	require.NoError(t, err)
	_, err = env.svc.Analytics.ResolveShare(ctx, link.ShareToken)
	requireCode(t, err, ErrorNotFound)

	_, err = env.svc.Analytics.ResolveShare(ctx, "no-such-token")
	requireCode(t, err, ErrorNotFound)

	links, err := env.svc.Analytics.ListShares(ctx, form.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 2, links[0].CurrentUses)
}

func TestShares_ExpiryAndValidation(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	form := env.createSurvey(t)

	past := fixedNow.Add(-time.Hour)
	_, err := env.svc.Analytics.CreateShare(ctx, form.ID, ownerID, CreateShareReq{ExpiresAt: &past})
	requireCode(t, err, ErrorInvalid)
	_, err = env.svc.Analytics.CreateShare(ctx, form.ID, ownerID, CreateShareReq{Type: "fax"})
	requireCode(t, err, ErrorInvalid)
	_, err = env.svc.Analytics.CreateShare(ctx, form.ID, ownerID, CreateShareReq{MaxUses: -1})
	requireCode(t, err, ErrorInvalid)
	_, err = env.svc.Analytics.CreateShare(ctx, form.ID, otherID, CreateShareReq{})
	requireCode(t, err, ErrorNotFound)

	soon := fixedNow.Add(time.Hour)
	link, err := env.svc.Analytics.CreateShare(ctx, form.ID, ownerID, CreateShareReq{Type: entity.ShareTypeQR, ExpiresAt: &soon})
	require.NoError(t, err)
	_, err = env.svc.Analytics.ResolveShare(ctx, link.ShareToken)
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	_, err = env.svc.Analytics.ResolveShare(ctx, link.ShareToken)
	requireCode(t, err, ErrorNotFound)
}
