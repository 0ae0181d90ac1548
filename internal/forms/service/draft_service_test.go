package service

import (
	"context"
	"testing"

	"github.com/Unknown-Bytes/formerr/internal/forms/builder"
	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraft_BuildAndFlush(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	draft, err := env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{Title: "Event signup"})
	require.NoError(t, err)

	var sectionID, questionID string
	draft, err = env.svc.Draft.Mutate(ctx, ownerID, draft.ID, func(d *builder.Draft) error {
		sectionID = d.AddSection(builder.SectionInput{Title: "Details"})
		var err error
		questionID, err = d.AddQuestion(builder.QuestionInput{
			SectionID: sectionID, Title: "Meal", Type: entity.QuestionTypeDropdown, Options: []string{"Veg", "Fish"},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, draft.Questions, 1)

	_, err = env.svc.Draft.Mutate(ctx, ownerID, draft.ID, func(d *builder.Draft) error {
		_, err := d.AddQuestion(builder.QuestionInput{SectionID: sectionID, Title: "Name", Type: entity.QuestionTypeShortText, Position: intPtr(0)})
		return err
	})
	require.NoError(t, err)

	result, err := env.svc.Draft.Flush(ctx, ownerID, draft.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	form := env.tree(t, result.FormID)
	assert.Equal(t, "Event signup", form.Title)
	assert.Equal(t, entity.FormStatusDraft, form.Status)
	require.Len(t, form.Sections, 1)
	require.Len(t, form.Sections[0].Questions, 2)
	assert.Equal(t, "Name", form.Sections[0].Questions[0].Title)
	assert.Equal(t, "Meal", form.Sections[0].Questions[1].Title)
	assert.NotEqual(t, questionID, form.Sections[0].Questions[1].ID, "temporary ids are replaced on flush")

	_, err = env.svc.Draft.GetDraft(ctx, ownerID, draft.ID)
	requireCode(t, err, ErrorNotFound)
}

func TestDraft_OwnerScoped(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	draft, err := env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{Title: "Mine"})
	require.NoError(t, err)

	_, err = env.svc.Draft.GetDraft(ctx, otherID, draft.ID)
	requireCode(t, err, ErrorNotFound)
	_, err = env.svc.Draft.Flush(ctx, otherID, draft.ID)
	requireCode(t, err, ErrorNotFound)
	err = env.svc.Draft.DeleteDraft(ctx, otherID, draft.ID)
	requireCode(t, err, ErrorNotFound)

	_, err = env.svc.Draft.GetDraft(ctx, ownerID, draft.ID)
	assert.NoError(t, err)
}

func TestDraft_BuilderErrorsMapToServiceErrors(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	draft, err := env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{Title: "Errors"})
	require.NoError(t, err)

	_, err = env.svc.Draft.Mutate(ctx, ownerID, draft.ID, func(d *builder.Draft) error {
		return d.DeleteSection("missing")
	})
	requireCode(t, err, ErrorNotFound)

	_, err = env.svc.Draft.Mutate(ctx, ownerID, draft.ID, func(d *builder.Draft) error {
		_, err := d.AddQuestion(builder.QuestionInput{SectionID: "missing", Title: "Q", Type: entity.QuestionTypeShortText})
		return err
	})
	requireCode(t, err, ErrorNotFound)

	_, err = env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{Title: " "})
	requireCode(t, err, ErrorInvalid)
}

func TestDraft_FlushDanglingRollsBack(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	draft, err := env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{Title: "Broken"})
	require.NoError(t, err)

	// 直接篡改草稿，模拟客户端提交了失效的分区引用
	_, err = env.svc.Draft.Mutate(ctx, ownerID, draft.ID, func(d *builder.Draft) error {
		d.AddSection(builder.SectionInput{Title: "Kept"})
		d.Questions = append(d.Questions, &builder.DraftQuestion{
			ID: "q-stale", SectionID: "s-deleted", Title: "Orphan", Type: entity.QuestionTypeShortText,
		})
		return nil
	})
	require.NoError(t, err)

	_, err = env.svc.Draft.Flush(ctx, ownerID, draft.ID)
	de, ok := AsDanglingReference(err)
	require.True(t, ok, "expected dangling reference, got %v", err)
	assert.Equal(t, "q-stale", de.QuestionID)
	assert.Equal(t, "s-deleted", de.SectionRef)

	assert.Zero(t, env.count(t, &entity.Form{}))
	assert.Zero(t, env.count(t, &entity.Section{}))

	_, err = env.svc.Draft.GetDraft(ctx, ownerID, draft.ID)
	assert.NoError(t, err, "failed flush keeps the draft")
}

func TestDraft_EditExistingForm(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	form := env.createSurvey(t)

	draft, err := env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{FormID: form.ID})
	require.NoError(t, err)
	assert.Equal(t, form.ID, draft.FormID)
	require.Len(t, draft.Sections, 2)

	_, err = env.svc.Draft.Mutate(ctx, ownerID, draft.ID, func(d *builder.Draft) error {
		return d.DeleteSection(d.Sections[1].ID)
	})
	require.NoError(t, err)

	result, err := env.svc.Draft.Flush(ctx, ownerID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, form.ID, result.FormID)

	tree := env.tree(t, form.ID)
	require.Len(t, tree.Sections, 1)
	assert.Equal(t, int64(1), env.count(t, &entity.Section{}))
	assert.Equal(t, int64(1), env.count(t, &entity.Question{}))
	assert.Zero(t, env.count(t, &entity.Option{}))

	_, err = env.svc.Draft.CreateDraft(ctx, otherID, CreateDraftReq{FormID: form.ID})
	requireCode(t, err, ErrorNotFound)
}

func TestDraft_FlushRejectedOnceResponsesExist(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	form := env.createSurvey(t)
	env.publish(t, form.ID)
	env.submitSurvey(t, form.ID, "Alice")

	draft, err := env.svc.Draft.CreateDraft(ctx, ownerID, CreateDraftReq{FormID: form.ID})
	require.NoError(t, err)
	_, err = env.svc.Draft.Flush(ctx, ownerID, draft.ID)
	requireCode(t, err, ErrorInvalid)
	assert.Equal(t, int64(3), env.count(t, &entity.Question{}))
}

func intPtr(i int) *int { return &i }
