package service

import (
	"context"
	"testing"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/forms/builder"
	"github.com/Unknown-Bytes/formerr/internal/forms/entity"
	"github.com/Unknown-Bytes/formerr/internal/forms/repository"
	"github.com/Unknown-Bytes/formerr/internal/forms/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ownerID = "owner-1"
	otherID = "intruder-1"
)

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type recordedEvent struct {
	userID, eventType string
	payload           interface{}
}

type recordingNotifier struct {
	events []recordedEvent
}

func (n *recordingNotifier) Publish(userID, eventType string, payload interface{}) {
	n.events = append(n.events, recordedEvent{userID, eventType, payload})
}

type serviceEnv struct {
	db       *gorm.DB
	svc      *Services
	notifier *recordingNotifier
	clock    *time.Time
}

func setupServices(t *testing.T) *serviceEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewServices(db, repos, nil, testutil.TestConfig(), zap.NewNop())

	env := &serviceEnv{db: db, svc: svc, notifier: &recordingNotifier{}}
	now := fixedNow
	env.clock = &now
	clock := func() time.Time { return *env.clock }
	svc.Form.now = clock
	svc.Response.now = clock
	svc.Analytics.now = clock
	svc.Auth.now = clock
	svc.Export.now = clock
	svc.SetNotifier(env.notifier)
	return env
}

func (e *serviceEnv) advance(d time.Duration) {
	*e.clock = e.clock.Add(d)
}

func (e *serviceEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

// surveyReq 两个分区：文本题、单选题、多选题
func surveyReq() CreateFormReq {
	return CreateFormReq{
		Title:       "Customer survey",
		Description: "Tell us about you",
		Sections: []builder.NestedSection{
			{Title: "About you", Order: 0},
			{Title: "Preferences", Order: 1},
		},
		Questions: []builder.NestedQuestion{
			{SectionOrder: 0, Label: "Name", Type: entity.QuestionTypeShortText, Required: true, Order: 0},
			{SectionOrder: 1, Label: "Favourite colour", Type: entity.QuestionTypeSingleChoice, Order: 0,
				Options: []builder.NestedOption{{Label: "Red"}, {Label: "Blue"}}},
			{SectionOrder: 1, Label: "Hobbies", Type: entity.QuestionTypeMultipleChoice, Order: 1,
				Options: []builder.NestedOption{{Label: "Chess"}, {Label: "Golf"}, {Label: "Music"}}},
		},
	}
}

func (e *serviceEnv) createSurvey(t *testing.T) *entity.Form {
	t.Helper()
	form, err := e.svc.Form.CreateForm(context.Background(), ownerID, surveyReq())
	require.NoError(t, err)
	return form
}

func (e *serviceEnv) publish(t *testing.T, formID string) *entity.Form {
	t.Helper()
	form, err := e.svc.Form.SetStatus(context.Background(), formID, ownerID, entity.FormStatusActive)
	require.NoError(t, err)
	return form
}

func requireCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	se, ok := AsServiceError(err)
	require.Truef(t, ok, "expected ServiceError, got %T: %v", err, err)
	require.Equalf(t, code, se.Code, "message: %s", se.Message)
}

func strPtr(s string) *string { return &s }
