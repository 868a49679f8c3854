package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/internal/database/testutil"
	"github.com/evalforge/evalforge/internal/models"
)

func TestTaskCreateWithMetadata(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	org := seedOrgWithMembers(t, db, map[string]models.Role{
		"member-1": models.RoleMember,
		"viewer-1": models.RoleViewer,
	})

	experiment := &models.Experiment{Name: "Exp", CreatedBy: "member-1", OrganizationID: &org.ID}
	require.NoError(t, db.Create(experiment).Error)

	access, err := NewAccessService(db)
	require.NoError(t, err)
	svc, err := NewTaskService(db, nil, access)
	require.NoError(t, err)

	task, err := svc.Create(context.Background(), "member-1", CreateTaskInput{
		ExperimentID: experiment.ID,
		ScenarioID:   "kitchen-01",
		ModelA:       "model-alpha",
		ModelB:       "model-beta",
		VideoAPath:   "https://eval.example.com/api/video/library/a.mp4",
		VideoBPath:   "https://eval.example.com/api/video/library/b.mp4",
		Metadata:     map[string]any{"difficulty": "hard", "round": float64(2)},
	})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(task.Metadata, &decoded))
	require.Equal(t, "hard", decoded["difficulty"])
	require.EqualValues(t, 2, decoded["round"])

	// Viewers hold read-only access.
	_, err = svc.Create(context.Background(), "viewer-1", CreateTaskInput{
		ExperimentID: experiment.ID,
		ScenarioID:   "kitchen-02",
		ModelA:       "a",
		ModelB:       "b",
	})
	require.ErrorIs(t, err, ErrInsufficientRole)
}

func TestTaskCreateValidatesFields(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	access, err := NewAccessService(db)
	require.NoError(t, err)
	svc, err := NewTaskService(db, nil, access)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "u1", CreateTaskInput{
		ExperimentID: "whatever", ScenarioID: " ", ModelA: "a", ModelB: "b",
	})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), "u1", CreateTaskInput{
		ExperimentID: "00000000-0000-0000-0000-000000000000",
		ScenarioID:   "s1", ModelA: "a", ModelB: "b",
	})
	require.ErrorIs(t, err, ErrExperimentNotFound)
}

func TestTaskCreateCreatorFallback(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	experiment := &models.Experiment{Name: "Solo", CreatedBy: "creator-1"}
	require.NoError(t, db.Create(experiment).Error)

	access, err := NewAccessService(db)
	require.NoError(t, err)
	svc, err := NewTaskService(db, nil, access)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "creator-1", CreateTaskInput{
		ExperimentID: experiment.ID, ScenarioID: "s1", ModelA: "a", ModelB: "b",
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), "someone-else", CreateTaskInput{
		ExperimentID: experiment.ID, ScenarioID: "s2", ModelA: "a", ModelB: "b",
	})
	require.ErrorIs(t, err, ErrNotMember)
}
