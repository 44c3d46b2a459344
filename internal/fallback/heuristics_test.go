package fallback

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itori-ai/aiengine/internal/port"
)

func run(t *testing.T, h *Heuristics, id port.ID, input string) []byte {
	t.Helper()
	out, err := h.Execute(context.Background(), id, []byte(input), port.NewRequestContext(port.PrivacyNormal))
	require.NoError(t, err)

	c, err := port.Lookup(id)
	require.NoError(t, err)
	require.NoError(t, c.ValidateOutput(out), "fallback output must satisfy the contract")
	return out
}

func TestNoOpEngineRefusesEverything(t *testing.T) {
	var e NoOpEngine
	for _, id := range port.AllIDs() {
		assert.False(t, e.CanFallback(id))
	}
	_, err := e.Execute(context.Background(), port.Summarize, []byte(`{"text":"x"}`), port.NewRequestContext(port.PrivacyNormal))
	assert.Error(t, err)
}

func TestHeuristicsCoverage(t *testing.T) {
	h := NewHeuristics()
	for _, c := range port.Catalog() {
		assert.Equal(t, c.SupportsDeterministicFallback, h.CanFallback(c.ID),
			"handler presence must match the contract for %s", c.ID)
	}
}

func TestIntentKeywordRules(t *testing.T) {
	h := NewHeuristics()

	cases := []struct {
		utterance string
		action    string
	}{
		{"start a pomodoro timer", "startTimer"},
		{"add essay due friday", "addTask"},
		{"schedule a meeting with my study group", "addEvent"},
		{"open course chem 101", "openCourse"},
		{"what is the weather", "none"},
	}
	for _, tc := range cases {
		out := run(t, h, port.IntentToAction, `{"utterance":"`+tc.utterance+`"}`)
		var parsed port.IntentOutput
		require.NoError(t, json.Unmarshal(out, &parsed))
		assert.Equal(t, tc.action, parsed.Action, "utterance %q", tc.utterance)
	}
}

func TestSummarizeTakesFirstSentences(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.Summarize,
		`{"text":"First point. Second point. Third point. Fourth point.","maxSentences":2}`)
	var parsed port.SummarizeOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, "First point. Second point.", parsed.Summary)
}

func TestStudyQuestionCount(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.StudyQuestionGen, `{"topic":"photosynthesis","count":7}`)
	var parsed port.StudyQuestionOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.Len(t, parsed.Questions, 7)
	assert.Contains(t, parsed.Questions[0].Prompt, "photosynthesis")
}

func TestSyllabusLineScan(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.SyllabusParse,
		`{"text":"Week 1 overview\nEssay on cell biology due 2026-10-02\nMidterm exam 2026-10-20\nRead chapter 4","courseHint":"BIO 201"}`)
	var parsed port.SyllabusOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, "BIO 201", parsed.CourseTitle)
	require.Len(t, parsed.Items, 3)
	assert.Equal(t, "assignment", parsed.Items[0].Kind)
	assert.Equal(t, "2026-10-02", parsed.Items[0].Due)
	assert.Equal(t, "exam", parsed.Items[1].Kind)
	assert.Equal(t, "reading", parsed.Items[2].Kind)
	assert.Empty(t, parsed.Items[2].Due)
}

func TestDurationEstimateInvariants(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.EstimateTaskDuration,
		`{"title":"research project","kind":"project","notesChars":4000}`)
	var parsed port.DurationOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, 320, parsed.EstimatedMinutes)
	assert.LessOrEqual(t, parsed.MinMinutes, parsed.EstimatedMinutes)
	assert.LessOrEqual(t, parsed.EstimatedMinutes, parsed.MaxMinutes)
	assert.LessOrEqual(t, parsed.MaxMinutes, 10080)
}

func TestForecastAggregatesByDueDate(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.WorkloadForecast,
		`{"tasks":[{"id":"t1","estimatedMinutes":60,"due":"2026-09-15"},{"id":"t2","estimatedMinutes":90,"due":"2026-09-15"},{"id":"t3","estimatedMinutes":30,"due":"2026-09-14"}],"horizonDays":14}`)
	var parsed port.ForecastOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.Len(t, parsed.Days, 2)
	assert.Equal(t, port.DayLoad{Date: "2026-09-14", Minutes: 30}, parsed.Days[0])
	assert.Equal(t, port.DayLoad{Date: "2026-09-15", Minutes: 150}, parsed.Days[1])
	assert.Equal(t, "2026-09-15", parsed.PeakDate)
}

func TestStudyPlanGreedyFill(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.GenerateStudyPlan,
		`{"assignments":[{"id":"late","estimatedMinutes":60,"due":"2026-09-20"},{"id":"soon","estimatedMinutes":90,"due":"2026-09-12"}],"slots":[{"start":"2026-09-10T14:00:00Z","minutes":120},{"start":"2026-09-11T14:00:00Z","minutes":60}]}`)
	var parsed port.StudyPlanOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.Len(t, parsed.Sessions, 3)

	// Earliest due assignment fills the first slot first.
	assert.Equal(t, port.PlanSession{AssignmentID: "soon", Start: "2026-09-10T14:00:00Z", Minutes: 90}, parsed.Sessions[0])
	assert.Equal(t, port.PlanSession{AssignmentID: "late", Start: "2026-09-10T15:30:00Z", Minutes: 30}, parsed.Sessions[1])
	assert.Equal(t, port.PlanSession{AssignmentID: "late", Start: "2026-09-11T14:00:00Z", Minutes: 30}, parsed.Sessions[2])
}

func TestPlacementFirstFit(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.SchedulePlacement,
		`{"taskId":"t1","minutes":45,"slots":[{"start":"2026-09-10T08:00:00Z","minutes":30},{"start":"2026-09-10T14:00:00Z","minutes":60}]}`)
	var parsed port.PlacementOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, 1, parsed.SlotIndex)
	assert.Equal(t, "2026-09-10T14:00:00Z", parsed.Start)
	assert.Equal(t, 45, parsed.Minutes)
}

func TestPlacementNoSlotFits(t *testing.T) {
	h := NewHeuristics()
	_, err := h.Execute(context.Background(), port.SchedulePlacement,
		[]byte(`{"taskId":"t1","minutes":90,"slots":[{"start":"2026-09-10T08:00:00Z","minutes":30}]}`),
		port.NewRequestContext(port.PrivacyNormal))
	assert.Error(t, err)
}

func TestConflictResolutionShiftsLater(t *testing.T) {
	h := NewHeuristics()
	out := run(t, h, port.ConflictResolution,
		`{"sessions":[{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":60},{"assignmentId":"b","start":"2026-09-10T14:30:00Z","minutes":30}]}`)
	var parsed port.ConflictOutput
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.Len(t, parsed.Sessions, 2)
	assert.Equal(t, "2026-09-10T15:00:00Z", parsed.Sessions[1].Start, "second session shifted past the first")
	assert.Equal(t, []string{"b"}, parsed.Moved)
}

func TestFallbackDeterminism(t *testing.T) {
	h := NewHeuristics()

	// Same input modulo hash-excluded keys and unordered array order must
	// produce byte-identical output.
	cases := []struct {
		name string
		id   port.ID
		a, b string
	}{
		{
			name: "forecast ignores task order and requestedAt",
			id:   port.WorkloadForecast,
			a:    `{"tasks":[{"id":"t1","estimatedMinutes":60,"due":"2026-09-15"},{"id":"t2","estimatedMinutes":30,"due":"2026-09-16"}],"horizonDays":14,"requestedAt":"2026-08-31T09:00:00Z"}`,
			b:    `{"tasks":[{"id":"t2","estimatedMinutes":30,"due":"2026-09-16"},{"id":"t1","estimatedMinutes":60,"due":"2026-09-15"}],"horizonDays":14,"requestedAt":"2026-08-31T23:00:00Z"}`,
		},
		{
			name: "plan ignores assignment and slot order",
			id:   port.GenerateStudyPlan,
			a:    `{"assignments":[{"id":"a1","estimatedMinutes":60,"due":"2026-09-12"},{"id":"a2","estimatedMinutes":30,"due":"2026-09-14"}],"slots":[{"start":"2026-09-10T14:00:00Z","minutes":60},{"start":"2026-09-11T14:00:00Z","minutes":60}]}`,
			b:    `{"assignments":[{"id":"a2","estimatedMinutes":30,"due":"2026-09-14"},{"id":"a1","estimatedMinutes":60,"due":"2026-09-12"}],"slots":[{"start":"2026-09-11T14:00:00Z","minutes":60},{"start":"2026-09-10T14:00:00Z","minutes":60}]}`,
		},
		{
			// Sessions tied on both start and assignment must still sort the
			// same way from either input order.
			name: "conflict ties on start and assignment",
			id:   port.ConflictResolution,
			a:    `{"sessions":[{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":60},{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":30}]}`,
			b:    `{"sessions":[{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":30},{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":60}]}`,
		},
		{
			name: "intent ignores referenceDate",
			id:   port.IntentToAction,
			a:    `{"utterance":"add essay due friday","referenceDate":"2026-08-28"}`,
			b:    `{"utterance":"add essay due friday","referenceDate":"2026-09-04"}`,
		},
		{
			name: "conflict ignores session order",
			id:   port.ConflictResolution,
			a:    `{"sessions":[{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":60},{"assignmentId":"b","start":"2026-09-10T14:30:00Z","minutes":30}]}`,
			b:    `{"sessions":[{"assignmentId":"b","start":"2026-09-10T14:30:00Z","minutes":30},{"assignmentId":"a","start":"2026-09-10T14:00:00Z","minutes":60}]}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outA := run(t, h, tc.id, tc.a)
			outB := run(t, h, tc.id, tc.b)
			assert.Equal(t, string(outA), string(outB))
		})
	}
}
