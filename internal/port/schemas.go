package port

import (
	"encoding/json"
	"fmt"
	"time"
)

// Typed input/output schemas, one pair per port identifier. The engine moves
// serialized JSON; these structs are the single source of truth for what that
// JSON must look like in each direction.

// maxMinutes bounds every duration field: one week, in minutes.
const maxMinutes = 10080

// ─────────────────────────────────────────────────────────────────────────────
// intentToAction
// ─────────────────────────────────────────────────────────────────────────────

// IntentInput is a free-form utterance to be mapped onto an app action.
type IntentInput struct {
	Utterance string `json:"utterance"`

	// ReferenceDate anchors relative phrases like "friday". RFC 3339 date.
	// Excluded from the input hash.
	ReferenceDate string `json:"referenceDate,omitempty"`
}

// IntentOutput is the structured action extracted from an utterance.
type IntentOutput struct {
	Action     string  `json:"action"` // addTask, addEvent, startTimer, openCourse, none
	Title      string  `json:"title,omitempty"`
	Due        string  `json:"due,omitempty"` // RFC 3339 date
	Confidence float64 `json:"confidence"`
}

var intentActions = map[string]bool{
	"addTask": true, "addEvent": true, "startTimer": true, "openCourse": true, "none": true,
}

func validateIntentInput(raw []byte) error {
	var in IntentInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.Utterance == "" {
		return fmt.Errorf("utterance is required")
	}
	if in.ReferenceDate != "" {
		if err := validDate(in.ReferenceDate); err != nil {
			return fmt.Errorf("referenceDate: %w", err)
		}
	}
	return nil
}

func validateIntentOutput(raw []byte) error {
	var out IntentOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	if !intentActions[out.Action] {
		return fmt.Errorf("unknown action %q", out.Action)
	}
	if out.Due != "" {
		if err := validDate(out.Due); err != nil {
			return fmt.Errorf("due: %w", err)
		}
	}
	return validConfidence(out.Confidence)
}

// ─────────────────────────────────────────────────────────────────────────────
// summarize
// ─────────────────────────────────────────────────────────────────────────────

// SummarizeInput is text to be condensed.
type SummarizeInput struct {
	Text         string `json:"text"`
	MaxSentences int    `json:"maxSentences,omitempty"`
}

// SummarizeOutput is the condensed text plus optional key points.
type SummarizeOutput struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints,omitempty"`
}

func validateSummarizeInput(raw []byte) error {
	var in SummarizeInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.Text == "" {
		return fmt.Errorf("text is required")
	}
	if in.MaxSentences < 0 {
		return fmt.Errorf("maxSentences must not be negative")
	}
	return nil
}

func validateSummarizeOutput(raw []byte) error {
	var out SummarizeOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	if out.Summary == "" {
		return fmt.Errorf("summary is required")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// rewrite
// ─────────────────────────────────────────────────────────────────────────────

// RewriteInput is text to restate in a different tone.
type RewriteInput struct {
	Text string `json:"text"`
	Tone string `json:"tone"` // formal, casual, concise
}

// RewriteOutput is the restated text.
type RewriteOutput struct {
	Text string `json:"text"`
}

var rewriteTones = map[string]bool{"formal": true, "casual": true, "concise": true}

func validateRewriteInput(raw []byte) error {
	var in RewriteInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.Text == "" {
		return fmt.Errorf("text is required")
	}
	if !rewriteTones[in.Tone] {
		return fmt.Errorf("unknown tone %q", in.Tone)
	}
	return nil
}

func validateRewriteOutput(raw []byte) error {
	var out RewriteOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	if out.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// studyQuestionGen
// ─────────────────────────────────────────────────────────────────────────────

// StudyQuestionInput asks for practice questions about a topic.
type StudyQuestionInput struct {
	Topic string `json:"topic"`
	Notes string `json:"notes,omitempty"`
	Count int    `json:"count,omitempty"`
}

// StudyQuestion is one generated practice question.
type StudyQuestion struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer,omitempty"`
}

// StudyQuestionOutput is the generated question set.
type StudyQuestionOutput struct {
	Questions []StudyQuestion `json:"questions"`
}

func validateStudyQuestionInput(raw []byte) error {
	var in StudyQuestionInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if in.Count < 0 || in.Count > 50 {
		return fmt.Errorf("count must be within 0..50")
	}
	return nil
}

func validateStudyQuestionOutput(raw []byte) error {
	var out StudyQuestionOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	if len(out.Questions) == 0 {
		return fmt.Errorf("at least one question is required")
	}
	for i, q := range out.Questions {
		if q.Prompt == "" {
			return fmt.Errorf("questions[%d]: prompt is required", i)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// syllabusParse
// ─────────────────────────────────────────────────────────────────────────────

// SyllabusInput is raw syllabus text, typically extracted from a document.
type SyllabusInput struct {
	Text       string `json:"text"`
	CourseHint string `json:"courseHint,omitempty"`
}

// SyllabusItem is one dated deliverable found in a syllabus.
type SyllabusItem struct {
	Title  string  `json:"title"`
	Kind   string  `json:"kind"` // assignment, exam, quiz, reading, project
	Due    string  `json:"due,omitempty"`
	Weight float64 `json:"weight,omitempty"` // fraction of final grade, 0..1
}

// SyllabusOutput is the structured course extracted from syllabus text.
type SyllabusOutput struct {
	CourseCode  string         `json:"courseCode,omitempty"`
	CourseTitle string         `json:"courseTitle,omitempty"`
	Items       []SyllabusItem `json:"items"`
}

var syllabusKinds = map[string]bool{
	"assignment": true, "exam": true, "quiz": true, "reading": true, "project": true,
}

func validateSyllabusInput(raw []byte) error {
	var in SyllabusInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

func validateSyllabusOutput(raw []byte) error {
	var out SyllabusOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	for i, item := range out.Items {
		if item.Title == "" {
			return fmt.Errorf("items[%d]: title is required", i)
		}
		if !syllabusKinds[item.Kind] {
			return fmt.Errorf("items[%d]: unknown kind %q", i, item.Kind)
		}
		if item.Due != "" {
			if err := validDate(item.Due); err != nil {
				return fmt.Errorf("items[%d]: due: %w", i, err)
			}
		}
		if item.Weight < 0 || item.Weight > 1 {
			return fmt.Errorf("items[%d]: weight must be within 0..1", i)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// estimateTaskDuration
// ─────────────────────────────────────────────────────────────────────────────

// DurationInput describes a task whose working time should be estimated.
type DurationInput struct {
	Title string `json:"title"`
	Kind  string `json:"kind"` // assignment, exam, quiz, reading, project

	// NotesChars is the length of attached notes; a proxy for task size.
	NotesChars int `json:"notesChars,omitempty"`

	// RequestedAt is when the estimate was requested. Excluded from the
	// input hash.
	RequestedAt string `json:"requestedAt,omitempty"`
}

// DurationOutput is a bounded estimate in minutes. The invariant
// min <= estimated <= max is enforced by the output validator.
type DurationOutput struct {
	MinMinutes       int `json:"minMinutes"`
	EstimatedMinutes int `json:"estimatedMinutes"`
	MaxMinutes       int `json:"maxMinutes"`
}

func validateDurationInput(raw []byte) error {
	var in DurationInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !syllabusKinds[in.Kind] {
		return fmt.Errorf("unknown kind %q", in.Kind)
	}
	if in.NotesChars < 0 {
		return fmt.Errorf("notesChars must not be negative")
	}
	return nil
}

func validateDurationOutput(raw []byte) error {
	var out DurationOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	for name, v := range map[string]int{
		"minMinutes": out.MinMinutes, "estimatedMinutes": out.EstimatedMinutes, "maxMinutes": out.MaxMinutes,
	} {
		if v < 0 || v > maxMinutes {
			return fmt.Errorf("%s %d out of range 0..%d", name, v, maxMinutes)
		}
	}
	if out.MinMinutes > out.EstimatedMinutes || out.EstimatedMinutes > out.MaxMinutes {
		return fmt.Errorf("expected minMinutes <= estimatedMinutes <= maxMinutes, got %d/%d/%d",
			out.MinMinutes, out.EstimatedMinutes, out.MaxMinutes)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// workloadForecast
// ─────────────────────────────────────────────────────────────────────────────

// ForecastTask is one open task feeding the workload forecast.
type ForecastTask struct {
	ID               string `json:"id"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Due              string `json:"due"` // RFC 3339 date
}

// ForecastInput is the full set of open tasks plus a horizon.
type ForecastInput struct {
	// Tasks is order-insignificant for equality.
	Tasks       []ForecastTask `json:"tasks"`
	HorizonDays int            `json:"horizonDays"`

	// RequestedAt is excluded from the input hash.
	RequestedAt string `json:"requestedAt,omitempty"`
}

// DayLoad is the forecast minutes for one calendar day.
type DayLoad struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
}

// ForecastOutput is the projected per-day load across the horizon.
type ForecastOutput struct {
	Days     []DayLoad `json:"days"`
	PeakDate string    `json:"peakDate,omitempty"`
}

func validateForecastInput(raw []byte) error {
	var in ForecastInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.HorizonDays < 1 || in.HorizonDays > 365 {
		return fmt.Errorf("horizonDays must be within 1..365")
	}
	for i, t := range in.Tasks {
		if t.ID == "" {
			return fmt.Errorf("tasks[%d]: id is required", i)
		}
		if t.EstimatedMinutes < 0 || t.EstimatedMinutes > maxMinutes {
			return fmt.Errorf("tasks[%d]: estimatedMinutes out of range", i)
		}
		if err := validDate(t.Due); err != nil {
			return fmt.Errorf("tasks[%d]: due: %w", i, err)
		}
	}
	return nil
}

func validateForecastOutput(raw []byte) error {
	var out ForecastOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	for i, d := range out.Days {
		if err := validDate(d.Date); err != nil {
			return fmt.Errorf("days[%d]: date: %w", i, err)
		}
		if d.Minutes < 0 {
			return fmt.Errorf("days[%d]: minutes must not be negative", i)
		}
	}
	if out.PeakDate != "" {
		if err := validDate(out.PeakDate); err != nil {
			return fmt.Errorf("peakDate: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// generateStudyPlan / schedulePlacement / conflictResolution
// ─────────────────────────────────────────────────────────────────────────────

// PlanAssignment is one assignment to place into study sessions.
type PlanAssignment struct {
	ID               string `json:"id"`
	EstimatedMinutes int    `json:"estimatedMinutes"`
	Due              string `json:"due"`
}

// PlanSlot is a free calendar window available for studying.
type PlanSlot struct {
	Start   string `json:"start"` // RFC 3339 timestamp
	Minutes int    `json:"minutes"`
}

// PlanSession is one scheduled block of work.
type PlanSession struct {
	AssignmentID string `json:"assignmentId"`
	Start        string `json:"start"`
	Minutes      int    `json:"minutes"`
}

// StudyPlanInput pairs assignments with available slots.
type StudyPlanInput struct {
	// Assignments and Slots are order-insignificant for equality.
	Assignments []PlanAssignment `json:"assignments"`
	Slots       []PlanSlot       `json:"slots"`
}

// StudyPlanOutput is the planned session list.
type StudyPlanOutput struct {
	Sessions []PlanSession `json:"sessions"`
}

// PlacementInput asks for a single block to be placed into one of the slots.
type PlacementInput struct {
	TaskID  string     `json:"taskId"`
	Minutes int        `json:"minutes"`
	Slots   []PlanSlot `json:"slots"`
}

// PlacementOutput is the chosen slot for the block.
type PlacementOutput struct {
	Start     string `json:"start"`
	Minutes   int    `json:"minutes"`
	SlotIndex int    `json:"slotIndex"`
}

// ConflictInput is a session list that may contain overlaps.
type ConflictInput struct {
	// Sessions is order-insignificant for equality.
	Sessions []PlanSession `json:"sessions"`
}

// ConflictOutput is the adjusted session list plus the IDs that moved.
type ConflictOutput struct {
	Sessions []PlanSession `json:"sessions"`
	Moved    []string      `json:"moved,omitempty"`
}

func validateSlots(slots []PlanSlot) error {
	for i, s := range slots {
		if err := validTimestamp(s.Start); err != nil {
			return fmt.Errorf("slots[%d]: start: %w", i, err)
		}
		if s.Minutes < 1 || s.Minutes > maxMinutes {
			return fmt.Errorf("slots[%d]: minutes out of range 1..%d", i, maxMinutes)
		}
	}
	return nil
}

func validateSessions(sessions []PlanSession, field string) error {
	for i, s := range sessions {
		if s.AssignmentID == "" {
			return fmt.Errorf("%s[%d]: assignmentId is required", field, i)
		}
		if err := validTimestamp(s.Start); err != nil {
			return fmt.Errorf("%s[%d]: start: %w", field, i, err)
		}
		if s.Minutes < 1 || s.Minutes > maxMinutes {
			return fmt.Errorf("%s[%d]: minutes out of range 1..%d", field, i, maxMinutes)
		}
	}
	return nil
}

func validateStudyPlanInput(raw []byte) error {
	var in StudyPlanInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	for i, a := range in.Assignments {
		if a.ID == "" {
			return fmt.Errorf("assignments[%d]: id is required", i)
		}
		if a.EstimatedMinutes < 1 || a.EstimatedMinutes > maxMinutes {
			return fmt.Errorf("assignments[%d]: estimatedMinutes out of range", i)
		}
		if err := validDate(a.Due); err != nil {
			return fmt.Errorf("assignments[%d]: due: %w", i, err)
		}
	}
	return validateSlots(in.Slots)
}

func validateStudyPlanOutput(raw []byte) error {
	var out StudyPlanOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	return validateSessions(out.Sessions, "sessions")
}

func validatePlacementInput(raw []byte) error {
	var in PlacementInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	if in.TaskID == "" {
		return fmt.Errorf("taskId is required")
	}
	if in.Minutes < 1 || in.Minutes > maxMinutes {
		return fmt.Errorf("minutes out of range 1..%d", maxMinutes)
	}
	return validateSlots(in.Slots)
}

func validatePlacementOutput(raw []byte) error {
	var out PlacementOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	if err := validTimestamp(out.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if out.Minutes < 1 || out.Minutes > maxMinutes {
		return fmt.Errorf("minutes out of range 1..%d", maxMinutes)
	}
	if out.SlotIndex < 0 {
		return fmt.Errorf("slotIndex must not be negative")
	}
	return nil
}

func validateConflictInput(raw []byte) error {
	var in ConflictInput
	if err := decode(raw, &in); err != nil {
		return err
	}
	return validateSessions(in.Sessions, "sessions")
}

func validateConflictOutput(raw []byte) error {
	var out ConflictOutput
	if err := decode(raw, &out); err != nil {
		return err
	}
	return validateSessions(out.Sessions, "sessions")
}

// ─────────────────────────────────────────────────────────────────────────────
// shared helpers
// ─────────────────────────────────────────────────────────────────────────────

func decode(raw []byte, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

func validDate(s string) error {
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("%q is not a valid date (want YYYY-MM-DD)", s)
	}
	return nil
}

func validTimestamp(s string) error {
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return fmt.Errorf("%q is not a valid RFC 3339 timestamp", s)
	}
	return nil
}

func validConfidence(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("confidence %v out of range 0..1", v)
	}
	return nil
}
