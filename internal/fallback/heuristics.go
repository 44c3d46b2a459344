package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/itori-ai/aiengine/internal/port"
)

// Heuristics is the deterministic rule-based fallback engine. Every handler
// is a pure function of the canonical input: no clocks, no randomness, no
// reading of hash-excluded fields.
type Heuristics struct {
	handlers map[port.ID]func(input []byte) (any, error)
}

// NewHeuristics builds the fallback engine with every rule-based handler
// registered. Rewrite has no handler: there is no honest deterministic tone
// rewrite.
func NewHeuristics() *Heuristics {
	h := &Heuristics{}
	h.handlers = map[port.ID]func([]byte) (any, error){
		port.IntentToAction:       h.intent,
		port.Summarize:            h.summarize,
		port.StudyQuestionGen:     h.studyQuestions,
		port.SyllabusParse:        h.syllabus,
		port.EstimateTaskDuration: h.duration,
		port.WorkloadForecast:     h.forecast,
		port.GenerateStudyPlan:    h.studyPlan,
		port.SchedulePlacement:    h.placement,
		port.ConflictResolution:   h.conflicts,
	}
	return h
}

// CanFallback reports whether a rule-based handler exists for the port.
func (h *Heuristics) CanFallback(id port.ID) bool {
	_, ok := h.handlers[id]
	return ok
}

// Execute runs the port's handler. ctx is accepted for interface symmetry;
// handlers are in-memory and complete immediately.
func (h *Heuristics) Execute(_ context.Context, id port.ID, input []byte, _ port.RequestContext) ([]byte, error) {
	handler, ok := h.handlers[id]
	if !ok {
		return nil, fmt.Errorf("no fallback for port %s", id)
	}
	out, err := handler(input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// ─────────────────────────────────────────────────────────────────────────────
// intentToAction: keyword rules
// ─────────────────────────────────────────────────────────────────────────────

var intentRules = []struct {
	action   string
	keywords []string
}{
	{"startTimer", []string{"timer", "pomodoro", "focus session"}},
	{"addEvent", []string{"event", "meeting", "lecture", "class on", "appointment"}},
	{"openCourse", []string{"open course", "show course", "go to course"}},
	{"addTask", []string{"add", "remind", "due", "finish", "submit", "todo", "task", "essay", "homework"}},
}

func (h *Heuristics) intent(input []byte) (any, error) {
	var in port.IntentInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	lowered := strings.ToLower(in.Utterance)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return port.IntentOutput{
					Action:     rule.action,
					Title:      strings.TrimSpace(in.Utterance),
					Confidence: 0.4,
				}, nil
			}
		}
	}
	return port.IntentOutput{Action: "none", Confidence: 0.2}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// summarize: extractive first sentences
// ─────────────────────────────────────────────────────────────────────────────

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

func (h *Heuristics) summarize(input []byte) (any, error) {
	var in port.SummarizeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	limit := in.MaxSentences
	if limit <= 0 {
		limit = 3
	}
	sentences := splitSentences(in.Text)
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	return port.SummarizeOutput{Summary: strings.Join(sentences, " ")}, nil
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, strings.TrimSpace(text[last:loc[0]+1]))
		last = loc[1]
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// studyQuestionGen: topic templates
// ─────────────────────────────────────────────────────────────────────────────

var questionTemplates = []string{
	"What is %s?",
	"Explain the key ideas of %s in your own words.",
	"How does %s apply in practice?",
	"List three facts about %s.",
	"Why is %s important in this course?",
}

func (h *Heuristics) studyQuestions(input []byte) (any, error) {
	var in port.StudyQuestionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	count := in.Count
	if count <= 0 {
		count = 5
	}
	questions := make([]port.StudyQuestion, 0, count)
	for i := 0; i < count; i++ {
		tmpl := questionTemplates[i%len(questionTemplates)]
		questions = append(questions, port.StudyQuestion{
			Prompt: fmt.Sprintf(tmpl, in.Topic),
		})
	}
	return port.StudyQuestionOutput{Questions: questions}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// syllabusParse: line-oriented keyword and date scan
// ─────────────────────────────────────────────────────────────────────────────

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

var syllabusKindKeywords = []struct {
	kind     string
	keywords []string
}{
	{"exam", []string{"exam", "final", "midterm"}},
	{"quiz", []string{"quiz"}},
	{"project", []string{"project", "presentation"}},
	{"reading", []string{"reading", "chapter", "read "}},
	{"assignment", []string{"assignment", "homework", "essay", "paper", "problem set", "lab"}},
}

func (h *Heuristics) syllabus(input []byte) (any, error) {
	var in port.SyllabusInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	out := port.SyllabusOutput{CourseTitle: in.CourseHint, Items: []port.SyllabusItem{}}
	for _, line := range strings.Split(in.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kind := classifyLine(strings.ToLower(line))
		if kind == "" {
			continue
		}
		item := port.SyllabusItem{Title: line, Kind: kind}
		if date := isoDate.FindString(line); date != "" {
			if _, err := time.Parse("2006-01-02", date); err == nil {
				item.Due = date
			}
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func classifyLine(lowered string) string {
	for _, rule := range syllabusKindKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.kind
			}
		}
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// estimateTaskDuration: per-kind base table scaled by notes size
// ─────────────────────────────────────────────────────────────────────────────

var durationBase = map[string]int{
	"assignment": 120,
	"exam":       180,
	"quiz":       60,
	"reading":    45,
	"project":    300,
}

func (h *Heuristics) duration(input []byte) (any, error) {
	var in port.DurationInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	est := durationBase[in.Kind]
	if est == 0 {
		est = 90
	}
	// Longer notes suggest a bigger task; one extra minute per 200 chars.
	est += in.NotesChars / 200
	if est > 10080 {
		est = 10080
	}
	out := port.DurationOutput{
		MinMinutes:       est / 2,
		EstimatedMinutes: est,
		MaxMinutes:       est * 2,
	}
	if out.MaxMinutes > 10080 {
		out.MaxMinutes = 10080
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// workloadForecast: aggregate minutes onto due dates
// ─────────────────────────────────────────────────────────────────────────────

func (h *Heuristics) forecast(input []byte) (any, error) {
	var in port.ForecastInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	byDate := map[string]int{}
	for _, task := range in.Tasks {
		byDate[task.Due] += task.EstimatedMinutes
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := port.ForecastOutput{Days: []port.DayLoad{}}
	peak := 0
	for _, d := range dates {
		out.Days = append(out.Days, port.DayLoad{Date: d, Minutes: byDate[d]})
		if byDate[d] > peak {
			peak = byDate[d]
			out.PeakDate = d
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// generateStudyPlan: earliest-due-first greedy slot fill
// ─────────────────────────────────────────────────────────────────────────────

type planSlotState struct {
	start     time.Time
	remaining int
	used      int
}

func (h *Heuristics) studyPlan(input []byte) (any, error) {
	var in port.StudyPlanInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}

	assignments := append([]port.PlanAssignment(nil), in.Assignments...)
	sort.Slice(assignments, func(i, j int) bool {
		if assignments[i].Due != assignments[j].Due {
			return assignments[i].Due < assignments[j].Due
		}
		return assignments[i].ID < assignments[j].ID
	})

	slots := make([]planSlotState, 0, len(in.Slots))
	for _, s := range in.Slots {
		start, err := time.Parse(time.RFC3339, s.Start)
		if err != nil {
			return nil, fmt.Errorf("slot start: %w", err)
		}
		slots = append(slots, planSlotState{start: start, remaining: s.Minutes})
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].start.Equal(slots[j].start) {
			return slots[i].start.Before(slots[j].start)
		}
		return slots[i].remaining < slots[j].remaining
	})

	out := port.StudyPlanOutput{Sessions: []port.PlanSession{}}
	for _, a := range assignments {
		needed := a.EstimatedMinutes
		for i := range slots {
			if needed == 0 {
				break
			}
			if slots[i].remaining == 0 {
				continue
			}
			take := needed
			if take > slots[i].remaining {
				take = slots[i].remaining
			}
			sessionStart := slots[i].start.Add(time.Duration(slots[i].used) * time.Minute)
			out.Sessions = append(out.Sessions, port.PlanSession{
				AssignmentID: a.ID,
				Start:        sessionStart.UTC().Format(time.RFC3339),
				Minutes:      take,
			})
			slots[i].remaining -= take
			slots[i].used += take
			needed -= take
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// schedulePlacement: first fit
// ─────────────────────────────────────────────────────────────────────────────

func (h *Heuristics) placement(input []byte) (any, error) {
	var in port.PlacementInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	for i, s := range in.Slots {
		if s.Minutes >= in.Minutes {
			return port.PlacementOutput{
				Start:     s.Start,
				Minutes:   in.Minutes,
				SlotIndex: i,
			}, nil
		}
	}
	return nil, fmt.Errorf("no slot fits %d minutes", in.Minutes)
}

// ─────────────────────────────────────────────────────────────────────────────
// conflictResolution: sweep and shift later sessions
// ─────────────────────────────────────────────────────────────────────────────

func (h *Heuristics) conflicts(input []byte) (any, error) {
	var in port.ConflictInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}

	type timedSession struct {
		session port.PlanSession
		start   time.Time
	}
	sessions := make([]timedSession, 0, len(in.Sessions))
	for _, s := range in.Sessions {
		start, err := time.Parse(time.RFC3339, s.Start)
		if err != nil {
			return nil, fmt.Errorf("session start: %w", err)
		}
		sessions = append(sessions, timedSession{session: s, start: start})
	}
	// Full tie-break: sessions is order-insignificant, so any two inputs
	// that are permutations of each other must sort identically.
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].start.Equal(sessions[j].start) {
			return sessions[i].start.Before(sessions[j].start)
		}
		if sessions[i].session.AssignmentID != sessions[j].session.AssignmentID {
			return sessions[i].session.AssignmentID < sessions[j].session.AssignmentID
		}
		return sessions[i].session.Minutes < sessions[j].session.Minutes
	})

	out := port.ConflictOutput{Sessions: []port.PlanSession{}}
	var prevEnd time.Time
	movedSet := map[string]bool{}
	for _, ts := range sessions {
		start := ts.start
		if !prevEnd.IsZero() && start.Before(prevEnd) {
			start = prevEnd
			if !movedSet[ts.session.AssignmentID] {
				movedSet[ts.session.AssignmentID] = true
				out.Moved = append(out.Moved, ts.session.AssignmentID)
			}
		}
		out.Sessions = append(out.Sessions, port.PlanSession{
			AssignmentID: ts.session.AssignmentID,
			Start:        start.UTC().Format(time.RFC3339),
			Minutes:      ts.session.Minutes,
		})
		prevEnd = start.Add(time.Duration(ts.session.Minutes) * time.Minute)
	}
	return out, nil
}
