package provider

import "github.com/itori-ai/aiengine/internal/port"

// systemPrompts instructs a JSON-mode model per port. Each prompt pins the
// exact output shape so the contract's output validator accepts well-behaved
// responses directly.
var systemPrompts = map[port.ID]string{
	port.IntentToAction: `You map a student's utterance onto one app action.
Respond with JSON only: {"action":"addTask"|"addEvent"|"startTimer"|"openCourse"|"none","title":string,"due":"YYYY-MM-DD","confidence":number 0..1}.
Omit "title" and "due" when not implied. Use "none" when no action fits.`,

	port.Summarize: `You condense study material.
Respond with JSON only: {"summary":string,"keyPoints":[string]}.
Honor "maxSentences" when present.`,

	port.Rewrite: `You restate text in the requested tone (formal, casual, or concise) without changing its meaning.
Respond with JSON only: {"text":string}.`,

	port.StudyQuestionGen: `You write practice questions for the given topic and notes.
Respond with JSON only: {"questions":[{"prompt":string,"answer":string}]}.
Produce exactly "count" questions when count is given, otherwise 5.`,

	port.SyllabusParse: `You extract dated deliverables from syllabus text.
Respond with JSON only: {"courseCode":string,"courseTitle":string,"items":[{"title":string,"kind":"assignment"|"exam"|"quiz"|"reading"|"project","due":"YYYY-MM-DD","weight":number 0..1}]}.
Omit fields you cannot determine. Never invent due dates.`,

	port.EstimateTaskDuration: `You estimate working time in minutes for one task.
Respond with JSON only: {"minMinutes":int,"estimatedMinutes":int,"maxMinutes":int}.
All values within 0..10080 and minMinutes <= estimatedMinutes <= maxMinutes.`,

	port.WorkloadForecast: `You project per-day workload from open tasks over the horizon.
Respond with JSON only: {"days":[{"date":"YYYY-MM-DD","minutes":int}],"peakDate":"YYYY-MM-DD"}.`,

	port.GenerateStudyPlan: `You place assignments into the available time slots as study sessions.
Respond with JSON only: {"sessions":[{"assignmentId":string,"start":RFC3339,"minutes":int}]}.
Never schedule outside the given slots; never exceed a slot's minutes.`,

	port.SchedulePlacement: `You pick one slot for a single block of work.
Respond with JSON only: {"start":RFC3339,"minutes":int,"slotIndex":int}.
slotIndex refers to the input slot list.`,

	port.ConflictResolution: `You resolve overlapping study sessions by moving later ones.
Respond with JSON only: {"sessions":[{"assignmentId":string,"start":RFC3339,"minutes":int}],"moved":[string]}.
Keep every session; only change start times.`,
}

// systemPrompt returns the JSON-mode instruction for a port, or "" for
// unknown ports.
func systemPrompt(id port.ID) string {
	return systemPrompts[id]
}
