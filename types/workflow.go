package types

// ContentType identifies the kind of artifact a version stores.
type ContentType string

const (
	ContentResearch ContentType = "research"
	ContentDraft    ContentType = "draft"
	ContentReview   ContentType = "review"
	ContentFinal    ContentType = "final"
)

// ProjectStatus tracks the lifecycle of a paper project.
type ProjectStatus string

const (
	StatusCreated          ProjectStatus = "created"
	StatusResearching      ProjectStatus = "researching"
	StatusResearchComplete ProjectStatus = "research_complete"
	StatusWriting          ProjectStatus = "writing"
	StatusWritingComplete  ProjectStatus = "writing_complete"
	StatusReviewing        ProjectStatus = "reviewing"
	StatusReviewComplete   ProjectStatus = "review_complete"
	StatusProcessing       ProjectStatus = "processing"
	StatusCompleted        ProjectStatus = "completed"
	StatusError            ProjectStatus = "error"
	StatusFailed           ProjectStatus = "failed"
)

// Action is the phase the supervisor selects for the next iteration.
type Action string

const (
	ActionResearch Action = "research"
	ActionWrite    Action = "write"
	ActionReview   Action = "review"
	ActionComplete Action = "complete"
)

// Verdict is the supervisor's evaluation of review feedback.
type Verdict string

const (
	VerdictAccept   Verdict = "accept"
	VerdictReject   Verdict = "reject"
	VerdictComplete Verdict = "complete"
)

// Decision is the supervisor's instruction for the next workflow step.
type Decision struct {
	Action       Action  `json:"action"`
	Revise       bool    `json:"revise,omitempty"`
	Verdict      Verdict `json:"verdict,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
	Evaluation   string  `json:"evaluation,omitempty"`
	Reasoning    string  `json:"reasoning,omitempty"`
	// Ambiguous is set when the evaluation response matched no known
	// verdict and the decision fell back to complete.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// AgentStatus tracks the communication state of a registered agent.
type AgentStatus string

const (
	AgentIdle     AgentStatus = "idle"
	AgentSent     AgentStatus = "sent_message"
	AgentReceived AgentStatus = "received_message"
)
