package domain

import "time"

// JobState enumerates generation job lifecycle states.
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// Terminal reports whether no further state transition is allowed.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	switch s {
	case JobStatePending, JobStateProcessing, JobStateCompleted, JobStateFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from one state to another.
// Transitions only move forward; a completed job may be rewritten in place
// (durable URL swap) but never leaves completed.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStatePending:
		return to == JobStateProcessing || to == JobStateFailed
	case JobStateProcessing:
		return to == JobStateCompleted || to == JobStateFailed
	case JobStateCompleted:
		return to == JobStateCompleted
	}
	return false
}

// VoiceGender selects the vocal timbre requested from the provider.
type VoiceGender string

const (
	VoiceGenderMale   VoiceGender = "male"
	VoiceGenderFemale VoiceGender = "female"
	VoiceGenderAuto   VoiceGender = "auto"
)

// Valid reports whether g is a known voice gender.
func (g VoiceGender) Valid() bool {
	switch g {
	case VoiceGenderMale, VoiceGenderFemale, VoiceGenderAuto:
		return true
	}
	return false
}

// ResultSource records which path produced a completed job's audio.
type ResultSource string

const (
	ResultSourceProvider ResultSource = "provider"
	ResultSourceFallback ResultSource = "fallback"
)

// Job is one generation request's full lifecycle record.
type Job struct {
	ID                    string
	RequesterID           string
	PromptText            string
	StyleTag              string
	Title                 string
	Lyrics                string
	WantsInstrumental     bool
	WantsGeneratedLyrics  bool
	VoiceGender           VoiceGender
	TargetDurationSeconds int
	Locale                string

	State          JobState
	ProviderTaskID string

	ResultURL             string
	DurableStorageRef     string
	ResultLyrics          string
	ResultTitle           string
	ResultDescription     string
	ResultDurationSeconds float64
	ResultSource          ResultSource
	ErrorMessage          string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Anonymous reports whether the job has no owning requester.
func (j *Job) Anonymous() bool {
	return j.RequesterID == ""
}

// Clone returns a copy safe to hand outside a repository lock.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	return &c
}

// CreateRequest carries the caller supplied attributes of a new job.
type CreateRequest struct {
	RequesterID           string
	PromptText            string
	StyleTag              string
	Title                 string
	Lyrics                string
	WantsInstrumental     bool
	WantsGeneratedLyrics  bool
	VoiceGender           VoiceGender
	TargetDurationSeconds int
	Locale                string
}

// JobUpdate lists the fields changed by a conditioned update. Nil pointers
// leave the stored value untouched.
type JobUpdate struct {
	State                 *JobState
	ProviderTaskID        *string
	ResultURL             *string
	DurableStorageRef     *string
	ResultLyrics          *string
	ResultTitle           *string
	ResultDescription     *string
	ResultDurationSeconds *float64
	ResultSource          *ResultSource
	ErrorMessage          *string
}

// Apply copies the set fields of u onto job.
func (u JobUpdate) Apply(job *Job) {
	if u.State != nil {
		job.State = *u.State
	}
	if u.ProviderTaskID != nil {
		job.ProviderTaskID = *u.ProviderTaskID
	}
	if u.ResultURL != nil {
		job.ResultURL = *u.ResultURL
	}
	if u.DurableStorageRef != nil {
		job.DurableStorageRef = *u.DurableStorageRef
	}
	if u.ResultLyrics != nil {
		job.ResultLyrics = *u.ResultLyrics
	}
	if u.ResultTitle != nil {
		job.ResultTitle = *u.ResultTitle
	}
	if u.ResultDescription != nil {
		job.ResultDescription = *u.ResultDescription
	}
	if u.ResultDurationSeconds != nil {
		job.ResultDurationSeconds = *u.ResultDurationSeconds
	}
	if u.ResultSource != nil {
		job.ResultSource = *u.ResultSource
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = *u.ErrorMessage
	}
}

// JobView is the read model returned by status queries.
type JobView struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id,omitempty"`
	State           JobState  `json:"state"`
	ProviderTaskID  string    `json:"provider_task_id,omitempty"`
	ResultURL       string    `json:"result_url,omitempty"`
	Durable         bool      `json:"durable"`
	Title           string    `json:"title,omitempty"`
	Lyrics          string    `json:"lyrics,omitempty"`
	Description     string    `json:"description,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Source          string    `json:"source,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Ptr returns a pointer to v. It keeps JobUpdate literals short.
func Ptr[T any](v T) *T {
	return &v
}
