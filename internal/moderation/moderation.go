package moderation

import "strings"

// Status is the moderation verdict attached to an image by the
// pipeline. An empty value means the image has not been tagged yet.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusApproved   Status = "APPROVED"
	StatusBlurred    Status = "BLURRED"
	StatusBlocked    Status = "BLOCKED"
)

// Terminal reports whether no further transitions can occur for an
// image in this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusBlurred, StatusBlocked:
		return true
	}
	return false
}

// Reason explains a non-approved verdict. Purely informational: it
// never drives logic beyond display text.
type Reason string

const (
	ReasonMomo          Reason = "MOMO"
	ReasonOtherFood     Reason = "OTHER_FOOD"
	ReasonNotFood       Reason = "NOT_FOOD"
	ReasonHumanDetected Reason = "HUMAN_DETECTED"
	ReasonUnsafeContent Reason = "UNSAFE_CONTENT"
)

var reasonMessages = map[Reason]string{
	ReasonMomo:          "Delicious momo detected!",
	ReasonOtherFood:     "This appears to be food, but not momo",
	ReasonNotFood:       "This doesn't appear to be food",
	ReasonHumanDetected: "Human face detected in image",
	ReasonUnsafeContent: "Inappropriate or unsafe content detected",
}

// Message returns the human-readable text for a reason code. Unknown
// codes fall back to the raw code so the UI never shows a blank.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	if r == "" {
		return "Unknown reason"
	}
	return string(r)
}

var (
	unsafeKeywords = []string{"suggestive", "explicit", "violence", "gore", "weapon"}
	faceKeywords   = []string{"person", "human", "face", "people"}
	foodKeywords   = []string{"food", "dish", "meal", "cuisine"}
	momoKeywords   = []string{"dumpling", "momo", "dim sum", "wonton"}
)

// Decide maps a set of classifier labels to a verdict.
//
// Decision tree, highest priority first:
//   - unsafe/adult content -> BLOCKED (UNSAFE_CONTENT)
//   - human detected       -> BLOCKED (HUMAN_DETECTED)
//   - not food at all      -> BLOCKED (NOT_FOOD)
//   - food but not momo    -> BLURRED (OTHER_FOOD)
//   - momo                 -> APPROVED (MOMO)
func Decide(labels []string) (Status, Reason) {
	joined := strings.ToLower(strings.Join(labels, " "))

	if containsAny(joined, unsafeKeywords) {
		return StatusBlocked, ReasonUnsafeContent
	}
	if containsAny(joined, faceKeywords) {
		return StatusBlocked, ReasonHumanDetected
	}
	if !containsAny(joined, foodKeywords) {
		return StatusBlocked, ReasonNotFood
	}
	if containsAny(joined, momoKeywords) {
		return StatusApproved, ReasonMomo
	}
	return StatusBlurred, ReasonOtherFood
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
