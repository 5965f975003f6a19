// Package mention defines the resolved restaurant mention record consumed by
// the scoring pipeline, along with its validation rules and permalink format.
package mention

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation reasons. A ValidationError always wraps exactly one of these.
var (
	ErrEmptyEntityID     = errors.New("entity id is required")
	ErrNegativeUpvotes   = errors.New("upvote count must be non-negative")
	ErrNegativePostVotes = errors.New("post upvote count must be non-negative")
	ErrFutureTimestamp   = errors.New("timestamp is after the reference instant")
)

// Mention is a single resolved reference to a place in Reddit text.
// Mentions are produced by the ingest stage and never mutated afterwards.
type Mention struct {
	EntityID        string    `json:"entity_id"`
	SourceThreadID  string    `json:"source_thread_id"`
	SourceCommentID string    `json:"source_comment_id,omitempty"`
	CommunityID     string    `json:"community_id"`
	UpvoteCount     int       `json:"upvote_count"`
	PostUpvoteCount int       `json:"post_upvote_count"`
	Timestamp       time.Time `json:"timestamp"`
	SnippetText     string    `json:"snippet_text"`
}

// ValidationError identifies the mention that failed validation and why.
type ValidationError struct {
	Index     int    // position in the input collection
	EntityID  string // may be empty when that is the failure
	ThreadID  string
	CommentID string
	Err       error
}

func (e *ValidationError) Error() string {
	ref := e.ThreadID
	if e.CommentID != "" {
		ref += "/" + e.CommentID
	}
	return fmt.Sprintf("invalid mention #%d (entity=%q source=%q): %v", e.Index, e.EntityID, ref, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the mention against the reference instant of a run.
// It returns one of the Err* reasons, or nil.
func (m *Mention) Validate(reference time.Time) error {
	switch {
	case m.EntityID == "":
		return ErrEmptyEntityID
	case m.UpvoteCount < 0:
		return ErrNegativeUpvotes
	case m.PostUpvoteCount < 0:
		return ErrNegativePostVotes
	case m.Timestamp.After(reference):
		return ErrFutureTimestamp
	}
	return nil
}

// ValidateAll validates every mention in order and fails on the first
// offending record. Records are never coerced or skipped.
func ValidateAll(mentions []Mention, reference time.Time) error {
	for i := range mentions {
		if err := mentions[i].Validate(reference); err != nil {
			return &ValidationError{
				Index:     i,
				EntityID:  mentions[i].EntityID,
				ThreadID:  mentions[i].SourceThreadID,
				CommentID: mentions[i].SourceCommentID,
				Err:       err,
			}
		}
	}
	return nil
}

// ContextChars returns the snippet length in characters (not bytes).
func (m *Mention) ContextChars() int {
	return utf8.RuneCountInString(m.SnippetText)
}

// Permalink returns the Reddit link for this mention.
func (m *Mention) Permalink() string {
	return Permalink(m.CommunityID, m.SourceThreadID, m.SourceCommentID)
}

// Reddit fullname type prefixes.
const (
	threadPrefix  = "t3_"
	commentPrefix = "t1_"
)

// Permalink builds https://reddit.com/r/{community}/comments/{thread}[/_/{comment}].
// Thread and comment ids may be given with or without their fullname prefix.
// Downstream consumers link to this exact shape, so it must not change.
func Permalink(communityID, threadID, commentID string) string {
	link := "https://reddit.com/r/" + communityID + "/comments/" + strings.TrimPrefix(threadID, threadPrefix)
	if commentID != "" {
		link += "/_/" + strings.TrimPrefix(commentID, commentPrefix)
	}
	return link
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
