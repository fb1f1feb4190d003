// Package normalize converts raw upstream frames into canonical events.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// Rejection reasons. Rejected frames are counted under the pipeline's
// "filtered" statistic and never break the stream.
var (
	ErrUnknownKind     = errors.New("unknown event kind")
	ErrMissingUsername = errors.New("missing user.username")
	ErrMissingPayload  = errors.New("missing payload")
	ErrMalformedFrame  = errors.New("malformed frame data")
)

// frameData is the wire shape of a frame's data field (§6): a user object plus
// kind-specific nested objects.
type frameData struct {
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	User      json.RawMessage       `json:"user"`
	Tweet     *models.Tweet         `json:"tweet"`
	Following *models.Subject       `json:"following"`
	Action    string                `json:"action"`
	Pinned    []models.TweetSummary `json:"pinned"`
}

// wireUser tolerates both the flat {username, display_name, user_id} shape
// and the nested subject {handle, id, profile} shape on the user field.
type wireUser struct {
	Username    string              `json:"username"`
	Handle      string              `json:"handle"`
	DisplayName string              `json:"display_name"`
	Name        string              `json:"name"`
	UserID      string              `json:"user_id"`
	ID          string              `json:"id"`
	Profile     *models.UserProfile `json:"profile"`
	Metrics     *models.UserMetrics `json:"metrics"`
}

// Normalizer validates raw frames and produces canonical events.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize converts one raw frame into a canonical Event, or returns the
// rejection reason. The returned event is a deep, independent copy: it is
// decoded from the frame's raw bytes, so later mutation of the frame (or of
// upstream buffers) cannot alter it.
func (n *Normalizer) Normalize(frame models.RawFrame) (*models.Event, error) {
	kind := models.EventKind(frame.EventType)
	if !models.IsKnownKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, frame.EventType)
	}
	if len(frame.Data) == 0 {
		return nil, ErrMissingPayload
	}

	var data frameData
	if err := json.Unmarshal(frame.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	user, subject := decodeUser(data.User)

	evt := &models.Event{
		Kind:      kind,
		Timestamp: n.normalizeTimestamp(data.Timestamp),
		User:      user,
	}

	switch kind {
	case models.KindPostCreated, models.KindPostUpdated:
		if data.Tweet == nil {
			return nil, fmt.Errorf("%w: post frame without tweet", ErrMissingPayload)
		}
		evt.Payload.Post = &models.PostPayload{Tweet: *data.Tweet}
		if evt.User.Username == "" {
			evt.User.Username = data.Tweet.Author.Handle
		}
		evt.PrimaryID = data.Tweet.ID

	case models.KindFollowCreated, models.KindFollowUpdated:
		if data.Following == nil {
			return nil, fmt.Errorf("%w: follow frame without following", ErrMissingPayload)
		}
		action := data.Action
		if action == "" {
			if kind == models.KindFollowCreated {
				action = models.FollowActionCreated
			} else {
				action = models.FollowActionUpdated
			}
		}
		evt.Payload.Follow = &models.FollowPayload{
			User:      subject,
			Following: *data.Following,
			Action:    action,
		}
		evt.PrimaryID = data.ID
		if evt.PrimaryID == "" {
			evt.PrimaryID = subject.ID + ":" + data.Following.ID
		}

	case models.KindUserUpdated, models.KindProfileUpdated, models.KindProfilePinned:
		action := data.Action
		if action == "" {
			action = "updated"
		}
		evt.Payload.Profile = &models.ProfilePayload{
			User:   subject,
			Action: action,
			Pinned: data.Pinned,
		}
		evt.PrimaryID = subject.ID
		if evt.PrimaryID == "" {
			evt.PrimaryID = subject.Handle
		}
	}

	if evt.User.Username == "" {
		return nil, ErrMissingUsername
	}
	if evt.PrimaryID == "" {
		evt.PrimaryID = evt.User.Username
	}

	n.normalizeLists(evt)
	return evt, nil
}

// decodeUser reads the frame's user field into both the canonical event user
// and the subject shape used by follow/profile payloads.
func decodeUser(raw json.RawMessage) (models.EventUser, models.Subject) {
	var u wireUser
	if len(raw) > 0 {
		// Best effort: an unparseable user field is treated as absent and the
		// frame is rejected later if no username can be recovered.
		_ = json.Unmarshal(raw, &u)
	}

	username := u.Username
	if username == "" {
		username = u.Handle
	}
	display := u.DisplayName
	if display == "" {
		display = u.Name
	}
	userID := u.UserID
	if userID == "" {
		userID = u.ID
	}

	eventUser := models.EventUser{
		Username:    username,
		DisplayName: display,
		UserID:      userID,
	}
	subject := models.Subject{
		ID:      userID,
		Handle:  username,
		Profile: u.Profile,
		Metrics: u.Metrics,
	}
	return eventUser, subject
}

// normalizeTimestamp parses the frame timestamp and renders it as RFC-3339
// UTC, defaulting to the current time when absent or unparseable.
func (n *Normalizer) normalizeTimestamp(ts string) string {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return n.now().UTC().Format(time.RFC3339)
}

// normalizeLists defaults absent slices to empty so downstream consumers
// never see nil where the contract promises a list.
func (n *Normalizer) normalizeLists(evt *models.Event) {
	if p := evt.Payload.Post; p != nil {
		if p.Tweet.URLs == nil {
			p.Tweet.URLs = []string{}
		}
		if p.Tweet.Mentions == nil {
			p.Tweet.Mentions = []string{}
		}
	}
	if pr := evt.Payload.Profile; pr != nil && pr.Pinned == nil {
		pr.Pinned = []models.TweetSummary{}
	}
}
