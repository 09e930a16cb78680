package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/vocalbot/core/logger"
)

// MaxStars is the best rating and the only one approved without review.
const MaxStars = 5

// SubmitFeedback records the requester's rating for a booking awaiting feedback.
// Top ratings are approved immediately; lower ones go to admin review.
func (s *Service) SubmitFeedback(ctx context.Context, bookingID string, actor Actor, stars int, comment string) (Feedback, error) {
	if stars < 1 || stars > MaxStars {
		return Feedback{}, fmt.Errorf("%w: stars must be within 1..%d, got %d", ErrInvalidFeedback, MaxStars, stars)
	}
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return Feedback{}, err
	}
	if actor.Role != RoleClient || actor.ID != b.RequesterID {
		return Feedback{}, fmt.Errorf("%w: only the requester may rate the lesson", ErrForbidden)
	}
	if b.Status != StatusFeedbackPending {
		return Feedback{}, fmt.Errorf("%w: booking is %s", ErrInvalidFeedback, b.Status)
	}

	state := ModerationPendingReview
	if stars == MaxStars {
		state = ModerationAutoApproved
	}
	f := Feedback{
		ID:              s.newID(),
		BookingID:       b.ID,
		Stars:           stars,
		Comment:         normalizeText(comment, maxCommentRunes),
		ModerationState: state,
		CreatedAt:       s.clock.Now(),
	}

	unlock := s.locks.Lock(b.Key().String())
	err = s.store.CreateFeedback(ctx, f)
	unlock()
	if err != nil {
		return Feedback{}, err
	}

	logger.Info(ctx, componentFeedback, "feedback.submit",
		slog.String("booking_id", b.ID),
		slog.String("feedback_id", f.ID),
		slog.Int("stars", stars),
		slog.String("state", string(state)),
	)
	if state == ModerationPendingReview {
		params := s.bookingParams(b)
		params[ParamFeedbackID] = f.ID
		params[ParamStars] = strconv.Itoa(stars)
		params[ParamComment] = f.Comment
		s.notifyAdmins(ctx, KindFeedbackReview, params)
	}
	return f, nil
}

// ApproveFeedback moves pending feedback to approved. Approving feedback that
// is already approved is a no-op.
func (s *Service) ApproveFeedback(ctx context.Context, feedbackID string, actor Actor) (Feedback, error) {
	if err := s.requireAdmin(actor); err != nil {
		return Feedback{}, err
	}
	f, err := s.store.GetFeedback(ctx, feedbackID)
	if err != nil {
		return Feedback{}, err
	}
	if f.ModerationState != ModerationPendingReview {
		return f, nil
	}
	updated, err := s.store.UpdateModeration(ctx, feedbackID, ModerationPendingReview, ModerationApproved)
	if errors.Is(err, ErrStatusChanged) {
		return s.store.GetFeedback(ctx, feedbackID)
	}
	if err != nil {
		return Feedback{}, err
	}
	logger.Info(ctx, componentFeedback, "feedback.approve",
		slog.String("feedback_id", feedbackID),
		slog.String("booking_id", updated.BookingID),
	)
	return updated, nil
}

// ListFeedback returns feedback in state, or all feedback when state is empty.
func (s *Service) ListFeedback(ctx context.Context, actor Actor, state ModerationState) ([]Feedback, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.store.ListFeedback(ctx, state)
}

// FeedbackFor returns the feedback left for a booking, or ErrNotFound.
func (s *Service) FeedbackFor(ctx context.Context, bookingID string) (Feedback, error) {
	return s.store.FeedbackForBooking(ctx, bookingID)
}
