package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/events"
	"github.com/tbourn/rent-share-backend/internal/observability"
	"github.com/tbourn/rent-share-backend/internal/repo"
)

const maxCommentRunes = 1000

// ReviewService records scores participants leave for each other after a
// completed transaction and keeps User.Rating at the mean received score.
type ReviewService struct {
	DB     *gorm.DB
	Events events.Publisher
}

// Leave stores userID's review of the counterpart on txID.
func (s *ReviewService) Leave(ctx context.Context, userID, txID string, score int, comment string) (r *domain.Review, err error) {
	ctx, span := observability.StartSpan(ctx, "services/reviews", "Leave",
		attribute.String("user.id", userID),
		attribute.String("transaction.id", txID),
	)
	defer func() { observability.EndSpan(span, err) }()

	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentRunes {
		return nil, invalidf("comment must be at most %d characters", maxCommentRunes)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := repo.GetTransaction(ctx, tx, txID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		if !t.IsParticipant(userID) {
			return ErrForbidden
		}
		if domain.NormalizeTxStatus(t.Status) != domain.TxStatusCompleted {
			return ErrReviewNotAllowed
		}

		r = &domain.Review{
			TransactionID: txID,
			ReviewerID:    userID,
			RevieweeID:    t.Counterpart(userID),
			Score:         score,
			Comment:       comment,
		}
		if err := repo.CreateReview(ctx, tx, r); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateReview
			}
			return err
		}

		avg, err := repo.AverageScore(ctx, tx, r.RevieweeID)
		if err != nil {
			return err
		}
		err = repo.UpdateUser(ctx, tx, r.RevieweeID, map[string]any{"rating": math.Round(avg*100) / 100})
		if errors.Is(err, repo.ErrNotFound) {
			// reviewee never synced a profile; the review still counts
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.ReviewsCreated.Inc()
	events.Emit(ctx, s.Events, events.New(events.ReviewCreated, r, r.RevieweeID))
	return r, nil
}

// ListFor returns a page of reviews userID received, newest first.
func (s *ReviewService) ListFor(ctx context.Context, userID string, page, pageSize int) ([]domain.Review, int64, error) {
	_, size, offset := pageBounds(page, pageSize)
	total, err := repo.CountReviewsFor(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Review{}, 0, nil
	}
	items, err := repo.ListReviewsFor(ctx, s.DB, userID, offset, size)
	return items, total, err
}
