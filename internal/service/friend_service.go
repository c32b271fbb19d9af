package service

import (
	"context"
	"fmt"

	"chatter/internal/models"
	"chatter/internal/repository"
)

// FriendshipStatus describes the relationship between two users as seen by
// the querying user.
type FriendshipStatus struct {
	IsFriend          bool `json:"is_friend"`
	HasPendingRequest bool `json:"has_pending_request"`
	RequestID         uint `json:"request_id,omitempty"`
	IsReceiver        bool `json:"is_receiver"`
}

// FriendService provides friend-request and friendship business logic.
// Mutations on a user pair are serialized on the pair key so concurrent
// duplicate requests cannot both pass the existence check.
type FriendService struct {
	friendRepo repository.FriendRepository
	userRepo   repository.UserRepository
	pairLocks  *keyedMutex
}

// NewFriendService returns a new FriendService.
func NewFriendService(friendRepo repository.FriendRepository, userRepo repository.UserRepository) *FriendService {
	return &FriendService{
		friendRepo: friendRepo,
		userRepo:   userRepo,
		pairLocks:  newKeyedMutex(),
	}
}

// SendFriendRequest sends a friend request to the target user.
func (s *FriendService) SendFriendRequest(ctx context.Context, userID, targetUserID uint) (*models.Friendship, error) {
	if userID == targetUserID {
		return nil, models.NewValidationError("cannot send a friend request to yourself")
	}

	if _, err := s.userRepo.GetByID(ctx, targetUserID); err != nil {
		return nil, err
	}

	unlock := s.pairLocks.Lock(models.PairKey(userID, targetUserID))
	defer unlock()

	existing, err := s.friendRepo.GetBetweenUsers(ctx, userID, targetUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case models.FriendshipStatusAccepted:
			return nil, models.NewAlreadyFriendsError("you are already friends with this user")
		case models.FriendshipStatusPending:
			if existing.RequesterID == userID {
				return nil, models.NewAlreadyExistsError("friend request already sent")
			}
			return nil, models.NewAlreadyExistsError("this user already sent you a friend request")
		}
	}

	friendship := &models.Friendship{
		RequesterID: userID,
		AddresseeID: targetUserID,
		Status:      models.FriendshipStatusPending,
	}
	if err := s.friendRepo.Create(ctx, friendship); err != nil {
		return nil, err
	}

	return s.friendRepo.GetByID(ctx, friendship.ID)
}

// RespondToRequest resolves a pending friend request. Accepting promotes the
// row to accepted; rejecting deletes it so the pair can try again later.
func (s *FriendService) RespondToRequest(ctx context.Context, userID, requestID uint, accept bool) (*models.Friendship, error) {
	friendship, err := s.friendRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	unlock := s.pairLocks.Lock(models.PairKey(friendship.RequesterID, friendship.AddresseeID))
	defer unlock()

	// Re-read under the lock; a concurrent response may have resolved it.
	friendship, err = s.friendRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if friendship.AddresseeID != userID {
		return nil, models.NewUnauthorizedError("only the recipient can respond to a friend request")
	}
	if friendship.Status != models.FriendshipStatusPending {
		return nil, models.NewAlreadyResolvedError("friend request has already been resolved")
	}

	if accept {
		if err := s.friendRepo.UpdateStatus(ctx, requestID, models.FriendshipStatusAccepted); err != nil {
			return nil, err
		}
		return s.friendRepo.GetByID(ctx, requestID)
	}

	if err := s.friendRepo.Delete(ctx, requestID); err != nil {
		return nil, err
	}
	return friendship, nil
}

// Unfriend removes an accepted friendship. The pair may re-request
// immediately; message history is untouched.
func (s *FriendService) Unfriend(ctx context.Context, userID, targetUserID uint) (*models.Friendship, error) {
	if userID == targetUserID {
		return nil, models.NewValidationError("cannot unfriend yourself")
	}

	unlock := s.pairLocks.Lock(models.PairKey(userID, targetUserID))
	defer unlock()

	friendship, err := s.friendRepo.GetBetweenUsers(ctx, userID, targetUserID)
	if err != nil {
		return nil, err
	}
	if friendship == nil || friendship.Status != models.FriendshipStatusAccepted {
		return nil, models.NewNotFoundError("you are not friends with this user")
	}

	if err := s.friendRepo.RemoveFriendship(ctx, userID, targetUserID); err != nil {
		return nil, err
	}
	return friendship, nil
}

// GetFriends returns the list of friends for the user.
func (s *FriendService) GetFriends(ctx context.Context, userID uint) ([]models.User, error) {
	return s.friendRepo.GetFriends(ctx, userID)
}

// GetPendingRequests returns pending friend requests addressed to the user.
func (s *FriendService) GetPendingRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.friendRepo.GetPendingRequests(ctx, userID)
}

// GetSentRequests returns pending friend requests sent by the user.
func (s *FriendService) GetSentRequests(ctx context.Context, userID uint) ([]models.Friendship, error) {
	return s.friendRepo.GetSentRequests(ctx, userID)
}

// GetFriendshipStatus returns the relationship between the user and a target.
func (s *FriendService) GetFriendshipStatus(ctx context.Context, userID, targetUserID uint) (*FriendshipStatus, error) {
	if _, err := s.userRepo.GetByID(ctx, targetUserID); err != nil {
		return nil, err
	}

	friendship, err := s.friendRepo.GetBetweenUsers(ctx, userID, targetUserID)
	if err != nil {
		return nil, err
	}

	status := &FriendshipStatus{}
	if friendship != nil {
		switch friendship.Status {
		case models.FriendshipStatusAccepted:
			status.IsFriend = true
		case models.FriendshipStatusPending:
			status.HasPendingRequest = true
			status.RequestID = friendship.ID
			status.IsReceiver = friendship.AddresseeID == userID
		default:
			return nil, models.NewInternalError(fmt.Errorf("unexpected friendship status %q", friendship.Status))
		}
	}

	return status, nil
}

// AreFriends reports whether two users have an accepted friendship.
func (s *FriendService) AreFriends(ctx context.Context, userID1, userID2 uint) (bool, error) {
	return s.friendRepo.AreFriends(ctx, userID1, userID2)
}
