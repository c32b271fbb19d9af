package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chatter/internal/models"
)

// ChatRepository defines the interface for conversation and message data
// operations.
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uint) (*models.Conversation, error)
	GetDirectByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error)
	GetUserConversations(ctx context.Context, userID uint, groupsOnly bool) ([]*models.Conversation, error)
	AddMember(ctx context.Context, convID, userID uint) error
	IsMember(ctx context.Context, convID, userID uint) (bool, error)
	GetMemberIDs(ctx context.Context, convID uint) ([]uint, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessageByID(ctx context.Context, id uint) (*models.Message, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, convID, viewerID uint, beforeSeq uint64, limit int) ([]*models.Message, error)
	MaxSeq(ctx context.Context, convID uint) (uint64, error)
	HideMessage(ctx context.Context, msgID, userID uint) error

	GetReaction(ctx context.Context, msgID, userID uint) (*models.MessageReaction, error)
	GetReactions(ctx context.Context, msgID uint) ([]models.MessageReaction, error)
	UpsertReaction(ctx context.Context, reaction *models.MessageReaction) error
	DeleteReaction(ctx context.Context, msgID, userID uint) error

	UpdateLastSeen(ctx context.Context, convID, userID uint) error
	CountUnseen(ctx context.Context, convID, userID uint) (int, error)
}

// chatRepository implements ChatRepository
type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := r.db.WithContext(ctx).Omit("Participants").Create(conv).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Unique pair key index caught a concurrent direct-conversation create.
			return models.NewAlreadyExistsError("conversation already exists")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) GetConversation(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).
		Preload("Participants").
		First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("conversation not found")
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

func (r *chatRepository) GetDirectByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.db.WithContext(ctx).
		Where("pair_key = ?", pairKey).
		Preload("Participants").
		First(&conv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &conv, nil
}

func (r *chatRepository) GetUserConversations(ctx context.Context, userID uint, groupsOnly bool) ([]*models.Conversation, error) {
	var conversations []*models.Conversation
	q := r.db.WithContext(ctx).
		Joins("JOIN conversation_members cm ON conversations.id = cm.conversation_id").
		Where("cm.user_id = ?", userID)
	if groupsOnly {
		q = q.Where("conversations.is_group = ?", true)
	}
	if err := q.
		Preload("Participants").
		Order("conversations.updated_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return conversations, nil
}

func (r *chatRepository) AddMember(ctx context.Context, convID, userID uint) error {
	member := models.ConversationMember{
		ConversationID: convID,
		UserID:         userID,
		LastSeenAt:     time.Now(),
	}
	// OnConflict DoNothing makes repeated adds idempotent
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) IsMember(ctx context.Context, convID, userID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *chatRepository) GetMemberIDs(ctx context.Context, convID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Omit("Sender").Create(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	// Bump the conversation so sidebar ordering follows activity. The
	// message is already persisted, so a failed bump only degrades
	// sidebar recency; surface it in the logs.
	if err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", msg.ConversationID).
		Update("updated_at", time.Now()).Error; err != nil {
		slog.Warn("failed to bump conversation activity",
			"conversation_id", msg.ConversationID, "error", err)
	}
	return nil
}

func (r *chatRepository) GetMessageByID(ctx context.Context, id uint) (*models.Message, error) {
	var msg models.Message
	if err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Reactions").
		First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("message not found")
		}
		return nil, models.NewInternalError(err)
	}
	return &msg, nil
}

func (r *chatRepository) SaveMessage(ctx context.Context, msg *models.Message) error {
	// Select("*") so cleared content fields are written even when zero-valued.
	if err := r.db.WithContext(ctx).
		Omit("Sender", "Reactions").
		Select("*").
		Save(msg).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) ListMessages(ctx context.Context, convID, viewerID uint, beforeSeq uint64, limit int) ([]*models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := r.db.WithContext(ctx).
		Where("messages.conversation_id = ?", convID).
		Where("messages.deleted_for_all = ?", false).
		Where("messages.id NOT IN (?)",
			r.db.Model(&models.MessageHide{}).Select("message_id").Where("user_id = ?", viewerID))
	if beforeSeq > 0 {
		q = q.Where("messages.seq < ?", beforeSeq)
	}

	var messages []*models.Message
	if err := q.
		Preload("Sender").
		Preload("Reactions").
		Order("messages.seq DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	// Fetched newest-first to honor the limit; clients expect oldest -> newest.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) MaxSeq(ctx context.Context, convID uint) (uint64, error) {
	var maxSeq *uint64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", convID).
		Select("MAX(seq)").
		Scan(&maxSeq).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

func (r *chatRepository) HideMessage(ctx context.Context, msgID, userID uint) error {
	hide := models.MessageHide{MessageID: msgID, UserID: userID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&hide).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) GetReaction(ctx context.Context, msgID, userID uint) (*models.MessageReaction, error) {
	var reaction models.MessageReaction
	if err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		First(&reaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &reaction, nil
}

func (r *chatRepository) GetReactions(ctx context.Context, msgID uint) ([]models.MessageReaction, error) {
	var reactions []models.MessageReaction
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", msgID).
		Order("created_at ASC").
		Find(&reactions).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return reactions, nil
}

func (r *chatRepository) UpsertReaction(ctx context.Context, reaction *models.MessageReaction) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"emoji", "created_at"}),
		}).
		Create(reaction).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) DeleteReaction(ctx context.Context, msgID, userID uint) error {
	if err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", msgID, userID).
		Delete(&models.MessageReaction{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) UpdateLastSeen(ctx context.Context, convID, userID uint) error {
	if err := r.db.WithContext(ctx).
		Model(&models.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("last_seen_at", time.Now()).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *chatRepository) CountUnseen(ctx context.Context, convID, userID uint) (int, error) {
	var member models.ConversationMember
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, models.NewInternalError(err)
	}

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id != ? AND created_at > ? AND deleted_for_all = ?",
			convID, userID, member.LastSeenAt, false).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return int(count), nil
}
