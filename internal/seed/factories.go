// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"chatter/internal/models"
)

// SeedOptions tunes how the factory generates data.
type SeedOptions struct {
	// SkipBcrypt stores passwords in plain text to speed up large seeds.
	// Dev only; such accounts cannot log in.
	SkipBcrypt bool
	// MaxDays spreads created_at timestamps over this many days back.
	MaxDays int
	// DryRun logs what would be created without touching the database.
	DryRun bool
}

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	opts SeedOptions
	rng  *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts SeedOptions) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:     db,
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		nextID: 1000,
	}
}

// CreateUser constructs and persists a sample user. Optional override
// functions may modify the generated user before saving.
func (f *Factory) CreateUser(overrides ...func(*models.User)) (*models.User, error) {
	user := &models.User{
		Name:   gofakeit.Name(),
		Phone:  fmt.Sprintf("+1%d", gofakeit.Number(2000000000, 9999999999)),
		Avatar: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", gofakeit.UUID()),
	}

	if f.opts.SkipBcrypt {
		user.Password = "password123"
	} else {
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
		user.Password = string(hashedPassword)
	}

	for _, override := range overrides {
		override(user)
	}

	if f.opts.DryRun {
		f.nextID++
		user.ID = f.nextID
		log.Printf("[dry-run] CreateUser: %s (%s)", user.Name, user.Phone)
		return user, nil
	}

	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateFriendship persists an accepted friendship between two users.
func (f *Factory) CreateFriendship(a, b *models.User) (*models.Friendship, error) {
	friendship := &models.Friendship{
		RequesterID: a.ID,
		AddresseeID: b.ID,
		Status:      models.FriendshipStatusAccepted,
	}

	if f.opts.DryRun {
		f.nextID++
		friendship.ID = f.nextID
		log.Printf("[dry-run] CreateFriendship: %d <-> %d", a.ID, b.ID)
		return friendship, nil
	}

	if err := f.db.Create(friendship).Error; err != nil {
		return nil, err
	}
	return friendship, nil
}

// CreateDirectConversation persists a direct conversation between two users,
// with both as members.
func (f *Factory) CreateDirectConversation(a, b *models.User) (*models.Conversation, error) {
	pairKey := models.PairKey(a.ID, b.ID)
	conv := &models.Conversation{
		IsGroup:   false,
		CreatedBy: a.ID,
		PairKey:   &pairKey,
	}

	if f.opts.DryRun {
		f.nextID++
		conv.ID = f.nextID
		log.Printf("[dry-run] CreateDirectConversation: %d <-> %d", a.ID, b.ID)
		return conv, nil
	}

	if err := f.db.Omit("Participants").Create(conv).Error; err != nil {
		return nil, err
	}
	for _, u := range []*models.User{a, b} {
		member := &models.ConversationMember{
			ConversationID: conv.ID,
			UserID:         u.ID,
			LastSeenAt:     time.Now(),
		}
		if err := f.db.Create(member).Error; err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// CreateGroupConversation persists a named group with the given members.
func (f *Factory) CreateGroupConversation(creator *models.User, members []*models.User) (*models.Conversation, error) {
	conv := &models.Conversation{
		IsGroup:   true,
		Name:      gofakeit.NounCollectiveThing() + " " + gofakeit.PetName(),
		Avatar:    fmt.Sprintf("https://i.pravatar.cc/150?u=group-%s", gofakeit.UUID()),
		CreatedBy: creator.ID,
	}

	if f.opts.DryRun {
		f.nextID++
		conv.ID = f.nextID
		log.Printf("[dry-run] CreateGroupConversation: %q with %d members", conv.Name, len(members)+1)
		return conv, nil
	}

	if err := f.db.Omit("Participants").Create(conv).Error; err != nil {
		return nil, err
	}
	all := append([]*models.User{creator}, members...)
	for _, u := range all {
		member := &models.ConversationMember{
			ConversationID: conv.ID,
			UserID:         u.ID,
			LastSeenAt:     time.Now(),
		}
		if err := f.db.Create(member).Error; err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// BuildMessage constructs a message with a realistic timestamp spread but
// does not persist it. Useful for batching.
func (f *Factory) BuildMessage(conv *models.Conversation, sender *models.User, seq uint64) *models.Message {
	msg := &models.Message{
		ConversationID: conv.ID,
		Seq:            seq,
		SenderID:       sender.ID,
		Text:           gofakeit.Sentence(f.rng.Intn(12) + 2),
	}

	// One in eight messages carries media instead of text.
	if f.rng.Intn(8) == 0 {
		msg.Text = ""
		msg.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID())
	}

	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	daysBack := f.rng.Intn(maxDays)
	minsBack := f.rng.Intn(24 * 60)
	msg.CreatedAt = time.Now().
		Add(-time.Duration(daysBack) * 24 * time.Hour).
		Add(-time.Duration(minsBack) * time.Minute)

	return msg
}

// CreateMessagesBatch persists multiple messages in a single DB call when
// possible.
func (f *Factory) CreateMessagesBatch(msgs []*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if f.opts.DryRun {
		for _, m := range msgs {
			f.nextID++
			m.ID = f.nextID
		}
		log.Printf("[dry-run] CreateMessagesBatch: %d messages (no DB write)", len(msgs))
		return nil
	}
	return f.db.Omit("Sender", "Reactions").Create(&msgs).Error
}

// CreateReaction persists a single reaction on a message.
func (f *Factory) CreateReaction(msg *models.Message, user *models.User) error {
	emojis := []string{"👍", "❤️", "😂", "😮", "😢", "🙏"}
	reaction := &models.MessageReaction{
		MessageID: msg.ID,
		UserID:    user.ID,
		Emoji:     emojis[f.rng.Intn(len(emojis))],
	}

	if f.opts.DryRun {
		log.Printf("[dry-run] CreateReaction: %s on message %d", reaction.Emoji, msg.ID)
		return nil
	}
	return f.db.Create(reaction).Error
}
