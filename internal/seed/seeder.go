package seed

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"chatter/internal/models"
)

// Seeder orchestrates demo-data generation on top of the Factory.
type Seeder struct {
	db      *gorm.DB
	factory *Factory
}

// NewSeeder creates a Seeder with default options.
func NewSeeder(db *gorm.DB, opts SeedOptions) *Seeder {
	return &Seeder{db: db, factory: NewFactory(db, opts)}
}

// ClearAll wipes every seeded table. Order matters for foreign keys.
func (s *Seeder) ClearAll() error {
	log.Println("Clearing existing data...")
	tables := []string{
		"message_reactions",
		"message_hides",
		"messages",
		"conversation_members",
		"conversations",
		"friendships",
		"users",
	}
	for _, table := range tables {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// SeedChatMesh creates users, friendships between them, direct conversations
// with message history, and a handful of groups.
func (s *Seeder) SeedChatMesh(numUsers, messagesPerConv int) ([]*models.User, error) {
	if numUsers < 2 {
		return nil, fmt.Errorf("need at least 2 users, got %d", numUsers)
	}

	users := make([]*models.User, 0, numUsers)
	for i := 0; i < numUsers; i++ {
		user, err := s.factory.CreateUser()
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
	}
	log.Printf("Created %d users", len(users))

	// Each user befriends roughly a third of the users after them, so the
	// graph is connected but not complete.
	pairs := 0
	for i := range users {
		for j := i + 1; j < len(users); j++ {
			if s.factory.rng.Intn(3) != 0 {
				continue
			}
			if _, err := s.factory.CreateFriendship(users[i], users[j]); err != nil {
				return nil, fmt.Errorf("create friendship: %w", err)
			}
			conv, err := s.factory.CreateDirectConversation(users[i], users[j])
			if err != nil {
				return nil, fmt.Errorf("create conversation: %w", err)
			}
			if err := s.seedHistory(conv, []*models.User{users[i], users[j]}, messagesPerConv); err != nil {
				return nil, err
			}
			pairs++
		}
	}
	log.Printf("Created %d friendships with conversations", pairs)

	// A few groups of 3-6 random members.
	numGroups := numUsers / 10
	if numGroups < 1 {
		numGroups = 1
	}
	for g := 0; g < numGroups; g++ {
		size := s.factory.rng.Intn(4) + 3
		if size > len(users) {
			size = len(users)
		}
		perm := s.factory.rng.Perm(len(users))[:size]
		members := make([]*models.User, 0, size)
		for _, idx := range perm {
			members = append(members, users[idx])
		}
		group, err := s.factory.CreateGroupConversation(members[0], members[1:])
		if err != nil {
			return nil, fmt.Errorf("create group: %w", err)
		}
		if err := s.seedHistory(group, members, messagesPerConv); err != nil {
			return nil, err
		}
	}
	log.Printf("Created %d groups", numGroups)

	return users, nil
}

// seedHistory fills a conversation with a batch of messages and sprinkles
// reactions over the most recent ones.
func (s *Seeder) seedHistory(conv *models.Conversation, members []*models.User, count int) error {
	msgs := make([]*models.Message, 0, count)
	for seq := 1; seq <= count; seq++ {
		sender := members[s.factory.rng.Intn(len(members))]
		msgs = append(msgs, s.factory.BuildMessage(conv, sender, uint64(seq)))
	}
	if err := s.factory.CreateMessagesBatch(msgs); err != nil {
		return fmt.Errorf("create messages: %w", err)
	}

	for _, msg := range msgs {
		if s.factory.rng.Intn(6) != 0 {
			continue
		}
		reactor := members[s.factory.rng.Intn(len(members))]
		if reactor.ID == msg.SenderID {
			continue
		}
		if err := s.factory.CreateReaction(msg, reactor); err != nil {
			return fmt.Errorf("create reaction: %w", err)
		}
	}
	return nil
}
