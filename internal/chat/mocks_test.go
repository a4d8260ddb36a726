package chat

import (
	"context"
	"sync"

	"localchat-backend/internal/delivery"
	"localchat-backend/internal/models"
	"localchat-backend/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory implementation of every store interface the
// service composes over, sharing one dataset so joins behave like the real
// schema.
type memStore struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	chats    map[uuid.UUID]*models.Chat
	members  map[uuid.UUID][]models.ChatMember
	messages map[uuid.UUID][]*models.Message
	receipts map[uuid.UUID]map[uuid.UUID]*models.ReadReceipt
	alerts   []*models.Alert
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]*models.User),
		chats:    make(map[uuid.UUID]*models.Chat),
		members:  make(map[uuid.UUID][]models.ChatMember),
		messages: make(map[uuid.UUID][]*models.Message),
		receipts: make(map[uuid.UUID]map[uuid.UUID]*models.ReadReceipt),
	}
}

func (m *memStore) addUser(username, postalCode string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.New(), Username: username, Email: username + "@example.com", PostalCode: postalCode}
	m.users[u.ID] = u
	return u
}

// --- UserStore ---

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (m *memStore) SearchUsers(_ context.Context, query string, limit int) ([]*models.User, error) {
	return nil, nil
}

// --- ChatStore ---

func (m *memStore) CreateChat(_ context.Context, chat *models.Chat, members []models.ChatMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chat.ID] = chat
	m.members[chat.ID] = append(m.members[chat.ID], members...)
	return nil
}

func (m *memStore) GetChatByID(_ context.Context, chatID uuid.UUID) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.chats[chatID]; ok {
		return c, nil
	}
	return nil, store.ErrChatNotFound
}

func (m *memStore) GetDirectChatByMembers(_ context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chats {
		if c.IsGroup {
			continue
		}
		var hasA, hasB bool
		for _, mem := range m.members[id] {
			if mem.UserID == userA {
				hasA = true
			}
			if mem.UserID == userB {
				hasB = true
			}
		}
		if hasA && hasB && len(m.members[id]) == 2 {
			return c, nil
		}
	}
	return nil, store.ErrChatNotFound
}

func (m *memStore) ListChatsForUser(_ context.Context, userID uuid.UUID) ([]*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Chat
	for id, c := range m.chats {
		for _, mem := range m.members[id] {
			if mem.UserID == userID {
				cc := *c
				if msgs := m.messages[id]; len(msgs) > 0 {
					cc.LastMessage = msgs[len(msgs)-1]
				}
				out = append(out, &cc)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) ListGeoGroups(_ context.Context) ([]*models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Chat
	for _, c := range m.chats {
		if c.HasGeo() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) GetChatMembers(_ context.Context, chatID uuid.UUID) ([]models.MemberInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MemberInfo
	for _, mem := range m.members[chatID] {
		info := models.MemberInfo{UserID: mem.UserID, Role: mem.Role}
		if u, ok := m.users[mem.UserID]; ok {
			info.Username = u.Username
			info.PostalCode = u.PostalCode
		}
		out = append(out, info)
	}
	return out, nil
}

func (m *memStore) GetMemberRole(_ context.Context, chatID, userID uuid.UUID) (models.MemberRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members[chatID] {
		if mem.UserID == userID {
			return mem.Role, nil
		}
	}
	return "", store.ErrMemberNotFound
}

func (m *memStore) AddMember(_ context.Context, member models.ChatMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members[member.ChatID] {
		if mem.UserID == member.UserID {
			return nil
		}
	}
	m.members[member.ChatID] = append(m.members[member.ChatID], member)
	return nil
}

func (m *memStore) RemoveMember(_ context.Context, chatID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mems := m.members[chatID]
	for i, mem := range mems {
		if mem.UserID == userID {
			m.members[chatID] = append(mems[:i:i], mems[i+1:]...)
			return nil
		}
	}
	return store.ErrMemberNotFound
}

func (m *memStore) CountMembers(_ context.Context, chatID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members[chatID]), nil
}

func (m *memStore) DeleteChatCascade(_ context.Context, chatID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, chatID)
	delete(m.members, chatID)
	delete(m.messages, chatID)
	delete(m.receipts, chatID)
	return nil
}

// --- MessageStore ---

func (m *memStore) CreateMessage(_ context.Context, message *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.ChatID] = append(m.messages[message.ChatID], message)
	return nil
}

func (m *memStore) ListByChatID(_ context.Context, chatID uuid.UUID, limit, offset int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[chatID]
	if offset >= len(msgs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	out := make([]*models.Message, end-offset)
	copy(out, msgs[offset:end])
	return out, nil
}

func (m *memStore) GetMessageByID(_ context.Context, messageID uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.ID == messageID {
				return msg, nil
			}
		}
	}
	return nil, store.ErrMessageNotFound
}

// --- ReceiptStore ---

func (m *memStore) Upsert(_ context.Context, receipt *models.ReadReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.receipts[receipt.ChatID] == nil {
		m.receipts[receipt.ChatID] = make(map[uuid.UUID]*models.ReadReceipt)
	}
	m.receipts[receipt.ChatID][receipt.UserID] = receipt
	return nil
}

func (m *memStore) ListByChatIDReceipts(chatID uuid.UUID) []*models.ReadReceipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ReadReceipt
	for _, r := range m.receipts[chatID] {
		out = append(out, r)
	}
	return out
}

// --- AlertStore ---

func (m *memStore) Create(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return nil
}

func (m *memStore) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) alertsFor(userID uuid.UUID) []*models.Alert {
	out, _ := m.ListForUser(context.Background(), userID, 1000)
	return out
}

// receiptStore adapts memStore to the ReceiptStore interface; ListByChatID
// clashes with MessageStore's method of the same name.
type receiptStore struct{ *memStore }

func (r receiptStore) ListByChatID(_ context.Context, chatID uuid.UUID) ([]*models.ReadReceipt, error) {
	return r.memStore.ListByChatIDReceipts(chatID), nil
}

// fakeBus records every published delivery.
type fakeBus struct {
	mu        sync.Mutex
	published []delivery.Delivery
}

func (b *fakeBus) PublishToUser(_ context.Context, userID uuid.UUID, event delivery.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, delivery.Delivery{Topic: delivery.UserTopic(userID), Event: event})
	return nil
}

func (b *fakeBus) PublishToChat(_ context.Context, chatID uuid.UUID, event delivery.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, delivery.Delivery{Topic: delivery.ChatTopic(chatID), Event: event})
	return nil
}

func (b *fakeBus) eventsOn(topic string) []delivery.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []delivery.Event
	for _, d := range b.published {
		if d.Topic == topic {
			out = append(out, d.Event)
		}
	}
	return out
}

func newTestService(ms *memStore, bus *fakeBus, radiusKm float64) *Service {
	return NewService(ms, ms, receiptStore{ms}, ms, ms, bus, radiusKm)
}
