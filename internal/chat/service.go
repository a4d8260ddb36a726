package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"localchat-backend/internal/apperr"
	"localchat-backend/internal/delivery"
	"localchat-backend/internal/geo"
	"localchat-backend/internal/models"
	"localchat-backend/internal/store"

	"github.com/google/uuid"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

// Service owns the chat operations and their publish side effects. Every
// publish happens after the corresponding write commits, never before.
type Service struct {
	chats    store.ChatStore
	messages store.MessageStore
	receipts store.ReceiptStore
	alerts   store.AlertStore
	users    store.UserStore
	bus      delivery.Bus

	// Radius assigned to newly created local groups, in kilometers.
	localGroupRadiusKm float64
}

func NewService(
	chats store.ChatStore,
	messages store.MessageStore,
	receipts store.ReceiptStore,
	alerts store.AlertStore,
	users store.UserStore,
	bus delivery.Bus,
	localGroupRadiusKm float64,
) *Service {
	return &Service{
		chats:              chats,
		messages:           messages,
		receipts:           receipts,
		alerts:             alerts,
		users:              users,
		bus:                bus,
		localGroupRadiusKm: localGroupRadiusKm,
	}
}

// ListChats returns a summary for every chat the user belongs to and publishes
// the same payload to the caller's user topic so other open sessions refresh.
func (s *Service) ListChats(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	caller, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.NotFoundf("user %s not found", userID)
		}
		return nil, apperr.Storage("failed to load user", err)
	}

	chats, err := s.chats.ListChatsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage("failed to list chats", err)
	}

	summaries := make([]models.ChatSummary, 0, len(chats))
	for _, chat := range chats {
		members, err := s.chats.GetChatMembers(ctx, chat.ID)
		if err != nil {
			return nil, apperr.Storage("failed to load chat members", err)
		}

		summary := models.ChatSummary{
			ChatID:  chat.ID,
			IsGroup: chat.IsGroup,
			Name:    chat.Name,
			Members: members,
		}
		if !chat.IsGroup {
			for _, m := range members {
				if m.UserID != userID {
					summary.Name = m.Username
					summary.IsNearby = m.PostalCode != "" && m.PostalCode == caller.PostalCode
					break
				}
			}
		}
		if chat.LastMessage != nil {
			summary.LastMessage = chat.LastMessage.Content
			ts := chat.LastMessage.Timestamp
			summary.LastMessageAt = &ts
		}
		summaries = append(summaries, summary)
	}

	if event, err := delivery.NewEvent(delivery.EventListUpdate, summaries); err == nil {
		if pubErr := s.bus.PublishToUser(ctx, userID, event); pubErr != nil {
			log.Printf("ChatService: Failed to publish list update for user %s: %v", userID, pubErr)
		}
	}

	return summaries, nil
}

// CreateChat creates a chat and its memberships. For a two-party non-group
// request it is idempotent: when a direct chat for the pair already exists it
// is returned with created=false instead of creating a duplicate. The
// existence check and insert are not serialized against concurrent callers;
// that check-then-act window is a documented race, not a hidden one.
func (s *Service) CreateChat(ctx context.Context, userID uuid.UUID, participantIDs []uuid.UUID, isGroup bool, groupName string) (*models.Chat, bool, error) {
	if userID == uuid.Nil {
		return nil, false, apperr.Validationf("user_id is required")
	}
	if len(participantIDs) == 0 {
		return nil, false, apperr.Validationf("participant_ids must not be empty")
	}

	creator, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, false, apperr.NotFoundf("user %s not found", userID)
		}
		return nil, false, apperr.Storage("failed to load creator", err)
	}

	// De-duplicate the participant list and drop the creator if present.
	others := make([]uuid.UUID, 0, len(participantIDs))
	seen := map[uuid.UUID]bool{userID: true}
	for _, id := range participantIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		others = append(others, id)
	}
	if len(others) == 0 {
		return nil, false, apperr.Validationf("chat requires at least one participant besides the creator")
	}

	if !isGroup {
		if len(others) != 1 {
			return nil, false, apperr.Validationf("a direct chat has exactly two members")
		}
		existing, err := s.chats.GetDirectChatByMembers(ctx, userID, others[0])
		if err != nil && !errors.Is(err, store.ErrChatNotFound) {
			return nil, false, apperr.Storage("failed to check for existing direct chat", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	chat := &models.Chat{
		ID:        uuid.New(),
		IsGroup:   isGroup,
		CreatedBy: userID,
	}
	if isGroup {
		chat.Name = groupName
	}

	members := make([]models.ChatMember, 0, len(others)+1)
	members = append(members, models.ChatMember{ChatID: chat.ID, UserID: userID, Role: models.RoleOwner})
	for _, id := range others {
		members = append(members, models.ChatMember{ChatID: chat.ID, UserID: id, Role: models.RoleMember})
	}

	if err := s.chats.CreateChat(ctx, chat, members); err != nil {
		return nil, false, apperr.Storage("failed to create chat", err)
	}

	// One alert per non-creator participant. A side effect of creation, not
	// best-effort.
	for _, id := range others {
		alert := &models.Alert{
			ID:     uuid.New(),
			UserID: id,
			ChatID: chat.ID,
			Body:   fmt.Sprintf("%s added you to a new chat", creator.Username),
		}
		if err := s.alerts.Create(ctx, alert); err != nil {
			return nil, false, apperr.Storage("failed to write chat alert", err)
		}
		if event, evtErr := delivery.NewEvent(delivery.EventListUpdateTrigger, nil); evtErr == nil {
			if pubErr := s.bus.PublishToUser(ctx, id, event); pubErr != nil {
				log.Printf("ChatService: Failed to notify user %s of new chat %s: %v", id, chat.ID, pubErr)
			}
		}
	}

	return chat, true, nil
}

// SendMessage persists a message and publishes it to the chat topic, plus a
// list-changed hint to the sender's own topic.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string, messageType models.MessageType) (*models.Message, error) {
	if senderID == uuid.Nil {
		return nil, apperr.Validationf("sender_id is required")
	}
	if content == "" {
		return nil, apperr.Validationf("message content is required")
	}
	if messageType == "" {
		messageType = models.MessageTypeText
	}

	// Location payloads are canonicalized into a fixed textual encoding so the
	// message storage stays schema-agnostic to payload shape.
	if messageType == models.MessageTypeLocation {
		payload, err := models.ParseLocationContent(content)
		if err != nil {
			return nil, apperr.Validationf("invalid location message: %v", err)
		}
		content = payload.Encode()
	}

	if _, err := s.chats.GetChatByID(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			return nil, apperr.NotFoundf("chat %s not found", chatID)
		}
		return nil, apperr.Storage("failed to load chat", err)
	}

	sender, err := s.users.GetUserByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, apperr.NotFoundf("user %s not found", senderID)
		}
		return nil, apperr.Storage("failed to load sender", err)
	}

	message := &models.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Type:      messageType,
		Timestamp: models.JSONTime(time.Now().UTC()),
		Sender:    sender.ToPublicUser(),
	}
	if err := s.messages.CreateMessage(ctx, message); err != nil {
		return nil, apperr.Storage("failed to store message", err)
	}

	if event, err := delivery.NewEvent(delivery.EventNewMessage, message); err == nil {
		if pubErr := s.bus.PublishToChat(ctx, chatID, event); pubErr != nil {
			log.Printf("ChatService: Failed to publish message %s to chat %s: %v", message.ID, chatID, pubErr)
		}
	}
	if event, err := delivery.NewEvent(delivery.EventListUpdateTrigger, nil); err == nil {
		if pubErr := s.bus.PublishToUser(ctx, senderID, event); pubErr != nil {
			log.Printf("ChatService: Failed to publish list hint for sender %s: %v", senderID, pubErr)
		}
	}

	return message, nil
}

// ListMessages returns one page of a chat's messages, oldest-first within the
// page.
func (s *Service) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 || limit > maxMessagePageSize {
		limit = defaultMessagePageSize
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.chats.GetChatByID(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			return nil, apperr.NotFoundf("chat %s not found", chatID)
		}
		return nil, apperr.Storage("failed to load chat", err)
	}

	messages, err := s.messages.ListByChatID(ctx, chatID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("failed to list messages", err)
	}
	return messages, nil
}

// RecordReadReceipt upserts the caller's read position and publishes the
// receipt to the chat topic. The message must exist and belong to the chat;
// whether it advances the previous read position is not enforced.
func (s *Service) RecordReadReceipt(ctx context.Context, chatID, userID, messageID uuid.UUID) (*models.ReadReceipt, error) {
	if chatID == uuid.Nil || userID == uuid.Nil || messageID == uuid.Nil {
		return nil, apperr.Validationf("chat_id, user_id and message_id are required")
	}

	message, err := s.messages.GetMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrMessageNotFound) {
			return nil, apperr.NotFoundf("message %s not found", messageID)
		}
		return nil, apperr.Storage("failed to load message", err)
	}
	if message.ChatID != chatID {
		return nil, apperr.Validationf("message %s does not belong to chat %s", messageID, chatID)
	}

	receipt := &models.ReadReceipt{
		ChatID:    chatID,
		UserID:    userID,
		MessageID: messageID,
		ReadAt:    time.Now().UTC(),
	}
	if err := s.receipts.Upsert(ctx, receipt); err != nil {
		return nil, apperr.Storage("failed to record read receipt", err)
	}

	if event, err := delivery.NewEvent(delivery.EventReadReceipt, receipt); err == nil {
		if pubErr := s.bus.PublishToChat(ctx, chatID, event); pubErr != nil {
			log.Printf("ChatService: Failed to publish read receipt for chat %s: %v", chatID, pubErr)
		}
	}

	return receipt, nil
}

// RemoveMember removes userID from the chat on behalf of requestedBy. Only an
// owner may remove another member, and an owner may not remove themself
// through this path. Removing the last member cascades deletion of the chat's
// messages, receipts and the chat row itself.
func (s *Service) RemoveMember(ctx context.Context, chatID, userID, requestedBy uuid.UUID) error {
	if userID == uuid.Nil || requestedBy == uuid.Nil {
		return apperr.Validationf("user_id and requested_by are required")
	}
	if userID == requestedBy {
		return apperr.Validationf("owners cannot remove themselves through this operation")
	}

	role, err := s.chats.GetMemberRole(ctx, chatID, requestedBy)
	if err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return apperr.Permissionf("requester %s is not a member of chat %s", requestedBy, chatID)
		}
		return apperr.Storage("failed to load requester role", err)
	}
	if role != models.RoleOwner {
		return apperr.Permissionf("only the chat owner may remove members")
	}

	if err := s.chats.RemoveMember(ctx, chatID, userID); err != nil {
		if errors.Is(err, store.ErrMemberNotFound) {
			return apperr.NotFoundf("user %s is not a member of chat %s", userID, chatID)
		}
		return apperr.Storage("failed to remove member", err)
	}

	remaining, err := s.chats.CountMembers(ctx, chatID)
	if err != nil {
		return apperr.Storage("failed to count remaining members", err)
	}
	if remaining == 0 {
		if err := s.chats.DeleteChatCascade(ctx, chatID); err != nil {
			return apperr.Storage("failed to garbage-collect empty chat", err)
		}
	}
	return nil
}

// ListReadReceipts returns the per-user read markers for a chat.
func (s *Service) ListReadReceipts(ctx context.Context, chatID uuid.UUID) ([]*models.ReadReceipt, error) {
	receipts, err := s.receipts.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, apperr.Storage("failed to list read receipts", err)
	}
	return receipts, nil
}

// ListAlerts returns the most recent notification alerts for a user.
func (s *Service) ListAlerts(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Alert, error) {
	if limit <= 0 || limit > maxMessagePageSize {
		limit = defaultMessagePageSize
	}
	alerts, err := s.alerts.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Storage("failed to list alerts", err)
	}
	return alerts, nil
}

// JoinOrCreateLocalGroup adds the user to the nearest group chat whose radius
// contains the point, or creates a new local group centered there. Two users
// at the same location may race past the "no match" check and both create a
// group; that duplicate is accepted rather than serialized.
func (s *Service) JoinOrCreateLocalGroup(ctx context.Context, userID uuid.UUID, point geo.Point) (*models.Chat, bool, error) {
	if userID == uuid.Nil {
		return nil, false, apperr.Validationf("userId is required")
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, false, apperr.NotFoundf("user %s not found", userID)
		}
		return nil, false, apperr.Storage("failed to load user", err)
	}

	candidates, err := s.chats.ListGeoGroups(ctx)
	if err != nil {
		return nil, false, apperr.Storage("failed to list local groups", err)
	}

	if match := geo.NearestEligibleGroup(point, candidates); match != nil {
		// Re-joining an already joined group is a no-op, not an error.
		member := models.ChatMember{ChatID: match.ID, UserID: userID, Role: models.RoleMember}
		if err := s.chats.AddMember(ctx, member); err != nil {
			return nil, false, apperr.Storage("failed to join local group", err)
		}
		if err := s.writeLocalGroupAlert(ctx, userID, match.ID, fmt.Sprintf("%s, you joined the local group %q", user.Username, match.Name)); err != nil {
			return nil, false, err
		}
		return match, false, nil
	}

	radius := s.localGroupRadiusKm
	chat := &models.Chat{
		ID:        uuid.New(),
		IsGroup:   true,
		Name:      "Local Group",
		CreatedBy: userID,
		Latitude:  &point.Latitude,
		Longitude: &point.Longitude,
		RadiusKm:  &radius,
	}
	members := []models.ChatMember{{ChatID: chat.ID, UserID: userID, Role: models.RoleOwner}}
	if err := s.chats.CreateChat(ctx, chat, members); err != nil {
		return nil, false, apperr.Storage("failed to create local group", err)
	}
	if err := s.writeLocalGroupAlert(ctx, userID, chat.ID, fmt.Sprintf("%s, a new local group was created for your area", user.Username)); err != nil {
		return nil, false, err
	}
	return chat, true, nil
}

func (s *Service) writeLocalGroupAlert(ctx context.Context, userID, chatID uuid.UUID, body string) error {
	alert := &models.Alert{ID: uuid.New(), UserID: userID, ChatID: chatID, Body: body}
	if err := s.alerts.Create(ctx, alert); err != nil {
		return apperr.Storage("failed to write local group alert", err)
	}
	if event, err := delivery.NewEvent(delivery.EventListUpdateTrigger, nil); err == nil {
		if pubErr := s.bus.PublishToUser(ctx, userID, event); pubErr != nil {
			log.Printf("ChatService: Failed to publish list hint for user %s: %v", userID, pubErr)
		}
	}
	return nil
}
