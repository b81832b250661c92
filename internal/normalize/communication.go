package normalize

import (
	"strings"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// Notification normalizes a notification document. Documents written before the
// status field existed carry a boolean "read" flag instead.
func Notification(doc models.Document) models.NotificationRecord {
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	record := models.NotificationRecord{ID: doc.ID}
	record.UserID, _ = firstString(data, "userId", "user_id", "recipientId")
	record.Type, _ = firstString(data, "type")
	if record.Type == "" {
		record.Type = "general"
	}
	record.Title, _ = firstString(data, "title")
	record.Message, _ = firstString(data, "message", "body")
	record.ActionLink, _ = firstString(data, "actionLink", "link")
	record.ContentID, _ = firstString(data, "contentId")

	record.Status = models.NotificationUnread
	if status, ok := firstString(data, "status"); ok {
		switch models.NotificationStatus(strings.ToLower(status)) {
		case models.NotificationRead:
			record.Status = models.NotificationRead
		case models.NotificationArchived:
			record.Status = models.NotificationArchived
		case models.NotificationDeleted:
			record.Status = models.NotificationDeleted
		}
	} else if read, ok := asBool(data["read"]); ok && read {
		record.Status = models.NotificationRead
	}

	for _, key := range []string{"createdAt", "timestamp"} {
		if t, ok := asTime(data[key]); ok {
			record.CreatedAt = t
			break
		}
	}

	return record
}

// Message normalizes a chat message document.
func Message(doc models.Document) models.MessageRecord {
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	record := models.MessageRecord{ID: doc.ID, Status: models.MessageSent}
	record.ChatID, _ = firstString(data, "chatId")
	record.ReceiverID, _ = firstString(data, "receiverId")
	record.Content, _ = firstString(data, "content", "text", "message")

	record.Sender = models.Author{ID: UnknownAuthorID, Name: UnknownAuthorName, Role: models.RoleUser}
	if sender, ok := asMap(data["sender"]); ok {
		if id, ok := firstString(sender, "id", "userId"); ok {
			record.Sender.ID = id
		}
		if name, ok := firstString(sender, "name"); ok {
			record.Sender.Name = name
		}
		if role, ok := firstString(sender, "role"); ok {
			record.Sender.Role = role
		}
	} else {
		if id, ok := firstString(data, "senderId"); ok {
			record.Sender.ID = id
		}
		if name, ok := firstString(data, "senderName"); ok {
			record.Sender.Name = name
		}
		if role, ok := firstString(data, "senderRole"); ok {
			record.Sender.Role = role
		}
	}

	if status, ok := firstString(data, "status"); ok && strings.EqualFold(status, models.MessageRead) {
		record.Status = models.MessageRead
	}

	for _, key := range []string{"timestamp", "createdAt"} {
		if t, ok := asTime(data[key]); ok {
			record.Timestamp = t
			break
		}
	}

	return record
}

// Chat normalizes a chat document. Older chats store participants as a bare
// list of user ids.
func Chat(doc models.Document) models.ChatRecord {
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	record := models.ChatRecord{ID: doc.ID, Participants: []models.Participant{}, Status: models.ChatActive}
	presence, _ := asMap(data["presence"])

	if raw, ok := data["participants"].([]any); ok {
		for _, item := range raw {
			participant := models.Participant{Role: models.RoleUser}
			switch v := item.(type) {
			case map[string]any:
				participant.UserID, _ = firstString(v, "userId", "id")
				if role, ok := firstString(v, "role"); ok {
					participant.Role = role
				}
				participant.Name, _ = firstString(v, "name")
				participant.Presence, _ = firstString(v, "presence", "status")
			default:
				participant.UserID, _ = asString(v)
			}
			if participant.UserID == "" {
				continue
			}
			record.Participants = append(record.Participants, participant)
		}
	} else if ids, ok := asStrings(data["participants"]); ok {
		for _, id := range ids {
			record.Participants = append(record.Participants, models.Participant{UserID: id, Role: models.RoleUser})
		}
	}

	for i := range record.Participants {
		participant := &record.Participants[i]
		if status, ok := asString(presence[participant.UserID]); ok {
			participant.Presence = status
		}
		if participant.Presence == "" {
			participant.Presence = models.PresenceOffline
		}
		if participant.Name == "" {
			participant.Name = participant.UserID
		}
	}

	if last, ok := asMap(data["lastMessage"]); ok {
		record.LastMessage.Content, _ = firstString(last, "content", "text")
		record.LastMessage.SenderID, _ = firstString(last, "senderId")
		record.LastMessage.Timestamp, _ = asTime(last["timestamp"])
	} else if text, ok := asString(data["lastMessage"]); ok {
		record.LastMessage.Content = text
		record.LastMessage.Timestamp, _ = asTime(data["lastMessageAt"])
	}

	if status, ok := firstString(data, "status"); ok && strings.EqualFold(status, models.ChatClosed) {
		record.Status = models.ChatClosed
	}

	record.CreatedAt, _ = asTime(data["createdAt"])
	record.UpdatedAt, _ = asTime(data["updatedAt"])

	return record
}
