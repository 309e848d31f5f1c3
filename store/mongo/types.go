package mongo

import (
	"time"

	"github.com/full-stack-biz/mailboxer/store"
)

// Document IDs are UUID strings assigned by the store, matching the
// other backends so a delivery persisted by one backend reads the same
// through another.

type conversationDoc struct {
	ID        string    `bson:"_id"`
	Subject   string    `bson:"subject"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type attachmentDoc struct {
	ID          string    `bson:"id"`
	Filename    string    `bson:"filename"`
	ContentType string    `bson:"content_type"`
	Size        int64     `bson:"size"`
	URI         string    `bson:"uri"`
	CreatedAt   time.Time `bson:"created_at"`
}

type payloadDoc struct {
	ID                 string          `bson:"_id"`
	Kind               string          `bson:"kind"`
	Subject            string          `bson:"subject"`
	Body               string          `bson:"body"`
	SenderType         string          `bson:"sender_type"`
	SenderID           string          `bson:"sender_id"`
	ConversationID     string          `bson:"conversation_id"`
	NotifiedObjectType string          `bson:"notified_object_type"`
	NotifiedObjectID   string          `bson:"notified_object_id"`
	NotificationCode   string          `bson:"notification_code"`
	Global             bool            `bson:"global"`
	ExpiresAt          *time.Time      `bson:"expires_at,omitempty"`
	Attachments        []attachmentDoc `bson:"attachments"`
	CreatedAt          time.Time       `bson:"created_at"`
	UpdatedAt          time.Time       `bson:"updated_at"`
}

type receiptDoc struct {
	ID             string    `bson:"_id"`
	PayloadID      string    `bson:"notification_id"`
	ReceiverType   string    `bson:"receiver_type"`
	ReceiverID     string    `bson:"receiver_id"`
	ConversationID string    `bson:"conversation_id"`
	IsRead         bool      `bson:"is_read"`
	Trashed        bool      `bson:"trashed"`
	Deleted        bool      `bson:"deleted"`
	MailboxType    string    `bson:"mailbox_type"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

type optOutDoc struct {
	ID               string    `bson:"_id"`
	ConversationID   string    `bson:"conversation_id"`
	UnsubscriberType string    `bson:"unsubscriber_type"`
	UnsubscriberID   string    `bson:"unsubscriber_id"`
	CreatedAt        time.Time `bson:"created_at"`
}

func docToConversation(d *conversationDoc) *store.Conversation {
	return &store.Conversation{
		ID:        d.ID,
		Subject:   d.Subject,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func docToPayload(d *payloadDoc) *store.Payload {
	p := &store.Payload{
		ID:                 d.ID,
		Kind:               store.Kind(d.Kind),
		Subject:            d.Subject,
		Body:               d.Body,
		ConversationID:     d.ConversationID,
		NotifiedObjectType: d.NotifiedObjectType,
		NotifiedObjectID:   d.NotifiedObjectID,
		NotificationCode:   d.NotificationCode,
		Global:             d.Global,
		ExpiresAt:          d.ExpiresAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
	if d.SenderType != "" || d.SenderID != "" {
		p.Sender = &store.Identity{Type: d.SenderType, ID: d.SenderID}
	}
	if len(d.Attachments) > 0 {
		p.Attachments = make([]store.Attachment, len(d.Attachments))
		for i, a := range d.Attachments {
			p.Attachments[i] = store.Attachment{
				ID:          a.ID,
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Size:        a.Size,
				URI:         a.URI,
				CreatedAt:   a.CreatedAt,
			}
		}
	}
	return p
}

func payloadToDoc(id string, data *store.PayloadData, now time.Time) *payloadDoc {
	d := &payloadDoc{
		ID:                 id,
		Kind:               string(data.Kind),
		Subject:            data.Subject,
		Body:               data.Body,
		ConversationID:     data.ConversationID,
		NotifiedObjectType: data.NotifiedObjectType,
		NotifiedObjectID:   data.NotifiedObjectID,
		NotificationCode:   data.NotificationCode,
		Global:             data.Global,
		ExpiresAt:          data.ExpiresAt,
		Attachments:        []attachmentDoc{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if data.Sender != nil {
		d.SenderType = data.Sender.Type
		d.SenderID = data.Sender.ID
	}
	for _, a := range data.Attachments {
		d.Attachments = append(d.Attachments, attachmentDoc{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			URI:         a.URI,
			CreatedAt:   a.CreatedAt,
		})
	}
	return d
}

func docToReceipt(d *receiptDoc) *store.Receipt {
	return &store.Receipt{
		ID:             d.ID,
		PayloadID:      d.PayloadID,
		Receiver:       store.Identity{Type: d.ReceiverType, ID: d.ReceiverID},
		ConversationID: d.ConversationID,
		IsRead:         d.IsRead,
		Trashed:        d.Trashed,
		Deleted:        d.Deleted,
		MailboxType:    store.MailboxType(d.MailboxType),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
