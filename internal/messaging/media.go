package messaging

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

// MaxMessageImages bounds the files accepted with one message.
const MaxMessageImages = 5

// UpdateThumb uploads a new group thumb and replaces the old one.
func (s *Service) UpdateThumb(ctx context.Context, actor, conversationID string, file registrymedia.File) (*model.ConversationView, error) {
	c, err := s.group(ctx, conversationID, actor, registrystore.AccessAdmin)
	if err != nil {
		return nil, err
	}
	up, err := s.media.Upload(ctx, file, registrymedia.CategoryThumb)
	if err != nil {
		return nil, err
	}

	before, after, err := s.mutate(ctx, c.ID, registrystore.Mutation{
		RequireGroup: true,
		AdminIs:      actor,
		SetThumb:     &up.URL,
	})
	if err != nil {
		s.destroy(ctx, up.URL, registrymedia.CategoryThumb)
		return nil, err
	}
	if before.Thumb != "" && before.Thumb != up.URL {
		s.destroy(ctx, before.Thumb, registrymedia.CategoryThumb)
	}
	log.Info("Thumb updated", "conversationId", after.ID, "actor", actor)

	s.systemMessage(ctx, after, actor, model.MessageTypeThumb, "Changed conversation thumb")
	s.notifyMembers(after.Members, after.ID, model.TagUpdateThumb, model.ThumbData{Thumb: up.URL})
	return s.conversationView(ctx, after, false)
}

// SendMessageWithImages uploads files as chat images and sends them with
// content. Uploads are destroyed again when the message cannot be sent.
func (s *Service) SendMessageWithImages(ctx context.Context, sender, conversationID, content string, files []registrymedia.File) (*model.MessageView, error) {
	if len(files) > MaxMessageImages {
		return nil, &registrystore.ValidationError{Field: "chats", Message: "at most 5 images per message"}
	}
	if _, err := s.conversation(ctx, conversationID, sender, registrystore.AccessMember); err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		up, err := s.media.Upload(ctx, f, registrymedia.CategoryChat)
		if err != nil {
			s.destroyAll(ctx, urls, registrymedia.CategoryChat)
			return nil, err
		}
		urls = append(urls, up.URL)
	}
	view, err := s.SendMessage(ctx, sender, conversationID, content, urls)
	if err != nil {
		s.destroyAll(ctx, urls, registrymedia.CategoryChat)
		return nil, err
	}
	return view, nil
}

func (s *Service) destroyAll(ctx context.Context, urls []string, category registrymedia.Category) {
	for _, u := range urls {
		s.destroy(ctx, u, category)
	}
}

func (s *Service) destroy(ctx context.Context, url string, category registrymedia.Category) {
	if err := s.media.Destroy(ctx, url, category); err != nil {
		log.Warn("Media destroy failed", "url", url, "category", category, "err", err)
	}
}
