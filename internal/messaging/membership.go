package messaging

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

var errDirect = &registrystore.PreconditionError{Message: "operation requires a group conversation"}

// group loads a conversation the actor administers and rejects direct ones.
func (s *Service) group(ctx context.Context, conversationID, actor string, access registrystore.Access) (*model.Conversation, error) {
	c, err := s.conversation(ctx, conversationID, actor, access)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup {
		return nil, errDirect
	}
	return c, nil
}

// AddMembers adds users to a group and returns how many were new.
func (s *Service) AddMembers(ctx context.Context, actor, conversationID string, newMembers []string) (int, *model.ConversationView, error) {
	if len(newMembers) == 0 {
		return 0, nil, &registrystore.ValidationError{Field: "members", Message: "members is required"}
	}
	parsed, err := ids.ParseUsers("members", newMembers)
	if err != nil {
		return 0, nil, err
	}
	if slices.Contains(parsed, actor) {
		return 0, nil, &registrystore.ValidationError{Field: "members", Message: "cannot add yourself"}
	}
	c, err := s.group(ctx, conversationID, actor, registrystore.AccessAdmin)
	if err != nil {
		return 0, nil, err
	}
	if len(registrystore.Mutation{AddMembers: parsed}.Apply(*c).Members) == len(c.Members) {
		return 0, nil, &registrystore.ConflictError{Message: "all users are already members", Code: "already_members"}
	}

	before, after, err := s.mutate(ctx, c.ID, registrystore.Mutation{
		RequireGroup: true,
		AdminIs:      actor,
		AddMembers:   parsed,
	})
	if err != nil {
		return 0, nil, err
	}
	added := len(after.Members) - len(before.Members)
	if added == 0 {
		return 0, nil, &registrystore.ConflictError{Message: "all users are already members", Code: "already_members"}
	}
	log.Info("Members added", "conversationId", after.ID, "actor", actor, "added", added)

	s.systemMessage(ctx, after, actor, model.MessageTypeAddMember, fmt.Sprintf("Added %d member(s)", added))
	s.notifyMembers(after.Members, after.ID, model.TagAddMembers, model.MembersData{Members: after.Members})

	view, err := s.conversationView(ctx, after, false)
	if err != nil {
		return 0, nil, err
	}
	return added, view, nil
}

// RemoveMember removes a non-admin member from a group.
func (s *Service) RemoveMember(ctx context.Context, actor, conversationID, target string) error {
	target, err := ids.ParseUser("memberId", target)
	if err != nil {
		return err
	}
	if target == actor {
		return &registrystore.ValidationError{Field: "memberId", Message: "use leave to remove yourself"}
	}
	c, err := s.group(ctx, conversationID, actor, registrystore.AccessAdmin)
	if err != nil {
		return err
	}
	if !c.HasMember(target) {
		return &registrystore.ValidationError{Field: "memberId", Message: "user is not a member"}
	}
	if c.HasAdmin(target) {
		return &registrystore.ConflictError{Message: "cannot remove an admin", Code: "target_is_admin"}
	}

	_, after, err := s.mutate(ctx, c.ID, registrystore.Mutation{
		RequireGroup:  true,
		AdminIs:       actor,
		MemberIs:      target,
		NotAdmin:      target,
		RemoveMembers: []string{target},
	})
	if err != nil {
		return err
	}
	log.Info("Member removed", "conversationId", after.ID, "actor", actor, "target", target)

	s.events.Publish(target, model.EventConversationUpdate, model.ConversationUpdate{Tag: model.TagIsLeave, ConversationID: after.ID, Data: model.LeftData{}})
	removed, err := s.profile(ctx, target)
	if err != nil {
		log.Warn("Profile lookup failed", "userId", target, "err", err)
		removed = model.Profile{ID: target}
	}
	s.systemMessage(ctx, after, actor, model.MessageTypeRmMember, "Removed "+removed.DisplayName())
	s.notifyMembers(after.Members, after.ID, model.TagRemoveMembers, model.MembersData{Members: after.Members})
	return nil
}

// LeaveConversation removes the actor from a group's members and admins.
func (s *Service) LeaveConversation(ctx context.Context, actor, conversationID string) error {
	c, err := s.group(ctx, conversationID, actor, registrystore.AccessMember)
	if err != nil {
		return err
	}
	if c.IsSoleAdmin(actor) {
		return &registrystore.PreconditionError{Message: "the sole admin cannot leave; promote another admin first"}
	}

	_, after, err := s.mutate(ctx, c.ID, registrystore.Mutation{
		RequireGroup:  true,
		MemberIs:      actor,
		NotSoleAdmin:  actor,
		RemoveMembers: []string{actor},
		RemoveAdmins:  []string{actor},
	})
	if err != nil {
		return err
	}
	log.Info("Member left", "conversationId", after.ID, "userId", actor)

	s.events.Publish(actor, model.EventConversationUpdate, model.ConversationUpdate{Tag: model.TagIsLeave, ConversationID: after.ID, Data: model.LeftData{}})
	s.systemMessage(ctx, after, actor, model.MessageTypeLeave, "Left conversation")
	s.notifyMembers(after.Members, after.ID, model.TagLeaveConversation, model.MembersData{Members: after.Members})
	return nil
}

// AddAdmin promotes a member of a group to admin.
func (s *Service) AddAdmin(ctx context.Context, actor, conversationID, target string) (*model.ConversationView, error) {
	target, err := ids.ParseUser("userId", target)
	if err != nil {
		return nil, err
	}
	if target == actor {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "cannot promote yourself"}
	}
	c, err := s.group(ctx, conversationID, actor, registrystore.AccessAdmin)
	if err != nil {
		return nil, err
	}
	if !c.HasMember(target) {
		return nil, &registrystore.ValidationError{Field: "userId", Message: "user is not a member"}
	}
	if c.HasAdmin(target) {
		return nil, &registrystore.ConflictError{Message: "user is already an admin", Code: "already_admin"}
	}

	_, after, err := s.mutate(ctx, c.ID, registrystore.Mutation{
		RequireGroup: true,
		AdminIs:      actor,
		MemberIs:     target,
		NotAdmin:     target,
		AddAdmins:    []string{target},
	})
	if err != nil {
		return nil, err
	}
	log.Info("Admin added", "conversationId", after.ID, "actor", actor, "target", target)

	promoted, err := s.profile(ctx, target)
	if err != nil {
		log.Warn("Profile lookup failed", "userId", target, "err", err)
		promoted = model.Profile{ID: target}
	}
	s.systemMessage(ctx, after, actor, model.MessageTypeAddAdmin, "Added "+promoted.DisplayName()+" to admin")
	s.notifyMembers(after.Members, after.ID, model.TagUpdateAdmins, model.AdminsData{Admins: after.Admins})
	return s.conversationView(ctx, after, false)
}

// UpdateInfo renames a group.
func (s *Service) UpdateInfo(ctx context.Context, actor, conversationID, name string) (*model.ConversationView, error) {
	name, err := normalizeName(name, true)
	if err != nil {
		return nil, err
	}
	c, err := s.group(ctx, conversationID, actor, registrystore.AccessAdmin)
	if err != nil {
		return nil, err
	}
	_, after, err := s.mutate(ctx, c.ID, registrystore.Mutation{
		RequireGroup: true,
		AdminIs:      actor,
		SetName:      &name,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Conversation renamed", "conversationId", after.ID, "actor", actor)

	s.systemMessage(ctx, after, actor, model.MessageTypeInfo, "Changed conversation name to "+name)
	s.notifyMembers(after.Members, after.ID, model.TagUpdateInfo, model.InfoData{Name: name})
	return s.conversationView(ctx, after, false)
}
