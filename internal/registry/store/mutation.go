package store

import (
	"slices"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
)

// Mutation is a conditional update of a conversation's membership or info.
// Empty precondition fields are ignored.
type Mutation struct {
	// Preconditions.
	RequireGroup bool
	AdminIs      string
	MemberIs     string
	NotAdmin     string
	NotSoleAdmin string

	// Changes.
	AddMembers    []string
	RemoveMembers []string
	AddAdmins     []string
	RemoveAdmins  []string
	SetName       *string
	SetThumb      *string
}

// Matches reports whether c satisfies the mutation's precondition.
func (m Mutation) Matches(c *model.Conversation) bool {
	if m.RequireGroup && !c.IsGroup {
		return false
	}
	if m.AdminIs != "" && !c.HasAdmin(m.AdminIs) {
		return false
	}
	if m.MemberIs != "" && !c.HasMember(m.MemberIs) {
		return false
	}
	if m.NotAdmin != "" && c.HasAdmin(m.NotAdmin) {
		return false
	}
	if m.NotSoleAdmin != "" && c.IsSoleAdmin(m.NotSoleAdmin) {
		return false
	}
	return true
}

// Apply returns a copy of c with the changes applied. Set additions keep
// existing order and append new ids in the order given.
func (m Mutation) Apply(c model.Conversation) model.Conversation {
	c.Members = applySet(c.Members, m.AddMembers, m.RemoveMembers)
	c.Admins = applySet(c.Admins, m.AddAdmins, m.RemoveAdmins)
	if m.SetName != nil {
		c.Name = *m.SetName
	}
	if m.SetThumb != nil {
		c.Thumb = *m.SetThumb
	}
	return c
}

func applySet(current, add, remove []string) []string {
	out := make([]string, 0, len(current)+len(add))
	for _, id := range current {
		if !slices.Contains(remove, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range add {
		if !slices.Contains(remove, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
