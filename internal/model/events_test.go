package model_test

import (
	"encoding/json"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	"github.com/stretchr/testify/require"
)

func TestConversationUpdateDecodesOnTag(t *testing.T) {
	cases := []struct {
		name string
		in   model.ConversationUpdate
	}{
		{"members", model.ConversationUpdate{Tag: model.TagAddMembers, ConversationID: "c1", Data: model.MembersData{Members: []string{"u1", "u2"}}}},
		{"admins", model.ConversationUpdate{Tag: model.TagUpdateAdmins, ConversationID: "c1", Data: model.AdminsData{Admins: []string{"u1"}}}},
		{"thumb", model.ConversationUpdate{Tag: model.TagUpdateThumb, ConversationID: "c1", Data: model.ThumbData{Thumb: "https://cdn/x.jpg"}}},
		{"info", model.ConversationUpdate{Tag: model.TagUpdateInfo, ConversationID: "c1", Data: model.InfoData{Name: "team"}}},
		{"left", model.ConversationUpdate{Tag: model.TagIsLeave, ConversationID: "c1", Data: model.LeftData{}}},
		{"seen", model.ConversationUpdate{Tag: model.TagSeen, ConversationID: "c1", Data: model.LastMessageData{
			LastMessage: model.MessageView{Message: model.Message{ID: "m1", SeenUsers: []string{"u2"}}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.in)
			require.NoError(t, err)

			got, err := model.DecodeConversationUpdate(raw)
			require.NoError(t, err)
			require.Equal(t, tc.in, got)
		})
	}
}

func TestConversationUpdateWireShape(t *testing.T) {
	raw, err := json.Marshal(model.ConversationUpdate{Tag: model.TagRemoveMembers, ConversationID: "c9", Data: model.MembersData{Members: []string{"a"}}})
	require.NoError(t, err)
	require.JSONEq(t, `{"tag":"REMOVE_MEMBERS","conversationId":"c9","data":{"members":["a"]}}`, string(raw))
}

func TestConversationUpdateUnknownTag(t *testing.T) {
	_, err := model.DecodeConversationUpdate([]byte(`{"tag":"NOPE","conversationId":"c1","data":{}}`))
	require.Error(t, err)
}

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, model.DirectKey("b", "a"), model.DirectKey("a", "b"))
	require.Equal(t, "a:b", model.DirectKey("b", "a"))
}

func TestProfileDisplayName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", model.Profile{ID: "1", FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	require.Equal(t, "ada@example.com", model.Profile{ID: "1", Email: "ada@example.com"}.DisplayName())
	require.Equal(t, "1", model.Profile{ID: "1"}.DisplayName())
}
