package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/gate"
)

var errNotFound = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}

type call struct {
	name string
	args []string
}

type fakeSession struct {
	mu       sync.Mutex
	calls    []call
	sent     []*discordgo.MessageSend
	edits    []*discordgo.MessageEdit
	timeouts []*time.Time
	members  map[string]*discordgo.Member
	fail     error
}

func (f *fakeSession) record(name string, args ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, args})
}

func (f *fakeSession) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("send", channelID)
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return &discordgo.Message{ID: "555", ChannelID: channelID}, nil
}

func (f *fakeSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record("edit", m.Channel, m.ID)
	f.mu.Lock()
	f.edits = append(f.edits, m)
	f.mu.Unlock()
	return nil, f.fail
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.record("delete", channelID, messageID)
	return f.fail
}

func (f *fakeSession) GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error {
	f.record("timeout", guildID, userID)
	f.mu.Lock()
	f.timeouts = append(f.timeouts, until)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	f.record("role add", guildID, userID, roleID)
	return nil
}

func (f *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error {
	f.record("role remove", guildID, userID, roleID)
	return nil
}

func (f *fakeSession) GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error {
	f.record("ban", guildID, userID, reason)
	return nil
}

func (f *fakeSession) GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error {
	f.record("unban", guildID, userID)
	return nil
}

func (f *fakeSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return nil, errNotFound
}

func (f *fakeSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.record("dm", recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSession) Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.record("guild", guildID)
	return &discordgo.Guild{ID: guildID, SystemChannelID: "42"}, nil
}

func TestSendRoutesToChannels(t *testing.T) {
	fs := &fakeSession{}
	tr := NewTransport(fs, TransportOptions{})
	defer tr.Close()
	ctx := context.Background()

	ref, err := tr.SendMessage(ctx, gate.Destination{Chat: 100}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, admission.MessageRef{Channel: 42, ID: 555}, ref)

	tr.noteChannel(100, "77")
	_, err = tr.SendMessage(ctx, gate.Destination{Chat: 100}, "hi", nil)
	require.NoError(t, err)

	_, err = tr.SendMessage(ctx, gate.Destination{Chat: 9, Private: true}, "psst", nil)
	require.NoError(t, err)
	_, err = tr.SendMessage(ctx, gate.Destination{Chat: 9, Private: true}, "again", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"guild", "send", "send", "dm", "send", "send"}, fs.names())
	assert.Equal(t, "77", fs.calls[2].args[0])
	assert.Equal(t, "dm-9", fs.calls[5].args[0])
}

func TestWelcomeChannelOverride(t *testing.T) {
	fs := &fakeSession{}
	tr := NewTransport(fs, TransportOptions{WelcomeChannel: "88"})
	defer tr.Close()

	_, err := tr.SendMessage(context.Background(), gate.Destination{Chat: 100}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"send"}, fs.names())
	assert.Equal(t, "88", fs.calls[0].args[0])
}

func TestComponents(t *testing.T) {
	kb := &gate.Keyboard{Rows: [][]gate.Button{
		{{Text: "1", Data: "tok1"}, {Text: "2", Data: "tok2"}},
		{{Text: "retry", URL: "https://example.org"}},
	}}
	rows := components(kb)
	require.Len(t, rows, 2)
	first := rows[0].(discordgo.ActionsRow)
	require.Len(t, first.Components, 2)
	assert.Equal(t, "tok1", first.Components[0].(discordgo.Button).CustomID)
	link := rows[1].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, discordgo.LinkButton, link.Style)
	assert.Empty(t, link.CustomID)

	menu := components(&gate.Keyboard{Reply: true, Rows: [][]gate.Button{{{Text: "Yes", Data: "Yes"}}}})
	assert.Equal(t, "menu:Yes", menu[0].(discordgo.ActionsRow).Components[0].(discordgo.Button).CustomID)

	assert.NotNil(t, components(nil))
	assert.Empty(t, components(nil))
}

func TestDeleteAndEditIgnoreMissingMessages(t *testing.T) {
	fs := &fakeSession{fail: errNotFound}
	tr := NewTransport(fs, TransportOptions{})
	defer tr.Close()
	ref := admission.MessageRef{Channel: 1, ID: 2}

	assert.NoError(t, tr.DeleteMessage(context.Background(), ref))
	assert.NoError(t, tr.EditMessage(context.Background(), ref, "x", nil))

	fs.fail = errors.New("boom")
	assert.Error(t, tr.DeleteMessage(context.Background(), ref))
}

func TestEditClearsKeyboard(t *testing.T) {
	fs := &fakeSession{}
	tr := NewTransport(fs, TransportOptions{})
	defer tr.Close()

	require.NoError(t, tr.EditMessage(context.Background(), admission.MessageRef{Channel: 1, ID: 2}, "done", nil))
	require.Len(t, fs.edits, 1)
	assert.Equal(t, "done", *fs.edits[0].Content)
	assert.NotNil(t, fs.edits[0].Components)
	assert.Equal(t, "1", fs.edits[0].Channel)
	assert.Equal(t, "2", fs.edits[0].ID)
}

func TestRestrictMember(t *testing.T) {
	fs := &fakeSession{}
	tr := NewTransport(fs, TransportOptions{RestrictedRole: "role"})
	defer tr.Close()
	ctx := context.Background()
	until := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)

	require.NoError(t, tr.RestrictMember(ctx, 100, 7, gate.CapNone, until))
	require.NoError(t, tr.RestrictMember(ctx, 100, 7, gate.CapTextOnly, until))
	require.NoError(t, tr.RestrictMember(ctx, 100, 7, gate.CapAll, time.Time{}))

	assert.Equal(t, []string{"timeout", "timeout", "role add", "timeout", "role remove"}, fs.names())
	require.Len(t, fs.timeouts, 3)
	assert.Equal(t, until, *fs.timeouts[0])
	assert.Nil(t, fs.timeouts[1])
	assert.Nil(t, fs.timeouts[2])
}

func TestExpelSchedulesUnban(t *testing.T) {
	fs := &fakeSession{}
	tr := NewTransport(fs, TransportOptions{})
	defer tr.Close()

	require.NoError(t, tr.ExpelMember(context.Background(), 100, 7, "spammer", time.Now().Add(10*time.Millisecond)))
	assert.True(t, tr.takeExpelled(100, 7))
	assert.False(t, tr.takeExpelled(100, 7))

	require.Eventually(t, func() bool {
		names := fs.names()
		return len(names) == 2 && names[1] == "unban"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"100", "7", "spammer"}, fs.calls[0].args)
}

func TestMemberLookup(t *testing.T) {
	fs := &fakeSession{members: map[string]*discordgo.Member{
		"7": {Nick: "Alice", User: &discordgo.User{ID: "7", Username: "alice"}},
	}}
	tr := NewTransport(fs, TransportOptions{})
	defer tr.Close()

	m, ok, err := tr.Member(context.Background(), 100, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, gate.Member{ID: 7, Name: "Alice", Username: "alice", Mention: "<@7>"}, m)

	_, ok, err = tr.Member(context.Background(), 100, 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserIDFromToken(t *testing.T) {
	token := base64.RawStdEncoding.EncodeToString([]byte("123456789012345678")) + ".GhIjKl.secret"
	id, err := UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(123456789012345678), id)

	_, err = UserIDFromToken("garbage")
	assert.Error(t, err)
}
