package relay

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"go-roomrelay/internal/failure"
)

func TestOptionPayload_AcceptsStringOrObject(t *testing.T) {
	req := require.New(t)

	var opts []OptionPayload
	req.NoError(json.Unmarshal([]byte(`["Red", {"text": "Blue", "votes": 9, "voters": ["mallory"]}]`), &opts))
	req.Equal([]OptionPayload{{Text: "Red"}, {Text: "Blue"}}, opts)
}

func TestDecodePayload_CreatePoll(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name string
		data string
		kind failure.Kind
	}{
		{name: "valid", data: `{"id":"p1","creator":"alice","question":"Color?","options":["Red"," Blue "]}`},
		{name: "missing payload", data: ``, kind: failure.Decode},
		{name: "not an object", data: `[1,2]`, kind: failure.Decode},
		{name: "one option", data: `{"id":"p1","creator":"alice","question":"Color?","options":["Red"]}`, kind: failure.Validation},
		{name: "blank option", data: `{"id":"p1","creator":"alice","question":"Color?","options":["Red","  "]}`, kind: failure.Validation},
		{name: "blank question", data: `{"id":"p1","creator":"alice","question":"  ","options":["Red","Blue"]}`, kind: failure.Validation},
		{name: "missing id", data: `{"creator":"alice","question":"Color?","options":["Red","Blue"]}`, kind: failure.Validation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			p, err := decodePayload[CreatePollPayload](v, EventCreatePoll, json.RawMessage(tt.data))
			if tt.kind == "" {
				req.NoError(err)
				req.Equal("Blue", p.Options[1].Text)
				return
			}
			req.Error(err)
			req.Equal(tt.kind, failure.KindOf(err))
		})
	}
}

func TestDecodePayload_VoteRequiresOptionIndex(t *testing.T) {
	req := require.New(t)
	v := validator.New()

	_, err := decodePayload[VotePayload](v, EventVoteOnPoll, json.RawMessage(`{"pollId":"p1","voter":"bob"}`))
	req.True(failure.IsKind(err, failure.Validation))

	p, err := decodePayload[VotePayload](v, EventVoteOnPoll, json.RawMessage(`{"pollId":"p1","optionIndex":0,"voter":"bob"}`))
	req.NoError(err)
	req.NotNil(p.OptionIndex)
	req.Equal(0, *p.OptionIndex)
}

func TestDecodeRoom(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{data: ``, want: ""},
		{data: `null`, want: ""},
		{data: `"lobby"`, want: "lobby"},
		{data: `{"roomId":" lobby "}`, want: "lobby"},
		{data: `{}`, want: ""},
	}
	for _, tt := range tests {
		room, err := decodeRoom(EventFetchMessages, json.RawMessage(tt.data))
		require.NoError(t, err, tt.data)
		require.Equal(t, tt.want, room, tt.data)
	}

	_, err := decodeRoom(EventFetchMessages, json.RawMessage(`42`))
	require.True(t, failure.IsKind(err, failure.Decode))
}

func TestEncodeFrame(t *testing.T) {
	req := require.New(t)

	raw, err := encodeFrame(EventReceiveMessage, map[string]string{"content": "hi"})
	req.NoError(err)
	req.JSONEq(`{"event":"receive_message","data":{"content":"hi"}}`, string(raw))
}
