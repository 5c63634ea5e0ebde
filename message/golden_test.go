package message

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// TestGolden_RecordTranscript locks down the wire encoding of a
// representative record session. Regenerate with:
//
//	go test ./message -update
func TestGolden_RecordTranscript(t *testing.T) {
	patch, err := Typed(2.5)
	if err != nil {
		t.Fatal(err)
	}

	frames := []string{
		Build(TopicRecord, ActionCreateOrRead, "user/one"),
		Build(TopicRecord, ActionUpdate, "user/one", "2", `{"name":"ada"}`),
		Build(TopicRecord, ActionPatch, "user/one", "3", "score", patch),
		Build(TopicRecord, ActionUpdate, "user/one", "4", `{"name":"ada"}`, `{"writeSuccess":true}`),
		Build(TopicRecord, ActionSnapshot, "user/one"),
		Build(TopicRecord, ActionHas, "user/one"),
		Build(TopicRecord, ActionListen, "user/*"),
		Build(TopicRecord, ActionListenAccept, "user/*", "user/one"),
		Build(TopicRecord, ActionUnlisten, "user/*"),
		Build(TopicRecord, ActionUnsubscribe, "user/one"),
		Build(TopicRecord, ActionDelete, "user/one"),
	}

	var out strings.Builder
	for _, frame := range frames {
		out.WriteString(Humanize(frame))
		out.WriteByte('\n')
	}

	g := goldie.New(t)
	g.Assert(t, "record_transcript", []byte(out.String()))
}
