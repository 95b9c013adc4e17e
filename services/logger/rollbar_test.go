package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/admitdesk/admitdesk/core"
)

func Test_split(t *testing.T) {
	err := errors.New("boom")
	first := core.Actor{ID: "1", Name: "First"}
	extras := map[string]interface{}{"draft_id": "d1"}

	tests := []struct {
		name       string
		args       []interface{}
		wantActor  *core.Actor
		wantReport []interface{}
	}{
		{name: "message only", wantReport: []interface{}{"msg"}},
		{name: "error and extras", args: []interface{}{err, extras}, wantReport: []interface{}{"msg", err, extras}},
		{name: "first actor wins", args: []interface{}{first, core.Actor{ID: "2"}, err}, wantActor: &first, wantReport: []interface{}{"msg", err}},
		{name: "anonymous actor ignored", args: []interface{}{core.Actor{}}, wantReport: []interface{}{"msg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := split("msg", tt.args)
			assert.Equal(t, tt.wantActor, e.actor)
			assert.Equal(t, tt.wantReport, e.report)
			assert.Equal(t, tt.wantReport[1:], append([]interface{}{}, e.print...))
		})
	}
}

func TestRollbarLogger_prints(t *testing.T) {
	var buf bytes.Buffer
	conf := &core.Config{Env: "TEST", TestMode: true}
	logger := NewRollbarLogger(log.New(&buf, "", 0), conf)

	logger.Warn("slot sync skipped", errors.New("boom"), core.Actor{ID: "1"})
	assert.Equal(t, "[warning] slot sync skipped\nboom\n", buf.String())
}
