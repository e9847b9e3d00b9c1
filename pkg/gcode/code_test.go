package gcode

import "testing"

func TestCode_String(t *testing.T) {
	c := NewCode(ChannelHTTP)
	c.Type = TypeG
	c.HasMajor = true
	c.Major = 1
	c.Parameters = []Parameter{{Letter: 'X', Value: "10"}, {Letter: 'Y', Value: "20"}}

	if got, want := c.String(), "G1 X10 Y20"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCode_Param(t *testing.T) {
	c := NewCode(ChannelFile)
	c.Parameters = []Parameter{{Letter: 'S', Value: "5"}}

	if v, ok := c.Param('S'); !ok || v != "5" {
		t.Errorf("Param('S') = %q, %v; want 5, true", v, ok)
	}
	if _, ok := c.Param('Z'); ok {
		t.Error("Param('Z') should not be found")
	}
}

func TestQueuedCode_FinishDeliversReply(t *testing.T) {
	c := NewCode(ChannelHTTP)
	q := &QueuedCode{Code: c}
	q.AppendReply("ok")
	q.Finish()

	select {
	case res := <-c.Completion:
		if res.Reply != "ok" || res.Err != nil {
			t.Errorf("unexpected result: %+v", res)
		}
	default:
		t.Fatal("expected a delivered result")
	}
	if q.State != StateFinished {
		t.Errorf("state = %v, want Finished", q.State)
	}
}

func TestQueuedCode_FailDeliversError(t *testing.T) {
	c := NewCode(ChannelFile)
	q := &QueuedCode{Code: c}
	wantErr := errTest{}
	q.Fail(wantErr)

	res := <-c.Completion
	if res.Err != wantErr {
		t.Errorf("err = %v, want %v", res.Err, wantErr)
	}
	if q.State != StateFailed {
		t.Errorf("state = %v, want Failed", q.State)
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }
