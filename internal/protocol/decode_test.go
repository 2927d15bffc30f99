package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckSchemas(t *testing.T) {
	if err := CheckSchemas(); err != nil {
		t.Fatalf("schemas: %v", err)
	}
}

func TestDecode_Valid(t *testing.T) {
	cmd, err := Decode(TypePurchaseBuilding, []byte(`{"village_id":3,"building_type":"saw_mill","x":4,"y":2}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pb, ok := cmd.(PurchaseBuilding)
	if !ok {
		t.Fatalf("cmd=%T want PurchaseBuilding", cmd)
	}
	if pb.VillageID != 3 || pb.BuildingType != "saw_mill" || pb.X != 4 || pb.Y != 2 {
		t.Fatalf("decoded=%+v", pb)
	}

	cmd, err = Decode(TypeOverwriteTasks, []byte(`{"village_id":1,"unit_id":2,"tasks":[
		{"task_type":"walk","x":1,"y":6,"start":100},
		{"task_type":"gather_sticks","x":2,"y":5}
	]}`))
	if err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	ot := cmd.(OverwriteTasks)
	if len(ot.Tasks) != 2 || ot.Tasks[0].Start == nil || *ot.Tasks[0].Start != 100 || ot.Tasks[1].Start != nil {
		t.Fatalf("tasks=%+v", ot.Tasks)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name, typ, body, want string
	}{
		{"unknown type", "LAUNCH_ROCKET", `{}`, "unknown command"},
		{"bad json", TypeCreatePlayer, `{"name":`, "invalid json"},
		{"missing field", TypeCreatePlayer, `{"name":"duck","x":1}`, "y"},
		{"extra field", TypeDeleteBuilding, `{"village_id":1,"building_id":2,"force":true}`, "force"},
		{"bad enum", TypeOverwriteTasks, `{"village_id":1,"unit_id":1,"tasks":[{"task_type":"dance","x":0,"y":0}]}`, "/tasks/0/task_type"},
		{"duplicate units", TypeCreateAttack, `{"from_village_id":1,"to":{"x":1,"y":1},"unit_ids":[4,4]}`, "unit_ids"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.typ, []byte(tc.body))
			var de *DecodeError
			if !errors.As(err, &de) || de.Code != ErrBadRequest {
				t.Fatalf("err=%v want DecodeError", err)
			}
			if !strings.Contains(de.Message, tc.want) {
				t.Fatalf("message=%q want substring %q", de.Message, tc.want)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	req, cmd, err := DecodeRequest([]byte(`{"type":"STORY_TRANSITION","request_id":"r1","payload":{"player_id":1,"from":"a","to":"b"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.RequestID != "r1" || cmd.CommandType() != TypeStoryTransition {
		t.Fatalf("req=%+v cmd=%T", req, cmd)
	}
	if _, _, err := DecodeRequest([]byte(`{"type":"NOPE","payload":{}}`)); err == nil {
		t.Fatalf("unknown frame type accepted")
	}
}
