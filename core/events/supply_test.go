package events

import (
	"testing"
)

func TestTokenSupplyEvent(t *testing.T) {
	evt := TokenSupply{
		Token:  "lst",
		Total:  5000,
		Delta:  250,
		Reason: SupplyReasonMint,
	}.Event()
	if evt == nil {
		t.Fatalf("expected event")
	}
	if evt.Type != TypeTokenSupply {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["token"] != "LST" {
		t.Fatalf("unexpected token attr: %s", evt.Attributes["token"])
	}
	if evt.Attributes["total"] != "5000" || evt.Attributes["delta"] != "250" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["reason"] != SupplyReasonMint {
		t.Fatalf("unexpected reason: %s", evt.Attributes["reason"])
	}
}

func TestBufferFlushesInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(Staked{Amount: 1})
	buf.Emit(nil)
	buf.Emit(Unstaked{Amount: 2})

	var got []string
	buf.Flush(emitterFunc(func(evt Event) { got = append(got, evt.EventType()) }))
	if len(got) != 2 || got[0] != TypeStaked || got[1] != TypeUnstaked {
		t.Fatalf("unexpected flush order: %v", got)
	}
	if len(buf.Events()) != 0 {
		t.Fatalf("buffer not reset after flush")
	}
}

func TestStakedEventAttributes(t *testing.T) {
	var owner [20]byte
	owner[19] = 7
	evt := Staked{Account: owner, Amount: 100000, Position: 150000, StakedAt: 1700000000}.Event()
	if evt.Attributes["amount"] != "100000" || evt.Attributes["position"] != "150000" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["stakedAt"] != "1700000000" {
		t.Fatalf("unexpected stakedAt: %s", evt.Attributes["stakedAt"])
	}
	if len(evt.Attributes["addr"]) == 0 || evt.Attributes["addr"][:4] != "lsd1" {
		t.Fatalf("unexpected addr: %s", evt.Attributes["addr"])
	}
}

type emitterFunc func(Event)

func (f emitterFunc) Emit(evt Event) { f(evt) }
