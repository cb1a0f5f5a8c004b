package ledger

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAmount_JSONIsDecimalString(t *testing.T) {
	o := sampleOrder(1)
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"amountGet":"10000000000000000000"`) {
		t.Errorf("amountGet not a decimal string: %s", b)
	}

	var back Order
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.AmountGet.Cmp(o.AmountGet.Int) != 0 || back.AmountGive.Cmp(o.AmountGive.Int) != 0 {
		t.Errorf("amounts = %s/%s", back.AmountGet, back.AmountGive)
	}
}

func TestAmount_UnmarshalForms(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		isNil   bool
		wantErr bool
	}{
		{in: `"123456789012345678901"`, want: "123456789012345678901"},
		{in: `42`, want: "42"},
		{in: `null`, isNil: true},
		{in: `"12.5"`, wantErr: true},
		{in: `"0x10"`, wantErr: true},
	}
	for _, tt := range tests {
		var a Amount
		err := json.Unmarshal([]byte(tt.in), &a)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.in, err)
			continue
		}
		if tt.wantErr {
			continue
		}
		if a.IsNil() != tt.isNil {
			t.Errorf("%s: IsNil = %v", tt.in, a.IsNil())
		}
		if !tt.isNil && a.String() != tt.want {
			t.Errorf("%s: got %s", tt.in, a.String())
		}
	}

	b, _ := json.Marshal(Amount{})
	if string(b) != "null" {
		t.Errorf("nil amount marshals as %s", b)
	}
}
